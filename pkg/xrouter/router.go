package xrouter

import (
	"context"
	"fmt"
	"sync"

	"mgmtbroker/pkg/xcommon"
	"mgmtbroker/pkg/xlog"
	"mgmtbroker/pkg/xmailbox"
	"mgmtbroker/pkg/xmsg"
	"mgmtbroker/pkg/xop"

	"github.com/Workiva/go-datastructures/queue"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

type State int32

const (
	StateRunning State = iota
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const queueHint = 64

type Args struct {
	Registry *xmailbox.Registry
	Pool     *xop.Pool    // 为空时新建
	Meter    metric.Meter // 为空时使用全局MeterProvider
}

// 单协程消息路由
// 特性:
//  1. 一个路由协程, 一个FIFO队列
//  2. 目的地通过registry解析, Accept在路由协程内同步调用
//  3. 投递失败合成NAK, 走正常完成流程
//  4. Close: draining => 清空队列 => stopped
type Router struct {
	id       xmsg.QueueID
	registry *xmailbox.Registry
	pool     *xop.Pool
	queue    *queue.Queue
	state    atomic.Int32
	metric   *routerMetric

	closeOnce sync.Once
	wg        xcommon.WaitGroup
}

// 创建router并启动路由协程, 每个broker仅调用一次
func New(ctx context.Context, arg Args) (*Router, error) {
	if arg.Registry == nil {
		return nil, errors.New("router registry is nil")
	}
	if arg.Pool == nil {
		arg.Pool = xop.NewPool()
	}
	m, err := newRouterMetric(arg.Meter)
	if err != nil {
		return nil, errors.Wrap(err, "create router metric")
	}
	r := &Router{
		registry: arg.Registry,
		pool:     arg.Pool,
		queue:    queue.New(queueHint),
		metric:   m,
	}
	id, err := arg.Registry.Register(r)
	if err != nil {
		return nil, errors.Wrap(err, "register router")
	}
	r.id = id

	// 路由协程不随调用方ctx取消, 仅由Close消息结束
	loopCtx := xlog.FromContext(ctx, context.Background(), zap.String("queue", xmsg.QueueNameRouter))
	r.wg.Add(1)
	go r.routeLoop(loopCtx)

	xlog.Get(ctx).Info("Router start.", zap.Uint32("id", uint32(id)))
	return r, nil
}

func (r *Router) Name() string { return xmsg.QueueNameRouter }

// 发往router自身的节点在路由协程内直接处理, 不会经过Accept
func (r *Router) Accept(ctx context.Context, node *xop.Node) bool { return false }

func (r *Router) ID() xmsg.QueueID { return r.id }

func (r *Router) Registry() *xmailbox.Registry { return r.registry }

func (r *Router) Pool() *xop.Pool { return r.pool }

func (r *Router) State() State { return State(r.state.Load()) }

func (r *Router) Stats() Stats { return r.metric.snapshot() }

// 入队; 返回false时节点仍归调用方所有
func (r *Router) Submit(node *xop.Node) bool {
	if r.State() != StateRunning {
		return false
	}
	if err := r.queue.Put(node); err != nil {
		return false
	}
	r.metric.submitted.inc(node.Context())
	return true
}

// 业务循环
func (r *Router) routeLoop(ctx context.Context) {
	defer r.wg.Done(ctx)

	for {
		items, err := r.queue.Get(1)
		if err != nil {
			// 队列已关闭
			break
		}
		for _, item := range items {
			r.route(ctx, item.(*xop.Node))
		}
	}
	r.state.Store(int32(StateStopped))
	xlog.Get(ctx).Info("Router stop.")
}

func (r *Router) route(ctx context.Context, node *xop.Node) {
	if node.Dest() == r.id {
		if node.Request().MsgType() != xmsg.TypeRouterClose {
			panic(fmt.Sprintf("xrouter: protocol violation, %v addressed to router", node.Request().MsgType()))
		}
		r.handleClose(ctx, node)
		return
	}

	found, accepted := r.registry.Deliver(node.Dest(), func(box xmailbox.Mailbox) bool {
		return box.Accept(node.Context(), node)
	})
	if !found {
		r.reject(ctx, node, "destination not found")
		return
	}
	if !accepted {
		r.reject(ctx, node, "destination refused")
		return
	}
	r.metric.delivered.inc(ctx)
}

// 合成NAK, 构造失败时直接丢弃
func (r *Router) reject(ctx context.Context, node *xop.Node, reason string) {
	if node.IsComplete() {
		// 回调回送失败或发起方已放弃, 无需再应答
		r.Discard(ctx, node, reason)
		return
	}
	r.metric.rejected.inc(ctx)
	xlog.Get(ctx).Debug("Reject operation.", zap.String("reason", reason), zap.Uint32("dest", uint32(node.Dest())),
		zap.Stringer("type", node.Request().MsgType()), zap.Stringer("op", node.ID()))

	reply, err := node.Request().MakeReply(xmsg.CodeNAK)
	if err != nil || reply == nil {
		r.metric.nakFailures.inc(ctx)
		xlog.Get(ctx).Warn("Build NAK failed, drop operation.", zap.Error(err), zap.Stringer("op", node.ID()))
		r.Discard(ctx, node, "nak synthesis failed")
		return
	}
	r.Complete(ctx, node, reply)
}

// 关闭: draining => 应答close => 清空队列(不应答) => 关闭队列
func (r *Router) handleClose(ctx context.Context, node *xop.Node) {
	r.state.Store(int32(StateDraining))
	xlog.Get(ctx).Info("Router draining.")

	if reply, err := node.Request().MakeReply(xmsg.CodeOK); err == nil && reply != nil {
		r.Complete(ctx, node, reply)
	} else {
		r.Discard(ctx, node, "close reply failed")
	}

	remaining := r.queue.Dispose()
	for _, item := range remaining {
		r.Discard(ctx, item.(*xop.Node), "router shutdown")
	}
	if len(remaining) > 0 {
		xlog.Get(ctx).Info("Router drained.", zap.Int("discarded", len(remaining)))
	}
}

// 关闭router并等待路由协程退出, 可重复调用
func (r *Router) Shutdown(ctx context.Context) {
	r.closeOnce.Do(func() {
		node := r.pool.Get(ctx, r.id, xmsg.NewRouterClose(), xop.FireAndForget{})
		if !r.Submit(node) {
			// 已有其他close在处理
			r.pool.Put(node)
		}
		r.wg.Wait()
		// id注销后可能被复用, 只能注销一次
		r.registry.Unregister(r.id)
	})
	r.wg.Wait()
}
