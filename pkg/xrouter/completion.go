package xrouter

import (
	"context"

	"mgmtbroker/pkg/xlog"
	"mgmtbroker/pkg/xmsg"
	"mgmtbroker/pkg/xop"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// 完成节点, 按完成方式分发
// node为nil表示非异步消息, 直接忽略
// 只有Blocking节点可能被发起方放弃, 其余节点重复完成直接panic
func (r *Router) Complete(ctx context.Context, node *xop.Node, resp xmsg.Message) {
	if node == nil {
		return
	}

	switch d := node.Discipline().(type) {
	case xop.FireAndForget:
		node.MustComplete()
		r.metric.completed.inc(ctx)
		r.pool.Put(node)
	case xop.Blocking:
		if !node.TryComplete() {
			// 发起方超时放弃, 迟到的完成由完成方释放
			r.absorb(ctx, node)
			return
		}
		node.SetResponse(resp)
		r.metric.completed.inc(ctx)
		// 发起方负责释放
		node.Signal()
	case xop.Callback:
		node.MustComplete()
		node.SetResponse(resp)
		r.metric.completed.inc(ctx)
		node.SetDest(d.Origin)
		if !r.Submit(node) {
			r.Discard(ctx, node, "callback origin unreachable")
		}
	default:
		panic("xrouter: unknown discipline")
	}
}

func (r *Router) absorb(ctx context.Context, node *xop.Node) {
	r.metric.abandoned.inc(ctx)
	xlog.Get(ctx).Debug("Absorb abandoned operation.", zap.Stringer("op", node.ID()))
	r.pool.Put(node)
}

// 丢弃节点, 不产生响应
// Blocking节点: 仍在等待时唤醒发起方(返回ErrDiscarded), 否则直接释放
func (r *Router) Discard(ctx context.Context, node *xop.Node, reason string) {
	if node == nil {
		return
	}
	r.metric.discarded.inc(ctx)
	xlog.Get(ctx).Debug("Discard operation.", zap.String("reason", reason), zap.Stringer("op", node.ID()),
		zap.Stringer("kind", node.Discipline().Kind()))

	if node.Discipline().Kind() == xop.KindBlocking && node.TryComplete() {
		node.Signal()
		return
	}
	r.pool.Put(node)
}

// 非异步消息: 交给handler前释放节点, 有观察者时按无响应唤醒
func (r *Router) Release(ctx context.Context, node *xop.Node) {
	if node == nil {
		return
	}
	if node.Discipline().Kind() == xop.KindFireAndForget {
		r.pool.Put(node)
		return
	}
	r.Discard(ctx, node, "legacy message")
}

// 在origin所在service的worker中执行回调, 回调后释放节点
func (r *Router) RunCallback(ctx context.Context, node *xop.Node) {
	defer r.pool.Put(node)

	cb, ok := node.Discipline().(xop.Callback)
	if !ok || cb.Fn == nil {
		return
	}
	cb.Fn(ctx, node, cb.Origin, cb.Context)
}

// 阻塞发送, 直到完成/ctx结束
func (r *Router) SendWait(ctx context.Context, dest xmsg.QueueID, req xmsg.Request) (xmsg.Message, error) {
	node := r.pool.Get(ctx, dest, req, xop.Blocking{})
	if !r.Submit(node) {
		r.pool.Put(node)
		return nil, ErrRouterStopped
	}

	if err := node.Wait(ctx); err != nil {
		if node.TryComplete() {
			// 放弃, 节点交由后续完成方释放
			return nil, errors.WithMessage(ErrRequestTimeout, err.Error())
		}
		// 完成已在进行中
		node.WaitSignal()
	}

	resp := node.Response()
	r.pool.Put(node)
	if resp == nil {
		return nil, ErrDiscarded
	}
	return resp, nil
}

// 阻塞发送并要求响应为Reply
func (r *Router) Request(ctx context.Context, dest xmsg.QueueID, req xmsg.Request) (*xmsg.Reply, error) {
	resp, err := r.SendWait(ctx, dest, req)
	if err != nil {
		return nil, err
	}
	reply, ok := resp.(*xmsg.Reply)
	if !ok {
		return nil, errors.Wrapf(ErrUnexpectedResponse, "type[%v]", resp.MsgType())
	}
	return reply, nil
}

func (r *Router) SendForget(ctx context.Context, dest xmsg.QueueID, req xmsg.Request) error {
	node := r.pool.Get(ctx, dest, req, xop.FireAndForget{})
	if !r.Submit(node) {
		r.pool.Put(node)
		return ErrRouterStopped
	}
	return nil
}

// 异步发送, 响应在cb.Origin所在service中回调
func (r *Router) SendAsync(ctx context.Context, dest xmsg.QueueID, req xmsg.Request, cb xop.Callback) error {
	if cb.Origin == xmsg.InvalidQueueID {
		return errors.New("callback origin is invalid")
	}
	node := r.pool.Get(ctx, dest, req, cb)
	if !r.Submit(node) {
		r.pool.Put(node)
		return ErrRouterStopped
	}
	return nil
}
