package xservice

import (
	"context"
	"sync"
	"time"

	"mgmtbroker/pkg/xcommon"
	"mgmtbroker/pkg/xlog"
	"mgmtbroker/pkg/xmsg"
	"mgmtbroker/pkg/xop"
	"mgmtbroker/pkg/xrouter"

	"github.com/Workiva/go-datastructures/queue"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const (
	DefaultWorkers   = 5
	MaxWorkers       = 5000
	DefaultQueueSize = 1024

	ioCloseWaitInterval = 50 * time.Millisecond
)

// 业务处理
type Handler interface {
	// 异步请求, 处理方负责完成node(svc.Complete/svc.MakeResponse)
	HandleRequest(ctx context.Context, svc *Service, node *xop.Node)
	// 非异步消息, node已释放
	HandleEnqueue(ctx context.Context, svc *Service, msg xmsg.Message)
}

type Args struct {
	Name      string
	Router    *xrouter.Router
	Handler   Handler // 为空时所有业务请求应答NAK
	Workers   int     // 0使用默认值, 越界时使用MaxWorkers
	QueueSize int
}

// 可寻址服务
// 特性:
//  1. Accept只做入队, 不阻塞router协程
//  2. 多worker并发处理incoming队列
//  3. IoClose => 停止接收, ServiceStart/ServiceStop切换运行状态
//  4. 回调节点在origin service的worker中执行
type Service struct {
	name     string
	id       xmsg.QueueID
	router   *xrouter.Router
	handler  Handler
	incoming *queue.RingBuffer

	running  atomic.Bool
	ioClosed atomic.Bool
	die      atomic.Bool
	busy     atomic.Int32 // 正在处理的worker
	pending  atomic.Int64 // 已接收未处理完

	closeOnce sync.Once
	wg        xcommon.WaitGroup
}

func New(ctx context.Context, arg Args) (*Service, error) {
	if arg.Router == nil {
		return nil, errors.New("service router is nil")
	}
	if arg.Workers == 0 {
		arg.Workers = DefaultWorkers
	} else if arg.Workers < 0 || arg.Workers > MaxWorkers {
		arg.Workers = MaxWorkers
	}
	if arg.QueueSize <= 0 {
		arg.QueueSize = DefaultQueueSize
	}
	s := &Service{
		name:     arg.Name,
		router:   arg.Router,
		handler:  arg.Handler,
		incoming: queue.NewRingBuffer(uint64(arg.QueueSize)),
	}
	s.running.Store(true)

	id, err := arg.Router.Registry().Register(s)
	if err != nil {
		return nil, errors.Wrapf(err, "register service[%v]", arg.Name)
	}
	s.id = id

	loopCtx := xlog.FromContext(ctx, context.Background(), zap.String("service", arg.Name), zap.Uint32("queue", uint32(id)))
	for i := 0; i < arg.Workers; i++ {
		s.wg.Add(1)
		go s.workLoop(loopCtx)
	}
	xlog.Get(ctx).Info("Service start.", zap.String("name", arg.Name), zap.Uint32("id", uint32(id)), zap.Int("workers", arg.Workers))
	return s, nil
}

func (s *Service) Name() string { return s.name }

func (s *Service) ID() xmsg.QueueID { return s.id }

func (s *Service) Router() *xrouter.Router { return s.router }

func (s *Service) IsRunning() bool { return s.running.Load() }

func (s *Service) IoClosed() bool { return s.ioClosed.Load() }

// 已接收尚未处理完的节点数
func (s *Service) Pending() int64 { return s.pending.Load() }

// router协程内调用, 只做入队
func (s *Service) Accept(ctx context.Context, node *xop.Node) bool {
	if s.die.Load() || s.ioClosed.Load() {
		return false
	}
	if !s.running.Load() {
		// 停止状态只接收start/ioclose
		t := node.Request().MsgType()
		if t != xmsg.TypeServiceStart && t != xmsg.TypeIoClose {
			return false
		}
	}

	s.pending.Inc()
	ok, err := s.incoming.Offer(node)
	if err != nil || !ok {
		s.pending.Dec()
		return false
	}
	return true
}

// 业务循环
func (s *Service) workLoop(ctx context.Context) {
	defer s.wg.Done(ctx)

	for {
		item, err := s.incoming.Get()
		if err != nil {
			// 队列已关闭
			return
		}
		s.busy.Inc()
		s.handleIncoming(ctx, item.(*xop.Node))
		s.busy.Dec()
		s.pending.Dec()
	}
}

func (s *Service) handleIncoming(ctx context.Context, node *xop.Node) {
	req := node.Request()

	// 非异步消息
	if req.MsgType() == xmsg.TypeLegacy {
		s.router.Release(ctx, node)
		if s.handler != nil {
			s.handler.HandleEnqueue(ctx, s, req)
		} else {
			xlog.Get(ctx).Warn("Legacy message dropped, no handler.")
		}
		return
	}

	// 回调回送
	if node.Discipline().Kind() == xop.KindCallback && node.IsComplete() {
		s.router.RunCallback(ctx, node)
		return
	}

	switch req.MsgType() {
	case xmsg.TypeIoClose:
		s.handleIoClose(ctx, node)
	case xmsg.TypeServiceStart:
		s.running.Store(true)
		s.MakeResponse(ctx, node, xmsg.CodeOK)
	case xmsg.TypeServiceStop:
		s.running.Store(false)
		s.MakeResponse(ctx, node, xmsg.CodeServiceStopped)
	default:
		if s.handler == nil {
			s.MakeResponse(ctx, node, xmsg.CodeNAK)
			return
		}
		s.handler.HandleRequest(ctx, s, node)
	}
}

// 停止接收, 等待其他worker处理完当前消息后应答
func (s *Service) handleIoClose(ctx context.Context, node *xop.Node) {
	s.ioClosed.Store(true)
	xcommon.SpinSleepUntil(func() bool { return s.busy.Load() <= 1 }, ioCloseWaitInterval)
	xlog.Get(ctx).Info("Service incoming closed.")
	s.MakeResponse(ctx, node, xmsg.CodeOK)
}

// 完成节点
func (s *Service) Complete(ctx context.Context, node *xop.Node, resp xmsg.Message) {
	s.router.Complete(ctx, node, resp)
}

// 以请求的默认响应完成节点
func (s *Service) MakeResponse(ctx context.Context, node *xop.Node, code xmsg.ResultCode) {
	reply, err := node.Request().MakeReply(code)
	if err != nil || reply == nil {
		xlog.Get(ctx).Warn("Build reply failed.", zap.Error(err), zap.Stringer("code", code))
		s.router.Discard(ctx, node, "reply synthesis failed")
		return
	}
	s.router.Complete(ctx, node, reply)
}

// 按名称查找服务, 结果不可跨让出点缓存
func (s *Service) FindService(name string) (xmsg.QueueID, bool) {
	id, _, ok := s.router.Registry().LookupByName(name)
	return id, ok
}

func (s *Service) SendWait(ctx context.Context, dest xmsg.QueueID, req xmsg.Request) (*xmsg.Reply, error) {
	return s.router.Request(ctx, dest, req)
}

func (s *Service) SendForget(ctx context.Context, dest xmsg.QueueID, req xmsg.Request) error {
	return s.router.SendForget(ctx, dest, req)
}

// 异步发送, 回调在本service的worker中执行
func (s *Service) SendAsync(ctx context.Context, dest xmsg.QueueID, req xmsg.Request, fn xop.CallbackFunc, userCtx interface{}) error {
	return s.router.SendAsync(ctx, dest, req, xop.Callback{Fn: fn, Origin: s.id, Context: userCtx})
}

// 关闭: ioclose => die => 注销 => 处理完已接收节点 => 退出worker
func (s *Service) Close(ctx context.Context) {
	s.closeOnce.Do(func() {
		if !s.ioClosed.Load() {
			if err := s.router.SendForget(ctx, s.id, xmsg.NewIoClose()); err != nil {
				s.ioClosed.Store(true)
			}
			// router关闭时ioclose可能被丢弃
			xcommon.SpinSleepUntil(func() bool {
				return s.ioClosed.Load() || s.router.State() == xrouter.StateStopped
			}, time.Millisecond)
			s.ioClosed.Store(true)
		}
		s.die.Store(true)

		s.router.Registry().Unregister(s.id)
		xcommon.SpinSleepUntil(func() bool { return s.pending.Load() == 0 }, time.Millisecond)

		s.incoming.Dispose()
		s.wg.Wait()
		xlog.Get(ctx).Info("Service stop.", zap.String("name", s.name))
	})
}
