package xmodule

import (
	"context"
	"sync"

	"mgmtbroker/pkg/xlog"
	"mgmtbroker/pkg/xmsg"
	"mgmtbroker/pkg/xop"
	"mgmtbroker/pkg/xrouter"
	"mgmtbroker/pkg/xservice"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

var (
	ErrAlreadyExists = errors.New("module already exists")
	ErrNilReceive    = errors.New("module receive is nil")
	ErrNoService     = errors.New("service not found")
)

// 模块处理函数
// 定向请求返回模块自身的应答, 返回nil按NAK处理; 广播请求的返回值被忽略
type ReceiveFunc func(ctx context.Context, req xmsg.Request, handle interface{}) *xmsg.Reply

type registration struct {
	name    string
	handle  interface{}
	receive ReceiveFunc
}

type Args struct {
	Name      string // 默认ControlService
	Router    *xrouter.Router
	Workers   int
	QueueSize int
}

// 模块控制器: 按名称分发请求到已注册模块
// 注册表按注册顺序保存, 只增不删; 写时复制, 分发时无锁读取
type Controller struct {
	*xservice.Service

	mu      sync.Mutex // 仅保护注册
	modules atomic.Pointer[[]*registration]
}

func New(ctx context.Context, arg Args) (*Controller, error) {
	if arg.Name == "" {
		arg.Name = xmsg.QueueNameControlService
	}
	c := &Controller{}
	c.modules.Store(&[]*registration{})

	svc, err := xservice.New(ctx, xservice.Args{
		Name:      arg.Name,
		Router:    arg.Router,
		Handler:   c,
		Workers:   arg.Workers,
		QueueSize: arg.QueueSize,
	})
	if err != nil {
		return nil, err
	}
	c.Service = svc
	return c, nil
}

func (c *Controller) RegisterModule(name string, handle interface{}, receive ReceiveFunc) error {
	if receive == nil {
		return errors.Wrapf(ErrNilReceive, "module[%v]", name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	current := *c.modules.Load()
	for _, reg := range current {
		if reg.name == name {
			return errors.Wrapf(ErrAlreadyExists, "module[%v]", name)
		}
	}
	next := make([]*registration, len(current), len(current)+1)
	copy(next, current)
	next = append(next, &registration{name: name, handle: handle, receive: receive})
	c.modules.Store(&next)
	return nil
}

// 注册顺序
func (c *Controller) Modules() []string {
	current := *c.modules.Load()
	names := make([]string, 0, len(current))
	for _, reg := range current {
		names = append(names, reg.name)
	}
	return names
}

func (c *Controller) Module(name string) (interface{}, bool) {
	if reg := c.find(name); reg != nil {
		return reg.handle, true
	}
	return nil, false
}

func (c *Controller) find(name string) *registration {
	for _, reg := range *c.modules.Load() {
		if reg.name == name {
			return reg
		}
	}
	return nil
}

// worker在New返回前即可能收到请求, 统一使用传入的svc
func (c *Controller) HandleRequest(ctx context.Context, svc *xservice.Service, node *xop.Node) {
	req := node.Request()
	if xmsg.IsBroadcast(req.MsgType()) {
		c.broadcast(ctx, svc, node)
		return
	}
	moduleReq, ok := req.(*xmsg.ModuleRequest)
	if !ok {
		xlog.Get(ctx).Warn("Unsupported request.", zap.Stringer("type", req.MsgType()))
		svc.MakeResponse(ctx, node, xmsg.CodeNAK)
		return
	}
	c.dispatch(ctx, svc, node, moduleReq)
}

// 定向分发
func (c *Controller) dispatch(ctx context.Context, svc *xservice.Service, node *xop.Node, req *xmsg.ModuleRequest) {
	reg := c.find(req.Module)
	if reg == nil {
		xlog.Get(ctx).Debug("Module not found.", zap.String("module", req.Module))
		svc.MakeResponse(ctx, node, xmsg.CodeNAK)
		return
	}
	reply := reg.receive(ctx, req, reg.handle)
	if reply == nil {
		svc.MakeResponse(ctx, node, xmsg.CodeNAK)
		return
	}
	if reply.Request == xmsg.TypeUnknown {
		reply.Request = req.MsgType()
	}
	svc.Complete(ctx, node, reply)
}

// 广播: 按注册顺序调用所有模块, 应答使用请求自身的默认响应
func (c *Controller) broadcast(ctx context.Context, svc *xservice.Service, node *xop.Node) {
	req := node.Request()
	modules := *c.modules.Load()
	for _, reg := range modules {
		if reply := reg.receive(ctx, req, reg.handle); reply != nil && reply.Code != xmsg.CodeOK {
			xlog.Get(ctx).Info("Module broadcast result.", zap.String("module", reg.name),
				zap.Stringer("type", req.MsgType()), zap.Stringer("code", reply.Code))
		}
	}
	svc.MakeResponse(ctx, node, xmsg.CodeOK)
}

func (c *Controller) HandleEnqueue(ctx context.Context, svc *xservice.Service, msg xmsg.Message) {
	xlog.Get(ctx).Warn("Controller ignores legacy message.", zap.Stringer("type", msg.MsgType()))
}

// 模块向其他服务发送阻塞请求, 按名称即时解析
func (c *Controller) ClientSendWait(ctx context.Context, service string, req xmsg.Request) (*xmsg.Reply, error) {
	id, ok := c.FindService(service)
	if !ok {
		return nil, errors.Wrapf(ErrNoService, "service[%v]", service)
	}
	return c.SendWait(ctx, id, req)
}

func (c *Controller) ClientSendForget(ctx context.Context, service string, req xmsg.Request) error {
	id, ok := c.FindService(service)
	if !ok {
		return errors.Wrapf(ErrNoService, "service[%v]", service)
	}
	return c.SendForget(ctx, id, req)
}
