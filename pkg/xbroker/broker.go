package xbroker

import (
	"context"
	"sync"

	"mgmtbroker/pkg/xenv"
	"mgmtbroker/pkg/xlog"
	"mgmtbroker/pkg/xmailbox"
	"mgmtbroker/pkg/xmodule"
	"mgmtbroker/pkg/xmsg"
	"mgmtbroker/pkg/xop"
	"mgmtbroker/pkg/xrouter"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var ErrControlServiceGone = errors.New("control service not registered")

type Args struct {
	Conf  *xenv.Config // 为空时使用默认配置
	Meter metric.Meter
}

// broker句柄: 一次Init创建, 一次Shutdown销毁
// 需要路由消息的组件通过句柄取得router
type Broker struct {
	conf     *xenv.Config
	registry *xmailbox.Registry
	pool     *xop.Pool
	router   *xrouter.Router
	control  *xmodule.Controller

	closeOnce sync.Once
	closeErr  error
}

func Init(ctx context.Context, arg Args) (*Broker, error) {
	conf := arg.Conf
	if conf == nil {
		conf = xenv.Default()
	}
	b := &Broker{
		conf:     conf,
		registry: xmailbox.NewRegistry(),
		pool:     xop.NewPool(),
	}

	router, err := xrouter.New(ctx, xrouter.Args{Registry: b.registry, Pool: b.pool, Meter: arg.Meter})
	if err != nil {
		return nil, errors.Wrap(err, "init router")
	}
	b.router = router

	control, err := xmodule.New(ctx, xmodule.Args{
		Name:      xmsg.QueueNameControlService,
		Router:    router,
		Workers:   conf.Workers,
		QueueSize: conf.QueueSize,
	})
	if err != nil {
		router.Shutdown(ctx)
		return nil, errors.Wrap(err, "init control service")
	}
	b.control = control

	xlog.Get(ctx).Info("Broker init.", zap.Int("workers", conf.Workers), zap.Int("queue_size", conf.QueueSize),
		zap.Duration("request_timeout", conf.RequestTimeout))
	return b, nil
}

func (b *Broker) Router() *xrouter.Router { return b.router }

func (b *Broker) Registry() *xmailbox.Registry { return b.registry }

func (b *Broker) Pool() *xop.Pool { return b.pool }

func (b *Broker) Control() *xmodule.Controller { return b.control }

func (b *Broker) Stats() xrouter.Stats { return b.router.Stats() }

func (b *Broker) RegisterModule(name string, handle interface{}, receive xmodule.ReceiveFunc) error {
	return b.control.RegisterModule(name, handle, receive)
}

// 发往控制服务, 超时取自配置
func (b *Broker) Request(ctx context.Context, req xmsg.Request) (*xmsg.Reply, error) {
	id, _, ok := b.registry.LookupByName(xmsg.QueueNameControlService)
	if !ok {
		return nil, ErrControlServiceGone
	}
	ctx, cancel := context.WithTimeout(ctx, b.conf.RequestTimeout)
	defer cancel()
	return b.router.Request(ctx, id, req)
}

// 关闭: 广播停止模块 => 关闭控制服务 => 关闭router
func (b *Broker) Shutdown(ctx context.Context) error {
	b.closeOnce.Do(func() {
		var errs error
		reply, err := b.Request(ctx, xmsg.NewStopAllModules())
		if err != nil {
			errs = multierr.Append(errs, errors.Wrap(err, "stop all modules"))
		} else if reply.Code != xmsg.CodeOK {
			errs = multierr.Append(errs, errors.Errorf("stop all modules reply %v", reply.Code))
		}

		b.control.Close(ctx)
		b.router.Shutdown(ctx)

		if live := b.pool.Live(); live != 0 {
			errs = multierr.Append(errs, errors.Errorf("%d operation nodes still alive", live))
		}
		b.closeErr = errs
		xlog.Get(ctx).Info("Broker shutdown.", zap.Error(errs))
	})
	return b.closeErr
}
