package providers

import (
	"context"

	"mgmtbroker/pkg/xenv"
	"mgmtbroker/pkg/xlog"
	"mgmtbroker/pkg/xmodule"
	"mgmtbroker/pkg/xmsg"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const (
	KindConfig    = "config"
	KindNamespace = "namespace"
	KindShutdown  = "shutdown"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidArg    = errors.New("invalid argument")
	ErrUnknownKind   = errors.New("unknown provider kind")
)

// xbroker.Broker / xmodule.Controller
type Registrar interface {
	RegisterModule(name string, handle interface{}, receive xmodule.ReceiveFunc) error
}

type Args struct {
	Manifest *xenv.Manifest // 为空时加载全部内置provider
	Stop     func()         // ShutdownProvider触发
}

// 广播记账
type lifecycle struct {
	name        string
	stopped     atomic.Bool
	subscribed  atomic.Bool
	broadcasted atomic.Int32
}

func (l *lifecycle) onBroadcast(ctx context.Context, t xmsg.MsgType) {
	l.broadcasted.Inc()
	switch t {
	case xmsg.TypeStopAllModules:
		l.stopped.Store(true)
	case xmsg.TypeSubscriptionInitComplete:
		l.subscribed.Store(true)
	}
	xlog.Get(ctx).Debug("Provider recv broadcast.", zap.String("module", l.name), zap.Stringer("type", t))
}

func (l *lifecycle) Stopped() bool { return l.stopped.Load() }

func (l *lifecycle) Subscribed() bool { return l.subscribed.Load() }

func (l *lifecycle) Broadcasts() int32 { return l.broadcasted.Load() }

// 已注册的provider
type Set struct {
	Config    *ConfigProvider
	Namespace *NamespaceProvider
	Shutdown  *ShutdownProvider
}

func defaultManifest() *xenv.Manifest {
	return &xenv.Manifest{Modules: []xenv.ModuleEntry{
		{Name: xmsg.ModuleNameConfigProvider, Kind: KindConfig},
		{Name: xmsg.ModuleNameNamespaceProvider, Kind: KindNamespace},
		{Name: xmsg.ModuleNameShutdownProvider, Kind: KindShutdown},
	}}
}

// 按清单创建并注册provider
func Register(ctx context.Context, reg Registrar, arg Args) (*Set, error) {
	manifest := arg.Manifest
	if manifest == nil || len(manifest.Modules) == 0 {
		manifest = defaultManifest()
	}

	set := &Set{}
	for _, entry := range manifest.Modules {
		var (
			handle  interface{}
			receive xmodule.ReceiveFunc
		)
		switch entry.Kind {
		case KindConfig:
			p := NewConfigProvider(entry.Name, entry.Properties)
			handle, receive, set.Config = p, configTable.Receive(), p
		case KindNamespace:
			p := NewNamespaceProvider(entry.Name, entry.Properties)
			handle, receive, set.Namespace = p, namespaceTable.Receive(), p
		case KindShutdown:
			p := NewShutdownProvider(entry.Name, arg.Stop)
			handle, receive, set.Shutdown = p, shutdownTable.Receive(), p
		default:
			return nil, errors.Wrapf(ErrUnknownKind, "module[%v] kind[%v]", entry.Name, entry.Kind)
		}
		if err := reg.RegisterModule(entry.Name, handle, receive); err != nil {
			return nil, errors.Wrapf(err, "register module[%v]", entry.Name)
		}
		xlog.Get(ctx).Info("Provider registered.", zap.String("module", entry.Name), zap.String("kind", entry.Kind))
	}
	return set, nil
}
