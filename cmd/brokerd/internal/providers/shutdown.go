package providers

import (
	"context"
	"sync"

	"mgmtbroker/pkg/xlog"
	"mgmtbroker/pkg/xmsg"
	"mgmtbroker/pkg/xregistry"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const MethodShutdown = "shutdown"

type ShutdownProvider struct {
	lifecycle
	stop     func()
	stopOnce sync.Once
}

var shutdownTable = xregistry.NewTable[*ShutdownProvider]().
	Register(xmsg.OpInvoke, xregistry.HandleWarp((*ShutdownProvider).invoke)).
	OnBroadcast(func(ctx context.Context, p *ShutdownProvider, t xmsg.MsgType) { p.onBroadcast(ctx, t) })

func NewShutdownProvider(name string, stop func()) *ShutdownProvider {
	p := &ShutdownProvider{stop: stop}
	p.name = name
	return p
}

// 只触发停机, 真正的关闭在daemon主协程中进行
func (p *ShutdownProvider) invoke(ctx context.Context, req *xmsg.ModuleRequest) *xmsg.Reply {
	if req.Method != MethodShutdown {
		return xregistry.Fail(req, errors.Wrapf(ErrInvalidArg, "method[%v]", req.Method))
	}
	if p.stop == nil {
		return xregistry.Fail(req, errors.New("shutdown not supported"))
	}
	p.stopOnce.Do(func() {
		xlog.Get(ctx).Info("Shutdown requested.", zap.String("module", p.name))
		p.stop()
	})
	return xregistry.Reply(req, xmsg.CodeOK, nil)
}
