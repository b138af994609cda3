package xbroker_test

import (
	"context"
	"testing"
	"time"

	"mgmtbroker/pkg/xbroker"
	"mgmtbroker/pkg/xenv"
	"mgmtbroker/pkg/xmsg"
	"mgmtbroker/pkg/xrouter"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/atomic"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newBroker(t *testing.T) *xbroker.Broker {
	conf := xenv.Default()
	conf.RequestTimeout = time.Second
	b, err := xbroker.Init(context.Background(), xbroker.Args{Conf: conf, Meter: noop.NewMeterProvider().Meter("test")})
	require.NoError(t, err)
	return b
}

func TestBrokerRequestAndShutdown(t *testing.T) {
	ctx := context.Background()
	b := newBroker(t)

	stopped := atomic.NewInt32(0)
	require.NoError(t, b.RegisterModule("counter", nil, func(ctx context.Context, req xmsg.Request, handle interface{}) *xmsg.Reply {
		if req.MsgType() == xmsg.TypeStopAllModules {
			stopped.Inc()
			return nil
		}
		mreq := req.(*xmsg.ModuleRequest)
		reply, _ := req.MakeReply(xmsg.CodeOK)
		reply.Payload = mreq.StringArg("key")
		return reply
	}))

	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			req := xmsg.NewModuleRequest("counter", xmsg.OpGet)
			req.Args["key"] = "value"
			reply, err := b.Request(ctx, req)
			if err != nil {
				return err
			}
			assert.Equal(t, "value", reply.Payload)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	require.NoError(t, b.Shutdown(ctx))
	require.NoError(t, b.Shutdown(ctx))
	assert.Equal(t, int32(1), stopped.Load())
	assert.Equal(t, int64(0), b.Pool().Live())

	_, err := b.Request(ctx, xmsg.NewModuleRequest("counter", xmsg.OpGet))
	require.ErrorIs(t, err, xbroker.ErrControlServiceGone)
}

func TestBrokerRequestTimeout(t *testing.T) {
	ctx := context.Background()
	conf := xenv.Default()
	conf.RequestTimeout = 20 * time.Millisecond
	b, err := xbroker.Init(ctx, xbroker.Args{Conf: conf, Meter: noop.NewMeterProvider().Meter("test")})
	require.NoError(t, err)

	release := make(chan struct{})
	require.NoError(t, b.RegisterModule("slow", nil, func(ctx context.Context, req xmsg.Request, handle interface{}) *xmsg.Reply {
		if req.MsgType() == xmsg.TypeModuleRequest {
			<-release
		}
		reply, _ := req.MakeReply(xmsg.CodeOK)
		return reply
	}))

	_, err = b.Request(ctx, xmsg.NewModuleRequest("slow", xmsg.OpInvoke))
	require.ErrorIs(t, err, xrouter.ErrRequestTimeout)
	close(release)

	// 迟到的完成被吸收
	assert.Eventually(t, func() bool { return b.Stats().Abandoned == 1 }, time.Second, time.Millisecond)
	require.NoError(t, b.Shutdown(ctx))
	assert.Equal(t, int64(0), b.Pool().Live())
}
