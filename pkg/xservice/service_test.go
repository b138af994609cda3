package xservice_test

import (
	"context"
	"testing"
	"time"

	"mgmtbroker/pkg/xmailbox"
	"mgmtbroker/pkg/xmsg"
	"mgmtbroker/pkg/xop"
	"mgmtbroker/pkg/xrouter"
	"mgmtbroker/pkg/xservice"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/atomic"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordHandler struct {
	requests atomic.Int32
	legacy   chan xmsg.Message
}

func (h *recordHandler) HandleRequest(ctx context.Context, svc *xservice.Service, node *xop.Node) {
	h.requests.Inc()
	reply, _ := node.Request().MakeReply(xmsg.CodeOK)
	reply.Payload = svc.Name()
	svc.Complete(ctx, node, reply)
}

func (h *recordHandler) HandleEnqueue(ctx context.Context, svc *xservice.Service, msg xmsg.Message) {
	h.legacy <- msg
}

func newRouter(t *testing.T) *xrouter.Router {
	r, err := xrouter.New(context.Background(), xrouter.Args{
		Registry: xmailbox.NewRegistry(),
		Meter:    noop.NewMeterProvider().Meter("test"),
	})
	require.NoError(t, err)
	return r
}

func newService(t *testing.T, r *xrouter.Router, name string) (*xservice.Service, *recordHandler) {
	h := &recordHandler{legacy: make(chan xmsg.Message, 1)}
	svc, err := xservice.New(context.Background(), xservice.Args{Name: name, Router: r, Handler: h, Workers: 2, QueueSize: 16})
	require.NoError(t, err)
	return svc, h
}

func TestServiceRequestRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := newRouter(t)
	svc, h := newService(t, r, "svc")

	id, ok := svc.FindService("svc")
	require.True(t, ok)
	assert.Equal(t, svc.ID(), id)

	reply, err := r.Request(ctx, svc.ID(), xmsg.NewModuleRequest("m", xmsg.OpGet))
	require.NoError(t, err)
	assert.Equal(t, xmsg.CodeOK, reply.Code)
	assert.Equal(t, "svc", reply.Payload)
	assert.Equal(t, int32(1), h.requests.Load())

	svc.Close(ctx)
	svc.Close(ctx)
	r.Shutdown(ctx)
	assert.Equal(t, int64(0), r.Pool().Live())
}

func TestServiceStopStart(t *testing.T) {
	ctx := context.Background()
	r := newRouter(t)
	svc, h := newService(t, r, "svc")

	reply, err := r.Request(ctx, svc.ID(), xmsg.NewServiceStop())
	require.NoError(t, err)
	assert.Equal(t, xmsg.CodeServiceStopped, reply.Code)
	assert.False(t, svc.IsRunning())

	// 停止状态拒绝业务请求
	reply, err = r.Request(ctx, svc.ID(), xmsg.NewModuleRequest("m", xmsg.OpGet))
	require.NoError(t, err)
	assert.True(t, reply.IsNAK())
	assert.Equal(t, int32(0), h.requests.Load())

	reply, err = r.Request(ctx, svc.ID(), xmsg.NewServiceStart())
	require.NoError(t, err)
	assert.Equal(t, xmsg.CodeOK, reply.Code)
	assert.True(t, svc.IsRunning())

	reply, err = r.Request(ctx, svc.ID(), xmsg.NewModuleRequest("m", xmsg.OpGet))
	require.NoError(t, err)
	assert.Equal(t, xmsg.CodeOK, reply.Code)

	svc.Close(ctx)
	r.Shutdown(ctx)
	assert.Equal(t, int64(0), r.Pool().Live())
}

func TestServiceLegacyMessage(t *testing.T) {
	ctx := context.Background()
	r := newRouter(t)
	svc, h := newService(t, r, "svc")

	require.NoError(t, r.SendForget(ctx, svc.ID(), xmsg.NewLegacy("payload")))
	select {
	case msg := <-h.legacy:
		legacy, ok := msg.(*xmsg.Legacy)
		require.True(t, ok)
		assert.Equal(t, "payload", legacy.Payload)
	case <-time.After(time.Second):
		t.Fatal("legacy message not handled")
	}

	svc.Close(ctx)
	r.Shutdown(ctx)
	assert.Equal(t, int64(0), r.Pool().Live())
}

func TestServiceWithoutHandlerNAK(t *testing.T) {
	ctx := context.Background()
	r := newRouter(t)
	svc, err := xservice.New(ctx, xservice.Args{Name: "bare", Router: r})
	require.NoError(t, err)

	reply, err := r.Request(ctx, svc.ID(), xmsg.NewModuleRequest("m", xmsg.OpGet))
	require.NoError(t, err)
	assert.True(t, reply.IsNAK())

	svc.Close(ctx)
	r.Shutdown(ctx)
}

func TestServiceCallback(t *testing.T) {
	ctx := context.Background()
	r := newRouter(t)
	origin, _ := newService(t, r, "origin")
	target, _ := newService(t, r, "target")

	done := make(chan *xmsg.Reply, 1)
	err := origin.SendAsync(ctx, target.ID(), xmsg.NewModuleRequest("m", xmsg.OpInvoke),
		func(ctx context.Context, node *xop.Node, from xmsg.QueueID, userCtx interface{}) {
			assert.Equal(t, origin.ID(), from)
			assert.Equal(t, 7, userCtx)
			done <- node.Response().(*xmsg.Reply)
		}, 7)
	require.NoError(t, err)

	select {
	case reply := <-done:
		assert.Equal(t, "target", reply.Payload)
	case <-time.After(time.Second):
		t.Fatal("callback not invoked")
	}

	origin.Close(ctx)
	target.Close(ctx)
	r.Shutdown(ctx)
	assert.Equal(t, int64(0), r.Pool().Live())
}

func TestServiceCloseRejectsAfterwards(t *testing.T) {
	ctx := context.Background()
	r := newRouter(t)
	svc, _ := newService(t, r, "svc")
	id := svc.ID()

	svc.Close(ctx)
	assert.True(t, svc.IoClosed())
	_, ok := svc.FindService("svc")
	assert.False(t, ok)
	assert.False(t, svc.Accept(ctx, nil))

	reply, err := r.Request(ctx, id, xmsg.NewModuleRequest("m", xmsg.OpGet))
	require.NoError(t, err)
	assert.True(t, reply.IsNAK())

	r.Shutdown(ctx)
	assert.Equal(t, int64(0), r.Pool().Live())
}

func TestServiceCloseAfterRouterStopped(t *testing.T) {
	ctx := context.Background()
	r := newRouter(t)
	svc, _ := newService(t, r, "svc")

	r.Shutdown(ctx)
	svc.Close(ctx)
	assert.Equal(t, int64(0), svc.Pending())
	assert.Equal(t, int64(0), r.Pool().Live())
}
