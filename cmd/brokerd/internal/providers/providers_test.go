package providers_test

import (
	"context"
	"testing"
	"time"

	"mgmtbroker/cmd/brokerd/internal/providers"
	"mgmtbroker/pkg/xbroker"
	"mgmtbroker/pkg/xenv"
	"mgmtbroker/pkg/xmsg"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/goleak"
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

func configRequest(op xmsg.Operation, name string, value interface{}) *xmsg.ModuleRequest {
	req := xmsg.NewModuleRequest(xmsg.ModuleNameConfigProvider, op)
	if name != "" {
		req.Args["name"] = name
	}
	if value != nil {
		req.Args["value"] = value
	}
	return req
}

func TestConfigProvider(t *testing.T) {
	ctx := context.Background()
	b := newBroker(t)
	manifest, err := xenv.ParseManifest([]byte(`
modules:
  - name: ControlService::ConfigProvider
    kind: config
    properties:
      maxConnections: "16"
`))
	require.NoError(t, err)
	set, err := providers.Register(ctx, b, providers.Args{Manifest: manifest})
	require.NoError(t, err)
	require.NotNil(t, set.Config)
	assert.Nil(t, set.Namespace)

	reply, err := b.Request(ctx, configRequest(xmsg.OpGet, "maxConnections", nil))
	require.NoError(t, err)
	assert.Equal(t, xmsg.CodeOK, reply.Code)
	assert.Equal(t, "16", reply.Payload)

	reply, err = b.Request(ctx, configRequest(xmsg.OpCreate, "logLevel", "debug"))
	require.NoError(t, err)
	assert.Equal(t, xmsg.CodeOK, reply.Code)

	reply, err = b.Request(ctx, configRequest(xmsg.OpCreate, "logLevel", "info"))
	require.NoError(t, err)
	assert.Equal(t, xmsg.CodeFailed, reply.Code)
	assert.True(t, errors.Is(reply.Err, providers.ErrAlreadyExists))

	reply, err = b.Request(ctx, configRequest(xmsg.OpModify, "maxConnections", float64(32)))
	require.NoError(t, err)
	assert.Equal(t, xmsg.CodeOK, reply.Code)
	assert.Equal(t, "16", reply.Payload)

	reply, err = b.Request(ctx, configRequest(xmsg.OpEnumerate, "", nil))
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"maxConnections": "32", "logLevel": "debug"}, reply.Payload)

	reply, err = b.Request(ctx, configRequest(xmsg.OpDelete, "logLevel", nil))
	require.NoError(t, err)
	assert.Equal(t, xmsg.CodeOK, reply.Code)
	_, ok := set.Config.Property("logLevel")
	assert.False(t, ok)

	reply, err = b.Request(ctx, configRequest(xmsg.OpGet, "logLevel", nil))
	require.NoError(t, err)
	assert.True(t, errors.Is(reply.Err, providers.ErrNotFound))

	reply, err = b.Request(ctx, configRequest(xmsg.OpModify, "", "x"))
	require.NoError(t, err)
	assert.True(t, errors.Is(reply.Err, providers.ErrInvalidArg))

	// 未注册的操作
	reply, err = b.Request(ctx, configRequest(xmsg.OpInvoke, "", nil))
	require.NoError(t, err)
	assert.True(t, reply.IsNAK())

	require.NoError(t, b.Shutdown(ctx))
	assert.True(t, set.Config.Stopped())
}

func TestNamespaceProvider(t *testing.T) {
	ctx := context.Background()
	b := newBroker(t)
	set, err := providers.Register(ctx, b, providers.Args{})
	require.NoError(t, err)
	assert.Equal(t, []string{"root", "root/cimv2", "root/interop"}, set.Namespace.Namespaces())

	nsRequest := func(op xmsg.Operation, ns string) *xmsg.Reply {
		req := xmsg.NewModuleRequest(xmsg.ModuleNameNamespaceProvider, op)
		req.Namespace = ns
		reply, err := b.Request(ctx, req)
		require.NoError(t, err)
		return reply
	}

	assert.Equal(t, xmsg.CodeOK, nsRequest(xmsg.OpCreate, "/root/test/").Code)
	assert.True(t, errors.Is(nsRequest(xmsg.OpCreate, "root/test").Err, providers.ErrAlreadyExists))
	assert.True(t, errors.Is(nsRequest(xmsg.OpCreate, "vendor/acme").Err, providers.ErrNotFound))
	assert.True(t, errors.Is(nsRequest(xmsg.OpDelete, "root").Err, providers.ErrInvalidArg))
	assert.Equal(t, []interface{}{"root", "root/cimv2", "root/interop", "root/test"}, nsRequest(xmsg.OpEnumerate, "").Payload)
	assert.Equal(t, xmsg.CodeOK, nsRequest(xmsg.OpDelete, "root/test").Code)
	assert.True(t, errors.Is(nsRequest(xmsg.OpDelete, "root/test").Err, providers.ErrNotFound))

	reply, err := b.Request(ctx, xmsg.NewSubscriptionInitComplete())
	require.NoError(t, err)
	assert.Equal(t, xmsg.CodeOK, reply.Code)
	assert.True(t, set.Namespace.Subscribed())
	assert.True(t, set.Config.Subscribed())
	assert.False(t, set.Shutdown.Stopped())

	require.NoError(t, b.Shutdown(ctx))
	assert.Equal(t, int32(2), set.Shutdown.Broadcasts())
	assert.True(t, set.Shutdown.Stopped())
}

func TestShutdownProvider(t *testing.T) {
	ctx := context.Background()
	b := newBroker(t)
	stopCh := make(chan struct{})
	_, err := providers.Register(ctx, b, providers.Args{Stop: func() { close(stopCh) }})
	require.NoError(t, err)

	req := xmsg.NewModuleRequest(xmsg.ModuleNameShutdownProvider, xmsg.OpInvoke)
	req.Method = "reboot"
	reply, err := b.Request(ctx, req)
	require.NoError(t, err)
	assert.True(t, errors.Is(reply.Err, providers.ErrInvalidArg))

	req.Method = providers.MethodShutdown
	for i := 0; i < 2; i++ {
		reply, err = b.Request(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, xmsg.CodeOK, reply.Code)
	}
	select {
	case <-stopCh:
	case <-time.After(time.Second):
		t.Fatal("stop not triggered")
	}
	require.NoError(t, b.Shutdown(ctx))
}

func TestRegisterErrors(t *testing.T) {
	ctx := context.Background()
	b := newBroker(t)
	defer func() { require.NoError(t, b.Shutdown(ctx)) }()

	_, err := providers.Register(ctx, b, providers.Args{Manifest: &xenv.Manifest{Modules: []xenv.ModuleEntry{{Name: "x", Kind: "disk"}}}})
	assert.True(t, errors.Is(err, providers.ErrUnknownKind))

	_, err = providers.Register(ctx, b, providers.Args{})
	require.NoError(t, err)
	_, err = providers.Register(ctx, b, providers.Args{})
	assert.Error(t, err)
}
