package xmsg_test

import (
	"context"
	"testing"

	"mgmtbroker/pkg/xmsg"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackParse(t *testing.T) {
	ctx := context.Background()
	first, err := xmsg.PackMsg(ctx, xmsg.PackMsgArgs{Seq: 7, Type: int32(xmsg.TypeModuleRequest), Payload: []byte("hello")})
	require.NoError(t, err)
	second, err := xmsg.PackMsg(ctx, xmsg.PackMsgArgs{Seq: 8, Flag: int32(xmsg.CodeNAK)})
	require.NoError(t, err)

	var got []xmsg.MsgArgs
	parse := xmsg.ParseMsgWarp(func(ctx context.Context, arg xmsg.MsgArgs) error {
		got = append(got, arg)
		return nil
	})

	stream := append(append([]byte{}, first...), second...)

	// 半包
	n, err := parse(ctx, nil, stream[:xmsg.HeaderSizeof+2])
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = parse(ctx, nil, stream)
	require.NoError(t, err)
	assert.Equal(t, len(first), n)
	n, err = parse(ctx, nil, stream[n:])
	require.NoError(t, err)
	assert.Equal(t, len(second), n)

	require.Len(t, got, 2)
	assert.Equal(t, int32(7), got[0].Header.Seq)
	assert.Equal(t, "hello", string(got[0].Payload))
	assert.Equal(t, int32(xmsg.CodeNAK), got[1].Header.Flag)
	assert.Empty(t, got[1].Payload)
}

func TestParseInvalidLen(t *testing.T) {
	ctx := context.Background()
	msg, err := xmsg.PackMsg(ctx, xmsg.PackMsgArgs{Payload: []byte("x")})
	require.NoError(t, err)
	// 篡改长度字段
	msg[12], msg[13], msg[14], msg[15] = 0xff, 0xff, 0xff, 0x7f
	_, err = xmsg.ParseMsgWarp(func(context.Context, xmsg.MsgArgs) error { return nil })(ctx, nil, msg)
	require.Error(t, err)
}

func TestRequests(t *testing.T) {
	req := xmsg.NewModuleRequest(xmsg.ModuleNameConfigProvider, xmsg.OpGet)
	req.Args["name"] = "maxConnections"
	assert.Equal(t, xmsg.TypeModuleRequest, req.MsgType())
	assert.Equal(t, "maxConnections", req.StringArg("name"))
	assert.Equal(t, "", req.StringArg("missing"))

	reply, err := req.MakeReply(xmsg.CodeNAK)
	require.NoError(t, err)
	assert.True(t, reply.IsNAK())
	assert.Equal(t, xmsg.TypeModuleRequest, reply.Request)
	assert.Equal(t, xmsg.TypeReply, reply.MsgType())

	assert.True(t, xmsg.IsBroadcast(xmsg.NewStopAllModules().MsgType()))
	assert.True(t, xmsg.IsBroadcast(xmsg.NewSubscriptionInitComplete().MsgType()))
	assert.False(t, xmsg.IsBroadcast(req.MsgType()))

	op, ok := xmsg.ParseOperation("enumerate")
	assert.True(t, ok)
	assert.Equal(t, xmsg.OpEnumerate, op)
	_, ok = xmsg.ParseOperation("query")
	assert.False(t, ok)

	assert.Equal(t, "RouterClose", xmsg.TypeRouterClose.String())
	assert.Equal(t, "MsgType(99)", xmsg.MsgType(99).String())
	assert.Equal(t, "ServiceStopped", xmsg.CodeServiceStopped.String())
}
