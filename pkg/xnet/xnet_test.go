package xnet_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"mgmtbroker/pkg/xmsg"
	"mgmtbroker/pkg/xnet"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 服务端原样回送payload, Seq+1000
func echoHandlers() xnet.Handlers {
	return xnet.Handlers{
		OnConnect: func(ctx context.Context, sock xnet.Socket) interface{} { return sock },
		OnMsg: xmsg.ParseMsgWarp(func(ctx context.Context, arg xmsg.MsgArgs) error {
			sock := arg.State.(xnet.Socket)
			msg, err := xmsg.PackMsg(ctx, xmsg.PackMsgArgs{
				Seq:     arg.Header.Seq + 1000,
				Type:    arg.Header.Type,
				Payload: append([]byte(nil), arg.Payload...),
			})
			if err != nil {
				return err
			}
			return sock.SendMsg(ctx, msg)
		}),
	}
}

func TestEcho(t *testing.T) {
	for _, network := range []string{xnet.NetworkTCP, xnet.NetworkKCP, xnet.NetworkWS} {
		t.Run(network, func(t *testing.T) {
			ctx := context.Background()
			svr, err := xnet.Listen(ctx, xnet.ListenArgs{
				Network:  network,
				Addr:     "127.0.0.1:0",
				Path:     "/broker",
				Handlers: echoHandlers(),
			})
			require.NoError(t, err)
			defer svr.Close(ctx)

			type frame struct {
				seq     int32
				payload string
			}
			recv := make(chan frame, 16)
			disconnected := make(chan struct{})
			cli, err := xnet.Dial(ctx, xnet.DialArgs{
				Network: network,
				Addr:    svr.Addr().String(),
				Path:    "/broker",
				Handlers: xnet.Handlers{
					OnDisconnect: func(ctx context.Context, state interface{}) { close(disconnected) },
					OnMsg: xmsg.ParseMsgWarp(func(ctx context.Context, arg xmsg.MsgArgs) error {
						recv <- frame{seq: arg.Header.Seq, payload: string(arg.Payload)}
						return nil
					}),
				},
			})
			require.NoError(t, err)

			const count = 10
			for i := 0; i < count; i++ {
				msg, err := xmsg.PackMsg(ctx, xmsg.PackMsgArgs{Seq: int32(i), Payload: []byte(fmt.Sprintf("data %d", i))})
				require.NoError(t, err)
				require.NoError(t, cli.SendMsg(ctx, msg))
			}
			for i := 0; i < count; i++ {
				select {
				case f := <-recv:
					assert.Equal(t, int32(i+1000), f.seq)
					assert.Equal(t, fmt.Sprintf("data %d", i), f.payload)
				case <-time.After(5 * time.Second):
					t.Fatalf("frame %d not received", i)
				}
			}

			cli.Close(ctx)
			<-disconnected
			assert.ErrorIs(t, cli.SendMsg(ctx, []byte("late")), xnet.ErrSocketClosed)
		})
	}
}

func TestListenUnsupportedNetwork(t *testing.T) {
	_, err := xnet.Listen(context.Background(), xnet.ListenArgs{Network: "udp", Addr: "127.0.0.1:0"})
	assert.Error(t, err)
	_, err = xnet.Dial(context.Background(), xnet.DialArgs{Network: "udp", Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
