package xgateway

import (
	"context"
	"sync"

	"mgmtbroker/pkg/xmsg"
	"mgmtbroker/pkg/xnet"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

var ErrClientClosed = errors.New("gateway client closed")

type ClientArgs struct {
	Network string
	Addr    string
	Path    string
}

// 网关客户端: 按Seq匹配应答
type Client struct {
	sock xnet.Socket
	seq  atomic.Int32

	mu      sync.Mutex
	pending map[int32]chan *xmsg.Reply
	closed  bool
}

func Dial(ctx context.Context, arg ClientArgs) (*Client, error) {
	cli := &Client{pending: make(map[int32]chan *xmsg.Reply)}
	sock, err := xnet.Dial(ctx, xnet.DialArgs{
		Network: arg.Network,
		Addr:    arg.Addr,
		Path:    arg.Path,
		Handlers: xnet.Handlers{
			OnMsg:        xmsg.ParseMsgWarp(cli.onFrame),
			OnDisconnect: func(ctx context.Context, state interface{}) { cli.fail() },
		},
	})
	if err != nil {
		return nil, err
	}
	cli.sock = sock
	return cli, nil
}

func (cli *Client) onFrame(ctx context.Context, arg xmsg.MsgArgs) error {
	reply, err := DecodeReply(arg.Header, arg.Payload)
	if err != nil {
		return err
	}
	cli.mu.Lock()
	ch, ok := cli.pending[arg.Header.Seq]
	delete(cli.pending, arg.Header.Seq)
	cli.mu.Unlock()
	if ok {
		ch <- reply
	}
	return nil
}

// 连接断开, 唤醒所有等待者
func (cli *Client) fail() {
	cli.mu.Lock()
	defer cli.mu.Unlock()
	cli.closed = true
	for seq, ch := range cli.pending {
		close(ch)
		delete(cli.pending, seq)
	}
}

func (cli *Client) Request(ctx context.Context, req xmsg.Request) (*xmsg.Reply, error) {
	msgType, payload, err := EncodeRequest(req)
	if err != nil {
		return nil, err
	}
	seq := cli.seq.Inc()
	msg, err := xmsg.PackMsg(ctx, xmsg.PackMsgArgs{Seq: seq, Type: msgType, Payload: payload})
	if err != nil {
		return nil, err
	}

	ch := make(chan *xmsg.Reply, 1)
	cli.mu.Lock()
	if cli.closed {
		cli.mu.Unlock()
		return nil, ErrClientClosed
	}
	cli.pending[seq] = ch
	cli.mu.Unlock()

	if err := cli.sock.SendMsg(ctx, msg); err != nil {
		cli.forget(seq)
		return nil, err
	}
	select {
	case reply, ok := <-ch:
		if !ok {
			return nil, ErrClientClosed
		}
		return reply, nil
	case <-ctx.Done():
		cli.forget(seq)
		return nil, ctx.Err()
	}
}

func (cli *Client) forget(seq int32) {
	cli.mu.Lock()
	defer cli.mu.Unlock()
	delete(cli.pending, seq)
}

func (cli *Client) Close(ctx context.Context) {
	cli.sock.Close(ctx)
}
