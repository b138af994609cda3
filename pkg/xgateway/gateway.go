package xgateway

import (
	"context"
	"sync"

	"mgmtbroker/pkg/xcommon"
	"mgmtbroker/pkg/xlog"
	"mgmtbroker/pkg/xmsg"
	"mgmtbroker/pkg/xnet"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// 请求入口(xbroker.Broker)
type Requester interface {
	Request(ctx context.Context, req xmsg.Request) (*xmsg.Reply, error)
}

type Args struct {
	Network string // tcp|kcp|ws
	Addr    string
	Path    string
	Broker  Requester
}

// 网络入口: 解帧 => 请求broker => 回包(Seq原样带回)
// 每个请求在独立协程中阻塞等待, 不占用读协程和router协程
type Gateway struct {
	svr    xnet.Server
	broker Requester
	served atomic.Int64
	wg     xcommon.WaitGroup

	// closing与wg.Add在同一把锁下, Close的Wait不会漏掉在途请求
	mu      sync.RWMutex
	closing bool
}

func Serve(ctx context.Context, arg Args) (*Gateway, error) {
	if arg.Broker == nil {
		return nil, errors.New("gateway broker is nil")
	}
	g := &Gateway{broker: arg.Broker}
	ctx = xlog.NewContext(ctx, zap.String("queue", xmsg.QueueNameGateway))
	svr, err := xnet.Listen(ctx, xnet.ListenArgs{
		Network: arg.Network,
		Addr:    arg.Addr,
		Path:    arg.Path,
		Handlers: xnet.Handlers{
			OnConnect: func(ctx context.Context, sock xnet.Socket) interface{} {
				xlog.Get(ctx).Debug("Client connect.", zap.Stringer("remote", sock.RemoteAddr()))
				return sock
			},
			OnDisconnect: func(ctx context.Context, state interface{}) {
				xlog.Get(ctx).Debug("Client disconnect.")
			},
			OnMsg: xmsg.ParseMsgWarp(g.onFrame),
		},
	})
	if err != nil {
		return nil, err
	}
	g.svr = svr
	return g, nil
}

func (g *Gateway) Addr() string { return g.svr.Addr().String() }

// 已应答请求数
func (g *Gateway) Served() int64 { return g.served.Load() }

func (g *Gateway) onFrame(ctx context.Context, arg xmsg.MsgArgs) error {
	sock := arg.State.(xnet.Socket)
	header := *arg.Header

	req, err := DecodeRequest(&header, arg.Payload)
	if err != nil {
		xlog.Get(ctx).Warn("Decode request failed.", zap.Int32("seq", header.Seq), zap.Error(err))
		return g.reply(ctx, sock, header, &xmsg.Reply{Request: xmsg.MsgType(header.Type), Code: xmsg.CodeFailed, Err: err})
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closing {
		return g.reply(ctx, sock, header, &xmsg.Reply{Request: req.MsgType(), Code: xmsg.CodeServiceStopped})
	}

	g.wg.Go(ctx, func(ctx context.Context) {
		reply, err := g.broker.Request(ctx, req)
		if err != nil {
			reply = &xmsg.Reply{Request: req.MsgType(), Code: xmsg.CodeFailed, Err: err}
		}
		if err := g.reply(ctx, sock, header, reply); err != nil {
			xlog.Get(ctx).Warn("Send reply failed.", zap.Int32("seq", header.Seq), zap.Error(err))
		}
	})
	return nil
}

func (g *Gateway) reply(ctx context.Context, sock xnet.Socket, header xmsg.Header, reply *xmsg.Reply) error {
	payload, err := EncodeReply(reply)
	if err != nil {
		return err
	}
	msg, err := xmsg.PackMsg(ctx, xmsg.PackMsgArgs{
		Seq:     header.Seq,
		Type:    int32(reply.Request),
		Flag:    int32(reply.Code),
		Payload: payload,
	})
	if err != nil {
		return err
	}
	g.served.Inc()
	return sock.SendMsg(ctx, msg)
}

// 停止接收新请求, 等待在途请求应答后关闭连接
func (g *Gateway) Close(ctx context.Context) {
	g.mu.Lock()
	g.closing = true
	g.mu.Unlock()
	g.wg.Wait()
	g.svr.Close(ctx)
}
