package xnet

import (
	"context"
	"net"
	"net/url"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/xtaci/kcp-go"
)

type ListenArgs struct {
	Network string // tcp|kcp|ws
	Addr    string
	Path    string // 仅ws
	Handlers
}

func Listen(ctx context.Context, arg ListenArgs) (Server, error) {
	switch arg.Network {
	case NetworkTCP, NetworkKCP:
		return newStreamServer(ctx, arg.Network, arg.Addr, arg.Handlers)
	case NetworkWS:
		return newWSServer(ctx, arg.Addr, arg.Path, arg.Handlers)
	default:
		return nil, errors.Errorf("network[%v] not support", arg.Network)
	}
}

type DialArgs struct {
	Network string // tcp|kcp|ws
	Addr    string
	Path    string // 仅ws
	Handlers
}

// 建立客户端连接
func Dial(ctx context.Context, arg DialArgs) (Socket, error) {
	switch arg.Network {
	case NetworkTCP:
		var dialer net.Dialer
		conn, err := dialer.DialContext(ctx, NetworkTCP, arg.Addr)
		if err != nil {
			return nil, errors.Wrapf(err, "dial tcp addr[%v]", arg.Addr)
		}
		return newStreamSocket(ctx, streamSocketArgs{conn: conn, handlers: arg.Handlers, bufMgr: newBufferManager()}), nil
	case NetworkKCP:
		conn, err := kcp.DialWithOptions(arg.Addr, nil, 0, 0)
		if err != nil {
			return nil, errors.Wrapf(err, "dial kcp addr[%v]", arg.Addr)
		}
		setupKCPSession(conn)
		return newStreamSocket(ctx, streamSocketArgs{
			conn:     conn,
			handlers: arg.Handlers,
			bufMgr:   newBufferManager(),
			mux:      newKCPMux(arg.Handlers.withDefaults().OnMsg),
		}), nil
	case NetworkWS:
		path := arg.Path
		if path == "" {
			path = "/"
		}
		u := url.URL{Scheme: "ws", Host: arg.Addr, Path: path}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
		if err != nil {
			return nil, errors.Wrapf(err, "dial ws url[%v]", u.String())
		}
		return newWebsocket(ctx, websocketArgs{conn: conn, handlers: arg.Handlers}), nil
	default:
		return nil, errors.Errorf("network[%v] not support", arg.Network)
	}
}
