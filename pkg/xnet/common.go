package xnet

import (
	"context"
	"net"
	"time"

	"mgmtbroker/pkg/xmsg"
)

const (
	NetworkTCP = "tcp"
	NetworkKCP = "kcp"
	NetworkWS  = "ws"

	readBufferSize = 4096

	writeTimeout = 10 * time.Second // 写超时时间
	readTimeout  = 60 * time.Second // 读超时时间(空闲断开)

	writeChanLimit = 200 // 写channel大小

	maxMessageSize = xmsg.MaxFrameLen + 64 // 单条websocket消息上限
)

// 连接
type Socket interface {
	SendMsg(ctx context.Context, msg []byte) error
	Close(ctx context.Context)
	RemoteAddr() net.Addr
}

// 监听
type Server interface {
	Addr() net.Addr
	Close(ctx context.Context)
}

// 消息处理: 返回已消费字节数, 0表示数据不足
type OnHandlerOnce = xmsg.OnHandlerOnce

// 建立链接, 返回值作为该连接的state
type OnConnect func(ctx context.Context, sock Socket) interface{}

// 关闭链接
type OnDisconnect func(ctx context.Context, state interface{})

type Handlers struct {
	OnMsg        OnHandlerOnce
	OnConnect    OnConnect
	OnDisconnect OnDisconnect
}

func (h Handlers) withDefaults() Handlers {
	if h.OnConnect == nil {
		h.OnConnect = func(ctx context.Context, sock Socket) interface{} { return sock }
	}
	if h.OnDisconnect == nil {
		h.OnDisconnect = func(ctx context.Context, state interface{}) {}
	}
	if h.OnMsg == nil {
		h.OnMsg = func(ctx context.Context, state interface{}, msg []byte) (int, error) { return len(msg), nil }
	}
	return h
}
