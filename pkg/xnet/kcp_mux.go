package xnet

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"

	"mgmtbroker/pkg/xlog"

	"github.com/pkg/errors"
	"github.com/xtaci/kcp-go"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const (
	kcpNoDelay    = 1
	kcpInterval   = 10
	kcpResend     = 2
	kcpNC         = 1
	kcpAckNoDelay = true
)

var (
	kcpMuxHeaderSizeof       = binary.Size(&kcpMuxHeader{})
	kcpExchangeSizeof        = binary.Size(&kcpExchange{})
	kmsEstablished     int32 = 1
	kmsClosed          int32 = 2
)

// kcp基于udp, 无连接关闭通知, 通过内置协议传递关闭
type kcpMuxHeader struct {
	Inline bool // 是否为内置协议
}

// kcp 内置协议
type kcpExchange struct {
	State int32 // 状态
}

type kcpMux struct {
	state   atomic.Int32
	handler OnHandlerOnce
}

func newKCPMux(handler OnHandlerOnce) *kcpMux {
	m := &kcpMux{handler: handler}
	m.state.Store(kmsEstablished)
	return m
}

func setupKCPSession(conn *kcp.UDPSession) {
	conn.SetStreamMode(true)
	conn.SetWriteDelay(false)
	conn.SetACKNoDelay(kcpAckNoDelay)
	conn.SetNoDelay(kcpNoDelay, kcpInterval, kcpResend, kcpNC)
}

// 处理消息
func (mux *kcpMux) onMsg(ctx context.Context, state interface{}, msg []byte) (int, error) {
	if len(msg) < kcpMuxHeaderSizeof {
		return 0, nil
	}
	header := &kcpMuxHeader{}
	if err := binary.Read(bytes.NewReader(msg[0:kcpMuxHeaderSizeof]), binary.LittleEndian, header); err != nil {
		return 0, err
	}
	if !header.Inline {
		// 逻辑层协议
		if s := mux.state.Load(); s != kmsEstablished {
			return 0, errors.Errorf("state [%v] not established", s)
		}
		c, err := mux.handler(ctx, state, msg[kcpMuxHeaderSizeof:])
		if c != 0 {
			c += kcpMuxHeaderSizeof
		}
		return c, err
	}

	// 内置协议
	if len(msg) < kcpMuxHeaderSizeof+kcpExchangeSizeof {
		return 0, nil
	}
	ke := &kcpExchange{}
	if err := binary.Read(bytes.NewReader(msg[kcpMuxHeaderSizeof:kcpMuxHeaderSizeof+kcpExchangeSizeof]), binary.LittleEndian, ke); err != nil {
		return 0, err
	}
	if ke.State == kmsClosed {
		mux.state.Store(kmsClosed)
		return 0, io.EOF
	}
	return 0, errors.Errorf("inline state[%v] invalid", ke.State)
}

// 通知对端关闭
func (mux *kcpMux) close(ctx context.Context, sock *StreamSocket) {
	ioWrite := bytes.NewBuffer(nil)
	err := binary.Write(ioWrite, binary.LittleEndian, &kcpExchange{State: kmsClosed})
	if err == nil {
		err = sock.send(ctx, true, ioWrite.Bytes())
	}
	if err != nil {
		xlog.Get(ctx).Warn("Send close failed.", zap.Error(err))
	}
}

// 补充kcp包头
func (mux *kcpMux) packMsg(inline bool, payload []byte) ([]byte, error) {
	ioWrite := bytes.NewBuffer(make([]byte, 0, kcpMuxHeaderSizeof+len(payload)))
	if err := binary.Write(ioWrite, binary.LittleEndian, &kcpMuxHeader{Inline: inline}); err != nil {
		return nil, err
	}
	ioWrite.Write(payload)
	return ioWrite.Bytes(), nil
}
