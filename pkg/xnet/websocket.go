package xnet

import (
	"context"
	"net"
	"sync"
	"time"

	"mgmtbroker/pkg/xcommon"
	"mgmtbroker/pkg/xlog"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type websocketArgs struct {
	conn     *websocket.Conn
	handlers Handlers
}

type Websocket struct {
	conn     *websocket.Conn
	handlers Handlers

	writeCh chan []byte // 写channel

	closeOnce sync.Once
	closeCh   chan struct{}
	wg        xcommon.WaitGroup
}

func newWebsocket(ctx context.Context, arg websocketArgs) *Websocket {
	sock := &Websocket{
		conn:     arg.conn,
		handlers: arg.handlers.withDefaults(),
		writeCh:  make(chan []byte, writeChanLimit),
		closeCh:  make(chan struct{}),
	}
	sock.conn.SetReadLimit(maxMessageSize)

	sock.wg.Add(2)
	go sock.readLoop(ctx)
	go sock.writeLoop(ctx)
	return sock
}

func (sock *Websocket) readLoop(ctx context.Context) {
	var readErr error
	defer func() {
		if readErr != nil {
			xlog.Get(ctx).Warn("Read loop exit with error.", zap.Error(readErr))
		}
		sock.forceClose()
	}()

	defer sock.wg.Done(ctx)

	state := sock.handlers.OnConnect(ctx, sock)
	defer func() {
		sock.handlers.OnDisconnect(ctx, state)
	}()

	for {
		if err := sock.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			readErr = err
			break
		}

		_, message, err := sock.conn.ReadMessage()
		if err != nil {
			if e, ok := err.(*websocket.CloseError); (!ok || e.Code != websocket.CloseNormalClosure) && !errors.Is(err, net.ErrClosed) {
				readErr = err
			}
			break
		}
		// websocket 自动分帧, 一条消息交给handler处理完
		for len(message) > 0 {
			consumed, err := sock.handlers.OnMsg(ctx, state, message)
			if err != nil {
				readErr = err
				return
			}
			if consumed == 0 {
				readErr = errors.Errorf("incomplete frame in websocket message, len[%d]", len(message))
				return
			}
			message = message[consumed:]
		}
	}
}

func (sock *Websocket) writeLoop(ctx context.Context) {
	var writeErr error
	defer func() {
		if writeErr != nil {
			xlog.Get(ctx).Warn("Write loop exit with error.", zap.Error(writeErr))
		}

		deadline := time.Now().Add(writeTimeout)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := sock.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil && err != websocket.ErrCloseSent {
			xlog.Get(ctx).Debug("Write close message failed.", zap.Error(err))
		}

		_ = sock.conn.Close()
	}()

	defer sock.wg.Done(ctx)

	closed := false

loop:
	for {
		var msg []byte
		if !closed {
			// 阻塞获取数据
			select {
			case msg = <-sock.writeCh:
			case <-sock.closeCh:
				closed = true
				continue loop
			}
		} else {
			// closed状态,非阻塞获取数据,将待发送数据全部发送
			select {
			case msg = <-sock.writeCh:
			default:
			}
		}
		if msg == nil {
			break
		}

		if err := sock.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			writeErr = err
			break
		}

		if err := sock.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
			writeErr = err
			break
		}
	}
}

func (sock *Websocket) Close(ctx context.Context) {
	sock.forceClose()
	sock.wg.Wait()
}

func (sock *Websocket) forceClose() {
	sock.closeOnce.Do(func() {
		close(sock.closeCh)
	})
}

func (sock *Websocket) waitUntilClose() {
	sock.wg.Wait()
}

func (sock *Websocket) SendMsg(ctx context.Context, msg []byte) error {
	select {
	case <-sock.closeCh:
		return ErrSocketClosed
	default:
	}
	select {
	case sock.writeCh <- msg:
		return nil
	case <-sock.closeCh:
		return ErrSocketClosed
	default:
		return ErrMsgOverflow
	}
}

func (sock *Websocket) RemoteAddr() net.Addr {
	return sock.conn.RemoteAddr()
}
