package xnet

import (
	"context"
	"io"
	"net"
	"time"

	"mgmtbroker/pkg/xcommon"
	"mgmtbroker/pkg/xlog"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

var (
	ErrSocketClosed = errors.New("socket already closed")
	ErrMsgOverflow  = errors.New("socket write channel overflow")
)

type streamSocketArgs struct {
	conn      net.Conn
	handlers  Handlers
	bufMgr    *bufferManager
	mux       *kcpMux // 仅kcp
	releaseFn func(ctx context.Context, sock *StreamSocket)
}

// 流式连接(tcp/kcp)
// 关闭流程: close(closeCh) => write loop发送剩余数据 => conn.Close() => read loop退出
type StreamSocket struct {
	conn      net.Conn
	handlers  Handlers
	bufMgr    *bufferManager
	cache     readCache
	mux       *kcpMux
	releaseFn func(ctx context.Context, sock *StreamSocket)

	writeCh chan []byte // 写消息缓存

	closed  atomic.Bool
	closeCh chan struct{}
	wg      xcommon.WaitGroup
}

func newStreamSocket(ctx context.Context, arg streamSocketArgs) *StreamSocket {
	if arg.releaseFn == nil {
		arg.releaseFn = func(ctx context.Context, sock *StreamSocket) {}
	}
	sock := &StreamSocket{
		conn:      arg.conn,
		handlers:  arg.handlers.withDefaults(),
		bufMgr:    arg.bufMgr,
		mux:       arg.mux,
		releaseFn: arg.releaseFn,
		writeCh:   make(chan []byte, writeChanLimit),
		closeCh:   make(chan struct{}),
	}
	if tcpConn, ok := arg.conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}

	sock.wg.Add(2)
	go sock.readLoop(ctx)
	go sock.writeLoop(ctx)
	return sock
}

func (sock *StreamSocket) readLoop(ctx context.Context) {
	state := sock.handlers.OnConnect(ctx, sock)

	var readErr error
	defer func() {
		if readErr != nil {
			xlog.Get(ctx).Warn("Read loop exit with error.", zap.Error(readErr))
		}
		sock.handlers.OnDisconnect(ctx, state)
		sock.releaseFn(ctx, sock)
		sock.shutdown()
	}()

	defer sock.wg.Done(ctx)

	for {
		if err := sock.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			readErr = err
			break
		}

		buf := sock.bufMgr.get()
		n, err := sock.conn.Read(*buf)
		if n > 0 {
			sock.cache.append((*buf)[:n])
		}
		sock.bufMgr.put(buf)
		if err != nil {
			if !sock.closed.Load() && err != io.EOF && !errors.Is(err, net.ErrClosed) && errors.Cause(err) != io.ErrClosedPipe {
				readErr = err
			}
			break
		}

		// 一次读取可能包含多帧
		for len(sock.cache.data) > 0 {
			consumed, err := sock.onMsg(ctx, state, sock.cache.data)
			if err != nil {
				if err != io.EOF {
					readErr = err
				}
				return
			}
			if consumed == 0 {
				// 长度不够, 等待后续数据
				break
			}
			sock.cache.consume(consumed)
		}
	}
}

func (sock *StreamSocket) onMsg(ctx context.Context, state interface{}, msg []byte) (int, error) {
	if sock.mux != nil {
		return sock.mux.onMsg(ctx, state, msg)
	}
	return sock.handlers.OnMsg(ctx, state, msg)
}

func (sock *StreamSocket) write(msg []byte) error {
	for len(msg) > 0 {
		if err := sock.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			return err
		}
		n, err := sock.conn.Write(msg)
		if err != nil {
			return err
		}
		msg = msg[n:]
	}
	return nil
}

func (sock *StreamSocket) writeLoop(ctx context.Context) {
	var writeErr error
	defer func() {
		if writeErr != nil {
			xlog.Get(ctx).Warn("Write loop exit with error.", zap.Error(writeErr))
		}
		// 写入全部数据后关闭连接
		_ = sock.conn.Close()
	}()

	defer sock.wg.Done(ctx)

	waitMsg := func() ([]byte, bool) {
		// 阻塞等待数据
		var msg []byte
		closed := false
		select {
		case data := <-sock.writeCh:
			msg = append(msg, data...)
		case <-sock.closeCh:
			closed = true
		}
		// 非阻塞合并剩余数据
		for {
			select {
			case data := <-sock.writeCh:
				msg = append(msg, data...)
			default:
				return msg, closed
			}
		}
	}

	for closed := false; !closed; {
		var msg []byte
		msg, closed = waitMsg()
		if err := sock.write(msg); err != nil {
			writeErr = err
			break
		}
	}
}

// 逻辑层调用
func (sock *StreamSocket) SendMsg(ctx context.Context, payload []byte) error {
	return sock.send(ctx, false, payload)
}

func (sock *StreamSocket) send(ctx context.Context, inline bool, payload []byte) error {
	msg := payload
	if sock.mux != nil {
		var err error
		if msg, err = sock.mux.packMsg(inline, payload); err != nil {
			return err
		}
	}
	if sock.closed.Load() {
		return ErrSocketClosed
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

func (sock *StreamSocket) Close(ctx context.Context) {
	if sock.mux != nil && !sock.closed.Load() {
		sock.mux.close(ctx, sock)
	}
	sock.shutdown()
	sock.wg.Wait()
}

func (sock *StreamSocket) shutdown() {
	if sock.closed.CompareAndSwap(false, true) {
		close(sock.closeCh)
	}
}

func (sock *StreamSocket) RemoteAddr() net.Addr {
	return sock.conn.RemoteAddr()
}
