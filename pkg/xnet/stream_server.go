package xnet

import (
	"context"
	"net"
	"sync"

	"mgmtbroker/pkg/xcommon"
	"mgmtbroker/pkg/xlog"

	"github.com/pkg/errors"
	"github.com/xtaci/kcp-go"
	"go.uber.org/zap"
)

// tcp/kcp监听
type StreamServer struct {
	network  string
	listener net.Listener
	handlers Handlers
	bufMgr   *bufferManager
	closeCh  chan struct{}
	wg       xcommon.WaitGroup

	mu      sync.Mutex
	sockets map[*StreamSocket]bool
}

func newStreamServer(ctx context.Context, network, addr string, handlers Handlers) (*StreamServer, error) {
	var (
		listener net.Listener
		err      error
	)
	switch network {
	case NetworkTCP:
		listener, err = net.Listen(NetworkTCP, addr)
	case NetworkKCP:
		listener, err = kcp.ListenWithOptions(addr, nil, 0, 0)
	default:
		return nil, errors.Errorf("network[%v] not stream", network)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "listen %v addr[%v]", network, addr)
	}

	svr := &StreamServer{
		network:  network,
		listener: listener,
		handlers: handlers,
		bufMgr:   newBufferManager(),
		closeCh:  make(chan struct{}),
		sockets:  make(map[*StreamSocket]bool),
	}
	svr.wg.Add(1)
	go svr.accept(ctx)
	xlog.Get(ctx).Info("Start listen success.", zap.String("network", network), zap.Stringer("addr", listener.Addr()))
	return svr, nil
}

func (svr *StreamServer) accept(ctx context.Context) {
	defer svr.wg.Done(ctx)

	for {
		conn, err := svr.listener.Accept()

		// 监听关闭检测
		select {
		case <-svr.closeCh:
			if conn != nil {
				_ = conn.Close()
			}
			xlog.Get(ctx).Debug("Listener close.", zap.String("network", svr.network))
			return
		default:
		}

		if err != nil {
			xlog.Get(ctx).Warn("Accept failed.", zap.String("network", svr.network), zap.Error(err))
			continue
		}

		arg := streamSocketArgs{
			conn:      conn,
			handlers:  svr.handlers,
			bufMgr:    svr.bufMgr,
			releaseFn: svr.delSocket,
		}
		if session, ok := conn.(*kcp.UDPSession); ok {
			setupKCPSession(session)
			arg.mux = newKCPMux(svr.handlers.withDefaults().OnMsg)
		}
		svr.addSocket(newStreamSocket(ctx, arg))
	}
}

func (svr *StreamServer) Addr() net.Addr {
	return svr.listener.Addr()
}

func (svr *StreamServer) Close(ctx context.Context) {
	close(svr.closeCh)
	_ = svr.listener.Close()
	svr.wg.Wait()

	// socket关闭时回调delSocket, 不可持锁关闭
	svr.mu.Lock()
	sockets := make([]*StreamSocket, 0, len(svr.sockets))
	for sock := range svr.sockets {
		sockets = append(sockets, sock)
	}
	svr.mu.Unlock()
	for _, sock := range sockets {
		sock.Close(ctx)
	}
	xlog.Get(ctx).Info("Server stop.", zap.String("network", svr.network))
}

func (svr *StreamServer) addSocket(sock *StreamSocket) {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	svr.sockets[sock] = true
}

func (svr *StreamServer) delSocket(ctx context.Context, sock *StreamSocket) {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	delete(svr.sockets, sock)
	xlog.Get(ctx).Debug("Del socket", zap.Int("count", len(svr.sockets)))
}
