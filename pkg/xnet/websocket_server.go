package xnet

import (
	"context"
	"net"
	"net/http"
	"sync"

	"mgmtbroker/pkg/xcommon"
	"mgmtbroker/pkg/xlog"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type WSServer struct {
	upgrader *websocket.Upgrader
	listener net.Listener
	httpSrv  *http.Server
	wg       xcommon.WaitGroup

	mu      sync.Mutex
	sockets map[*Websocket]bool // 所有的active连接
}

func newWSServer(ctx context.Context, addr, path string, handlers Handlers) (*WSServer, error) {
	if path == "" {
		path = "/"
	}
	listener, err := net.Listen(NetworkTCP, addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen ws addr[%v]", addr)
	}
	svr := &WSServer{
		upgrader: &websocket.Upgrader{},
		listener: listener,
		sockets:  make(map[*Websocket]bool),
	}
	// 注册websocket路由
	mux := http.NewServeMux()
	mux.Handle(path, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		conn, err := svr.upgrader.Upgrade(w, r, nil)
		if err != nil {
			// upgrader已应答
			xlog.Get(ctx).Warn("Upgrade connection failed", zap.Error(err))
			return
		}

		// 连接生命周期不跟随请求ctx
		sock := newWebsocket(xlog.FromContext(ctx, context.Background()), websocketArgs{conn: conn, handlers: handlers})
		svr.addSocket(sock)
		sock.waitUntilClose()
		svr.delSocket(sock)
	}))

	svr.httpSrv = &http.Server{
		Handler: mux,
		BaseContext: func(net.Listener) context.Context {
			// 把传入的context作为每个request的基础context
			return ctx
		},
	}

	svr.wg.Add(1)
	go svr.serve(ctx)
	xlog.Get(ctx).Info("Start listen success.", zap.String("network", NetworkWS), zap.Stringer("addr", listener.Addr()), zap.String("path", path))
	return svr, nil
}

func (svr *WSServer) serve(ctx context.Context) {
	defer svr.wg.Done(ctx)
	if err := svr.httpSrv.Serve(svr.listener); err != nil && err != http.ErrServerClosed {
		xlog.Get(ctx).Error("Websocket server exit.", zap.Error(err))
	}
}

func (svr *WSServer) Addr() net.Addr {
	return svr.listener.Addr()
}

func (svr *WSServer) Close(ctx context.Context) {
	// hijack后的连接不受http.Server管理
	_ = svr.httpSrv.Close()

	svr.mu.Lock()
	sockets := make([]*Websocket, 0, len(svr.sockets))
	for sock := range svr.sockets {
		sockets = append(sockets, sock)
	}
	svr.mu.Unlock()
	for _, sock := range sockets {
		sock.Close(ctx)
	}
	svr.wg.Wait()
	xlog.Get(ctx).Info("Server stop.", zap.String("network", NetworkWS))
}

func (svr *WSServer) addSocket(sock *Websocket) {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	svr.sockets[sock] = true
}

func (svr *WSServer) delSocket(sock *Websocket) {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	delete(svr.sockets, sock)
}
