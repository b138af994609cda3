package xregistry

import (
	"context"
	"fmt"

	"mgmtbroker/pkg/xlog"
	"mgmtbroker/pkg/xmodule"
	"mgmtbroker/pkg/xmsg"

	"go.uber.org/zap"
)

// 操作处理函数, 返回nil按NAK处理
type HandleFunc[S any] func(ctx context.Context, state S, req *xmsg.ModuleRequest) *xmsg.Reply

// 广播处理函数, 返回值被忽略
type BroadcastFunc[S any] func(ctx context.Context, state S, t xmsg.MsgType)

// handlers: operation => func
// 非线程安全, 注册完成后再挂到模块上
type Table[S any] struct {
	handlers  map[xmsg.Operation]HandleFunc[S]
	broadcast BroadcastFunc[S]
}

func NewTable[S any]() *Table[S] {
	return &Table[S]{handlers: make(map[xmsg.Operation]HandleFunc[S])}
}

// 注册回调, 重复注册属于编程错误
func (t *Table[S]) Register(op xmsg.Operation, fn HandleFunc[S]) *Table[S] {
	if _, ok := t.handlers[op]; ok {
		panic(fmt.Sprintf("operation[%v] is repeated.", op))
	}
	t.handlers[op] = fn
	return t
}

// 函数包装: 方法表达式 => HandleFunc
func HandleWarp[S any](fn func(state S, ctx context.Context, req *xmsg.ModuleRequest) *xmsg.Reply) HandleFunc[S] {
	return func(ctx context.Context, state S, req *xmsg.ModuleRequest) *xmsg.Reply {
		return fn(state, ctx, req)
	}
}

func (t *Table[S]) OnBroadcast(fn BroadcastFunc[S]) *Table[S] {
	t.broadcast = fn
	return t
}

func (t *Table[S]) Operations() []xmsg.Operation {
	ops := make([]xmsg.Operation, 0, len(t.handlers))
	for op := range t.handlers {
		ops = append(ops, op)
	}
	return ops
}

// 函数包装: table => 模块receive, handle即state
func (t *Table[S]) Receive() xmodule.ReceiveFunc {
	return func(ctx context.Context, req xmsg.Request, handle interface{}) *xmsg.Reply {
		state, ok := handle.(S)
		if !ok {
			xlog.Get(ctx).Error("Module handle type mismatch.", zap.Any("handle", handle))
			return nil
		}

		if xmsg.IsBroadcast(req.MsgType()) {
			if t.broadcast != nil {
				t.broadcast(ctx, state, req.MsgType())
			}
			return nil
		}

		mreq, ok := req.(*xmsg.ModuleRequest)
		if !ok {
			return nil
		}
		handler := t.handlers[mreq.Op]
		if handler == nil {
			xlog.Get(ctx).Debug("Can not find handler.", zap.String("module", mreq.Module), zap.Stringer("op", mreq.Op))
			return nil
		}
		return handler(ctx, state, mreq)
	}
}

// 构造应答
func Reply(req xmsg.Request, code xmsg.ResultCode, payload interface{}) *xmsg.Reply {
	reply, err := req.MakeReply(code)
	if err != nil || reply == nil {
		reply = &xmsg.Reply{Request: req.MsgType(), Code: code}
	}
	reply.Payload = payload
	return reply
}

// 失败应答
func Fail(req xmsg.Request, err error) *xmsg.Reply {
	reply := Reply(req, xmsg.CodeFailed, nil)
	reply.Err = err
	return reply
}
