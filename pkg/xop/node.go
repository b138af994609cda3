package xop

import (
	"context"

	"mgmtbroker/pkg/xmsg"

	"github.com/google/uuid"
	"go.uber.org/atomic"
)

type State uint32

const (
	StatePending State = iota
	StateComplete
)

func (s State) String() string {
	if s == StateComplete {
		return "complete"
	}
	return "pending"
}

// 单个在途请求的生命周期记录
// 投递一次, 完成一次, 释放一次
type Node struct {
	id         uuid.UUID
	ctx        context.Context
	dest       xmsg.QueueID
	request    xmsg.Request
	response   xmsg.Message
	discipline Discipline

	state    atomic.Uint32
	released atomic.Bool
	waiter   chan struct{} // 仅Blocking
}

func (n *Node) ID() uuid.UUID { return n.id }

func (n *Node) Context() context.Context { return n.ctx }

func (n *Node) Dest() xmsg.QueueID { return n.dest }

// 仅router改写目的地(回调回送)
func (n *Node) SetDest(dest xmsg.QueueID) { n.dest = dest }

func (n *Node) Request() xmsg.Request { return n.request }

func (n *Node) Discipline() Discipline { return n.discipline }

func (n *Node) State() State { return State(n.state.Load()) }

func (n *Node) IsComplete() bool { return n.State() == StateComplete }

// 完成前读取无意义
func (n *Node) Response() xmsg.Message { return n.response }

func (n *Node) SetResponse(resp xmsg.Message) { n.response = resp }

// Pending => Complete, 失败说明已被完成或已被发起方放弃
func (n *Node) TryComplete() bool {
	return n.state.CompareAndSwap(uint32(StatePending), uint32(StateComplete))
}

// 完成节点, 重复完成属于编程错误
func (n *Node) MustComplete() {
	if !n.TryComplete() {
		panic("xop: operation node " + n.id.String() + " completed twice")
	}
}

// 唤醒阻塞等待的发起协程
func (n *Node) Signal() {
	close(n.waiter)
}

// 等待完成信号或ctx结束
func (n *Node) Wait(ctx context.Context) error {
	select {
	case <-n.waiter:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ctx已放弃时, 等待正在进行中的完成
func (n *Node) WaitSignal() {
	<-n.waiter
}
