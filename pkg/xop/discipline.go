package xop

import (
	"context"

	"mgmtbroker/pkg/xmsg"
)

type Kind int

const (
	KindFireAndForget Kind = iota
	KindBlocking
	KindCallback
)

func (k Kind) String() string {
	switch k {
	case KindFireAndForget:
		return "fire-and-forget"
	case KindBlocking:
		return "blocking"
	case KindCallback:
		return "callback"
	default:
		return "unknown"
	}
}

// 完成方式: FireAndForget | Blocking | Callback
type Discipline interface {
	Kind() Kind
}

// 无观察者, 完成即释放
type FireAndForget struct{}

func (FireAndForget) Kind() Kind { return KindFireAndForget }

// 发起协程阻塞等待, 由发起协程释放节点
type Blocking struct{}

func (Blocking) Kind() Kind { return KindBlocking }

// 回调函数, 由origin所在service的worker调用, 调用后释放节点
type CallbackFunc func(ctx context.Context, node *Node, origin xmsg.QueueID, userCtx interface{})

type Callback struct {
	Fn      CallbackFunc
	Origin  xmsg.QueueID // 回调所在的mailbox
	Context interface{}  // 用户数据
}

func (Callback) Kind() Kind { return KindCallback }
