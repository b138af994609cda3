package xop

import (
	"context"

	"mgmtbroker/pkg/xmsg"

	"github.com/google/uuid"
	"go.uber.org/atomic"
)

// 节点分配器, 统计存活节点
// 重复释放直接panic
type Pool struct {
	allocated atomic.Int64
	released  atomic.Int64
}

func NewPool() *Pool {
	return &Pool{}
}

func (p *Pool) Get(ctx context.Context, dest xmsg.QueueID, req xmsg.Request, d Discipline) *Node {
	if ctx == nil {
		ctx = context.Background()
	}
	if d == nil {
		d = FireAndForget{}
	}
	n := &Node{
		id:         uuid.New(),
		ctx:        ctx,
		dest:       dest,
		request:    req,
		discipline: d,
	}
	if d.Kind() == KindBlocking {
		n.waiter = make(chan struct{})
	}
	p.allocated.Inc()
	return n
}

func (p *Pool) Put(n *Node) {
	if !n.released.CompareAndSwap(false, true) {
		panic("xop: operation node " + n.id.String() + " released twice")
	}
	n.request = nil
	n.response = nil
	p.released.Inc()
}

// 当前存活节点数
func (p *Pool) Live() int64 {
	return p.allocated.Load() - p.released.Load()
}

func (p *Pool) Allocated() int64 { return p.allocated.Load() }

func (p *Pool) Released() int64 { return p.released.Load() }
