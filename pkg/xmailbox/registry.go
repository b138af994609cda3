package xmailbox

import (
	"context"
	"math"
	"sync"
	"time"

	"mgmtbroker/pkg/xcommon"
	"mgmtbroker/pkg/xmsg"
	"mgmtbroker/pkg/xop"

	"github.com/pkg/errors"
)

const waitForNameInterval = time.Millisecond

// 可寻址端点
// Accept由router协程同步调用, 必须立即返回
type Mailbox interface {
	Name() string // 可为空
	Accept(ctx context.Context, node *xop.Node) bool
}

type entry struct {
	id      xmsg.QueueID
	name    string
	box     Mailbox
	monitor bool // router协程正在调用Accept
}

// mailbox注册表: id => mailbox, name => mailbox
// 单锁保护; id在注销后复用, 不可跨让出点缓存解析结果
type Registry struct {
	mu     sync.Mutex
	byID   map[xmsg.QueueID]*entry
	byName map[string]*entry
	free   []xmsg.QueueID
	next   xmsg.QueueID
}

func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[xmsg.QueueID]*entry),
		byName: make(map[string]*entry),
		next:   xmsg.InvalidQueueID + 1,
	}
}

func (r *Registry) Register(box Mailbox) (xmsg.QueueID, error) {
	if box == nil {
		return xmsg.InvalidQueueID, ErrNilMailbox
	}
	name := box.Name()

	r.mu.Lock()
	defer r.mu.Unlock()
	if name != "" {
		if _, ok := r.byName[name]; ok {
			return xmsg.InvalidQueueID, errors.Wrapf(ErrNameExists, "name[%v]", name)
		}
	}
	id, err := r.allocID()
	if err != nil {
		return xmsg.InvalidQueueID, err
	}
	e := &entry{id: id, name: name, box: box}
	r.byID[id] = e
	if name != "" {
		r.byName[name] = e
	}
	return id, nil
}

// 调用方持有锁
func (r *Registry) allocID() (xmsg.QueueID, error) {
	if n := len(r.free); n > 0 {
		id := r.free[n-1]
		r.free = r.free[:n-1]
		return id, nil
	}
	if r.next == math.MaxUint32 {
		return xmsg.InvalidQueueID, ErrIDExhausted
	}
	id := r.next
	r.next++
	return id, nil
}

// 注销: 等待router协程离开该mailbox后删除
// 返回后router不会再调用该mailbox
func (r *Registry) Unregister(id xmsg.QueueID) bool {
	removed := false
	xcommon.SpinUntil(func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		e, ok := r.byID[id]
		if !ok {
			return true
		}
		if e.monitor {
			return false
		}
		delete(r.byID, id)
		if e.name != "" {
			delete(r.byName, e.name)
		}
		r.free = append(r.free, id)
		removed = true
		return true
	})
	return removed
}

func (r *Registry) LookupByID(id xmsg.QueueID) (Mailbox, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.byID[id]; ok {
		return e.box, true
	}
	return nil, false
}

func (r *Registry) LookupByName(name string) (xmsg.QueueID, Mailbox, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.byName[name]; ok {
		return e.id, e.box, true
	}
	return xmsg.InvalidQueueID, nil, false
}

// 轮询等待名称出现(启动期等待对端服务)
func (r *Registry) WaitForName(ctx context.Context, name string) (xmsg.QueueID, error) {
	if id, _, ok := r.LookupByName(name); ok {
		return id, nil
	}
	ticker := time.NewTicker(waitForNameInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return xmsg.InvalidQueueID, errors.Wrapf(ctx.Err(), "wait for mailbox[%v]", name)
		case <-ticker.C:
		}
		if id, _, ok := r.LookupByName(name); ok {
			return id, nil
		}
	}
}

// 解析并投递: 解析时置监视标志, fn返回后清除
// found=false表示目的地不存在, fn未被调用
func (r *Registry) Deliver(id xmsg.QueueID, fn func(box Mailbox) bool) (found bool, accepted bool) {
	r.mu.Lock()
	e, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return false, false
	}
	e.monitor = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		e.monitor = false
		r.mu.Unlock()
	}()
	return true, fn(e.box)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// 注册名称快照
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	return names
}
