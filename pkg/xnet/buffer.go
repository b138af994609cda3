package xnet

import "sync"

// 读buffer对象池, 所有连接共享
type bufferManager struct {
	pool sync.Pool
}

func newBufferManager() *bufferManager {
	return &bufferManager{
		pool: sync.Pool{
			New: func() interface{} {
				bs := make([]byte, readBufferSize)
				return &bs
			},
		},
	}
}

func (mgr *bufferManager) get() *[]byte {
	return mgr.pool.Get().(*[]byte)
}

func (mgr *bufferManager) put(buf *[]byte) {
	mgr.pool.Put(buf)
}

// 单连接读缓存, 非线程安全, 仅限read loop使用
type readCache struct {
	data []byte
}

func (c *readCache) append(bs []byte) {
	c.data = append(c.data, bs...)
}

// 丢弃已处理数据, 剩余数据前移复用底层数组
func (c *readCache) consume(n int) {
	left := copy(c.data, c.data[n:])
	c.data = c.data[:left]
}
