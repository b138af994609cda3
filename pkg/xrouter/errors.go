package xrouter

import "github.com/pkg/errors"

var (
	// router已进入draining/stopped, 节点未被接收
	ErrRouterStopped = errors.New("router is not running")
	// 阻塞请求等待超时, 请求已被放弃
	ErrRequestTimeout = errors.New("request timed out")
	// 节点被丢弃, 没有响应(关机清空/NAK构造失败)
	ErrDiscarded = errors.New("operation discarded without response")
	// 响应类型不是Reply
	ErrUnexpectedResponse = errors.New("unexpected response message")
)
