package xmailbox

import "github.com/pkg/errors"

var (
	// 名称已被占用
	ErrNameExists = errors.New("mailbox name already registered")
	// mailbox id已耗尽
	ErrIDExhausted = errors.New("mailbox id exhausted")
	ErrNilMailbox  = errors.New("mailbox is nil")
)
