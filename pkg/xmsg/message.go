package xmsg

import "fmt"

type MsgType int32

const (
	TypeUnknown MsgType = iota
	TypeRouterClose
	TypeIoClose
	TypeServiceStart
	TypeServiceStop
	TypeModuleRequest
	TypeStopAllModules
	TypeSubscriptionInitComplete
	TypeLegacy
	TypeReply
)

var msgTypeNames = map[MsgType]string{
	TypeRouterClose:              "RouterClose",
	TypeIoClose:                  "IoClose",
	TypeServiceStart:             "ServiceStart",
	TypeServiceStop:              "ServiceStop",
	TypeModuleRequest:            "ModuleRequest",
	TypeStopAllModules:           "StopAllModules",
	TypeSubscriptionInitComplete: "SubscriptionInitComplete",
	TypeLegacy:                   "Legacy",
	TypeReply:                    "Reply",
}

func (t MsgType) String() string {
	if name, ok := msgTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("MsgType(%d)", int32(t))
}

// 广播类消息: 发往所有已注册模块
func IsBroadcast(t MsgType) bool {
	return t == TypeStopAllModules || t == TypeSubscriptionInitComplete
}

type ResultCode int32

const (
	CodeOK ResultCode = iota
	CodeNAK
	CodeServiceStopped
	CodeFailed
)

func (c ResultCode) String() string {
	switch c {
	case CodeOK:
		return "OK"
	case CodeNAK:
		return "NAK"
	case CodeServiceStopped:
		return "ServiceStopped"
	case CodeFailed:
		return "Failed"
	default:
		return fmt.Sprintf("ResultCode(%d)", int32(c))
	}
}

type Message interface {
	MsgType() MsgType
}

// 请求: 携带默认响应构造
type Request interface {
	Message
	MakeReply(code ResultCode) (*Reply, error)
}

// 响应
type Reply struct {
	Request MsgType    // 对应的请求类型
	Code    ResultCode // 结果码
	Payload interface{}
	Err     error
}

func (r *Reply) MsgType() MsgType { return TypeReply }

func (r *Reply) IsNAK() bool { return r.Code == CodeNAK }

// 请求基础实现, 嵌入使用
type BaseRequest struct {
	Type MsgType
}

func (b BaseRequest) MsgType() MsgType { return b.Type }

func (b BaseRequest) MakeReply(code ResultCode) (*Reply, error) {
	return &Reply{Request: b.Type, Code: code}, nil
}
