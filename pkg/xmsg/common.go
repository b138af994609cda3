package xmsg

// 网络帧头
type Header struct {
	Seq  int32 // 客户端Seq, 响应原样带回
	Type int32 // 消息类型(MsgType)
	Flag int32 // 结果码(响应)/保留
	Len  int32 // 数据长度
}

// mailbox id, 0为无效id
type QueueID uint32

const InvalidQueueID QueueID = 0

// 全局唯一的服务名称, 运行时通过registry按名称解析
const (
	QueueNameRouter            = "broker meta dispatcher"
	QueueNameControlService    = "ControlService"
	QueueNameIndicationService = "Server::IndicationService"
	QueueNameProviderManager   = "Server::ProviderManagerService"
	QueueNameGateway           = "Gateway"
)

// ControlService内置模块名称
const (
	ModuleNameConfigProvider    = QueueNameControlService + "::ConfigProvider"
	ModuleNameNamespaceProvider = QueueNameControlService + "::NamespaceProvider"
	ModuleNameShutdownProvider  = QueueNameControlService + "::ShutdownProvider"
)
