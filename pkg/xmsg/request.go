package xmsg

// 关闭router(仅允许发往router自身)
type RouterClose struct{ BaseRequest }

func NewRouterClose() *RouterClose {
	return &RouterClose{BaseRequest{Type: TypeRouterClose}}
}

// 关闭service的incoming队列
type IoClose struct{ BaseRequest }

func NewIoClose() *IoClose {
	return &IoClose{BaseRequest{Type: TypeIoClose}}
}

type ServiceStart struct{ BaseRequest }

func NewServiceStart() *ServiceStart {
	return &ServiceStart{BaseRequest{Type: TypeServiceStart}}
}

type ServiceStop struct{ BaseRequest }

func NewServiceStop() *ServiceStop {
	return &ServiceStop{BaseRequest{Type: TypeServiceStop}}
}

// 广播: 停止所有模块
type StopAllModules struct{ BaseRequest }

func NewStopAllModules() *StopAllModules {
	return &StopAllModules{BaseRequest{Type: TypeStopAllModules}}
}

// 广播: 订阅初始化完成
type SubscriptionInitComplete struct{ BaseRequest }

func NewSubscriptionInitComplete() *SubscriptionInitComplete {
	return &SubscriptionInitComplete{BaseRequest{Type: TypeSubscriptionInitComplete}}
}

// 非异步消息, 由service直接处理, 不走完成流程
type Legacy struct {
	BaseRequest
	Payload interface{}
}

func NewLegacy(payload interface{}) *Legacy {
	return &Legacy{BaseRequest: BaseRequest{Type: TypeLegacy}, Payload: payload}
}

// 管理操作
type Operation int32

const (
	OpGet Operation = iota + 1
	OpEnumerate
	OpCreate
	OpModify
	OpDelete
	OpInvoke
	OpSubscribe
)

var operationNames = map[Operation]string{
	OpGet:       "get",
	OpEnumerate: "enumerate",
	OpCreate:    "create",
	OpModify:    "modify",
	OpDelete:    "delete",
	OpInvoke:    "invoke",
	OpSubscribe: "subscribe",
}

func (op Operation) String() string {
	if name, ok := operationNames[op]; ok {
		return name
	}
	return "unknown"
}

func ParseOperation(name string) (Operation, bool) {
	for op, n := range operationNames {
		if n == name {
			return op, true
		}
	}
	return 0, false
}

// 发往单个模块的请求
type ModuleRequest struct {
	BaseRequest
	Module    string
	Op        Operation
	Namespace string
	Class     string
	Method    string // OpInvoke
	Args      map[string]interface{}
}

func NewModuleRequest(module string, op Operation) *ModuleRequest {
	return &ModuleRequest{
		BaseRequest: BaseRequest{Type: TypeModuleRequest},
		Module:      module,
		Op:          op,
		Args:        make(map[string]interface{}),
	}
}

func (req *ModuleRequest) Arg(key string) (interface{}, bool) {
	v, ok := req.Args[key]
	return v, ok
}

func (req *ModuleRequest) StringArg(key string) string {
	if v, ok := req.Args[key].(string); ok {
		return v
	}
	return ""
}
