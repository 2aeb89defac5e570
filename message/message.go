package message

// ActorID 是 Actor 实例的不透明标识符。
// 按值比较相等性，构造后不可变，是服务端所有实例级状态的路由键。
type ActorID string

// String 返回 ID 的字符串形式。
func (id ActorID) String() string { return string(id) }

// ActorType 是具体 Actor 实现的注册名称。
// 每个 ActorType 对应注册表中的一个条目，多个 ActorID 可以共享同一个 ActorType。
type ActorType string

// String 返回类型名的字符串形式。
func (t ActorType) String() string { return string(t) }

// RequestHeader 是调用请求的消息头，携带路由和关联所需的全部信息。
// CallContext 从调用方的环境上下文中透传，本层不解释其内容。
type RequestHeader struct {
	// ActorID 目标 Actor 实例的标识符
	ActorID ActorID `json:"actorId"`
	// ActorType 目标 Actor 的注册类型名
	ActorType ActorType `json:"actorType"`
	// InterfaceID remoting 路径的接口编号
	InterfaceID int32 `json:"interfaceId"`
	// MethodID remoting 路径的方法编号，与 InterfaceID 联合构成解析键
	MethodID int32 `json:"methodId"`
	// MethodName 方法名，non-remoting 路径的解析键
	MethodName string `json:"methodName"`
	// CallContext 调用链关联令牌，跨 Actor 嵌套调用时原样透传
	CallContext string `json:"callContext,omitempty"`
}

// RequestMessage 是完整的调用请求信封。
// Body 为 nil 表示无参调用；否则为序列化后的请求体（remoting）
// 或原始 JSON 负载（non-remoting）。
type RequestMessage struct {
	// Header 请求消息头
	Header RequestHeader
	// Body 不透明的请求体字节
	Body []byte
}

// ResponseHeader 是调用响应的消息头。
// CallContext 与请求中的令牌一致，便于调用方校验关联。
type ResponseHeader struct {
	// ActorID 处理该请求的 Actor 实例标识符
	ActorID ActorID `json:"actorId"`
	// ActorType 处理该请求的 Actor 类型名
	ActorType ActorType `json:"actorType"`
	// CallContext 请求中透传的关联令牌
	CallContext string `json:"callContext,omitempty"`
}

// ResponseMessage 是完整的调用响应信封。
type ResponseMessage struct {
	// Header 响应消息头
	Header ResponseHeader
	// Body 响应体，可能为 nil（空响应）
	Body *ResponseBody
}
