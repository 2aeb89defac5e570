package client

import (
	"context"
	"io"

	"vactor/message"
)

// RemotingClient 是 remoting 路径的传输协作方接口。
// 本层只依赖这个契约，不关心底层是 gRPC 还是其他传输；
// 重试、退避和传输安全都是实现方的职责。
type RemotingClient interface {
	// Invoke 发送请求信封并等待响应信封。
	// 实现必须尊重 ctx 的取消信号，中止挂起的网络操作而不泄漏连接。
	Invoke(ctx context.Context, req *message.RequestMessage) (*message.ResponseMessage, error)
}

// NonRemotingClient 是 non-remoting 路径的传输协作方接口。
// 按字符串方法名寻址，负载固定为 JSON。
type NonRemotingClient interface {
	// InvokeMethod 调用目标方法并返回可读的响应流。
	// 调用方负责关闭返回的流。
	InvokeMethod(ctx context.Context, actorType message.ActorType, actorID message.ActorID, methodName string, payload []byte) (io.ReadCloser, error)
}
