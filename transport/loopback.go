package transport

import (
	"bytes"
	"context"
	"errors"
	"io"

	"vactor/client"
	"vactor/message"
	"vactor/runtime"
)

// Loopback 是进程内的 non-remoting 传输客户端，实现
// client.NonRemotingClient。它直接驱动同进程的宿主，
// 供同一二进制内的调用方和测试使用，不经过网络。
type Loopback struct {
	// host 被驱动的宿主
	host *runtime.Host
}

// NewLoopback 创建驱动指定宿主的回环客户端。
func NewLoopback(h *runtime.Host) *Loopback {
	return &Loopback{host: h}
}

// InvokeMethod 在进程内分发 non-remoting 调用并返回响应流。
// 路由层面的失败（类型未注册、方法不存在）原样上抛；
// 用户方法的失败转换为携带结构化远端错误和已产生响应字节的调用失败错误。
func (l *Loopback) InvokeMethod(ctx context.Context, actorType message.ActorType, actorID message.ActorID, methodName string, payload []byte) (io.ReadCloser, error) {
	var buf bytes.Buffer
	err := l.host.DispatchNonRemoting(ctx, actorType, actorID, methodName, bytes.NewReader(payload), &buf)
	switch {
	case err == nil:
		return io.NopCloser(&buf), nil
	case errors.Is(err, runtime.ErrNotRegistered), errors.Is(err, runtime.ErrMethodNotFound), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, err
	default:
		return nil, &client.InvocationError{
			Method: methodName,
			Remote: &message.RemoteError{Kind: "invocation", Message: err.Error()},
			Raw:    buf.Bytes(),
		}
	}
}
