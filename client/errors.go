package client

import (
	"errors"
	"fmt"

	"vactor/message"
)

var (
	// ErrNotInitialized 表示代理在初始化前被使用。
	// 这是编程错误，立即返回而不重试。
	ErrNotInitialized = errors.New("proxy not initialized")
	// ErrAlreadyInitialized 表示代理被重复初始化。
	// remoting 与 non-remoting 两种初始化路径互斥，且只允许执行一次。
	ErrAlreadyInitialized = errors.New("proxy already initialized")
	// ErrCircuitOpen 表示目标 Actor 的断路器处于打开状态，调用被快速拒绝。
	ErrCircuitOpen = errors.New("circuit breaker open")
)

// InvocationError 表示远端在执行用户方法时失败。
// remoting 路径携带结构化的 RemoteError；
// non-remoting 路径携带原始响应字节，供调用方自行检查。
type InvocationError struct {
	// Method 失败调用的方法名
	Method string
	// Remote 远端返回的结构化错误（remoting 路径）
	Remote *message.RemoteError
	// Raw 远端原始响应（non-remoting 路径）
	Raw []byte
}

// Error 实现 error 接口。
func (e *InvocationError) Error() string {
	if e.Remote != nil {
		return fmt.Sprintf("invoke %s: %v", e.Method, e.Remote)
	}
	return fmt.Sprintf("invoke %s failed", e.Method)
}

// Unwrap 暴露内层的 RemoteError，支持 errors.As 判别。
func (e *InvocationError) Unwrap() error {
	if e.Remote == nil {
		return nil
	}
	return e.Remote
}
