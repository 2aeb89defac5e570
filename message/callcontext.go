package message

import "context"

// callContextKey 是 CallContext 在 context.Context 中的私有键类型。
type callContextKey struct{}

// WithCallContext 把调用链关联令牌装入 ctx。
// 服务端在调用用户方法前安装请求头中的令牌，
// 使该方法内部发起的嵌套 Actor 调用能够自动携带它。
func WithCallContext(ctx context.Context, cc string) context.Context {
	if cc == "" {
		return ctx
	}
	return context.WithValue(ctx, callContextKey{}, cc)
}

// CallContextFrom 取出 ctx 中的调用链关联令牌，没有时返回空字符串。
func CallContextFrom(ctx context.Context) string {
	cc, _ := ctx.Value(callContextKey{}).(string)
	return cc
}
