package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"vactor/message"
)

// proxyMode 标记代理已绑定的调用路径。
type proxyMode uint32

const (
	// modeUninitialized 尚未初始化
	modeUninitialized proxyMode = iota
	// modeRemoting 已绑定 remoting 路径
	modeRemoting
	// modeNonRemoting 已绑定 non-remoting 路径
	modeNonRemoting
)

// Proxy 是绑定到一个 (ActorType, ActorID) 的调用句柄。
// 它把逻辑方法调用翻译为线级的请求/响应对，提供两种互斥的调用表面：
//   - remoting：按 (InterfaceID, MethodID) 寻址的强类型调用
//   - non-remoting：按方法名字符串寻址的 JSON 调用
//
// 代理必须且只能初始化一次；初始化前的任何调用返回 ErrNotInitialized。
type Proxy struct {
	// actorType 绑定的目标 Actor 类型名
	actorType message.ActorType
	// actorID 绑定的目标 Actor 实例标识符
	actorID message.ActorID

	// mode 当前初始化状态，CAS 保证两条初始化路径互斥且不可重入
	mode atomic.Uint32

	// remoting remoting 路径的传输客户端
	remoting RemotingClient
	// nonRemoting non-remoting 路径的传输客户端
	nonRemoting NonRemotingClient
	// factory 请求体工厂
	factory *message.BodyFactory
	// serializer remoting 响应体使用的序列化器
	serializer message.Serializer
	// resolvers 按方法注册的返回值展开函数
	resolvers *ResolverRegistry

	// breaker 目标 Actor 的断路器（可选）
	breaker *CircuitBreaker
	// limiter 出站调用的令牌桶限流器（可选）
	limiter *TokenBucket
}

// RemotingOptions 配置 remoting 初始化路径。
type RemotingOptions struct {
	// Client remoting 传输客户端，必填
	Client RemotingClient
	// BodyFactory 请求体工厂，缺省按 Serializer 新建
	BodyFactory *message.BodyFactory
	// Serializer 响应体序列化器，缺省 JSON
	Serializer message.Serializer
	// Resolvers 生成代码注册的返回值展开函数，可为 nil
	Resolvers *ResolverRegistry
	// Breakers 目标断路器集合，可为 nil；代理按绑定的目标取用其中的断路器
	Breakers *TargetBreakers
	// Limiter 出站限流器，可为 nil
	Limiter *TokenBucket
}

// NonRemotingOptions 配置 non-remoting 初始化路径。
type NonRemotingOptions struct {
	// Client non-remoting 传输客户端，必填
	Client NonRemotingClient
	// Breakers 目标断路器集合，可为 nil；代理按绑定的目标取用其中的断路器
	Breakers *TargetBreakers
	// Limiter 出站限流器，可为 nil
	Limiter *TokenBucket
}

// New 创建绑定到 (actorType, actorID) 的未初始化代理。
func New(actorType message.ActorType, actorID message.ActorID) *Proxy {
	return &Proxy{actorType: actorType, actorID: actorID}
}

// ActorType 返回绑定的 Actor 类型名。
func (p *Proxy) ActorType() message.ActorType { return p.actorType }

// ActorID 返回绑定的 Actor 实例标识符。
func (p *Proxy) ActorID() message.ActorID { return p.actorID }

// InitRemoting 把代理绑定到 remoting 路径。
// 只允许调用一次，且与 InitNonRemoting 互斥。
func (p *Proxy) InitRemoting(opts RemotingOptions) error {
	if opts.Client == nil {
		return fmt.Errorf("init remoting: nil client")
	}
	if !p.mode.CompareAndSwap(uint32(modeUninitialized), uint32(modeRemoting)) {
		return ErrAlreadyInitialized
	}
	p.remoting = opts.Client
	p.serializer = opts.Serializer
	if p.serializer == nil {
		p.serializer = message.JSONSerializer{}
	}
	p.factory = opts.BodyFactory
	if p.factory == nil {
		p.factory = message.NewBodyFactory(p.serializer)
	}
	p.resolvers = opts.Resolvers
	if opts.Breakers != nil {
		p.breaker = opts.Breakers.For(p.actorType, p.actorID)
	}
	p.limiter = opts.Limiter
	return nil
}

// InitNonRemoting 把代理绑定到 non-remoting 路径。
// 只允许调用一次，且与 InitRemoting 互斥。
func (p *Proxy) InitNonRemoting(opts NonRemotingOptions) error {
	if opts.Client == nil {
		return fmt.Errorf("init non-remoting: nil client")
	}
	if !p.mode.CompareAndSwap(uint32(modeUninitialized), uint32(modeNonRemoting)) {
		return ErrAlreadyInitialized
	}
	p.nonRemoting = opts.Client
	if opts.Breakers != nil {
		p.breaker = opts.Breakers.For(p.actorType, p.actorID)
	}
	p.limiter = opts.Limiter
	return nil
}

// admit 执行出站调用前的限流和断路器检查。
func (p *Proxy) admit(ctx context.Context) error {
	if p.limiter != nil {
		if err := p.limiter.WaitContext(ctx, 1); err != nil {
			return err
		}
	}
	if p.breaker != nil && !p.breaker.Allow(time.Now()) {
		return ErrCircuitOpen
	}
	return nil
}

// onOutcome 把一次调用的结果反馈给断路器。
func (p *Proxy) onOutcome(err error) {
	if p.breaker == nil {
		return
	}
	if err != nil {
		p.breaker.OnFailure(time.Now())
		return
	}
	p.breaker.OnSuccess()
}

// InvokeRemoting 执行一次 remoting 调用。
// 请求头由绑定的 (ActorType, ActorID)、给定的接口/方法标识
// 和 ctx 中的环境 CallContext 构成；body 可为 nil（无参调用）。
// 传输返回空响应体时返回 (nil, nil)；远端方法失败时返回 InvocationError。
func (p *Proxy) InvokeRemoting(ctx context.Context, interfaceID, methodID int32, methodName string, body []byte) (*message.ResponseBody, error) {
	if proxyMode(p.mode.Load()) != modeRemoting {
		return nil, ErrNotInitialized
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.admit(ctx); err != nil {
		return nil, err
	}
	req := &message.RequestMessage{
		Header: message.RequestHeader{
			ActorID:     p.actorID,
			ActorType:   p.actorType,
			InterfaceID: interfaceID,
			MethodID:    methodID,
			MethodName:  methodName,
			CallContext: message.CallContextFrom(ctx),
		},
		Body: body,
	}
	resp, err := p.remoting.Invoke(ctx, req)
	if err != nil {
		// 传输错误原样上抛，不重新解释为领域错误
		p.onOutcome(err)
		return nil, err
	}
	if resp == nil || resp.Body.IsEmpty() {
		p.onOutcome(nil)
		return nil, nil
	}
	if re := resp.Body.RemoteErr(); re != nil {
		ie := &InvocationError{Method: methodName, Remote: re}
		p.onOutcome(ie)
		return nil, ie
	}
	p.onOutcome(nil)
	return resp.Body, nil
}

// AsyncResult 是异步 remoting 调用的完成结果。
type AsyncResult struct {
	// Body 响应体，可能为 nil
	Body *message.ResponseBody
	// Err 调用错误（如果有）
	Err error
}

// InvokeRemotingAsync 发起一次异步 remoting 调用，返回 Future。
// Future 在响应到达、调用失败或 ctx 取消后完成。
func (p *Proxy) InvokeRemotingAsync(ctx context.Context, interfaceID, methodID int32, methodName string, body []byte) *Future[AsyncResult] {
	f := newFuture[AsyncResult]()
	go func() {
		b, err := p.InvokeRemoting(ctx, interfaceID, methodID, methodName, body)
		f.complete(AsyncResult{Body: b, Err: err})
	}()
	return f
}

// InvokeNonRemoting 执行一次 non-remoting 调用。
// in 非 nil 时编码为 JSON 负载；响应流解码到 out（out 为 nil 时丢弃）。
// 无论解码结果如何，响应流都会被确定性关闭。
func (p *Proxy) InvokeNonRemoting(ctx context.Context, methodName string, in any, out any) error {
	if proxyMode(p.mode.Load()) != modeNonRemoting {
		return ErrNotInitialized
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.admit(ctx); err != nil {
		return err
	}
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", methodName, err)
		}
		payload = b
	}
	rc, err := p.nonRemoting.InvokeMethod(ctx, p.actorType, p.actorID, methodName, payload)
	if err != nil {
		p.onOutcome(err)
		return err
	}
	defer rc.Close()
	if out == nil {
		_, err = io.Copy(io.Discard, rc)
	} else {
		err = json.NewDecoder(rc).Decode(out)
	}
	if err != nil && err != io.EOF {
		p.onOutcome(err)
		return fmt.Errorf("decode %s response: %w", methodName, err)
	}
	p.onOutcome(nil)
	return nil
}

// ContinueWithResult 把 remoting 响应体转换为期望的返回值。
// wrapped 变体经按 (interfaceID, methodID) 注册的展开函数处理，
// 未注册时回退到标准信封展开；plain 变体直接解码。
// body 为 nil 对应 void 返回，直接成功。
func (p *Proxy) ContinueWithResult(interfaceID, methodID int32, body *message.ResponseBody, out any) error {
	if proxyMode(p.mode.Load()) != modeRemoting {
		return ErrNotInitialized
	}
	if body.IsEmpty() {
		return nil
	}
	if re := body.RemoteErr(); re != nil {
		return &InvocationError{Remote: re}
	}
	if body.IsWrapped() {
		if fn := p.resolvers.lookup(interfaceID, methodID); fn != nil {
			return fn(p.serializer, body.Raw(), out)
		}
		return message.Unwrap(p.serializer, body.Raw(), out)
	}
	return body.Get(p.serializer, out)
}

// CreateRequestBody 通过绑定的请求体工厂生成请求体。
// 是否把多个参数包装为一个信封由工厂的包装策略决定。
func (p *Proxy) CreateRequestBody(methodName string, args ...message.NamedValue) ([]byte, error) {
	if proxyMode(p.mode.Load()) != modeRemoting {
		return nil, ErrNotInitialized
	}
	return p.factory.Create(methodName, args...)
}
