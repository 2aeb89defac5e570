package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"

	"vactor/message"
)

// Handler 是方法表中一个条目的执行函数。
// data 为序列化后的请求体字节（可能为空），由生成代码按方法自行解码；
// 返回值在调度侧序列化为响应体。
type Handler func(ctx context.Context, a Actor, data []byte) (any, error)

// MethodSpec 描述方法表中的一个条目。
// (InterfaceID, MethodID) 是 remoting 路径的规范解析键，
// Name 是 non-remoting 路径的规范解析键。
// WrappedResponse 在注册时固定该方法的响应体变体，不随单次调用变化。
type MethodSpec struct {
	// InterfaceID 接口编号
	InterfaceID int32
	// MethodID 方法编号
	MethodID int32
	// Name 方法名
	Name string
	// WrappedResponse 响应体是否采用 wrapped 变体
	WrappedResponse bool
	// Handler 执行函数
	Handler Handler
}

// Options 配置一个 ActorType 的调度器。
type Options struct {
	// Factory 实例工厂，必填
	Factory Factory
	// Methods 该类型声明的方法表
	Methods []MethodSpec
	// Serializer remoting 响应体序列化器，缺省 JSON
	Serializer message.Serializer
}

// dispatchKey 是 remoting 方法表的键。
type dispatchKey struct {
	iface  int32
	method int32
}

// instance 是一个 ActorID 的实例级状态。
// 表项在激活开始时作为占位发布，ready 关闭后才可读取其余字段；
// 该状态由激活它的调度器独占持有，其他组件不得直接触碰。
type instance struct {
	// actor 用户的 Actor 实现，激活成功后可用
	actor Actor
	// reminders 激活期间注册的提醒回调
	reminders map[string]ReminderFunc
	// timers 激活期间注册的定时器回调
	timers map[string]TimerFunc

	// ready 激活结束（成功或失败）后关闭
	ready chan struct{}
	// err 激活失败的原因，成功时为 nil
	err error
	// deactivating 停用钩子执行期间为 true，抑制并发停用
	deactivating bool
}

// Dispatcher 是一个 ActorType 的服务端调度入口。
// 它从该类型声明的方法表一次性构建，负责：
//   - 按 ActorID 维护 Inactive -> Active -> Inactive 的生命周期状态机
//   - 把 remoting / non-remoting 方法调用分发到对应实例
//   - 按名称触发实例注册的提醒和定时器回调
//
// 调度器不会对同一 ActorID 的并发调用做串行化；
// 逐回合执行的保证属于包裹在外层的调度方，不在本层。
type Dispatcher struct {
	// actorType 所属的 Actor 类型名
	actorType message.ActorType
	// factory 实例工厂
	factory Factory
	// serializer 响应体序列化器
	serializer message.Serializer

	// byKey 按 (InterfaceID, MethodID) 索引的方法表
	byKey map[dispatchKey]*MethodSpec
	// byName 按方法名索引的方法表
	byName map[string]*MethodSpec

	// mu 保护 instances 的并发访问
	mu sync.RWMutex
	// instances 已激活实例，按 ActorID 索引
	instances map[message.ActorID]*instance
}

// NewDispatcher 从方法表构建指定类型的调度器。
// 重复的方法键或方法名在构建时拒绝，而不是留到调用时。
func NewDispatcher(actorType message.ActorType, opts Options) (*Dispatcher, error) {
	if opts.Factory == nil {
		return nil, fmt.Errorf("dispatcher %q: %w", actorType, ErrNilFactory)
	}
	s := opts.Serializer
	if s == nil {
		s = message.JSONSerializer{}
	}
	d := &Dispatcher{
		actorType:  actorType,
		factory:    opts.Factory,
		serializer: s,
		byKey:      make(map[dispatchKey]*MethodSpec, len(opts.Methods)),
		byName:     make(map[string]*MethodSpec, len(opts.Methods)),
		instances:  make(map[message.ActorID]*instance),
	}
	for i := range opts.Methods {
		m := &opts.Methods[i]
		if m.Handler == nil {
			return nil, fmt.Errorf("dispatcher %q: method %s has nil handler", actorType, m.Name)
		}
		k := dispatchKey{m.InterfaceID, m.MethodID}
		if _, dup := d.byKey[k]; dup {
			return nil, fmt.Errorf("dispatcher %q: duplicate method key (%d,%d)", actorType, m.InterfaceID, m.MethodID)
		}
		if _, dup := d.byName[m.Name]; dup {
			return nil, fmt.Errorf("dispatcher %q: duplicate method name %q", actorType, m.Name)
		}
		d.byKey[k] = m
		d.byName[m.Name] = m
	}
	return d, nil
}

// ActorType 返回调度器所属的类型名。
func (d *Dispatcher) ActorType() message.ActorType { return d.actorType }

// ActiveCount 返回当前已激活实例的数量。
func (d *Dispatcher) ActiveCount() int {
	d.mu.RLock()
	n := len(d.instances)
	d.mu.RUnlock()
	return n
}

// Activate 把指定 ActorID 从 Inactive 迁移到 Active。
// 幂等：对已激活的 ID 是无操作而非错误；并发激活竞争收敛为单个实例，
// 激活钩子恰好执行一次。钩子失败时实例不入表，保持 Inactive。
func (d *Dispatcher) Activate(ctx context.Context, id message.ActorID) error {
	_, err := d.ensureActive(ctx, id)
	return err
}

// Deactivate 把指定 ActorID 从 Active 迁移到 Inactive。
// 对未激活的 ID 是无操作（不触发钩子，不报错）；同一 ID 的并发停用
// 只有一个执行钩子，其余视为无操作。停用钩子失败时实例保留在表中，
// 保持 Active，允许重复尝试而不会二次触发钩子。
func (d *Dispatcher) Deactivate(ctx context.Context, id message.ActorID) error {
	d.mu.Lock()
	inst, ok := d.instances[id]
	if !ok || inst.deactivating {
		d.mu.Unlock()
		return nil
	}
	inst.deactivating = true
	d.mu.Unlock()

	select {
	case <-inst.ready:
	case <-ctx.Done():
		d.mu.Lock()
		inst.deactivating = false
		d.mu.Unlock()
		return ctx.Err()
	}
	if inst.err != nil {
		// 激活从未成功，占位表项已被激活方移除
		return nil
	}
	if err := inst.actor.OnDeactivate(ctx); err != nil {
		d.mu.Lock()
		inst.deactivating = false
		d.mu.Unlock()
		return fmt.Errorf("deactivate %s/%s: %w", d.actorType, id, err)
	}
	d.mu.Lock()
	delete(d.instances, id)
	d.mu.Unlock()
	return nil
}

// ensureActive 是所有分发入口的隐式激活检查：Inactive 则先激活再继续。
// 激活竞争通过占位表项收敛：胜出者在锁外执行工厂和激活钩子，
// 不阻塞其他 ID 的分发；其余调用等待占位完成，失败时得到同一错误，
// 后续重试会重新激活。返回的实例在锁外使用；停用移除表项不影响
// 已取得引用的在途调用。
func (d *Dispatcher) ensureActive(ctx context.Context, id message.ActorID) (*instance, error) {
	d.mu.RLock()
	inst, ok := d.instances[id]
	d.mu.RUnlock()
	if !ok {
		d.mu.Lock()
		inst, ok = d.instances[id]
		if !ok {
			inst = &instance{ready: make(chan struct{})}
			d.instances[id] = inst
			d.mu.Unlock()
			return d.runActivation(ctx, id, inst)
		}
		d.mu.Unlock()
	}
	select {
	case <-inst.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if inst.err != nil {
		return nil, inst.err
	}
	return inst, nil
}

// runActivation 在锁外构造实例并执行激活钩子，然后发布或移除占位表项。
func (d *Dispatcher) runActivation(ctx context.Context, id message.ActorID, inst *instance) (*instance, error) {
	a, err := d.factory(id)
	if err != nil {
		err = fmt.Errorf("construct %s/%s: %w", d.actorType, id, err)
	} else {
		ac := newActivationContext(ctx, id)
		if hookErr := a.OnActivate(ac); hookErr != nil {
			err = fmt.Errorf("activate %s/%s: %w", d.actorType, id, hookErr)
		} else {
			inst.actor = a
			inst.reminders = ac.reminders
			inst.timers = ac.timers
		}
	}
	if err != nil {
		d.mu.Lock()
		delete(d.instances, id)
		d.mu.Unlock()
		inst.err = err
		close(inst.ready)
		return nil, err
	}
	close(inst.ready)
	return inst, nil
}

// invoke 在锁外执行方法表条目，panic 转换为错误返回。
func (d *Dispatcher) invoke(ctx context.Context, m *MethodSpec, inst *instance, data []byte) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("actor panic type=%s method=%s err=%v", d.actorType, m.Name, r)
			err = fmt.Errorf("panic in %s.%s: %v", d.actorType, m.Name, r)
		}
	}()
	return m.Handler(ctx, inst.actor, data)
}

// readAll 读取整个请求流，并在读取前后检查取消信号。
func readAll(ctx context.Context, r io.Reader) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r == nil {
		return nil, nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return data, nil
}

// DispatchRemoting 处理一次 remoting 调用。
// 需要时隐式激活，按请求头中的 (InterfaceID, MethodID) 解析方法——
// 这是唯一的解析键，不回退到方法名。请求头中的 CallContext 在调用
// 用户方法前装入 ctx，使嵌套的 Actor 调用可见。
// 用户方法的失败编码为响应体中的 RemoteError；
// 解析和激活失败作为 Go 错误返回给传输边界。
func (d *Dispatcher) DispatchRemoting(ctx context.Context, id message.ActorID, hdr *message.RequestHeader, body io.Reader) (*message.ResponseMessage, error) {
	data, err := readAll(ctx, body)
	if err != nil {
		return nil, err
	}
	inst, err := d.ensureActive(ctx, id)
	if err != nil {
		return nil, err
	}
	m, ok := d.byKey[dispatchKey{hdr.InterfaceID, hdr.MethodID}]
	if !ok {
		return nil, fmt.Errorf("type %q interface=%d method=%d (%s): %w",
			d.actorType, hdr.InterfaceID, hdr.MethodID, hdr.MethodName, ErrMethodNotFound)
	}
	ctx = message.WithCallContext(ctx, hdr.CallContext)
	respHdr := message.ResponseHeader{ActorID: id, ActorType: d.actorType, CallContext: hdr.CallContext}

	res, err := d.invoke(ctx, m, inst, data)
	if err != nil {
		return &message.ResponseMessage{
			Header: respHdr,
			Body: message.NewErrorResponse(&message.RemoteError{
				Kind:       "invocation",
				Message:    err.Error(),
				RemoteType: fmt.Sprintf("%T", err),
			}),
		}, nil
	}
	rb, err := d.encodeResult(m, res)
	if err != nil {
		return nil, err
	}
	return &message.ResponseMessage{Header: respHdr, Body: rb}, nil
}

// encodeResult 按方法注册的响应变体序列化返回值。
func (d *Dispatcher) encodeResult(m *MethodSpec, res any) (*message.ResponseBody, error) {
	if res == nil {
		return message.NewPlainResponse(nil), nil
	}
	inner, err := d.serializer.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode %s.%s result: %w", d.actorType, m.Name, err)
	}
	if !m.WrappedResponse {
		return message.NewPlainResponse(inner), nil
	}
	outer, err := message.Wrap(d.serializer, inner)
	if err != nil {
		return nil, fmt.Errorf("wrap %s.%s result: %w", d.actorType, m.Name, err)
	}
	return message.NewWrappedResponse(outer), nil
}

// DispatchNonRemoting 处理一次 non-remoting 调用。
// 激活语义与 remoting 路径一致，但按方法名解析，
// 参数与返回值直接以 JSON 对接 req / resp 两个流。
func (d *Dispatcher) DispatchNonRemoting(ctx context.Context, id message.ActorID, methodName string, req io.Reader, resp io.Writer) error {
	data, err := readAll(ctx, req)
	if err != nil {
		return err
	}
	inst, err := d.ensureActive(ctx, id)
	if err != nil {
		return err
	}
	m, ok := d.byName[methodName]
	if !ok {
		return fmt.Errorf("type %q method %q: %w", d.actorType, methodName, ErrMethodNotFound)
	}
	res, err := d.invoke(ctx, m, inst, data)
	if err != nil {
		return err
	}
	if res == nil || resp == nil {
		return nil
	}
	if err := json.NewEncoder(resp).Encode(res); err != nil {
		return fmt.Errorf("encode %s.%s response: %w", d.actorType, methodName, err)
	}
	return nil
}

// FireReminder 触发实例注册的提醒回调。
// 需要时隐式激活；名称从未注册时返回 ErrReminderNotFound。
func (d *Dispatcher) FireReminder(ctx context.Context, id message.ActorID, name string, body io.Reader) error {
	data, err := readAll(ctx, body)
	if err != nil {
		return err
	}
	inst, err := d.ensureActive(ctx, id)
	if err != nil {
		return err
	}
	fn, ok := inst.reminders[name]
	if !ok {
		return fmt.Errorf("actor %s/%s reminder %q: %w", d.actorType, id, name, ErrReminderNotFound)
	}
	return fn(ctx, data)
}

// FireTimer 触发实例注册的定时器回调。
// 需要时隐式激活；名称从未注册时返回 ErrTimerNotFound。
func (d *Dispatcher) FireTimer(ctx context.Context, id message.ActorID, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	inst, err := d.ensureActive(ctx, id)
	if err != nil {
		return err
	}
	fn, ok := inst.timers[name]
	if !ok {
		return fmt.Errorf("actor %s/%s timer %q: %w", d.actorType, id, name, ErrTimerNotFound)
	}
	return fn(ctx)
}
