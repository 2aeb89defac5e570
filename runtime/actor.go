package runtime

import (
	"context"

	"vactor/message"
)

// Actor 是服务端 Actor 实现的生命周期契约。
// 激活钩子失败时实例保持未激活；停用钩子失败时实例保持激活，
// 两种情况都允许重复尝试而不会二次触发钩子。
type Actor interface {
	// OnActivate 在实例构造后、首次处理调用前触发。
	// 实例在这里通过 ActivationContext 注册提醒和定时器回调。
	OnActivate(ctx *ActivationContext) error
	// OnDeactivate 在实例停用、释放资源前触发。
	OnDeactivate(ctx context.Context) error
}

// Factory 按 ActorID 构造具体 Actor 实例的工厂函数。
type Factory func(id message.ActorID) (Actor, error)

// ReminderFunc 是按名称注册的提醒回调。
// data 为外部运行时随提醒触发传入的负载字节。
type ReminderFunc func(ctx context.Context, data []byte) error

// TimerFunc 是按名称注册的定时器回调。
type TimerFunc func(ctx context.Context) error

// ActivationContext 是激活钩子的执行上下文。
// 它收集实例注册的提醒和定时器回调；注册只在激活期间有效，
// 钩子返回后上下文不应再被保存或使用。
type ActivationContext struct {
	// ctx 激活调用的上下文
	ctx context.Context
	// actorID 正在激活的实例标识符
	actorID message.ActorID
	// reminders 按名称注册的提醒回调
	reminders map[string]ReminderFunc
	// timers 按名称注册的定时器回调
	timers map[string]TimerFunc
}

// newActivationContext 创建激活上下文。
func newActivationContext(ctx context.Context, id message.ActorID) *ActivationContext {
	return &ActivationContext{ctx: ctx, actorID: id}
}

// Context 返回激活调用的上下文。
func (c *ActivationContext) Context() context.Context { return c.ctx }

// ActorID 返回正在激活的实例标识符。
func (c *ActivationContext) ActorID() message.ActorID { return c.actorID }

// RegisterReminder 按名称注册提醒回调，同名注册后者覆盖前者。
func (c *ActivationContext) RegisterReminder(name string, fn ReminderFunc) {
	if c.reminders == nil {
		c.reminders = make(map[string]ReminderFunc)
	}
	c.reminders[name] = fn
}

// RegisterTimer 按名称注册定时器回调，同名注册后者覆盖前者。
func (c *ActivationContext) RegisterTimer(name string, fn TimerFunc) {
	if c.timers == nil {
		c.timers = make(map[string]TimerFunc)
	}
	c.timers[name] = fn
}
