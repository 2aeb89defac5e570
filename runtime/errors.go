package runtime

import "errors"

var (
	// ErrNotRegistered 当目标 ActorType 没有注册调度器时返回此错误。
	// 这是整个系统对"未知 Actor 类型"的唯一裁决点，所有服务端入口都经过它。
	ErrNotRegistered = errors.New("actor type not registered")
	// ErrMethodNotFound 当方法键或方法名在已注册类型的方法表中不存在时返回此错误。
	// 与 ErrNotRegistered 区分，调用方能分辨"类型错了"和"方法错了"。
	ErrMethodNotFound = errors.New("actor method not found")
	// ErrReminderNotFound 当实例从未注册指定名称的提醒回调时返回此错误。
	ErrReminderNotFound = errors.New("reminder not found")
	// ErrTimerNotFound 当实例从未注册指定名称的定时器回调时返回此错误。
	ErrTimerNotFound = errors.New("timer not found")
	// ErrNilFactory 当调度器未配置实例工厂时返回此错误。
	ErrNilFactory = errors.New("nil actor factory")
)
