package runtime

import (
	"fmt"
	"sync"

	"vactor/message"
)

// Registry 是服务端注册表，维护 ActorType 名称到调度器的映射。
// 进程启动阶段通过注册调用建立条目；同名重复注册原子替换旧条目
// （后写者胜出，不存在部分可见），已持有旧调度器引用的在途调用不受影响。
// 并发注册与查找必须安全，读取绝不观察到构造到一半的条目。
type Registry struct {
	// mu 保护 byType 的并发访问
	mu sync.RWMutex
	// byType 按类型名索引的调度器映射
	byType map[message.ActorType]*Dispatcher
}

// NewRegistry 创建一个新的空注册表。
func NewRegistry() *Registry {
	return &Registry{byType: make(map[message.ActorType]*Dispatcher)}
}

// Register 安装或替换指定类型名的调度器。
// 除名称相等外不做唯一性检查，替换对后续所有查找立即生效。
func (r *Registry) Register(actorType message.ActorType, d *Dispatcher) {
	r.mu.Lock()
	r.byType[actorType] = d
	r.mu.Unlock()
}

// Lookup 查找指定类型名的调度器。
// 类型未注册时返回带类型名的 ErrNotRegistered。
func (r *Registry) Lookup(actorType message.ActorType) (*Dispatcher, error) {
	r.mu.RLock()
	d, ok := r.byType[actorType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("actor type %q: %w", actorType, ErrNotRegistered)
	}
	return d, nil
}

// Types 返回当前所有已注册类型名的快照，顺序不保证。
func (r *Registry) Types() []message.ActorType {
	r.mu.RLock()
	out := make([]message.ActorType, 0, len(r.byType))
	for t := range r.byType {
		out = append(out, t)
	}
	r.mu.RUnlock()
	return out
}
