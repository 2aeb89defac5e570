package client

import (
	"sync"

	"vactor/message"
)

// ResultResolver 是按方法定制的返回值展开函数。
// 生成代码在注册时按 (InterfaceID, MethodID) 提供它，
// 把 wrapped 变体的响应数据解码到 out。
type ResultResolver func(s message.Serializer, data []byte, out any) error

// methodKey 是解析注册表的键。
type methodKey struct {
	iface  int32
	method int32
}

// ResolverRegistry 保存按 (InterfaceID, MethodID) 注册的返回值展开函数。
// 注册发生在进程启动阶段（生成代码），查找发生在每次调用，
// 并发读写必须安全。
type ResolverRegistry struct {
	// mu 保护 byMethod 的并发访问
	mu sync.RWMutex
	// byMethod 按方法键索引的展开函数
	byMethod map[methodKey]ResultResolver
}

// NewResolverRegistry 创建一个空的解析注册表。
func NewResolverRegistry() *ResolverRegistry {
	return &ResolverRegistry{byMethod: make(map[methodKey]ResultResolver)}
}

// Register 注册或替换指定方法的返回值展开函数。
func (r *ResolverRegistry) Register(interfaceID, methodID int32, fn ResultResolver) {
	r.mu.Lock()
	r.byMethod[methodKey{interfaceID, methodID}] = fn
	r.mu.Unlock()
}

// lookup 查找指定方法的展开函数，未注册时返回 nil。
func (r *ResolverRegistry) lookup(interfaceID, methodID int32) ResultResolver {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	fn := r.byMethod[methodKey{interfaceID, methodID}]
	r.mu.RUnlock()
	return fn
}
