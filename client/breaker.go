package client

import (
	"sync"
	"time"

	"vactor/message"
)

// breakerState 定义断路器的三种状态。
type breakerState uint8

const (
	// breakerClosed 关闭状态：调用正常通过
	breakerClosed breakerState = iota
	// breakerOpen 打开状态：调用被拒绝，等待超时后进入半开状态
	breakerOpen
	// breakerHalfOpen 半开状态：允许一个探测调用通过，成功则关闭，失败则重新打开
	breakerHalfOpen
)

// CircuitBreaker 是单个远端目标的断路器。
// 代理用它保护出站调用路径：目标连续失败达到阈值后快速拒绝，
// 避免对失败远端的持续调用。本层不做重试，打开只意味着快速失败。
//
// 状态转换：
//   - closed -> open: 连续失败次数达到阈值
//   - open -> half-open: 打开持续时间超过 openFor
//   - half-open -> closed: 探测调用成功
//   - half-open -> open: 探测调用失败
type CircuitBreaker struct {
	// mu 保护以下全部状态
	mu sync.Mutex
	// threshold 触发打开的失败次数阈值
	threshold uint64
	// openFor 打开状态的持续时间
	openFor time.Duration
	// failures 连续失败计数
	failures uint64
	// state 当前状态
	state breakerState
	// openedAt 断路器打开的时间
	openedAt time.Time
	// probing 半开状态下探测调用是否已放行
	probing bool
}

// NewCircuitBreaker 创建一个新的断路器。
// threshold 或 openFor 为零时使用默认值（threshold=50, openFor=30s）。
func NewCircuitBreaker(threshold uint64, openFor time.Duration) *CircuitBreaker {
	if threshold == 0 {
		threshold = 50
	}
	if openFor == 0 {
		openFor = 30 * time.Second
	}
	return &CircuitBreaker{threshold: threshold, openFor: openFor}
}

// Allow 检查在给定时间是否允许调用通过。
// 关闭状态总是允许；打开状态拒绝直到超时转入半开；
// 半开状态只放行一个探测调用。
func (b *CircuitBreaker) Allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case breakerClosed:
		return true
	case breakerOpen:
		if now.Sub(b.openedAt) < b.openFor {
			return false
		}
		b.state = breakerHalfOpen
		b.probing = true
		return true
	default:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
}

// OnSuccess 记录一次成功调用，将断路器重置为关闭状态。
func (b *CircuitBreaker) OnSuccess() {
	b.mu.Lock()
	b.failures = 0
	b.state = breakerClosed
	b.probing = false
	b.mu.Unlock()
}

// OnFailure 记录一次失败调用，可能导致断路器打开。
// 半开状态下失败会立即重新打开断路器。
func (b *CircuitBreaker) OnFailure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == breakerHalfOpen {
		b.trip(now)
		return
	}
	b.failures++
	if b.failures >= b.threshold {
		b.trip(now)
	}
}

// trip 切换到打开状态，调用方必须持有 mu。
func (b *CircuitBreaker) trip(now time.Time) {
	b.state = breakerOpen
	b.openedAt = now
	b.probing = false
}

// breakerKey 标识一个被保护的远端目标。
type breakerKey struct {
	actorType message.ActorType
	actorID   message.ActorID
}

// TargetBreakers 按 (ActorType, ActorID) 维护断路器集合。
// 指向同一目标的多个代理共享同一个断路器，失败记账对所有调用方生效；
// 不同目标的断路器互不影响。
type TargetBreakers struct {
	// threshold 新建断路器的失败阈值
	threshold uint64
	// openFor 新建断路器的打开持续时间
	openFor time.Duration

	// mu 保护 byTarget 的并发访问
	mu sync.RWMutex
	// byTarget 按目标索引的断路器
	byTarget map[breakerKey]*CircuitBreaker
}

// NewTargetBreakers 创建一个空的目标断路器集合。
func NewTargetBreakers(threshold uint64, openFor time.Duration) *TargetBreakers {
	return &TargetBreakers{
		threshold: threshold,
		openFor:   openFor,
		byTarget:  make(map[breakerKey]*CircuitBreaker),
	}
}

// For 返回指定目标的断路器，首次访问时创建。
func (g *TargetBreakers) For(actorType message.ActorType, actorID message.ActorID) *CircuitBreaker {
	k := breakerKey{actorType, actorID}
	g.mu.RLock()
	b, ok := g.byTarget[k]
	g.mu.RUnlock()
	if ok {
		return b
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if b, ok = g.byTarget[k]; ok {
		return b
	}
	b = NewCircuitBreaker(g.threshold, g.openFor)
	g.byTarget[k] = b
	return b
}
