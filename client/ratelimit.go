package client

import (
	"context"
	"sync"
	"time"
)

// TokenBucket 限制代理的出站调用速率。
// 令牌按 QPS 持续补充，桶容量 burst 决定允许的突发量；
// QPS 可以通过 SetQPS 动态调整，配合配置热加载无需重建限流器。
// qps <= 0 表示不限流。
type TokenBucket struct {
	// mu 保护以下全部状态
	mu sync.Mutex
	// qps 每秒补充的令牌数
	qps int64
	// burst 桶容量
	burst int64
	// tokens 当前可用令牌，含按时间补充的小数部分
	tokens float64
	// last 上次补充令牌的时间
	last time.Time
}

// NewTokenBucket 创建一个新的令牌桶限流器。
// burst <= 0 时默认使用 qps 作为 burst（qps 也 <= 0 时为 1）。
func NewTokenBucket(qps, burst int64) *TokenBucket {
	if burst <= 0 {
		burst = qps
		if burst <= 0 {
			burst = 1
		}
	}
	return &TokenBucket{
		qps:    qps,
		burst:  burst,
		tokens: float64(burst),
		last:   time.Now(),
	}
}

// advance 把 last 以来按速率产生的令牌记入桶中，调用方必须持有 mu。
func (tb *TokenBucket) advance(now time.Time) {
	if tb.qps <= 0 {
		tb.tokens = float64(tb.burst)
		tb.last = now
		return
	}
	if !now.After(tb.last) {
		return
	}
	tb.tokens += now.Sub(tb.last).Seconds() * float64(tb.qps)
	if tb.tokens > float64(tb.burst) {
		tb.tokens = float64(tb.burst)
	}
	tb.last = now
}

// SetQPS 动态更新限流器的速率。
// qps <= 0 时限流实际上被禁用（总是允许）。
func (tb *TokenBucket) SetQPS(qps int64) {
	tb.mu.Lock()
	tb.advance(time.Now())
	tb.qps = qps
	if qps <= 0 {
		tb.tokens = float64(tb.burst)
	}
	tb.mu.Unlock()
}

// Allow 尝试立即消耗 n 个令牌，返回是否成功。
// 令牌不足时返回 false，不阻塞。
func (tb *TokenBucket) Allow(n int64) bool {
	if n <= 0 {
		return true
	}
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.advance(time.Now())
	if tb.qps <= 0 {
		return true
	}
	if tb.tokens < float64(n) {
		return false
	}
	tb.tokens -= float64(n)
	return true
}

// WaitContext 阻塞直到消耗 n 个令牌或 ctx 被取消。
// 等待时长按令牌缺口和当前速率计算；取消时返回 ctx 的错误，不消耗令牌。
func (tb *TokenBucket) WaitContext(ctx context.Context, n int64) error {
	if n <= 0 {
		return nil
	}
	for {
		tb.mu.Lock()
		tb.advance(time.Now())
		if tb.qps <= 0 {
			tb.mu.Unlock()
			return nil
		}
		if tb.tokens >= float64(n) {
			tb.tokens -= float64(n)
			tb.mu.Unlock()
			return nil
		}
		deficit := float64(n) - tb.tokens
		qps := tb.qps
		tb.mu.Unlock()

		wait := time.Duration(deficit / float64(qps) * float64(time.Second))
		if wait < time.Millisecond {
			wait = time.Millisecond
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
