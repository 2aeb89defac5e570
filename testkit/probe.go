// Package testkit 提供调度层测试用的辅助工具。
package testkit

import (
	"testing"
	"time"

	"vactor/message"
)

// EventKind 标识探针记录的调度事件类别。
type EventKind string

const (
	// Activated 实例激活钩子命中
	Activated EventKind = "activated"
	// Deactivated 实例停用钩子命中
	Deactivated EventKind = "deactivated"
	// Reminder 提醒回调命中
	Reminder EventKind = "reminder"
	// Timer 定时器回调命中
	Timer EventKind = "timer"
)

// Event 是一次调度回调命中的结构化记录。
type Event struct {
	// Kind 事件类别
	Kind EventKind
	// Actor 产生事件的实例标识符
	Actor message.ActorID
	// Name 提醒或定时器名称，生命周期事件为空
	Name string
	// Payload 随事件携带的负载，如提醒的触发数据
	Payload string
}

// Probe 收集被测 Actor 的调度事件。
// 激活/停用钩子、提醒和定时器回调通过 Record 上报命中，
// 测试用 Expect / ExpectNoEvent 验证触发的事件和顺序。
type Probe struct {
	// t 测试上下文，用于报告失败
	t testing.TB
	// ch 接收事件的通道
	ch chan Event
	// fail 失败处理函数
	fail func(string, ...any)
}

// NewProbe 创建一个新的测试探针。
// t 为测试上下文，buffer 为通道缓冲区大小（默认 1024）。
func NewProbe(t testing.TB, buffer int) *Probe {
	if buffer <= 0 {
		buffer = 1024
	}
	p := &Probe{t: t, ch: make(chan Event, buffer)}
	p.fail = t.Fatalf
	return p
}

// Chan 返回事件接收通道，可直接用于 select 语句。
func (p *Probe) Chan() <-chan Event { return p.ch }

// Record 上报一个调度事件。
// 通常在被测 Actor 的钩子和回调中调用。
func (p *Probe) Record(ev Event) { p.ch <- ev }

// Expect 等待并返回下一个事件。
// 如果在超时时间内没有收到事件，测试会失败。
// 默认超时为 1 秒。
func (p *Probe) Expect(timeout time.Duration) Event {
	p.t.Helper()
	if timeout <= 0 {
		timeout = time.Second
	}
	select {
	case ev := <-p.ch:
		return ev
	case <-time.After(timeout):
		p.fail("timeout waiting dispatch event")
		return Event{}
	}
}

// ExpectNoEvent 验证在指定时间内没有收到事件。
// 如果收到事件，测试会失败。
// 默认超时为 50 毫秒。
func (p *Probe) ExpectNoEvent(timeout time.Duration) {
	p.t.Helper()
	if timeout <= 0 {
		timeout = 50 * time.Millisecond
	}
	select {
	case ev := <-p.ch:
		p.fail("unexpected dispatch event: %#v", ev)
	case <-time.After(timeout):
	}
}
