package runtime

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync/atomic"
	"time"
)

// Metrics 收集和暴露调度层的运行时指标。
// 指标包括分发计数、激活/停用计数、提醒/定时器触发计数、
// 失败计数和分发延迟分布。
// 所有指标都使用原子操作，支持并发访问且无锁竞争。
// 指标格式兼容 Prometheus，可通过 /metrics 端点暴露。
type Metrics struct {
	// startedAtUnix 宿主启动时间的 Unix 时间戳
	startedAtUnix atomic.Int64
	// dispatches 处理的方法调用总数（两条路径合计）
	dispatches atomic.Uint64
	// activations 激活总数
	activations atomic.Uint64
	// deactivations 停用总数
	deactivations atomic.Uint64
	// reminders 提醒触发总数
	reminders atomic.Uint64
	// timers 定时器触发总数
	timers atomic.Uint64
	// failures 入口返回错误的总数
	failures atomic.Uint64

	// latBuckets 延迟直方图的桶边界
	latBuckets []time.Duration
	// latCounts 每个延迟桶的计数
	latCounts []atomic.Uint64
	// latSumNS 延迟总和（纳秒）
	latSumNS atomic.Uint64
}

// NewMetrics 创建一个新的指标收集器，使用预定义的延迟桶边界。
// 延迟桶覆盖从 10 微秒到 100 毫秒的范围，适合进程内分发场景。
func NewMetrics() *Metrics {
	b := []time.Duration{
		10 * time.Microsecond,
		50 * time.Microsecond,
		100 * time.Microsecond,
		500 * time.Microsecond,
		1 * time.Millisecond,
		2 * time.Millisecond,
		5 * time.Millisecond,
		10 * time.Millisecond,
		20 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
	}
	return &Metrics{
		latBuckets: b,
		latCounts:  make([]atomic.Uint64, len(b)+1),
	}
}

// MarkStart 记录宿主启动时间，仅首次调用生效。
func (m *Metrics) MarkStart() {
	if m.startedAtUnix.Load() == 0 {
		m.startedAtUnix.Store(time.Now().Unix())
	}
}

// IncDispatch 增加方法调用计数。
func (m *Metrics) IncDispatch() { m.dispatches.Add(1) }

// IncActivation 增加激活计数。
func (m *Metrics) IncActivation() { m.activations.Add(1) }

// IncDeactivation 增加停用计数。
func (m *Metrics) IncDeactivation() { m.deactivations.Add(1) }

// IncReminder 增加提醒触发计数。
func (m *Metrics) IncReminder() { m.reminders.Add(1) }

// IncTimer 增加定时器触发计数。
func (m *Metrics) IncTimer() { m.timers.Add(1) }

// IncFailure 增加失败计数。
func (m *Metrics) IncFailure() { m.failures.Add(1) }

// ObserveLatency 记录一次分发延迟观测值。
func (m *Metrics) ObserveLatency(d time.Duration) {
	if d < 0 {
		return
	}
	m.latSumNS.Add(uint64(d.Nanoseconds()))
	i := sort.Search(len(m.latBuckets), func(i int) bool { return d <= m.latBuckets[i] })
	m.latCounts[i].Add(1)
}

// EnableMetrics 启用指标收集和 HTTP 暴露端点。
// 指标将在指定地址（默认 :9090）的 /metrics 路径下以 Prometheus 格式暴露。
func (h *Host) EnableMetrics(addr string) error {
	if addr == "" {
		addr = ":9090"
	}
	if h.metrics == nil {
		h.metrics = NewMetrics()
	}
	h.metrics.MarkStart()
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) { h.writeMetrics(w) })
	go func() { _ = http.ListenAndServe(addr, mux) }()
	return nil
}

// writeMetrics 将指标以 Prometheus 文本格式写入 HTTP 响应。
func (h *Host) writeMetrics(w http.ResponseWriter) {
	if h.metrics == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	now := time.Now()
	var active int64
	for _, t := range h.registry.Types() {
		if d, err := h.registry.Lookup(t); err == nil {
			active += int64(d.ActiveCount())
		}
	}

	_, _ = fmt.Fprintln(w, "# TYPE vactor_dispatches_total counter")
	_, _ = fmt.Fprintln(w, "vactor_dispatches_total", h.metrics.dispatches.Load())
	_, _ = fmt.Fprintln(w, "# TYPE vactor_activations_total counter")
	_, _ = fmt.Fprintln(w, "vactor_activations_total", h.metrics.activations.Load())
	_, _ = fmt.Fprintln(w, "# TYPE vactor_deactivations_total counter")
	_, _ = fmt.Fprintln(w, "vactor_deactivations_total", h.metrics.deactivations.Load())
	_, _ = fmt.Fprintln(w, "# TYPE vactor_reminders_total counter")
	_, _ = fmt.Fprintln(w, "vactor_reminders_total", h.metrics.reminders.Load())
	_, _ = fmt.Fprintln(w, "# TYPE vactor_timers_total counter")
	_, _ = fmt.Fprintln(w, "vactor_timers_total", h.metrics.timers.Load())
	_, _ = fmt.Fprintln(w, "# TYPE vactor_failures_total counter")
	_, _ = fmt.Fprintln(w, "vactor_failures_total", h.metrics.failures.Load())
	_, _ = fmt.Fprintln(w, "# TYPE vactor_active_actors gauge")
	_, _ = fmt.Fprintln(w, "vactor_active_actors", active)

	_, _ = fmt.Fprintln(w, "# TYPE vactor_dispatch_latency_seconds histogram")
	var cum uint64
	for i, b := range h.metrics.latBuckets {
		cum += h.metrics.latCounts[i].Load()
		_, _ = fmt.Fprintln(w, "vactor_dispatch_latency_seconds_bucket{le=\""+strconv.FormatFloat(b.Seconds(), 'f', -1, 64)+"\"}", cum)
	}
	cum += h.metrics.latCounts[len(h.metrics.latBuckets)].Load()
	_, _ = fmt.Fprintln(w, "vactor_dispatch_latency_seconds_bucket{le=\"+Inf\"}", cum)
	_, _ = fmt.Fprintln(w, "vactor_dispatch_latency_seconds_sum", float64(h.metrics.latSumNS.Load())/1e9)
	_, _ = fmt.Fprintln(w, "vactor_dispatch_latency_seconds_count", cum)

	_, _ = fmt.Fprintln(w, "# TYPE vactor_uptime_seconds gauge")
	started := h.metrics.startedAtUnix.Load()
	if started == 0 {
		started = now.Unix()
	}
	_, _ = fmt.Fprintln(w, "vactor_uptime_seconds", now.Sub(time.Unix(started, 0)).Seconds())
}
