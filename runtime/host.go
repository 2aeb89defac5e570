package runtime

import (
	"context"
	"io"
	"time"

	"vactor/message"
)

// Host 是面向传输边界的服务端入口集合。
// 它显式持有注册表（而不是隐藏的进程级单例），由暴露 HTTP/gRPC
// 端点的外层组件调用。所有入口都经由 Registry.Lookup 裁决未知类型。
type Host struct {
	// registry ActorType 到调度器的注册表
	registry *Registry
	// metrics 指标收集器（EnableMetrics 后非 nil）
	metrics *Metrics
}

// NewHost 创建一个持有空注册表的宿主。
func NewHost() *Host {
	return &Host{registry: NewRegistry()}
}

// Registry 返回宿主的注册表，用于查找和枚举已注册类型。
func (h *Host) Registry() *Registry { return h.registry }

// RegisterActor 从方法表构建指定类型的调度器并安装到注册表。
// 同名重复注册原子替换旧调度器。
func (h *Host) RegisterActor(actorType message.ActorType, opts Options) error {
	d, err := NewDispatcher(actorType, opts)
	if err != nil {
		return err
	}
	h.registry.Register(actorType, d)
	return nil
}

// observe 记录一次入口调用的结果和延迟。
func (h *Host) observe(start time.Time, err error) {
	if h.metrics == nil {
		return
	}
	if err != nil {
		h.metrics.IncFailure()
	}
	h.metrics.ObserveLatency(time.Since(start))
}

// Activate 激活指定类型和 ID 的 Actor 实例。
func (h *Host) Activate(ctx context.Context, actorType message.ActorType, id message.ActorID) error {
	start := time.Now()
	d, err := h.registry.Lookup(actorType)
	if err == nil {
		err = d.Activate(ctx, id)
		if err == nil && h.metrics != nil {
			h.metrics.IncActivation()
		}
	}
	h.observe(start, err)
	return err
}

// Deactivate 停用指定类型和 ID 的 Actor 实例。
func (h *Host) Deactivate(ctx context.Context, actorType message.ActorType, id message.ActorID) error {
	start := time.Now()
	d, err := h.registry.Lookup(actorType)
	if err == nil {
		err = d.Deactivate(ctx, id)
		if err == nil && h.metrics != nil {
			h.metrics.IncDeactivation()
		}
	}
	h.observe(start, err)
	return err
}

// DispatchRemoting 把 remoting 请求路由到请求头指定的调度器。
func (h *Host) DispatchRemoting(ctx context.Context, hdr *message.RequestHeader, body io.Reader) (*message.ResponseMessage, error) {
	start := time.Now()
	d, err := h.registry.Lookup(hdr.ActorType)
	if err != nil {
		h.observe(start, err)
		return nil, err
	}
	if h.metrics != nil {
		h.metrics.IncDispatch()
	}
	resp, err := d.DispatchRemoting(ctx, hdr.ActorID, hdr, body)
	h.observe(start, err)
	return resp, err
}

// DispatchNonRemoting 把 non-remoting 请求路由到指定类型的调度器。
func (h *Host) DispatchNonRemoting(ctx context.Context, actorType message.ActorType, id message.ActorID, methodName string, req io.Reader, resp io.Writer) error {
	start := time.Now()
	d, err := h.registry.Lookup(actorType)
	if err != nil {
		h.observe(start, err)
		return err
	}
	if h.metrics != nil {
		h.metrics.IncDispatch()
	}
	err = d.DispatchNonRemoting(ctx, id, methodName, req, resp)
	h.observe(start, err)
	return err
}

// FireReminder 触发指定实例的提醒回调。
func (h *Host) FireReminder(ctx context.Context, actorType message.ActorType, id message.ActorID, name string, body io.Reader) error {
	start := time.Now()
	d, err := h.registry.Lookup(actorType)
	if err == nil {
		err = d.FireReminder(ctx, id, name, body)
		if err == nil && h.metrics != nil {
			h.metrics.IncReminder()
		}
	}
	h.observe(start, err)
	return err
}

// FireTimer 触发指定实例的定时器回调。
func (h *Host) FireTimer(ctx context.Context, actorType message.ActorType, id message.ActorID, name string) error {
	start := time.Now()
	d, err := h.registry.Lookup(actorType)
	if err == nil {
		err = d.FireTimer(ctx, id, name)
		if err == nil && h.metrics != nil {
			h.metrics.IncTimer()
		}
	}
	h.observe(start, err)
	return err
}
