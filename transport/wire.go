// Package transport 提供缺省的 remoting 传输实现：
// 一对基于 gRPC + gob 编解码的客户端/服务端，以及进程内的
// non-remoting 回环客户端。重试、退避和传输安全不在本层。
package transport

import (
	"bytes"
	"encoding/gob"

	"vactor/message"
)

// gobCodec 实现 gRPC 的 gob 编解码器。
// gob 只承担线级信封的封帧；请求体和响应体在信封中保持为
// 不透明字节，由两端的序列化器各自处理。
type gobCodec struct{}

// Name 返回编解码器名称 "gob"。
func (gobCodec) Name() string { return "gob" }

// Marshal 使用 gob 编码将值序列化为字节切片。
func (gobCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal 使用 gob 解码将字节切片反序列化为值。
func (gobCodec) Unmarshal(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

// wireRequest 是 remoting 调用在线上的请求信封。
type wireRequest struct {
	// Header 请求消息头
	Header message.RequestHeader
	// Body 序列化后的请求体
	Body []byte
}

// wireResponse 是 remoting 调用在线上的响应信封。
// 响应体的标签联合在线上展平为 Wrapped 标志加数据字节。
type wireResponse struct {
	// Header 响应消息头
	Header message.ResponseHeader
	// Wrapped 响应体是否为 wrapped 变体
	Wrapped bool
	// Body 序列化后的响应数据
	Body []byte
	// Err 结构化的远端错误（如果有）
	Err *message.RemoteError
}

// 生命周期操作码。
const (
	opActivate   = "activate"
	opDeactivate = "deactivate"
	opReminder   = "reminder"
	opTimer      = "timer"
)

// wireLifecycle 是生命周期事件在线上的信封。
type wireLifecycle struct {
	// Op 操作码
	Op string
	// ActorType 目标 Actor 类型名
	ActorType message.ActorType
	// ActorID 目标实例标识符
	ActorID message.ActorID
	// Name 提醒或定时器名称
	Name string
	// Body 提醒负载字节
	Body []byte
}

// wireAck 是生命周期事件的确认响应。
type wireAck struct {
	// OK 表示操作是否成功
	OK bool
	// Err 错误信息（如果操作失败）
	Err string
}

// toResponseMessage 把线上信封还原为响应消息。
func (w *wireResponse) toResponseMessage() *message.ResponseMessage {
	var body *message.ResponseBody
	switch {
	case w.Err != nil:
		body = message.NewErrorResponse(w.Err)
	case w.Wrapped:
		body = message.NewWrappedResponse(w.Body)
	default:
		body = message.NewPlainResponse(w.Body)
	}
	return &message.ResponseMessage{Header: w.Header, Body: body}
}

// fromResponseMessage 把响应消息展平为线上信封。
func fromResponseMessage(m *message.ResponseMessage) *wireResponse {
	w := &wireResponse{}
	if m == nil {
		return w
	}
	w.Header = m.Header
	if m.Body != nil {
		w.Wrapped = m.Body.IsWrapped()
		w.Body = m.Body.Raw()
		w.Err = m.Body.RemoteErr()
	}
	return w
}
