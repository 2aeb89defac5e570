package message

import (
	"errors"
	"fmt"
)

// ErrWrappedBody 当对 wrapped 变体的响应体执行直接解码时返回此错误。
// wrapped 变体必须先经过按 (InterfaceID, MethodID) 注册的解析函数展开。
var ErrWrappedBody = errors.New("response body is wrapped")

// RemoteError 是远端执行失败的结构化描述。
// 它代替携带任意异常对象的响应体，调用方可以按 Kind 分支处理。
type RemoteError struct {
	// Kind 错误类别（如 invocation、panic、not_registered、method_not_found）
	Kind string `json:"kind"`
	// Message 远端原始错误消息
	Message string `json:"message"`
	// RemoteType 远端错误值的类型名，供调用方判别原因
	RemoteType string `json:"remoteType,omitempty"`
}

// Error 实现 error 接口。
func (e *RemoteError) Error() string {
	if e.RemoteType != "" {
		return fmt.Sprintf("remote error [%s] %s: %s", e.Kind, e.RemoteType, e.Message)
	}
	return fmt.Sprintf("remote error [%s]: %s", e.Kind, e.Message)
}

// ResponseBody 是响应体的标签联合：wrapped 或 plain 两种变体之一。
// 变体在方法注册时确定，不随单次调用变化。
//   - plain：可通过 Get 直接解码为期望的返回类型
//   - wrapped：携带一个需要按方法展开的内层值
//
// 远端执行失败时 Body 携带 RemoteError，两种变体均不含有效数据。
type ResponseBody struct {
	// wrapped 是否为 wrapped 变体
	wrapped bool
	// data 序列化后的响应数据
	data []byte
	// err 远端错误（如果有）
	err *RemoteError
}

// NewPlainResponse 构造 plain 变体的响应体。
func NewPlainResponse(data []byte) *ResponseBody {
	return &ResponseBody{data: data}
}

// NewWrappedResponse 构造 wrapped 变体的响应体。
func NewWrappedResponse(data []byte) *ResponseBody {
	return &ResponseBody{wrapped: true, data: data}
}

// NewErrorResponse 构造携带远端错误的响应体。
func NewErrorResponse(err *RemoteError) *ResponseBody {
	return &ResponseBody{err: err}
}

// IsWrapped 报告响应体是否为 wrapped 变体。
func (b *ResponseBody) IsWrapped() bool { return b.wrapped }

// IsEmpty 报告响应体是否既无数据也无错误。
func (b *ResponseBody) IsEmpty() bool {
	return b == nil || (len(b.data) == 0 && b.err == nil)
}

// RemoteErr 返回远端错误，没有时为 nil。
func (b *ResponseBody) RemoteErr() *RemoteError {
	if b == nil {
		return nil
	}
	return b.err
}

// Raw 返回序列化后的响应数据。
func (b *ResponseBody) Raw() []byte {
	if b == nil {
		return nil
	}
	return b.data
}

// Get 将 plain 变体解码到 out 指向的值。
// 对 wrapped 变体调用返回 ErrWrappedBody；携带远端错误时返回该错误。
func (b *ResponseBody) Get(s Serializer, out any) error {
	if b == nil {
		return nil
	}
	if b.err != nil {
		return b.err
	}
	if len(b.data) == 0 {
		return nil
	}
	if b.wrapped {
		return ErrWrappedBody
	}
	return s.Unmarshal(b.data, out)
}

// WrappedValue 是 wrapped 变体的标准内层信封。
// Value 为用所属序列化器编码的单个不透明值。
type WrappedValue struct {
	// Value 序列化后的内层值
	Value []byte `json:"value"`
}

// Wrap 将已序列化的值装入标准信封并再次序列化。
func Wrap(s Serializer, inner []byte) ([]byte, error) {
	return s.Marshal(WrappedValue{Value: inner})
}

// Unwrap 展开标准信封并把内层值解码到 out。
// 这是未注册专用解析函数时 wrapped 变体的缺省展开方式。
func Unwrap(s Serializer, data []byte, out any) error {
	var wv WrappedValue
	if err := s.Unmarshal(data, &wv); err != nil {
		return fmt.Errorf("unwrap envelope: %w", err)
	}
	if len(wv.Value) == 0 || out == nil {
		return nil
	}
	return s.Unmarshal(wv.Value, out)
}

// NamedValue 是请求体工厂的一个具名参数。
type NamedValue struct {
	// Name 参数名
	Name string
	// Value 参数值
	Value any
}

// BodyFactory 把类型化的方法参数转换为传输中立的请求体。
// 包装策略：无参返回 nil；单参直接序列化参数值；
// 多参合并为一个按参数名索引的信封后整体序列化。
type BodyFactory struct {
	// serializer 请求体使用的序列化器
	serializer Serializer
}

// NewBodyFactory 创建绑定指定序列化器的请求体工厂。
// serializer 为 nil 时使用 JSON。
func NewBodyFactory(s Serializer) *BodyFactory {
	if s == nil {
		s = JSONSerializer{}
	}
	return &BodyFactory{serializer: s}
}

// Create 根据参数个数应用包装策略并生成请求体字节。
func (f *BodyFactory) Create(methodName string, args ...NamedValue) ([]byte, error) {
	switch len(args) {
	case 0:
		return nil, nil
	case 1:
		b, err := f.serializer.Marshal(args[0].Value)
		if err != nil {
			return nil, fmt.Errorf("encode %s arg %s: %w", methodName, args[0].Name, err)
		}
		return b, nil
	default:
		env := make(map[string]any, len(args))
		for _, a := range args {
			env[a.Name] = a.Value
		}
		b, err := f.serializer.Marshal(env)
		if err != nil {
			return nil, fmt.Errorf("encode %s args: %w", methodName, err)
		}
		return b, nil
	}
}
