package message

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
)

// Serializer 定义序列化器接口，用于请求体和响应体的编码和解码。
// 本层默认使用 JSON，实现可整体替换。
type Serializer interface {
	// Marshal 将任意值序列化为字节切片。
	Marshal(v any) ([]byte, error)
	// Unmarshal 将字节切片反序列化到 out 指向的值。
	Unmarshal(b []byte, out any) error
}

// JSONSerializer 是基于 encoding/json 的缺省序列化器。
// non-remoting 路径固定使用 JSON，以兼容跨语言调用方。
type JSONSerializer struct{}

// Marshal 使用 JSON 编码将值序列化为字节切片。
func (JSONSerializer) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal 使用 JSON 解码将字节切片反序列化到 out。
func (JSONSerializer) Unmarshal(b []byte, out any) error { return json.Unmarshal(b, out) }

// GobSerializer 是基于 Go gob 编码的序列化器实现。
// gob 是 Go 原生的二进制格式，仅适用于 Go 程序之间的 remoting 通信，
// 不是跨语言兼容的。
type GobSerializer struct{}

// Marshal 使用 gob 编码将值序列化为字节切片。
func (GobSerializer) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal 使用 gob 解码将字节切片反序列化到 out。
func (GobSerializer) Unmarshal(b []byte, out any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(out)
}
