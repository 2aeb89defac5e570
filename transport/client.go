package transport

import (
	"context"
	"errors"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"vactor/message"
)

// Client 是基于 gRPC 的 remoting 传输客户端，实现 client.RemotingClient。
// 连接懒建立并复用；Close 后不能再发起调用。
type Client struct {
	// target 服务端地址
	target string

	// mu 保护 conn 的并发访问
	mu sync.Mutex
	// conn 到服务端的 gRPC 连接
	conn *grpc.ClientConn
	// closed Close 后为 true
	closed bool
}

// NewClient 创建指向目标地址的 remoting 传输客户端。
func NewClient(target string) *Client {
	return &Client{target: target}
}

// dial 获取或建立到服务端的连接。
func (c *Client) dial() (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errors.New("remoting client closed")
	}
	if c.conn != nil {
		return c.conn, nil
	}
	cc, err := grpc.NewClient(c.target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(gobCodec{})),
	)
	if err != nil {
		return nil, err
	}
	c.conn = cc
	return cc, nil
}

// Close 关闭底层连接。可以安全地多次调用。
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Invoke 发送请求信封并等待响应信封。
// ctx 取消会中止挂起的 gRPC 调用，连接本身保留复用。
func (c *Client) Invoke(ctx context.Context, req *message.RequestMessage) (*message.ResponseMessage, error) {
	conn, err := c.dial()
	if err != nil {
		return nil, err
	}
	in := &wireRequest{Header: req.Header, Body: req.Body}
	var out wireResponse
	if err := conn.Invoke(ctx, "/vactor.Remoting/Invoke", in, &out, grpc.ForceCodec(gobCodec{})); err != nil {
		return nil, err
	}
	return out.toResponseMessage(), nil
}

// lifecycle 发送一个生命周期事件并等待确认。
func (c *Client) lifecycle(ctx context.Context, in *wireLifecycle) error {
	conn, err := c.dial()
	if err != nil {
		return err
	}
	var ack wireAck
	if err := conn.Invoke(ctx, "/vactor.Remoting/Lifecycle", in, &ack, grpc.ForceCodec(gobCodec{})); err != nil {
		return err
	}
	if !ack.OK && ack.Err != "" {
		return errors.New(ack.Err)
	}
	return nil
}

// Activate 请求远端激活指定实例。
func (c *Client) Activate(ctx context.Context, t message.ActorType, id message.ActorID) error {
	return c.lifecycle(ctx, &wireLifecycle{Op: opActivate, ActorType: t, ActorID: id})
}

// Deactivate 请求远端停用指定实例。
func (c *Client) Deactivate(ctx context.Context, t message.ActorType, id message.ActorID) error {
	return c.lifecycle(ctx, &wireLifecycle{Op: opDeactivate, ActorType: t, ActorID: id})
}

// FireReminder 请求远端触发指定实例的提醒回调。
func (c *Client) FireReminder(ctx context.Context, t message.ActorType, id message.ActorID, name string, body []byte) error {
	return c.lifecycle(ctx, &wireLifecycle{Op: opReminder, ActorType: t, ActorID: id, Name: name, Body: body})
}

// FireTimer 请求远端触发指定实例的定时器回调。
func (c *Client) FireTimer(ctx context.Context, t message.ActorType, id message.ActorID, name string) error {
	return c.lifecycle(ctx, &wireLifecycle{Op: opTimer, ActorType: t, ActorID: id, Name: name})
}
