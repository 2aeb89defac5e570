package transport

import (
	"bytes"
	"context"
	"errors"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"vactor/message"
	"vactor/runtime"
)

// RemotingServer 定义 remoting 传输服务接口。
type RemotingServer interface {
	Invoke(context.Context, *wireRequest) (*wireResponse, error)
	Lifecycle(context.Context, *wireLifecycle) (*wireAck, error)
}

// Server 在指定地址暴露宿主的 remoting 入口。
// 它把 vactor.Remoting 服务的两个方法（Invoke / Lifecycle）
// 转发给 runtime.Host，自身不含任何路由决策。
type Server struct {
	// host 被暴露的宿主
	host *runtime.Host
	// srv gRPC 服务器实例
	srv *grpc.Server
	// lis 网络监听器
	lis net.Listener
	// addr 本地监听地址
	addr string
}

// NewServer 启动一个 remoting 服务端。
// listenAddr 为空时默认 ":50051"。
func NewServer(host *runtime.Host, listenAddr string) (*Server, error) {
	if listenAddr == "" {
		listenAddr = ":50051"
	}
	encoding.RegisterCodec(gobCodec{})
	lis, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, err
	}
	s := &Server{
		host: host,
		lis:  lis,
		addr: lis.Addr().String(),
	}
	s.srv = grpc.NewServer(grpc.ForceServerCodec(gobCodec{}))
	s.register(s.srv)
	go func() { _ = s.srv.Serve(lis) }()
	return s, nil
}

// Addr 返回服务端的本地监听地址。
func (s *Server) Addr() string { return s.addr }

// Stop 停止服务端并关闭监听器。
func (s *Server) Stop() {
	s.srv.Stop()
	_ = s.lis.Close()
}

// register 向 gRPC 服务器注册 remoting 服务。
func (s *Server) register(srv *grpc.Server) {
	srv.RegisterService(&grpc.ServiceDesc{
		ServiceName: "vactor.Remoting",
		HandlerType: (*RemotingServer)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "Invoke",
				Handler: func(_ any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
					var in wireRequest
					if err := dec(&in); err != nil {
						return nil, err
					}
					return s.Invoke(ctx, &in)
				},
			},
			{
				MethodName: "Lifecycle",
				Handler: func(_ any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
					var in wireLifecycle
					if err := dec(&in); err != nil {
						return nil, err
					}
					return s.Lifecycle(ctx, &in)
				},
			},
		},
		Streams:  nil,
		Metadata: "gob",
	}, s)
}

// kindFor 把宿主返回的错误归类为结构化错误的 Kind。
func kindFor(err error) string {
	switch {
	case errors.Is(err, runtime.ErrNotRegistered):
		return "not_registered"
	case errors.Is(err, runtime.ErrMethodNotFound):
		return "method_not_found"
	default:
		return "dispatch"
	}
}

// Invoke 处理接收到的 remoting 调用。
// 宿主层面的失败（类型未注册、方法不存在、激活失败）编码为
// 响应信封中的结构化错误，让调用方按 Kind 分支。
func (s *Server) Invoke(ctx context.Context, in *wireRequest) (*wireResponse, error) {
	resp, err := s.host.DispatchRemoting(ctx, &in.Header, bytes.NewReader(in.Body))
	if err != nil {
		return &wireResponse{
			Header: message.ResponseHeader{
				ActorID:     in.Header.ActorID,
				ActorType:   in.Header.ActorType,
				CallContext: in.Header.CallContext,
			},
			Err: &message.RemoteError{Kind: kindFor(err), Message: err.Error()},
		}, nil
	}
	return fromResponseMessage(resp), nil
}

// Lifecycle 处理接收到的生命周期事件。
func (s *Server) Lifecycle(ctx context.Context, in *wireLifecycle) (*wireAck, error) {
	var err error
	switch in.Op {
	case opActivate:
		err = s.host.Activate(ctx, in.ActorType, in.ActorID)
	case opDeactivate:
		err = s.host.Deactivate(ctx, in.ActorType, in.ActorID)
	case opReminder:
		err = s.host.FireReminder(ctx, in.ActorType, in.ActorID, in.Name, bytes.NewReader(in.Body))
	case opTimer:
		err = s.host.FireTimer(ctx, in.ActorType, in.ActorID, in.Name)
	default:
		return &wireAck{OK: false, Err: "unknown lifecycle op " + in.Op}, nil
	}
	if err != nil {
		return &wireAck{OK: false, Err: err.Error()}, nil
	}
	return &wireAck{OK: true}, nil
}
