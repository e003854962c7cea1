package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// DocumentServiceServer 身份文档的校验与内容标识
// 请求与响应使用 protobuf well-known 类型，不需要 protoc 生成代码
type DocumentServiceServer interface {
	// Verify 入参为编码后的文档，返回 {outcome, valid, recovered, reason, cid}
	Verify(context.Context, *wrapperspb.BytesValue) (*structpb.Struct, error)
	// ContentID 返回编码后文档的 CIDv1
	ContentID(context.Context, *wrapperspb.BytesValue) (*wrapperspb.StringValue, error)
}

type UnimplementedDocumentServiceServer struct{}

func (UnimplementedDocumentServiceServer) Verify(context.Context, *wrapperspb.BytesValue) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Verify not implemented")
}
func (UnimplementedDocumentServiceServer) ContentID(context.Context, *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	return nil, status.Error(codes.Unimplemented, "method ContentID not implemented")
}

func RegisterDocumentServiceServer(s grpc.ServiceRegistrar, srv DocumentServiceServer) {
	s.RegisterService(&DocumentService_ServiceDesc, srv)
}

// DocumentServiceClient 供 CLI 与测试使用
type DocumentServiceClient interface {
	Verify(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*structpb.Struct, error)
	ContentID(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
}

type documentServiceClient struct{ cc grpc.ClientConnInterface }

func NewDocumentServiceClient(cc grpc.ClientConnInterface) DocumentServiceClient {
	return &documentServiceClient{cc: cc}
}

func (c *documentServiceClient) Verify(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/station.v1.DocumentService/Verify", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *documentServiceClient) ContentID(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, "/station.v1.DocumentService/ContentID", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func _DocumentService_Verify_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DocumentServiceServer).Verify(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/station.v1.DocumentService/Verify"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DocumentServiceServer).Verify(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _DocumentService_ContentID_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DocumentServiceServer).ContentID(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/station.v1.DocumentService/ContentID"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DocumentServiceServer).ContentID(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

var DocumentService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "station.v1.DocumentService",
	HandlerType: (*DocumentServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Verify", Handler: _DocumentService_Verify_Handler},
		{MethodName: "ContentID", Handler: _DocumentService_ContentID_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "document.proto",
}
