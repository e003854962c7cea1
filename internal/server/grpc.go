package server

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	grpchandler "station-core/internal/handler/grpc"
)

// NewGRPCServer 初始化并注册 gRPC 服务
func NewGRPCServer(verifier grpchandler.DocumentVerifier) *grpc.Server {
	s := grpc.NewServer()
	grpchandler.RegisterDocumentServiceServer(s, grpchandler.NewDocumentHandler(verifier))

	// 开启反射，便于 grpcurl 调试
	reflection.Register(s)
	return s
}
