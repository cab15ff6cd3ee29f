// Package grpcapi constructs the gRPC server process. No .proto/generated
// stubs exist for this service yet, so the server is built but left
// without registered services rather than hand-writing unverifiable
// generated code; the HTTP surface in pkg/transport/httpapi is where the
// real RPC surface is actually wired up (see DESIGN.md).
package grpcapi

import (
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/mishard/core/pkg/service"
)

// NewServer creates a gRPC server for svc. Service registration is left
// for whenever a wire schema for this RPC surface is adopted.
func NewServer(svc *service.Service, logger *zap.Logger) *grpc.Server {
	server := grpc.NewServer()
	logger.Warn("grpc server has no registered services; use the HTTP API")
	return server
}
