package handler

import (
	"context"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// ServiceName is the service name answered besides the empty (whole server) name.
const ServiceName = "praxis.api"

// GRPCServer implements grpc.health.v1 Health on top of the readiness checks, for
// Kubernetes health checks and load balancers that speak gRPC.
type GRPCServer struct {
	healthpb.UnimplementedHealthServer
	checker *Checker
}

// NewGRPCServer returns a health service backed by checker.
func NewGRPCServer(checker *Checker) *GRPCServer {
	return &GRPCServer{checker: checker}
}

// Check reports SERVING when the database and the policy engine are usable and
// NOT_SERVING otherwise. A failed dependency is never a gRPC error.
func (s *GRPCServer) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	switch req.GetService() {
	case "", ServiceName:
	default:
		return nil, status.Error(codes.NotFound, "unknown service")
	}
	if !s.checker.Check(ctx).Ready() {
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}

// NewServer returns a gRPC server instrumented with otelgrpc that serves only the health service.
func NewServer(checker *Checker) *grpc.Server {
	s := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthpb.RegisterHealthServer(s, NewGRPCServer(checker))
	return s
}
