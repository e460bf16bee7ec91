// Package server assembles the HTTP router and the gRPC server of the identity service.
package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	healthhandler "mymessenger/backend/internal/health/handler"
	"mymessenger/backend/internal/server/interceptors"
)

// healthCheckMethods are polled by load balancers and not worth a log line each.
var healthCheckMethods = map[string]bool{
	healthpb.Health_Check_FullMethodName: true,
	healthpb.Health_Watch_FullMethodName: true,
}

// NewGRPCServer returns a gRPC server with tracing, panic recovery and request logging,
// serving the grpc.health.v1 service backed by health. logger may be nil.
func NewGRPCServer(logger *zap.Logger, health *healthhandler.Server) *grpc.Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.RecoveryUnary(logger),
			interceptors.LoggingUnary(logger, healthCheckMethods),
		),
	)
	if health != nil {
		health.RegisterGRPC(s)
	}
	return s
}
