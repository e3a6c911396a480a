package handlers

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the service name reported by the gRPC health endpoint.
const HealthService = "challenge.ChallengeService"

// NewGRPCServer returns a gRPC server exposing the standard health service. The returned
// health.Server is flipped to NOT_SERVING on shutdown.
func NewGRPCServer(log *zap.Logger) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(grpc.UnaryInterceptor(unaryLogger(log.Named("grpc"))))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus(HealthService, healthpb.HealthCheckResponse_SERVING)
	return srv, hs
}

func unaryLogger(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		log.Debug("rpc", zap.String("method", info.FullMethod), zap.Duration("took", time.Since(start)), zap.Error(err))
		return resp, err
	}
}
