package grpcx

import (
	"log/slog"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer is a gRPC server that only exposes grpc.health.v1.
type HealthServer struct {
	Server *grpc.Server
	Health *health.Server
	logger *slog.Logger
}

func NewHealthServer(logger *slog.Logger, services ...string) *HealthServer {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(UnaryServerRequestIDInterceptor()),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	for _, name := range services {
		hs.SetServingStatus(name, healthpb.HealthCheckResponse_SERVING)
	}
	return &HealthServer{Server: srv, Health: hs, logger: logger}
}

// Serve blocks until the listener fails or Stop is called.
func (s *HealthServer) Serve(lis net.Listener) {
	s.logger.Info("grpc server starting", "addr", lis.Addr().String())
	if err := s.Server.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		s.logger.Error("grpc server error", "err", err)
	}
}

// Stop flips every service to NOT_SERVING before draining connections.
func (s *HealthServer) Stop() {
	s.Health.Shutdown()
	s.Server.GracefulStop()
}
