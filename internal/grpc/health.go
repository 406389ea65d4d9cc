package grpc

import (
	"log/slog"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"event-chat-service/internal/observability"
)

// PushService is the health service name reported for the push channel.
const PushService = "eventsync.PushChannel"

// HealthServer exposes grpc.health.v1 so orchestrators can check whether the
// push channel accepts connections.
type HealthServer struct {
	server *grpclib.Server
	health *health.Server
	logger *slog.Logger
}

// NewHealthServer builds the server. The push service starts NOT_SERVING.
func NewHealthServer(logger *slog.Logger) *HealthServer {
	if logger == nil {
		logger = slog.Default()
	}
	server := grpclib.NewServer(
		grpclib.StatsHandler(otelgrpc.NewServerHandler()),
		grpclib.UnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(server, hs)
	hs.SetServingStatus(PushService, healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthServer{server: server, health: hs, logger: logger}
}

// SetServing flips the push service status.
func (s *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(PushService, status)
	s.logger.Info("health status changed", "service", PushService, "status", status.String())
}

// Serve blocks serving on lis.
func (s *HealthServer) Serve(lis net.Listener) error {
	s.logger.Info("grpc health server listening", "addr", lis.Addr().String())
	return s.server.Serve(lis)
}

// Stop marks every service NOT_SERVING and drains in-flight calls.
func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
