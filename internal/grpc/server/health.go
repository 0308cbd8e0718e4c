// Package server реализует gRPC-сервер проверки живости сервиса
// (протокол grpc.health.v1) поверх проверки хранилища.
package server

import (
	"context"
	"log/slog"

	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	service "github.com/magabrotheeeer/entitlement-webhooks/internal/services/health"
)

// ServiceName используется в запросах Check.
const ServiceName = "entitlement.webhooks"

// Prober проверяет хранилище.
type Prober interface {
	Probe(ctx context.Context) service.Status
}

// HealthServer отвечает SERVING, пока хранилище доступно.
type HealthServer struct {
	healthpb.UnimplementedHealthServer
	prober Prober
	log    *slog.Logger
}

// NewHealthServer создает HealthServer.
func NewHealthServer(prober Prober, logger *slog.Logger) *HealthServer {
	return &HealthServer{
		prober: prober,
		log:    logger,
	}
}

// Check проверяет хранилище. Пустое имя означает сервер целиком.
func (s *HealthServer) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if name := req.GetService(); name != "" && name != ServiceName {
		return nil, status.Errorf(codes.NotFound, "unknown service %q", name)
	}

	if !s.prober.Probe(ctx).Healthy {
		s.log.Warn("grpc health check: not serving")
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}
