package grpcapi

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the name reported by the health service alongside the
// overall ("") status.
const ServiceName = "tenantry.api"

// Readiness is checked to drive the health status.
type Readiness interface {
	Check(ctx context.Context) error
}

// Health publishes readiness through the standard gRPC health service.
type Health struct {
	srv    *health.Server
	probe  Readiness
	logger *zap.Logger
}

func NewHealth(probe Readiness, logger *zap.Logger) *Health {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Health{srv: health.NewServer(), probe: probe, logger: logger}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Refresh runs the probe once and updates the published status.
func (h *Health) Refresh(ctx context.Context) error {
	var err error
	if h.probe != nil {
		err = h.probe.Check(ctx)
	}
	if err != nil {
		h.logger.Warn("readiness check failed", zap.Error(err))
		h.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return err
	}
	h.set(healthpb.HealthCheckResponse_SERVING)
	return nil
}

// Run refreshes the status every interval until ctx is done, then marks the
// server as shutting down.
func (h *Health) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		rctx, cancel := context.WithTimeout(ctx, interval)
		_ = h.Refresh(rctx)
		cancel()
		select {
		case <-ctx.Done():
			h.srv.Shutdown()
			return
		case <-t.C:
		}
	}
}

func (h *Health) set(s healthpb.HealthCheckResponse_ServingStatus) {
	h.srv.SetServingStatus("", s)
	h.srv.SetServingStatus(ServiceName, s)
}

// NewServer builds a gRPC server with the tenancy interceptors, the health
// service and reflection registered. Application services register on the
// returned server.
func NewServer(ic *Interceptors, h *Health, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts,
		grpc.ChainUnaryInterceptor(ic.Unary()),
		grpc.ChainStreamInterceptor(ic.Stream()),
	)
	s := grpc.NewServer(opts...)
	if h != nil {
		healthpb.RegisterHealthServer(s, h.srv)
	}
	reflection.Register(s)
	return s
}
