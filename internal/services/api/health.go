package api

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the gRPC service name reported next to the overall status.
const HealthService = "soilmonitor.api"

// Health exposes store readiness over the standard gRPC health protocol.
type Health struct {
	srv    *health.Server
	ready  func(ctx context.Context) error
	period time.Duration
	log    zerolog.Logger
}

func NewHealth(ready func(ctx context.Context) error, period time.Duration, logger zerolog.Logger) *Health {
	if period <= 0 {
		period = 10 * time.Second
	}
	srv := health.NewServer()
	srv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	srv.SetServingStatus(HealthService, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Health{srv: srv, ready: ready, period: period, log: logger}
}

// Probe runs one readiness check and publishes the result.
func (h *Health) Probe(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if h.ready != nil {
		cctx, cancel := context.WithTimeout(ctx, h.period)
		err := h.ready(cctx)
		cancel()
		if err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			h.log.Warn().Err(err).Msg("health: not serving")
		}
	}
	h.srv.SetServingStatus("", status)
	h.srv.SetServingStatus(HealthService, status)
}

// Watch probes every period until ctx ends, then marks everything NOT_SERVING.
func (h *Health) Watch(ctx context.Context) {
	h.Probe(ctx)
	t := time.NewTicker(h.period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			h.srv.Shutdown()
			return
		case <-t.C:
			h.Probe(ctx)
		}
	}
}

// Serve registers the health service on a fresh gRPC server bound to lis.
func (h *Health) Serve(lis net.Listener) (*grpc.Server, <-chan error) {
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, h.srv)
	errc := make(chan error, 1)
	go func() {
		h.log.Info().Str("addr", lis.Addr().String()).Msg("health: gRPC listening")
		errc <- gs.Serve(lis)
	}()
	return gs, errc
}

func (h *Health) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := h.srv.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}
