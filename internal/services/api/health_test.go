package api

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/LeonardoBeccarini/soil-monitor/internal/model"
)

func TestHealthFollowsReadiness(t *testing.T) {
	t.Parallel()
	var down atomic.Bool
	h := NewHealth(func(context.Context) error {
		if down.Load() {
			return model.ErrStoreUnavailable
		}
		return nil
	}, time.Second, zerolog.Nop())
	ctx := context.Background()

	if st, _ := h.Check(ctx, HealthService); st != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING before the first probe, got %s", st)
	}
	h.Probe(ctx)
	if st, _ := h.Check(ctx, HealthService); st != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %s", st)
	}
	down.Store(true)
	h.Probe(ctx)
	if st, _ := h.Check(ctx, ""); st != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING, got %s", st)
	}
}

func TestHealthOverGRPC(t *testing.T) {
	t.Parallel()
	h := NewHealth(nil, time.Second, zerolog.Nop())
	h.Probe(context.Background())

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	gs, _ := h.Serve(lis)
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: HealthService})
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %s", resp.GetStatus())
	}
}
