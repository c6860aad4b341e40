package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/LeonardoBeccarini/soil-monitor/internal/config"
	"github.com/LeonardoBeccarini/soil-monitor/internal/logging"
	"github.com/LeonardoBeccarini/soil-monitor/internal/services/ingest"
	"github.com/LeonardoBeccarini/soil-monitor/internal/stores"
	"github.com/LeonardoBeccarini/soil-monitor/pkg/broker"
	"github.com/LeonardoBeccarini/soil-monitor/pkg/dedup"
)

func main() {
	_ = config.LoadDotEnv()
	log := logging.New("ingest", config.Getenv("LOG_LEVEL", "info"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadStore()
	ts, err := stores.OpenTSDB(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("ingest: tsdb init failed")
	}
	defer ts.Close()

	mq := config.LoadMQTT("ingest-service")
	client, err := broker.Connect(ctx, broker.Config{
		Host:     mq.Host,
		Port:     mq.Port,
		User:     mq.User,
		Password: mq.Password,
		ClientID: mq.ClientID,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("ingest: mqtt connect failed")
	}
	consumer := broker.NewConsumer(client, mq.Topic, byte(mq.QoS), nil, log)

	seen := dedup.New(config.GetenvMs("DEDUP_TTL_MS", 600000), config.GetenvInt("DEDUP_MAX", 10000))
	svc := ingest.NewService(ts, seen, cfg.Timeout, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })
	mux.Handle("/metrics", promhttp.Handler())
	port := config.Getenv("PORT", "8081")
	srv := &http.Server{Addr: ":" + port, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("ingest: HTTP listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("ingest: http server error")
		}
	}()

	if err := svc.Start(ctx, consumer); err != nil {
		log.Error().Err(err).Msg("ingest: consumer stopped")
		stop()
	}

	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shCtx)
	log.Info().Msg("ingest: shutdown complete")
}
