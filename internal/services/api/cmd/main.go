package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/LeonardoBeccarini/soil-monitor/internal/config"
	"github.com/LeonardoBeccarini/soil-monitor/internal/logging"
	"github.com/LeonardoBeccarini/soil-monitor/internal/services/api"
	"github.com/LeonardoBeccarini/soil-monitor/internal/services/control"
	"github.com/LeonardoBeccarini/soil-monitor/internal/services/history"
	"github.com/LeonardoBeccarini/soil-monitor/internal/stores"
)

func main() {
	dotenvErr := config.LoadDotEnv()
	log := logging.New("api", config.Getenv("LOG_LEVEL", "info"))
	if dotenvErr != nil {
		log.Warn().Err(dotenvErr).Msg("api: .env ignored")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadStore()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("api: invalid configuration")
	}

	ts, err := stores.OpenTSDB(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("api: tsdb init failed")
	}
	defer ts.Close()
	cs, err := stores.OpenControl(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("api: control store init failed")
	}

	ctl := control.NewService(cs, log)
	if config.GetenvBool("PROVISION_CONTROL_STATE", false) {
		pctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		if err := ctl.Provision(pctx); err != nil {
			log.Error().Err(err).Msg("api: provisioning failed, continuing")
		}
		cancel()
	}

	ready := func(ctx context.Context) error { return stores.Ready(ctx, ts, cs) }
	srv := api.NewServer(api.Config{
		RequestTimeout: config.GetenvMs("REQUEST_TIMEOUT_MS", 10000),
		AllowOrigin:    config.Getenv("CORS_ORIGIN", "*"),
		Ready:          ready,
	}, history.NewService(ts, log), ctl, log)

	port := config.Getenv("PORT", "5000")
	httpSrv := &http.Server{
		Addr:              ":" + port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", httpSrv.Addr).Msg("api: HTTP listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("api: http server error")
			stop()
		}
	}()

	if gp := config.Getenv("GRPC_HEALTH_PORT", ""); gp != "" {
		lis, err := net.Listen("tcp", ":"+gp)
		if err != nil {
			log.Fatal().Err(err).Str("port", gp).Msg("api: health listen failed")
		}
		h := api.NewHealth(ready, config.GetenvMs("HEALTH_PERIOD_MS", 10000), log)
		gs, errc := h.Serve(lis)
		go h.Watch(ctx)
		go func() {
			if err := <-errc; err != nil {
				log.Error().Err(err).Msg("api: gRPC health stopped")
			}
		}()
		defer gs.GracefulStop()
	}

	<-ctx.Done()
	stop()

	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shCtx); err != nil {
		log.Warn().Err(err).Msg("api: shutdown")
	}
	log.Info().Msg("api: shutdown complete")
}
