package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/LeonardoBeccarini/soil-monitor/internal/config"
	"github.com/LeonardoBeccarini/soil-monitor/internal/logging"
	"github.com/LeonardoBeccarini/soil-monitor/internal/services/poller"
)

func main() {
	_ = config.LoadDotEnv()
	log := logging.New("poller", config.Getenv("LOG_LEVEL", "info"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := poller.NewClient(poller.ClientConfig{
		BaseURL:         config.Getenv("API_URL", "http://localhost:5000"),
		Timeout:         config.GetenvMs("API_TIMEOUT_MS", 3000),
		BreakerFailures: config.GetenvInt("CB_FAILS", 3),
		BreakerOpenFor:  config.GetenvMs("CB_OPEN_MS", 10000),
	}, nil)

	p := poller.New(client, config.GetenvMs("POLL_INTERVAL_MS", 3000), log,
		poller.OnUpdate(func(s poller.Snapshot) {
			motor := "OFF"
			if s.State.MotorState {
				motor = "ON"
			}
			fmt.Printf("%s mode=%s motor=%s\n", s.FetchedAt.Format("2006-01-02 15:04:05"), s.State.Mode, motor)
		}))

	if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("poller: stopped")
	}
	log.Info().Str("breaker", client.State()).Msg("poller: shutdown complete")
}
