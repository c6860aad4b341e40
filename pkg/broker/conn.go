// Package broker wraps the MQTT connection used for device telemetry.
package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	ClientID string

	MaxRetries int           // connect attempts, default 5
	MaxElapsed time.Duration // overall connect budget, default 10s
}

// Connect dials the broker with exponential backoff. The client disconnects when ctx ends.
func Connect(ctx context.Context, cfg Config, log zerolog.Logger) (mqtt.Client, error) {
	addr := fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.MaxElapsed <= 0 {
		cfg.MaxElapsed = 10 * time.Second
	}

	opts := mqtt.NewClientOptions().
		AddBroker(addr).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.User).
		SetPassword(cfg.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn().Err(err).Str("broker", addr).Msg("broker: connection lost")
		})

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = cfg.MaxElapsed

	var client mqtt.Client
	err := backoff.Retry(func() error {
		client = mqtt.NewClient(opts)
		if tok := client.Connect(); tok.Wait() && tok.Error() != nil {
			log.Warn().Err(tok.Error()).Str("broker", addr).Msg("broker: connect failed, retrying")
			return tok.Error()
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(cfg.MaxRetries-1)), ctx))
	if err != nil {
		return nil, fmt.Errorf("broker %s: no connection after retries: %w", addr, err)
	}
	log.Info().Str("broker", addr).Str("client_id", cfg.ClientID).Msg("broker: connected")

	go func() {
		<-ctx.Done()
		client.Disconnect(250)
		log.Info().Msg("broker: disconnected")
	}()
	return client, nil
}
