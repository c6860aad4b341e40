package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/LeonardoBeccarini/soil-monitor/internal/config"
	"github.com/LeonardoBeccarini/soil-monitor/internal/logging"
	"github.com/LeonardoBeccarini/soil-monitor/internal/services/poller"
	"github.com/LeonardoBeccarini/soil-monitor/internal/services/simulator"
	"github.com/LeonardoBeccarini/soil-monitor/internal/stores"
	"github.com/LeonardoBeccarini/soil-monitor/pkg/broker"
	"github.com/LeonardoBeccarini/soil-monitor/pkg/controlstore"
)

func main() {
	_ = config.LoadDotEnv()
	log := logging.New("simulator", config.Getenv("LOG_LEVEL", "info"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deviceID := config.Getenv("DEVICE_ID", "sensor-1")
	mq := config.LoadMQTT("simulator-" + deviceID)
	client, err := broker.Connect(ctx, broker.Config{
		Host:     mq.Host,
		Port:     mq.Port,
		User:     mq.User,
		Password: mq.Password,
		ClientID: mq.ClientID,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("simulator: mqtt connect failed")
	}
	pub := broker.NewPublisher(client, config.Getenv("MQTT_PUB_TOPIC", "sensor/readings/"+deviceID), byte(mq.QoS))

	api := poller.NewClient(poller.ClientConfig{
		BaseURL:         config.Getenv("API_URL", "http://localhost:5000"),
		Timeout:         config.GetenvMs("API_TIMEOUT_MS", 3000),
		BreakerFailures: config.GetenvInt("CB_FAILS", 3),
		BreakerOpenFor:  config.GetenvMs("CB_OPEN_MS", 10000),
	}, nil)

	gen := simulator.NewGenerator(float64(config.GetenvInt("SIM_SEED_MOISTURE", 45)), 0.2, nil)
	dev := simulator.NewDevice(deviceID, gen, pub, api, simulator.Policy{
		OnBelow:  float64(config.GetenvInt("AUTO_ON_BELOW", 30)),
		OffAbove: float64(config.GetenvInt("AUTO_OFF_ABOVE", 60)),
	}, log)

	if config.GetenvBool("MIRROR_LIVE", false) {
		cs, err := stores.OpenControl(config.LoadStore(), log)
		if err != nil {
			log.Fatal().Err(err).Msg("simulator: control store init failed")
		}
		m, ok := cs.(controlstore.Mirror)
		if !ok {
			log.Fatal().Msg("simulator: control store cannot mirror live values")
		}
		dev.WithMirror(m)
	}

	p := poller.New(api, config.GetenvMs("POLL_INTERVAL_MS", 3000), log, poller.OnUpdate(dev.Observe))
	go func() {
		if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("simulator: poller stopped")
		}
	}()

	log.Info().Str("device", deviceID).Str("topic", pub.Topic()).Msg("simulator: running")
	if err := dev.Run(ctx, config.GetenvMs("SIM_INTERVAL_MS", 5000)); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("simulator: stopped")
	}
	log.Info().Msg("simulator: shutdown complete")
}
