// Package ingest bridges device telemetry from MQTT into the time-series store.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/LeonardoBeccarini/soil-monitor/internal/metrics"
	"github.com/LeonardoBeccarini/soil-monitor/internal/model"
	"github.com/LeonardoBeccarini/soil-monitor/internal/model/messages"
	"github.com/LeonardoBeccarini/soil-monitor/pkg/broker"
	"github.com/LeonardoBeccarini/soil-monitor/pkg/dedup"
	"github.com/LeonardoBeccarini/soil-monitor/pkg/tsdb"
)

type Service struct {
	store   tsdb.Store
	seen    *dedup.Deduper
	timeout time.Duration
	now     func() time.Time
	log     zerolog.Logger
}

// NewService writes through store; seen may be nil to keep every delivery.
func NewService(store tsdb.Store, seen *dedup.Deduper, timeout time.Duration, logger zerolog.Logger) *Service {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Service{store: store, seen: seen, timeout: timeout, now: time.Now, log: logger}
}

// Start consumes until ctx ends.
func (s *Service) Start(ctx context.Context, c *broker.Consumer) error {
	c.SetHandler(func(topic string, msg mqtt.Message) error {
		return s.Handle(ctx, topic, msg.Payload())
	})
	return c.Consume(ctx)
}

// Handle decodes one payload (an object or an array of objects) and writes its readings.
// Undecodable and empty payloads are dropped, not retried. Redeliveries are recognised by
// device and normalized readings, so a payload without timestamps is never a duplicate.
func (s *Service) Handle(ctx context.Context, topic string, payload []byte) error {
	batch, err := decode(payload)
	if err != nil {
		metrics.IngestedPoints.WithLabelValues("invalid").Inc()
		s.log.Warn().Err(err).Str("topic", topic).Msg("ingest: invalid payload")
		return nil
	}

	now := s.now()
	points := make([]model.SensorReading, 0, len(batch))
	for _, m := range batch {
		r := m.Reading(now)
		switch {
		case !r.HasData():
			metrics.IngestedPoints.WithLabelValues("empty").Inc()
			continue
		case !model.Representable(r.Time):
			metrics.IngestedPoints.WithLabelValues("invalid").Inc()
			s.log.Warn().Time("timestamp", r.Time).Str("topic", topic).Msg("ingest: timestamp out of range")
			continue
		}
		points = append(points, r)
	}
	if len(points) == 0 {
		return nil
	}

	device := deviceOf(topic, batch)
	key, err := batchKey(device, points)
	if err != nil {
		return fmt.Errorf("ingest %s: %w", topic, err)
	}
	if s.seen != nil && !s.seen.ShouldProcess(key) {
		metrics.IngestedPoints.WithLabelValues("duplicate").Add(float64(len(points)))
		s.log.Debug().Str("topic", topic).Str("device", device).Msg("ingest: duplicate delivery dropped")
		return nil
	}

	wctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.store.Write(wctx, points); err != nil {
		// allow the broker's redelivery to try again
		if s.seen != nil {
			s.seen.Forget(key)
		}
		metrics.IngestedPoints.WithLabelValues("error").Add(float64(len(points)))
		return fmt.Errorf("ingest %s: %w", topic, err)
	}
	metrics.IngestedPoints.WithLabelValues("ok").Add(float64(len(points)))
	s.log.Debug().Str("topic", topic).Str("device", device).
		Int("points", len(points)).Msg("ingest: wrote readings")
	return nil
}

// batchKey identifies a batch by device, timestamps and values.
func batchKey(device string, points []model.SensorReading) (string, error) {
	entries := make([]messages.SensorData, len(points))
	for i, p := range points {
		entries[i] = messages.FromReading(device, p)
	}
	b, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("dedup key: %w", err)
	}
	return dedup.Key(b), nil
}

func decode(payload []byte) ([]messages.SensorData, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) > 0 && payload[0] == '[' {
		var batch []messages.SensorData
		if err := json.Unmarshal(payload, &batch); err != nil {
			return nil, err
		}
		return batch, nil
	}
	var one messages.SensorData
	if err := json.Unmarshal(payload, &one); err != nil {
		return nil, err
	}
	return []messages.SensorData{one}, nil
}

// deviceOf prefers the payload's device id and falls back to the last topic level.
func deviceOf(topic string, batch []messages.SensorData) string {
	if len(batch) > 0 && batch[0].DeviceID != "" {
		return batch[0].DeviceID
	}
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}
