// Package stores builds the configured backends once per process.
package stores

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/rs/zerolog"

	"github.com/LeonardoBeccarini/soil-monitor/internal/config"
	"github.com/LeonardoBeccarini/soil-monitor/internal/model"
	"github.com/LeonardoBeccarini/soil-monitor/pkg/controlstore"
	"github.com/LeonardoBeccarini/soil-monitor/pkg/tsdb"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// OpenTSDB returns the time-series backend selected by cfg.TSDBDriver.
func OpenTSDB(cfg config.Store, log zerolog.Logger) (tsdb.Store, error) {
	switch cfg.TSDBDriver {
	case "influx":
		client := influxdb2.NewClient(cfg.InfluxURL, cfg.InfluxToken)
		store, err := tsdb.NewInfluxStore(client, tsdb.InfluxConfig{
			URL:         cfg.InfluxURL,
			Token:       cfg.InfluxToken,
			Org:         cfg.InfluxOrg,
			Bucket:      cfg.InfluxBucket,
			Measurement: cfg.InfluxMeasurement,
		}, cfg.Timeout)
		if err != nil {
			client.Close()
			return nil, err
		}
		log.Info().Str("url", cfg.InfluxURL).Str("bucket", cfg.InfluxBucket).Msg("tsdb: influx ready")
		return store, nil
	case "sqlite":
		store, err := tsdb.OpenSQLite(cfg.SQLitePath, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", cfg.SQLitePath).Msg("tsdb: sqlite ready")
		return store, nil
	}
	return nil, fmt.Errorf("unknown TSDB_DRIVER %q", cfg.TSDBDriver)
}

// OpenControl returns the control-record backend selected by cfg.ControlStore.
func OpenControl(cfg config.Store, log zerolog.Logger) (controlstore.Store, error) {
	switch cfg.ControlStore {
	case "firebase":
		store, err := controlstore.NewFirebaseStore(controlstore.FirebaseConfig{
			URL:             cfg.FirebaseURL,
			Path:            cfg.ControlPath,
			AuthToken:       cfg.FirebaseAuth,
			Timeout:         cfg.Timeout,
			BreakerFailures: cfg.BreakerFailures,
			BreakerOpenFor:  cfg.BreakerOpenFor,
		}, &http.Client{})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", cfg.ControlPath).Msg("control: firebase ready")
		return store, nil
	case "memory":
		log.Warn().Msg("control: using in-process record, state is lost on restart")
		return controlstore.NewMemoryStore(nil), nil
	}
	return nil, fmt.Errorf("unknown CONTROL_STORE %q", cfg.ControlStore)
}

// Ready checks both stores. An unprovisioned control record still counts as reachable.
func Ready(ctx context.Context, ts tsdb.Store, cs controlstore.Store) error {
	if p, ok := ts.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("tsdb: %w", err)
		}
	}
	if _, err := cs.Read(ctx); err != nil && !errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("control store: %w", err)
	}
	return nil
}
