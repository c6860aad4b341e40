// Package metrics holds the Prometheus collectors shared by the soil-monitor services.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/LeonardoBeccarini/soil-monitor/internal/model"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "soilmonitor",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status code.",
	}, []string{"route", "code"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "soilmonitor",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	StoreDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "soilmonitor",
		Name:      "store_operation_duration_seconds",
		Help:      "Backing store latency by store, operation and outcome.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"store", "op", "outcome"})

	IngestedPoints = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "soilmonitor",
		Name:      "ingested_points_total",
		Help:      "Readings handled by the ingestion bridge by result.",
	}, []string{"result"})
)

// ObserveStore records one store call started at start.
func ObserveStore(store, op string, start time.Time, err error) {
	StoreDuration.WithLabelValues(store, op, Outcome(err)).Observe(time.Since(start).Seconds())
}

// Outcome maps an error to a low-cardinality label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrStoreTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
