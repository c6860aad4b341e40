// Package tsdb adapts the time-series backends holding the sensor stream.
package tsdb

import (
	"context"

	"github.com/LeonardoBeccarini/soil-monitor/internal/model"
)

// Store appends readings and serves bounded range queries.
type Store interface {
	// Write stores points one at a time. On failure the remaining points are
	// skipped and nothing already written is rolled back.
	Write(ctx context.Context, points []model.SensorReading) error
	// Query returns readings with Start <= time <= End that carry at least one
	// monitored field, in ascending time order.
	Query(ctx context.Context, w model.TimeWindow) (Rows, error)
	Close() error
}

// Rows is a single-pass iterator over query results.
//
//	for rows.Next() { r := rows.Reading() }
//	if err := rows.Err(); err != nil { ... }
type Rows interface {
	Next() bool
	Reading() model.SensorReading
	Err() error
	Close() error
}

// Collect drains rows into a slice and closes it.
func Collect(rows Rows) ([]model.SensorReading, error) {
	defer rows.Close()
	var out []model.SensorReading
	for rows.Next() {
		out = append(out, rows.Reading())
	}
	return out, rows.Err()
}
