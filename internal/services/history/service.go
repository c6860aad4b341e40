// Package history answers time-window queries over the sensor stream.
package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/LeonardoBeccarini/soil-monitor/internal/model"
	"github.com/LeonardoBeccarini/soil-monitor/pkg/tsdb"
)

// Request is the raw window as received from the dashboard. End may be empty.
type Request struct {
	Start string
	End   string
}

type Service struct {
	store tsdb.Store
	log   zerolog.Logger
	now   func() time.Time
}

func NewService(store tsdb.Store, logger zerolog.Logger) *Service {
	return &Service{store: store, log: logger, now: time.Now}
}

// GetHistory validates the window, streams the matching rows and reshapes them.
// On a store failure it returns ErrServiceUnavailable together with the rows already
// collected; it never retries.
func (s *Service) GetHistory(ctx context.Context, req Request) (*History, error) {
	w, err := s.Window(req)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	out := NewHistory()
	rows, err := s.store.Query(ctx, w)
	if err != nil {
		s.log.Error().Err(err).Stringer("window", w).Msg("history: query failed")
		return out, fmt.Errorf("%w: %w", model.ErrServiceUnavailable, err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			s.log.Warn().Err(cerr).Msg("history: close rows")
		}
	}()

	for rows.Next() {
		r := rows.Reading()
		out.Set(TimeKey(r.Time), EntryFromReading(r))
	}
	if err := rows.Err(); err != nil {
		s.log.Error().Err(err).Stringer("window", w).Int("rows", out.Len()).Msg("history: stream interrupted")
		return out, fmt.Errorf("%w: %w", model.ErrServiceUnavailable, err)
	}

	s.log.Debug().Stringer("window", w).Int("rows", out.Len()).
		Dur("took", time.Since(started)).Msg("history: query completed")
	return out, nil
}

// Window parses the request. A missing End means now, captured once here.
func (s *Service) Window(req Request) (model.TimeWindow, error) {
	if strings.TrimSpace(req.Start) == "" {
		return model.TimeWindow{}, fmt.Errorf("%w: startTimestamp is required", model.ErrInvalidRequest)
	}
	start, err := ParseTimestamp(req.Start)
	if err != nil {
		return model.TimeWindow{}, fmt.Errorf("%w: invalid startTimestamp: %v", model.ErrInvalidRequest, err)
	}
	end := s.now()
	if strings.TrimSpace(req.End) != "" {
		if end, err = ParseTimestamp(req.End); err != nil {
			return model.TimeWindow{}, fmt.Errorf("%w: invalid endTimeStamp: %v", model.ErrInvalidRequest, err)
		}
	}
	return model.NewTimeWindow(start, end)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05Z",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05.000Z",
	"2006-01-02",
}

// ParseTimestamp accepts ISO-8601 and the store-native "YYYY-MM-DD HH:MM:SS" form.
// Values without a zone are UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.New("unable to parse timestamp: " + s)
}
