package model

import (
	"fmt"
	"math"
	"time"
)

// The instants a store can hold as int64 nanoseconds since the epoch.
var (
	MinTime = time.Unix(0, math.MinInt64).UTC()
	MaxTime = time.Unix(0, math.MaxInt64).UTC()
)

// Representable reports whether t fits in int64 nanoseconds.
func Representable(t time.Time) bool {
	return !t.Before(MinTime) && !t.After(MaxTime)
}

// TimeWindow bounds a history query. Both ends are inclusive.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

func NewTimeWindow(start, end time.Time) (TimeWindow, error) {
	if start.After(end) {
		return TimeWindow{}, fmt.Errorf("%w: start %s is after end %s",
			ErrInvalidRequest, start.UTC().Format(time.RFC3339Nano), end.UTC().Format(time.RFC3339Nano))
	}
	return TimeWindow{Start: start, End: end}, nil
}

func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Clamp narrows the window to the representable range. Nothing outside it can be stored,
// so the clamped window selects the same readings.
func (w TimeWindow) Clamp() TimeWindow {
	if w.Start.Before(MinTime) {
		w.Start = MinTime
	}
	if w.End.After(MaxTime) {
		w.End = MaxTime
	}
	return w
}

func (w TimeWindow) String() string {
	return fmt.Sprintf("[%s, %s]", w.Start.UTC().Format(time.RFC3339Nano), w.End.UTC().Format(time.RFC3339Nano))
}
