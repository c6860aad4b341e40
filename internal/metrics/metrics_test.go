package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/LeonardoBeccarini/soil-monitor/internal/model"
)

func TestOutcome(t *testing.T) {
	t.Parallel()
	cases := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{fmt.Errorf("record: %w", model.ErrNotFound), "not_found"},
		{model.NewStoreError("query", "w", context.DeadlineExceeded), "timeout"},
		{context.DeadlineExceeded, "timeout"},
		{fmt.Errorf("post: %w", context.DeadlineExceeded), "timeout"},
		{errors.New("connection refused"), "error"},
	}
	for _, tc := range cases {
		if got := Outcome(tc.err); got != tc.want {
			t.Fatalf("Outcome(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
