// Package controlstore reaches the shared record holding the device's mode and motor state.
package controlstore

import (
	"context"
	"fmt"

	"github.com/LeonardoBeccarini/soil-monitor/internal/model"
)

// Record is the raw shared record: mode, motorState and whatever live sensor values
// the device mirrors next to them.
type Record map[string]interface{}

// Store is last-writer-wins: concurrent patches touching the same key race, patches on
// disjoint keys never clobber each other.
type Store interface {
	// Read returns model.ErrNotFound when the record was never provisioned.
	Read(ctx context.Context) (Record, error)
	// ApplyPatch writes only the keys set in p, as one request.
	ApplyPatch(ctx context.Context, p model.Patch) error
}

// Mirror is implemented by stores that also hold the device's live sensor values.
// The control keys are refused there; they only change through ApplyPatch.
type Mirror interface {
	MirrorFields(ctx context.Context, fields map[string]interface{}) error
}

func checkMirror(fields map[string]interface{}) error {
	if len(fields) == 0 {
		return fmt.Errorf("%w: no fields to mirror", model.ErrInvalidRequest)
	}
	for k := range fields {
		if k == "mode" || k == "motorState" {
			return fmt.Errorf("%w: %q is a control key", model.ErrInvalidRequest, k)
		}
	}
	return nil
}

func (r Record) ControlState() model.ControlState {
	return model.ControlStateFromRecord(r)
}

func (r Record) clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
