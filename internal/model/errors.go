package model

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest     = errors.New("invalid request")
	ErrNotFound           = errors.New("not found")
	ErrStoreUnavailable   = errors.New("store unavailable")
	ErrStoreTimeout       = errors.New("store timeout")
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrConflict is reserved for a versioned control record; the current stores never return it.
	ErrConflict = errors.New("conflict")
)

// StoreError wraps a backing-store failure with the operation and target it hit.
// errors.Is matches both its Kind (ErrStoreUnavailable or ErrStoreTimeout) and the cause.
type StoreError struct {
	Op     string // write | query | read | patch
	Target string // bucket, window, record path...
	Kind   error
	Err    error
}

func (e *StoreError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Target, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() []error { return []error{e.Kind, e.Err} }

// NewStoreError classifies err: deadline overruns become ErrStoreTimeout, everything else ErrStoreUnavailable.
// A nil err yields nil.
func NewStoreError(op, target string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	kind := ErrStoreUnavailable
	if errors.Is(err, context.DeadlineExceeded) {
		kind = ErrStoreTimeout
	}
	return &StoreError{Op: op, Target: target, Kind: kind, Err: err}
}
