package controlstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/LeonardoBeccarini/soil-monitor/internal/model"
)

// MemoryStore keeps the record in process. It stands in for the hosted database in
// local runs and tests; it is the store itself, not a cache in front of one.
type MemoryStore struct {
	mu      sync.Mutex
	rec     Record
	patches int
}

// NewMemoryStore starts with initial, or with no record when initial is nil.
func NewMemoryStore(initial Record) *MemoryStore {
	m := &MemoryStore{}
	if initial != nil {
		m.rec = initial.clone()
	}
	return m
}

func (m *MemoryStore) Read(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, model.NewStoreError("read", "memory", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rec == nil {
		return nil, fmt.Errorf("control record: %w", model.ErrNotFound)
	}
	return m.rec.clone(), nil
}

func (m *MemoryStore) ApplyPatch(ctx context.Context, p model.Patch) error {
	if p.Empty() {
		return fmt.Errorf("%w: empty patch", model.ErrInvalidRequest)
	}
	if err := ctx.Err(); err != nil {
		return model.NewStoreError("patch", "memory", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rec == nil {
		m.rec = Record{}
	}
	for k, v := range p.Fields() {
		m.rec[k] = v
	}
	m.patches++
	return nil
}

func (m *MemoryStore) MirrorFields(ctx context.Context, fields map[string]interface{}) error {
	if err := checkMirror(fields); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return model.NewStoreError("mirror", "memory", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rec == nil {
		m.rec = Record{}
	}
	for k, v := range fields {
		m.rec[k] = v
	}
	return nil
}

// Set writes an arbitrary key, the way the device mirrors live sensor values.
func (m *MemoryStore) Set(key string, v interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rec == nil {
		m.rec = Record{}
	}
	m.rec[key] = v
}

// Patches counts successful ApplyPatch calls.
func (m *MemoryStore) Patches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.patches
}
