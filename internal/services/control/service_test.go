package control

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/LeonardoBeccarini/soil-monitor/internal/model"
	"github.com/LeonardoBeccarini/soil-monitor/pkg/controlstore"
)

func mode(m model.Mode) *model.Mode { return &m }

// failingStore rejects every call with the configured error.
type failingStore struct{ err error }

func (f failingStore) Read(context.Context) (controlstore.Record, error) { return nil, f.err }
func (f failingStore) ApplyPatch(context.Context, model.Patch) error    { return f.err }

func TestApplyUpdateKeepsMotorStateOnModeSwitch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := controlstore.NewMemoryStore(controlstore.Record{"mode": "AUTO", "motorState": true})
	svc := NewService(store, zerolog.Nop())

	applied, err := svc.ApplyUpdate(ctx, model.Patch{Mode: mode(model.ModeManual)})
	if err != nil {
		t.Fatalf("ApplyUpdate failed: %v", err)
	}
	if len(applied) != 1 || applied["/mode"] != "MANUAL" {
		t.Fatalf("unexpected applied paths: %v", applied)
	}

	st, err := svc.GetCurrentState(ctx)
	if err != nil {
		t.Fatalf("GetCurrentState failed: %v", err)
	}
	if st.Mode != model.ModeManual || !st.MotorState {
		t.Fatalf("expected {MANUAL true}, got %+v", st)
	}
}

func TestApplyUpdateEmptyPatchWritesNothing(t *testing.T) {
	t.Parallel()
	store := controlstore.NewMemoryStore(controlstore.Record{"mode": "AUTO", "motorState": false})
	svc := NewService(store, zerolog.Nop())

	if _, err := svc.ApplyUpdate(context.Background(), model.Patch{}); !errors.Is(err, model.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if store.Patches() != 0 {
		t.Fatalf("empty patch must not write, got %d writes", store.Patches())
	}
}

func TestApplyUpdateRejectsUnknownMode(t *testing.T) {
	t.Parallel()
	store := controlstore.NewMemoryStore(nil)
	svc := NewService(store, zerolog.Nop())

	if _, err := svc.ApplyUpdate(context.Background(), model.Patch{Mode: mode("TURBO")}); !errors.Is(err, model.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if store.Patches() != 0 {
		t.Fatal("invalid mode must not write")
	}
}

func TestApplyUpdateNormalisesModeCase(t *testing.T) {
	t.Parallel()
	store := controlstore.NewMemoryStore(nil)
	svc := NewService(store, zerolog.Nop())

	applied, err := svc.ApplyUpdate(context.Background(), model.Patch{Mode: mode("manual")})
	if err != nil {
		t.Fatalf("ApplyUpdate failed: %v", err)
	}
	if applied["/mode"] != "MANUAL" {
		t.Fatalf("expected canonical mode, got %v", applied)
	}
}

func TestSequentialPatchesAreIndependent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := controlstore.NewMemoryStore(nil)
	svc := NewService(store, zerolog.Nop())

	on := true
	if _, err := svc.ApplyUpdate(ctx, model.Patch{MotorState: &on}); err != nil {
		t.Fatalf("ApplyUpdate failed: %v", err)
	}
	if _, err := svc.ApplyUpdate(ctx, model.Patch{Mode: mode(model.ModeAuto)}); err != nil {
		t.Fatalf("ApplyUpdate failed: %v", err)
	}
	st, err := svc.GetCurrentState(ctx)
	if err != nil {
		t.Fatalf("GetCurrentState failed: %v", err)
	}
	if st != (model.ControlState{Mode: model.ModeAuto, MotorState: true}) {
		t.Fatalf("expected {AUTO true}, got %+v", st)
	}
	if store.Patches() != 2 {
		t.Fatalf("expected one write per update, got %d", store.Patches())
	}
}

func TestConcurrentDisjointPatchesBothLand(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		store := controlstore.NewMemoryStore(controlstore.Record{"mode": "MANUAL", "motorState": true})
		svc := NewService(store, zerolog.Nop())

		off := false
		var wg sync.WaitGroup
		errs := make(chan error, 2)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := svc.ApplyUpdate(ctx, model.Patch{Mode: mode(model.ModeAuto)})
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := svc.ApplyUpdate(ctx, model.Patch{MotorState: &off})
			errs <- err
		}()
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("ApplyUpdate failed: %v", err)
			}
		}

		st, err := svc.GetCurrentState(ctx)
		if err != nil {
			t.Fatalf("GetCurrentState failed: %v", err)
		}
		if st != (model.ControlState{Mode: model.ModeAuto, MotorState: false}) {
			t.Fatalf("lost update: %+v", st)
		}
	}
}

func TestGetCurrentStateBeforeProvisioning(t *testing.T) {
	t.Parallel()
	svc := NewService(controlstore.NewMemoryStore(nil), zerolog.Nop())

	if _, err := svc.GetCurrentState(context.Background()); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	st, err := svc.StateOrDefault(context.Background())
	if err != nil {
		t.Fatalf("StateOrDefault failed: %v", err)
	}
	if st != model.DefaultControlState() {
		t.Fatalf("expected defaults, got %+v", st)
	}
}

func TestStoreFailuresPropagate(t *testing.T) {
	t.Parallel()
	cause := model.NewStoreError("patch", "stats", context.DeadlineExceeded)
	svc := NewService(failingStore{err: cause}, zerolog.Nop())

	on := true
	if _, err := svc.ApplyUpdate(context.Background(), model.Patch{MotorState: &on}); !errors.Is(err, model.ErrStoreTimeout) {
		t.Fatalf("expected ErrStoreTimeout, got %v", err)
	}
	if _, err := svc.StateOrDefault(context.Background()); !errors.Is(err, model.ErrStoreTimeout) {
		t.Fatalf("store failure must not be folded into defaults, got %v", err)
	}
}

func TestProvisionWritesOnlyMissingKeys(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	empty := controlstore.NewMemoryStore(nil)
	if err := NewService(empty, zerolog.Nop()).Provision(ctx); err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	rec, _ := empty.Read(ctx)
	if rec.ControlState() != model.DefaultControlState() || len(rec) != 2 {
		t.Fatalf("expected default record, got %v", rec)
	}

	partial := controlstore.NewMemoryStore(controlstore.Record{"mode": "MANUAL", "temperature": 20.0})
	if err := NewService(partial, zerolog.Nop()).Provision(ctx); err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	rec, _ = partial.Read(ctx)
	if rec["mode"] != "MANUAL" || rec["motorState"] != false || rec["temperature"] != 20.0 {
		t.Fatalf("existing keys must survive provisioning, got %v", rec)
	}

	full := controlstore.NewMemoryStore(controlstore.Record{"mode": "AUTO", "motorState": true})
	if err := NewService(full, zerolog.Nop()).Provision(ctx); err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	if full.Patches() != 0 {
		t.Fatal("provisioned record must not be rewritten")
	}
}
