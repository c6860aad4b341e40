package controlstore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LeonardoBeccarini/soil-monitor/internal/model"
)

// fakeRTDB emulates a single Realtime Database node.
type fakeRTDB struct {
	mu      sync.Mutex
	node    map[string]interface{}
	bodies  []map[string]interface{}
	auth    []string
	status  int
	delay   time.Duration
	handled atomic.Int32
}

func (f *fakeRTDB) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.handled.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auth = append(f.auth, r.URL.Query().Get("auth"))
	if r.URL.Path != "/stats.json" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if f.status != 0 {
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
		return
	}
	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "application/json")
		if f.node == nil {
			_, _ = w.Write([]byte("null"))
			return
		}
		_ = json.NewEncoder(w).Encode(f.node)
	case http.MethodPatch:
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.bodies = append(f.bodies, body)
		if f.node == nil {
			f.node = map[string]interface{}{}
		}
		for k, v := range body {
			f.node[k] = v
		}
		_ = json.NewEncoder(w).Encode(body)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newFirebaseTestStore(t *testing.T, fake *fakeRTDB, timeout time.Duration) *FirebaseStore {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	store, err := NewFirebaseStore(FirebaseConfig{
		URL:             srv.URL + "/",
		Path:            "/stats",
		AuthToken:       "secret",
		Timeout:         timeout,
		BreakerFailures: 2,
		BreakerOpenFor:  time.Minute,
	}, srv.Client())
	if err != nil {
		t.Fatalf("NewFirebaseStore failed: %v", err)
	}
	return store
}

func TestFirebaseReadAbsentIsNotFound(t *testing.T) {
	t.Parallel()
	fake := &fakeRTDB{}
	store := newFirebaseTestStore(t, fake, time.Second)

	for i := 0; i < 3; i++ {
		if _, err := store.Read(context.Background()); !errors.Is(err, model.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	}
	if got := store.State(); got != "closed" {
		t.Fatalf("not-found must not trip the breaker, state=%s", got)
	}
}

func TestFirebasePatchSendsOnlyChangedKeys(t *testing.T) {
	t.Parallel()
	fake := &fakeRTDB{node: map[string]interface{}{"mode": "AUTO", "motorState": true, "temperature": 21.5}}
	store := newFirebaseTestStore(t, fake, time.Second)
	ctx := context.Background()

	manual := model.ModeManual
	if err := store.ApplyPatch(ctx, model.Patch{Mode: &manual}); err != nil {
		t.Fatalf("ApplyPatch failed: %v", err)
	}

	fake.mu.Lock()
	body := fake.bodies[0]
	auth := fake.auth[0]
	fake.mu.Unlock()
	if len(body) != 1 || body["mode"] != "MANUAL" {
		t.Fatalf("expected only mode in PATCH body, got %v", body)
	}
	if auth != "secret" {
		t.Fatalf("expected auth token on request, got %q", auth)
	}

	rec, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	st := rec.ControlState()
	if st.Mode != model.ModeManual || !st.MotorState {
		t.Fatalf("sibling field clobbered: %+v", st)
	}
	if rec["temperature"] != 21.5 {
		t.Fatalf("live sensor values must be preserved, got %v", rec)
	}
}

func TestFirebaseFailuresTripBreaker(t *testing.T) {
	t.Parallel()
	fake := &fakeRTDB{status: http.StatusInternalServerError}
	store := newFirebaseTestStore(t, fake, time.Second)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := store.Read(ctx); !errors.Is(err, model.ErrStoreUnavailable) {
			t.Fatalf("expected ErrStoreUnavailable, got %v", err)
		}
	}
	before := fake.handled.Load()
	on := true
	err := store.ApplyPatch(ctx, model.Patch{MotorState: &on})
	if !errors.Is(err, model.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable with open breaker, got %v", err)
	}
	if fake.handled.Load() != before {
		t.Fatal("open breaker must not reach the upstream")
	}
}

func TestFirebaseTimeout(t *testing.T) {
	t.Parallel()
	fake := &fakeRTDB{delay: 200 * time.Millisecond}
	store := newFirebaseTestStore(t, fake, 20*time.Millisecond)

	_, err := store.Read(context.Background())
	if !errors.Is(err, model.ErrStoreTimeout) {
		t.Fatalf("expected ErrStoreTimeout, got %v", err)
	}
}

func TestFirebaseRejectsEmptyPatch(t *testing.T) {
	t.Parallel()
	fake := &fakeRTDB{}
	store := newFirebaseTestStore(t, fake, time.Second)

	if err := store.ApplyPatch(context.Background(), model.Patch{}); !errors.Is(err, model.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if fake.handled.Load() != 0 {
		t.Fatal("empty patch must not reach the store")
	}
}

func TestFirebaseMirrorFields(t *testing.T) {
	t.Parallel()
	fake := &fakeRTDB{node: map[string]interface{}{"mode": "MANUAL", "motorState": true}}
	store := newFirebaseTestStore(t, fake, time.Second)
	ctx := context.Background()

	if err := store.MirrorFields(ctx, map[string]interface{}{"temperature": 24.0, "humidity": 51.0}); err != nil {
		t.Fatalf("MirrorFields failed: %v", err)
	}
	if err := store.MirrorFields(ctx, map[string]interface{}{"motorState": false}); !errors.Is(err, model.ErrInvalidRequest) {
		t.Fatalf("control keys must be refused, got %v", err)
	}

	rec, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if rec["temperature"] != 24.0 || rec.ControlState() != (model.ControlState{Mode: model.ModeManual, MotorState: true}) {
		t.Fatalf("unexpected record %v", rec)
	}
	if fake.handled.Load() != 2 {
		t.Fatalf("refused mirror must not reach the store, handled=%d", fake.handled.Load())
	}
}
