package controlstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/LeonardoBeccarini/soil-monitor/internal/metrics"
	"github.com/LeonardoBeccarini/soil-monitor/internal/model"
)

// FirebaseConfig addresses a node of a Firebase Realtime Database through its REST API.
type FirebaseConfig struct {
	URL       string // e.g. https://<db>.asia-southeast1.firebasedatabase.app
	Path      string // record node, default "stats"
	AuthToken string // optional, sent as ?auth=
	Timeout   time.Duration

	BreakerFailures int
	BreakerOpenFor  time.Duration
}

type FirebaseStore struct {
	endpoint string
	path     string
	http     *http.Client
	timeout  time.Duration
	breaker  *gobreaker.CircuitBreaker
}

func NewFirebaseStore(cfg FirebaseConfig, client *http.Client) (*FirebaseStore, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if base == "" {
		return nil, fmt.Errorf("firebase url is empty")
	}
	path := strings.Trim(strings.TrimSpace(cfg.Path), "/")
	if path == "" {
		path = "stats"
	}
	endpoint := base + "/" + path + ".json"
	if cfg.AuthToken != "" {
		endpoint += "?" + url.Values{"auth": {cfg.AuthToken}}.Encode()
	}
	if client == nil {
		client = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.BreakerFailures < 1 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerOpenFor <= 0 {
		cfg.BreakerOpenFor = 10 * time.Second
	}
	fails := uint32(cfg.BreakerFailures)
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "control-store",
		Timeout: cfg.BreakerOpenFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= fails
		},
		// an unprovisioned record is an answer, not an outage
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, model.ErrNotFound)
		},
	})
	return &FirebaseStore{endpoint: endpoint, path: path, http: client, timeout: cfg.Timeout, breaker: cb}, nil
}

func (s *FirebaseStore) Read(ctx context.Context) (rec Record, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStore("firebase", "read", start, err) }()

	res, err := s.breaker.Execute(func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
		if err != nil {
			return nil, err
		}
		body, err := s.do(req)
		if err != nil {
			return nil, err
		}
		var v interface{}
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, fmt.Errorf("decode error: %w", err)
		}
		if v == nil {
			return nil, model.ErrNotFound
		}
		m, ok := v.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("unexpected record type %T", v)
		}
		return Record(m), nil
	})
	if errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("control record %q: %w", s.path, model.ErrNotFound)
	}
	if err != nil {
		return nil, model.NewStoreError("read", s.path, err)
	}
	return res.(Record), nil
}

func (s *FirebaseStore) ApplyPatch(ctx context.Context, p model.Patch) error {
	if p.Empty() {
		return fmt.Errorf("%w: empty patch", model.ErrInvalidRequest)
	}
	return s.patch(ctx, "patch", p.Fields())
}

func (s *FirebaseStore) MirrorFields(ctx context.Context, fields map[string]interface{}) error {
	if err := checkMirror(fields); err != nil {
		return err
	}
	return s.patch(ctx, "mirror", fields)
}

func (s *FirebaseStore) patch(ctx context.Context, op string, fields map[string]interface{}) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveStore("firebase", op, start, err) }()

	payload, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	_, err = s.breaker.Execute(func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPatch, s.endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		_, err = s.do(req)
		return nil, err
	})
	return model.NewStoreError(op, s.path, err)
}

// State reports the breaker state for health output.
func (s *FirebaseStore) State() string { return s.breaker.State().String() }

func (s *FirebaseStore) do(req *http.Request) ([]byte, error) {
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("upstream status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
