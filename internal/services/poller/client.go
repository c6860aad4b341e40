package poller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/LeonardoBeccarini/soil-monitor/internal/model"
)

// Client talks to the api service. Calls go through a circuit breaker so a dead
// backend costs one fast failure per poll instead of a full timeout.
type Client struct {
	base    string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

type ClientConfig struct {
	BaseURL         string // e.g. http://localhost:5000
	Timeout         time.Duration
	BreakerFailures int
	BreakerOpenFor  time.Duration
}

func NewClient(cfg ClientConfig, hc *http.Client) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.BreakerFailures < 1 {
		cfg.BreakerFailures = 3
	}
	if cfg.BreakerOpenFor <= 0 {
		cfg.BreakerOpenFor = 10 * time.Second
	}
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	fails := uint32(cfg.BreakerFailures)
	return &Client{
		base: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		http: hc,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "api",
			Timeout: cfg.BreakerOpenFor,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= fails
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, model.ErrNotFound) || errors.Is(err, model.ErrInvalidRequest)
			},
		}),
	}
}

// Fetch returns the live record. model.ErrNotFound means it was never provisioned.
func (c *Client) Fetch(ctx context.Context) (map[string]interface{}, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		var out map[string]interface{}
		if err := c.do(ctx, http.MethodGet, "/api/getstats", nil, &out); err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		return nil, breakerErr(err)
	}
	return res.(map[string]interface{}), nil
}

// Update sends p to /api/mode and returns the echoed update paths.
func (c *Client) Update(ctx context.Context, p model.Patch) (map[string]interface{}, error) {
	if p.Empty() {
		return nil, fmt.Errorf("%w: empty patch", model.ErrInvalidRequest)
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	res, err := c.breaker.Execute(func() (interface{}, error) {
		var out struct {
			Updates map[string]interface{} `json:"updates"`
		}
		if err := c.do(ctx, http.MethodPost, "/api/mode", body, &out); err != nil {
			return nil, err
		}
		return out.Updates, nil
	})
	if err != nil {
		return nil, breakerErr(err)
	}
	return res.(map[string]interface{}), nil
}

func breakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", model.ErrServiceUnavailable, err)
	}
	return err
}

func (c *Client) State() string { return c.breaker.State().String() }

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", model.ErrServiceUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read %s: %w", model.ErrServiceUnavailable, path, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, model.ErrNotFound)
	case resp.StatusCode == http.StatusBadRequest:
		return fmt.Errorf("%w: %s %s: %s", model.ErrInvalidRequest, method, path, bytes.TrimSpace(raw))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: %s %s -> %s", model.ErrServiceUnavailable, method, path, resp.Status)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode %s: %w", model.ErrServiceUnavailable, path, err)
	}
	return nil
}
