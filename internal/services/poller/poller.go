// Package poller keeps a periodically refreshed copy of the control record, the way
// the dashboard and the device converge on the shared state.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/LeonardoBeccarini/soil-monitor/internal/model"
)

// DefaultInterval matches the dashboard's refresh rate.
const DefaultInterval = 3 * time.Second

// Fetcher returns the live record; model.ErrNotFound before provisioning.
type Fetcher interface {
	Fetch(ctx context.Context) (map[string]interface{}, error)
}

// Ticker is the part of time.Ticker the loop needs, so tests can step it.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ *time.Ticker }

func (t realTicker) C() <-chan time.Time { return t.Ticker.C }

// Snapshot is one successful poll.
type Snapshot struct {
	State       model.ControlState
	Raw         map[string]interface{}
	Provisioned bool
	FetchedAt   time.Time
}

type Poller struct {
	fetch     Fetcher
	interval  time.Duration
	newTicker func(time.Duration) Ticker
	now       func() time.Time
	onUpdate  func(Snapshot)
	log       zerolog.Logger

	mu     sync.RWMutex
	latest Snapshot
	has    bool
}

type Option func(*Poller)

func WithTicker(f func(time.Duration) Ticker) Option { return func(p *Poller) { p.newTicker = f } }

// OnUpdate is called after every successful poll, from the polling goroutine.
func OnUpdate(f func(Snapshot)) Option { return func(p *Poller) { p.onUpdate = f } }

func New(f Fetcher, interval time.Duration, logger zerolog.Logger, opts ...Option) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	p := &Poller{
		fetch:     f,
		interval:  interval,
		newTicker: func(d time.Duration) Ticker { return realTicker{time.NewTicker(d)} },
		now:       time.Now,
		log:       logger,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run polls immediately and then on every tick until ctx is done. A failed poll
// is logged and the previous snapshot is kept.
func (p *Poller) Run(ctx context.Context) error {
	t := p.newTicker(p.interval)
	defer t.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C():
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	if err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
		p.log.Warn().Err(err).Msg("poller: fetch failed, keeping last snapshot")
	}
}

// PollOnce fetches the record once. An unprovisioned record yields the defaults.
func (p *Poller) PollOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.interval)
	defer cancel()

	raw, err := p.fetch.Fetch(ctx)
	snap := Snapshot{FetchedAt: p.now(), Provisioned: true}
	switch {
	case errors.Is(err, model.ErrNotFound):
		snap.State = model.DefaultControlState()
		snap.Provisioned = false
	case err != nil:
		return err
	default:
		snap.Raw = raw
		snap.State = model.ControlStateFromRecord(raw)
	}

	p.mu.Lock()
	changed := !p.has || p.latest.State != snap.State
	p.latest, p.has = snap, true
	p.mu.Unlock()

	if changed {
		p.log.Info().Str("mode", string(snap.State.Mode)).Bool("motor", snap.State.MotorState).
			Bool("provisioned", snap.Provisioned).Msg("poller: state changed")
	}
	if p.onUpdate != nil {
		p.onUpdate(snap)
	}
	return nil
}

// Latest is the last successful snapshot; false until the first one.
func (p *Poller) Latest() (Snapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest, p.has
}
