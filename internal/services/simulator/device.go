// Package simulator plays the device: it publishes readings and drives the pump
// from the shared control record.
package simulator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/LeonardoBeccarini/soil-monitor/internal/model"
	"github.com/LeonardoBeccarini/soil-monitor/internal/model/messages"
	"github.com/LeonardoBeccarini/soil-monitor/internal/services/poller"
	"github.com/LeonardoBeccarini/soil-monitor/pkg/controlstore"
)

type Publisher interface {
	Publish(v interface{}) error
}

// Controller writes the device's motor decisions back to the shared record.
type Controller interface {
	Update(ctx context.Context, p model.Patch) (map[string]interface{}, error)
}

// Policy is the AUTO-mode hysteresis: start below OnBelow, stop above OffAbove.
type Policy struct {
	OnBelow  float64
	OffAbove float64
}

func DefaultPolicy() Policy { return Policy{OnBelow: 30, OffAbove: 60} }

func (p Policy) Decide(moisture float64, running bool) bool {
	switch {
	case moisture < p.OnBelow:
		return true
	case moisture > p.OffAbove:
		return false
	}
	return running
}

type Device struct {
	id     string
	gen    *Generator
	pub    Publisher
	ctl    Controller
	mirror controlstore.Mirror
	policy Policy
	now    func() time.Time
	log    zerolog.Logger

	mu    sync.Mutex
	state model.ControlState // last record seen by the poller
	motor bool               // actual pump state
}

func NewDevice(id string, gen *Generator, pub Publisher, ctl Controller, policy Policy, logger zerolog.Logger) *Device {
	return &Device{
		id:     id,
		gen:    gen,
		pub:    pub,
		ctl:    ctl,
		policy: policy,
		now:    time.Now,
		log:    logger,
		state:  model.DefaultControlState(),
	}
}

// WithMirror also copies each reading into the live record, as the firmware does.
func (d *Device) WithMirror(m controlstore.Mirror) *Device {
	d.mirror = m
	return d
}

// Observe takes a fresh snapshot. In MANUAL the pump follows motorState at once.
func (d *Device) Observe(s poller.Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = s.State
	if s.State.Mode == model.ModeManual && d.motor != s.State.MotorState {
		d.motor = s.State.MotorState
		d.log.Info().Bool("motor", d.motor).Msg("simulator: manual motor change")
	}
}

// Motor reports the actual pump state.
func (d *Device) Motor() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.motor
}

// Tick samples, publishes, and in AUTO decides the pump and reports the decision.
func (d *Device) Tick(ctx context.Context) error {
	d.mu.Lock()
	motor := d.motor
	d.mu.Unlock()

	r := d.gen.Next(d.now(), motor)
	if err := d.pub.Publish(messages.FromReading(d.id, r)); err != nil {
		return fmt.Errorf("publish reading: %w", err)
	}
	if d.mirror != nil {
		if err := d.mirror.MirrorFields(ctx, r.Fields()); err != nil {
			d.log.Warn().Err(err).Msg("simulator: mirror live values failed")
		}
	}

	d.mu.Lock()
	st := d.state
	if st.Mode != model.ModeAuto {
		d.mu.Unlock()
		return nil
	}
	want := d.policy.Decide(*r.SoilMoisture, d.motor)
	if want != d.motor {
		d.log.Info().Float64("soil_moisture", *r.SoilMoisture).Bool("motor", want).Msg("simulator: auto motor change")
	}
	d.motor = want
	d.mu.Unlock()

	if want == st.MotorState {
		return nil
	}
	if _, err := d.ctl.Update(ctx, model.Patch{MotorState: &want}); err != nil {
		return fmt.Errorf("report motor state: %w", err)
	}
	d.mu.Lock()
	// a snapshot taken meanwhile wins
	if d.state == st {
		d.state.MotorState = want
	}
	d.mu.Unlock()
	return nil
}

// Run ticks every interval until ctx ends. Failed ticks are logged.
func (d *Device) Run(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if err := d.Tick(ctx); err != nil && ctx.Err() == nil {
				d.log.Warn().Err(err).Msg("simulator: tick failed")
			}
		}
	}
}
