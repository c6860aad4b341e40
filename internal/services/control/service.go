// Package control owns the (mode, motorState) transitions of the single actuator.
package control

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/LeonardoBeccarini/soil-monitor/internal/model"
	"github.com/LeonardoBeccarini/soil-monitor/pkg/controlstore"
)

// Applied echoes the written paths back to the caller, e.g. {"/mode": "MANUAL"}.
type Applied map[string]interface{}

// Service holds no copy of the record: every call goes to the store.
type Service struct {
	store controlstore.Store
	log   zerolog.Logger
}

func NewService(store controlstore.Store, logger zerolog.Logger) *Service {
	return &Service{store: store, log: logger}
}

// ApplyUpdate writes the fields present in p and nothing else. It does not check
// whether motorState may change in the current mode; the device writes it in AUTO.
func (s *Service) ApplyUpdate(ctx context.Context, p model.Patch) (Applied, error) {
	if p.Empty() {
		return nil, fmt.Errorf("%w: no valid data received", model.ErrInvalidRequest)
	}
	if p.Mode != nil {
		m, err := model.ParseMode(string(*p.Mode))
		if err != nil {
			return nil, err
		}
		p.Mode = &m
	}

	if err := s.store.ApplyPatch(ctx, p); err != nil {
		s.log.Error().Err(err).Interface("patch", p.Fields()).Msg("control: apply patch failed")
		return nil, err
	}
	s.log.Info().Interface("patch", p.Fields()).Msg("control: state updated")
	return Applied(p.Paths()), nil
}

// GetCurrentState returns model.ErrNotFound before provisioning; callers fall back
// to model.DefaultControlState.
func (s *Service) GetCurrentState(ctx context.Context) (model.ControlState, error) {
	rec, err := s.store.Read(ctx)
	if err != nil {
		return model.ControlState{}, err
	}
	return rec.ControlState(), nil
}

// StateOrDefault is GetCurrentState with the not-provisioned case folded into the defaults.
func (s *Service) StateOrDefault(ctx context.Context) (model.ControlState, error) {
	st, err := s.GetCurrentState(ctx)
	if errors.Is(err, model.ErrNotFound) {
		return model.DefaultControlState(), nil
	}
	return st, err
}

// Snapshot is the whole record, live sensor values included.
func (s *Service) Snapshot(ctx context.Context) (controlstore.Record, error) {
	return s.store.Read(ctx)
}

// Provision writes the defaults for whichever control keys the record lacks.
// Existing values are never overwritten.
func (s *Service) Provision(ctx context.Context) error {
	rec, err := s.store.Read(ctx)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("provision: %w", err)
	}

	def := model.DefaultControlState()
	var p model.Patch
	if _, ok := rec["mode"]; !ok {
		p.Mode = &def.Mode
	}
	if _, ok := rec["motorState"]; !ok {
		p.MotorState = &def.MotorState
	}
	if p.Empty() {
		s.log.Debug().Msg("control: record already provisioned")
		return nil
	}
	if err := s.store.ApplyPatch(ctx, p); err != nil {
		return fmt.Errorf("provision: %w", err)
	}
	s.log.Info().Interface("patch", p.Fields()).Msg("control: provisioned defaults")
	return nil
}
