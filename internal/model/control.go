package model

import (
	"fmt"
	"strings"
)

// Mode selects who drives the motor.
type Mode string

const (
	ModeAuto   Mode = "AUTO"   // device decides motorState
	ModeManual Mode = "MANUAL" // operator decides motorState
)

// ParseMode accepts the two known modes, case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToUpper(strings.TrimSpace(s))) {
	case ModeAuto:
		return ModeAuto, nil
	case ModeManual:
		return ModeManual, nil
	}
	return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, s)
}

// ControlState is the shared record read by both dashboard and device.
// While Mode is AUTO, MotorState is whatever the device last wrote.
type ControlState struct {
	Mode       Mode `json:"mode"`
	MotorState bool `json:"motorState"`
}

// DefaultControlState is the provisioning default and the fallback for an absent record.
func DefaultControlState() ControlState {
	return ControlState{Mode: ModeAuto, MotorState: false}
}

// Patch carries the fields a caller wants to change. Nil means untouched.
type Patch struct {
	Mode       *Mode `json:"mode,omitempty"`
	MotorState *bool `json:"motorState,omitempty"`
}

func (p Patch) Empty() bool { return p.Mode == nil && p.MotorState == nil }

// Fields returns only the keys being changed, as stored in the control record.
func (p Patch) Fields() map[string]interface{} {
	out := make(map[string]interface{}, 2)
	if p.Mode != nil {
		out["mode"] = string(*p.Mode)
	}
	if p.MotorState != nil {
		out["motorState"] = *p.MotorState
	}
	return out
}

// Paths is the update-path form echoed back to API callers ("/mode", "/motorState").
func (p Patch) Paths() map[string]interface{} {
	out := make(map[string]interface{}, 2)
	for k, v := range p.Fields() {
		out["/"+k] = v
	}
	return out
}

// Apply merges the patch into s; untouched fields keep their value.
func (s ControlState) Apply(p Patch) ControlState {
	if p.Mode != nil {
		s.Mode = *p.Mode
	}
	if p.MotorState != nil {
		s.MotorState = *p.MotorState
	}
	return s
}

// ControlStateFromRecord extracts mode/motorState from a raw record.
// Missing or malformed keys fall back to the defaults.
func ControlStateFromRecord(rec map[string]interface{}) ControlState {
	st := DefaultControlState()
	if v, ok := rec["mode"].(string); ok {
		if m, err := ParseMode(v); err == nil {
			st.Mode = m
		}
	}
	if v, ok := rec["motorState"].(bool); ok {
		st.MotorState = v
	}
	return st
}
