package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/LeonardoBeccarini/soil-monitor/internal/model"
	"github.com/LeonardoBeccarini/soil-monitor/internal/services/history"
)

const maxBody = 1 << 16

// statsRequest accepts both end spellings; the dashboard sends endTimestamp.
type statsRequest struct {
	StartTimestamp string `json:"startTimestamp"`
	EndTimeStamp   string `json:"endTimeStamp"`
	EndTimestamp   string `json:"endTimestamp"`
}

func (r statsRequest) toRequest() history.Request {
	end := r.EndTimeStamp
	if end == "" {
		end = r.EndTimestamp
	}
	return history.Request{Start: r.StartTimestamp, End: end}
}

type modeRequest struct {
	Mode       *string `json:"mode"`
	MotorState *bool   `json:"motorState"`
}

func (r modeRequest) patch() model.Patch {
	var p model.Patch
	if r.Mode != nil {
		m := model.Mode(*r.Mode)
		p.Mode = &m
	}
	p.MotorState = r.MotorState
	return p
}

type modeResponse struct {
	Message string                 `json:"message"`
	Updates map[string]interface{} `json:"updates"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// POST /api/getstats
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	var req statsRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	h, err := s.history.GetHistory(ctx, req.toRequest())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

// GET /api/getstats
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	rec, err := s.control.Snapshot(ctx)
	if errors.Is(err, model.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, "No data available")
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// POST /api/mode
func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	applied, err := s.control.ApplyUpdate(ctx, req.patch())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, modeResponse{Message: "Updated successfully", Updates: applied})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
		defer cancel()
		if err := s.cfg.Ready(ctx); err != nil {
			s.log.Warn().Err(err).Msg("api: not ready")
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ready": false, "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}

// decode reads a JSON body; an empty body decodes as the zero value.
func decode(r *http.Request, out any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(out)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("%w: malformed body: %v", model.ErrInvalidRequest, err)
}

// fail maps err onto a status and logs server-side failures.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}
	switch {
	case status >= 500:
		resp = errorResponse{Error: "Internal server error!", Details: err.Error()}
		s.log.Error().Err(err).Str("path", r.URL.Path).Str("request_id", RequestID(r.Context())).Msg("api: request failed")
	case errors.Is(err, model.ErrInvalidRequest) && r.URL.Path == "/api/mode":
		resp = errorResponse{Error: "No valid data received", Details: err.Error()}
	}
	writeJSON(w, status, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusServiceUnavailable
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
