// Package api is the dashboard-facing HTTP surface.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/LeonardoBeccarini/soil-monitor/internal/model"
	"github.com/LeonardoBeccarini/soil-monitor/internal/services/control"
	"github.com/LeonardoBeccarini/soil-monitor/internal/services/history"
	"github.com/LeonardoBeccarini/soil-monitor/pkg/controlstore"
)

// HistoryReader is the historical read path (time-series store).
type HistoryReader interface {
	GetHistory(ctx context.Context, req history.Request) (*history.History, error)
}

// ControlWriter is the live read path and the update path (control record).
type ControlWriter interface {
	ApplyUpdate(ctx context.Context, p model.Patch) (control.Applied, error)
	Snapshot(ctx context.Context) (controlstore.Record, error)
}

type Config struct {
	// RequestTimeout bounds each handler, store calls included.
	RequestTimeout time.Duration
	// Ready backs /readyz; nil means always ready.
	Ready func(ctx context.Context) error
	// AllowOrigin is sent as Access-Control-Allow-Origin. Empty means "*".
	AllowOrigin string
}

type Server struct {
	cfg     Config
	history HistoryReader
	control ControlWriter
	log     zerolog.Logger
}

func NewServer(cfg Config, h HistoryReader, c ControlWriter, logger zerolog.Logger) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.AllowOrigin == "" {
		cfg.AllowOrigin = "*"
	}
	return &Server{cfg: cfg, history: h, control: c, log: logger}
}

// Router wires every route behind the request-id, logging and metrics middleware.
// CORS wraps the router so preflights are answered before route matching.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(requestID, s.accessLog, instrument)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/getstats", s.handleHistory).Methods(http.MethodPost)
	api.HandleFunc("/getstats", s.handleSnapshot).Methods(http.MethodGet)
	api.HandleFunc("/mode", s.handleMode).Methods(http.MethodPost)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/test", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("Hello World"))
	}).Methods(http.MethodGet)

	return cors(s.cfg.AllowOrigin, r)
}
