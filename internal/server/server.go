// Package server exposes design sync and the read-only reports over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/fusionsync/internal/domain"
	"github.com/roach88/fusionsync/internal/reconcile"
	"github.com/roach88/fusionsync/internal/report"
)

// DefaultMaxPayloadBytes bounds a sync request body.
const DefaultMaxPayloadBytes = 10 << 20

// Server serves the HTTP API.
type Server struct {
	engine  *reconcile.Engine
	store   domain.Store
	reports *report.Reader
	metrics *metrics
	logger  *slog.Logger

	maxPayloadBytes int64
	maxBOMLines     int
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger for request and error logs.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMaxPayloadBytes bounds sync request bodies.
func WithMaxPayloadBytes(n int64) Option {
	return func(s *Server) { s.maxPayloadBytes = n }
}

// WithMaxBOMLines bounds bill of materials responses. n <= 0 means
// unlimited.
func WithMaxBOMLines(n int) Option {
	return func(s *Server) { s.maxBOMLines = n }
}

// New creates a Server that syncs through engine and reads from store.
func New(engine *reconcile.Engine, store domain.Store, opts ...Option) *Server {
	s := &Server{
		engine:          engine,
		store:           store,
		metrics:         newMetrics(),
		logger:          slog.Default(),
		maxPayloadBytes: DefaultMaxPayloadBytes,
		maxBOMLines:     report.DefaultMaxBOMLines,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.reports = report.New(store, report.WithMaxBOMLines(s.maxBOMLines))
	return s
}

// Routes builds the router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  slog.NewLogLogger(s.logger.Handler(), slog.LevelInfo),
		NoColor: true,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/designs/sync", s.SyncDesign)
		r.Get("/designs/{uuid}/versions", s.DesignVersions)

		r.Route("/components/{uuid}", func(r chi.Router) {
			r.Get("/used-in", s.UsedIn)
			r.Get("/bom", s.BOM)
			r.Get("/versions", s.ComponentVersions)
		})

		r.Get("/stats", s.Stats)
		r.Get("/runs", s.Runs)
		r.Get("/runs/{id}/events", s.RunEvents)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))

	return r
}

// ErrorBody is the JSON body of every non-2xx response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Identifier string `json:"identifier,omitempty"`
	Retryable  bool   `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("error serializing response body", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorBody{Error: ErrorDetail{Code: code, Message: message}})
}

// writeFailure maps err to a status code and writes it.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	var se *reconcile.SyncError
	switch {
	case errors.As(err, &se):
		writeJSON(w, statusOf(se.Code), ErrorBody{Error: ErrorDetail{
			Code:       string(se.Code),
			Message:    se.Message,
			Identifier: se.Identifier,
			Retryable:  reconcile.IsRetryable(se),
		}})
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, report.ErrCycle):
		writeError(w, http.StatusConflict, "CORRUPT_GRAPH", err.Error())
	case errors.Is(err, report.ErrTooLarge):
		writeError(w, http.StatusUnprocessableEntity, "BOM_TOO_LARGE", err.Error())
	case errors.Is(err, report.ErrQuantityOverflow):
		writeError(w, http.StatusUnprocessableEntity, "QUANTITY_OVERFLOW", err.Error())
	case r.Context().Err() != nil:
		writeError(w, http.StatusServiceUnavailable, "CANCELLED", err.Error())
	default:
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

// statusOf maps sync error codes to HTTP status codes.
func statusOf(code reconcile.ErrorCode) int {
	switch {
	case code == reconcile.CodeMalformedPayload:
		return http.StatusBadRequest
	case code == reconcile.CodeConflict:
		return http.StatusConflict
	case code.IsValidation():
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
