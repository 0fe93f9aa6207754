package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/fusionsync/internal/domain"
	"github.com/roach88/fusionsync/internal/payload"
)

const defaultRunsLimit = 50

// SyncDesign applies the request body as a design payload. The body is JSON
// unless the content type or ?format=yaml says YAML.
func (s *Server) SyncDesign(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(s.metrics.duration)
	defer timer.ObserveDuration()

	format, err := requestFormat(r)
	if err != nil {
		writeError(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", err.Error())
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxPayloadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
				fmt.Sprintf("payload exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "READ_FAILED", fmt.Sprintf("error reading request body: %v", err))
		return
	}

	result, err := s.engine.SyncPayload(r.Context(), data, format)
	s.metrics.observeSync(result, err)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func requestFormat(r *http.Request) (payload.Format, error) {
	switch r.URL.Query().Get("format") {
	case "yaml", "yml":
		return payload.FormatYAML, nil
	case "json":
		return payload.FormatJSON, nil
	case "":
	default:
		return "", fmt.Errorf("unknown format %q", r.URL.Query().Get("format"))
	}

	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return payload.FormatJSON, nil
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return "", fmt.Errorf("invalid content type %q: %w", ct, err)
	}
	switch mediaType {
	case "application/json", "text/json", "text/plain":
		return payload.FormatJSON, nil
	case "application/yaml", "application/x-yaml", "text/yaml", "text/x-yaml":
		return payload.FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported content type %q", mediaType)
	}
}

// UsedIn lists the assemblies containing a component revision.
func (s *Server) UsedIn(w http.ResponseWriter, r *http.Request) {
	s.metrics.queries.WithLabelValues("used_in").Inc()
	version, ok := versionParam(w, r)
	if !ok {
		return
	}
	rep, err := s.reports.UsedIn(r.Context(), chi.URLParam(r, "uuid"), version)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// BOM explodes the bill of materials below a component revision.
func (s *Server) BOM(w http.ResponseWriter, r *http.Request) {
	s.metrics.queries.WithLabelValues("bom").Inc()
	version, ok := versionParam(w, r)
	if !ok {
		return
	}
	bom, err := s.reports.Explode(r.Context(), chi.URLParam(r, "uuid"), version)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bom)
}

// VersionCount is the body of the version count endpoints.
type VersionCount struct {
	UUID     string `json:"uuid"`
	Versions int    `json:"versions"`
}

// ComponentVersions counts the stored revisions of a component.
func (s *Server) ComponentVersions(w http.ResponseWriter, r *http.Request) {
	s.metrics.queries.WithLabelValues("component_versions").Inc()
	id := chi.URLParam(r, "uuid")
	n, err := s.reports.ComponentVersionCount(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, VersionCount{UUID: id, Versions: n})
}

// DesignVersions counts the stored revisions of a design.
func (s *Server) DesignVersions(w http.ResponseWriter, r *http.Request) {
	s.metrics.queries.WithLabelValues("design_versions").Inc()
	id := chi.URLParam(r, "uuid")
	n, err := s.reports.DesignVersionCount(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, VersionCount{UUID: id, Versions: n})
}

// Stats returns record counts per kind.
func (s *Server) Stats(w http.ResponseWriter, r *http.Request) {
	s.metrics.queries.WithLabelValues("stats").Inc()
	c, err := s.reports.Counts(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Runs lists recent sync runs, newest first. ?limit=N, default 50.
func (s *Server) Runs(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "INVALID_PARAMETER", "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// RunEvents lists the audit events of one run in seq order.
func (s *Server) RunEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.store.ListEvents(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if events == nil {
		events = []domain.SyncEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// versionParam parses ?version=N. Absent means latest (0).
func versionParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("version")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		writeError(w, http.StatusBadRequest, "INVALID_PARAMETER", "version must be a positive integer")
		return 0, false
	}
	return n, true
}
