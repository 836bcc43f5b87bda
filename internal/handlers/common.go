package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/lehigh-university-libraries/radtrack/internal/dataset"
	"github.com/lehigh-university-libraries/radtrack/internal/metrics"
	"github.com/lehigh-university-libraries/radtrack/internal/models"
	"github.com/lehigh-university-libraries/radtrack/internal/scoring"
	"github.com/lehigh-university-libraries/radtrack/internal/storage"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	store   *storage.Store
	truth   *dataset.Set
	labels  scoring.Labels
	metrics *metrics.Recorder
	runID   string
}

type Option func(*Handler)

// WithGroundTruth enables server-side grading of cases posted without counts.
func WithGroundTruth(set *dataset.Set) Option {
	return func(h *Handler) { h.truth = set }
}

func WithLabels(labels scoring.Labels) Option {
	return func(h *Handler) { h.labels = labels }
}

func WithMetrics(rec *metrics.Recorder) Option {
	return func(h *Handler) { h.metrics = rec }
}

// WithRunID fixes the run id instead of generating one per server start.
func WithRunID(id string) Option {
	return func(h *Handler) { h.runID = id }
}

func New(store *storage.Store, opts ...Option) *Handler {
	h := &Handler{
		store:  store,
		labels: scoring.DefaultLabels(),
		runID:  uuid.NewString(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RunID identifies this server run. Clients reset their local state when it changes.
func (h *Handler) RunID() string {
	return h.runID
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	if code >= http.StatusInternalServerError {
		slog.Error(message)
	} else {
		slog.Debug(message, "code", code)
	}
	http.Error(w, message, code)
}

// Request helpers
func (h *Handler) accessCodeOrError(w http.ResponseWriter, r *http.Request) (string, bool) {
	code := strings.TrimSpace(r.Header.Get(models.AccessCodeHeader))
	if code == "" {
		h.writeError(w, "Missing access code", http.StatusUnauthorized)
		return "", false
	}
	return code, true
}

func (h *Handler) decodeOrError(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) methodOrError(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}
