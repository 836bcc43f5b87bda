package handlers

import (
	"log/slog"
	"net/http"

	"github.com/lehigh-university-libraries/radtrack/internal/models"
	"github.com/lehigh-university-libraries/radtrack/internal/timer"
)

// Snapshot kinds stored per access code
const (
	KindSnapshot  = "snapshot"
	KindHeartbeat = "heartbeat"
)

func (h *Handler) progressSummary(r *http.Request, code string) (models.ProgressSummary, error) {
	sum, err := h.store.ProgressSummary(r.Context(), code)
	if err != nil {
		return sum, err
	}
	sum.TotalTimeFormatted = timer.FormatMs(sum.TotalTimeMs)
	sum.RunID = h.runID
	return sum, nil
}

func (h *Handler) reportSummary(r *http.Request, code string) (models.ReportSummary, error) {
	sum, err := h.store.ReportSummary(r.Context(), code)
	if err != nil {
		return sum, err
	}
	sum.TotalTimeFormatted = timer.FormatMs(sum.TotalTimeMs)
	sum.RunID = h.runID
	return sum, nil
}

func (h *Handler) HandleProgressSummary(w http.ResponseWriter, r *http.Request) {
	if !h.methodOrError(w, r, http.MethodGet) {
		return
	}
	code, ok := h.accessCodeOrError(w, r)
	if !ok {
		return
	}
	sum, err := h.progressSummary(r, code)
	if err != nil {
		h.writeError(w, "Unable to load progress summary: "+err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, sum)
}

func (h *Handler) HandleReportSummary(w http.ResponseWriter, r *http.Request) {
	if !h.methodOrError(w, r, http.MethodGet) {
		return
	}
	code, ok := h.accessCodeOrError(w, r)
	if !ok {
		return
	}
	sum, err := h.reportSummary(r, code)
	if err != nil {
		h.writeError(w, "Unable to load report summary: "+err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, sum)
}

// HandleSnapshot stores the latest client progress under kind.
func (h *Handler) HandleSnapshot(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.methodOrError(w, r, http.MethodPost) {
			return
		}
		code, ok := h.accessCodeOrError(w, r)
		if !ok {
			return
		}
		var req models.SnapshotRequest
		if !h.decodeOrError(w, r, &req) {
			return
		}
		if err := h.store.RecordSnapshot(r.Context(), code, kind, req.Metadata); err != nil {
			h.writeError(w, "Unable to store snapshot: "+err.Error(), http.StatusInternalServerError)
			return
		}
		h.metrics.IncSnapshot(kind)
		slog.Debug("Stored progress snapshot", "kind", kind, "access_code", code,
			"cases", req.Metadata.CaseCount, "elapsed_ms", req.Metadata.ElapsedMs)
		h.writeJSON(w, models.StatusResponse{Status: "ok"})
	}
}
