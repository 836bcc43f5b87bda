package handlers

import (
	"log/slog"
	"net/http"

	"github.com/lehigh-university-libraries/radtrack/internal/models"
	"github.com/lehigh-university-libraries/radtrack/internal/storage"
)

func (h *Handler) HandleReportSubmit(w http.ResponseWriter, r *http.Request) {
	if !h.methodOrError(w, r, http.MethodPost) {
		return
	}
	code, ok := h.accessCodeOrError(w, r)
	if !ok {
		return
	}
	var req models.ReportSubmitRequest
	if !h.decodeOrError(w, r, &req) {
		return
	}
	if req.CaseID == "" {
		h.writeError(w, "case_id is required", http.StatusBadRequest)
		return
	}

	log, err := h.store.RecordReport(r.Context(), storage.ReportLog{
		AccessCode:  code,
		CaseID:      req.CaseID,
		Findings:    req.Findings,
		GreenScore:  req.GreenScore,
		TimeSpentMs: req.TimeSpentMs,
	})
	if err != nil {
		h.writeError(w, "Unable to record report: "+err.Error(), http.StatusInternalServerError)
		return
	}
	h.metrics.IncReport()
	slog.Info("Recorded report", "access_code", code, "case_id", req.CaseID, "checkpoint_ms", log.TimerCheckpointMs)

	sum, err := h.reportSummary(r, code)
	if err != nil {
		h.writeError(w, "Unable to load report summary: "+err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, sum)
}
