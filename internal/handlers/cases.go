package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/lehigh-university-libraries/radtrack/internal/dataset"
	"github.com/lehigh-university-libraries/radtrack/internal/models"
	"github.com/lehigh-university-libraries/radtrack/internal/scoring"
	"github.com/lehigh-university-libraries/radtrack/internal/storage"
)

// errNoGroundTruth means a case arrived without counts and cannot be graded here.
var errNoGroundTruth = errors.New("no ground truth for case")

func (h *Handler) HandleCompleteCase(w http.ResponseWriter, r *http.Request) {
	if !h.methodOrError(w, r, http.MethodPost) {
		return
	}
	code, ok := h.accessCodeOrError(w, r)
	if !ok {
		return
	}
	var req models.CompleteCaseRequest
	if !h.decodeOrError(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	correct, incorrect, err := h.caseCounts(req)
	if err != nil {
		h.writeError(w, "Cannot grade case "+req.CaseID+": "+err.Error(), http.StatusUnprocessableEntity)
		return
	}

	log, err := h.store.RecordCase(r.Context(), storage.CaseLog{
		AccessCode:     code,
		CaseID:         req.CaseID,
		Selections:     req.Selections,
		TimeSpentMs:    req.TimeSpentMs,
		CorrectCount:   correct,
		IncorrectCount: incorrect,
	})
	if err != nil {
		h.writeError(w, "Unable to record case: "+err.Error(), http.StatusInternalServerError)
		return
	}
	h.metrics.ObserveCase(correct, incorrect, time.Duration(req.TimeSpentMs)*time.Millisecond)
	slog.Info("Recorded case", "access_code", code, "case_id", req.CaseID,
		"correct", correct, "incorrect", incorrect, "checkpoint_ms", log.TimerCheckpointMs)

	sum, err := h.progressSummary(r, code)
	if err != nil {
		h.writeError(w, "Unable to load progress summary: "+err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, sum)
}

// caseCounts prefers the client's counts and otherwise grades the submission
// against the loaded ground truth.
func (h *Handler) caseCounts(req models.CompleteCaseRequest) (int, int, error) {
	if req.CorrectCount != nil && req.IncorrectCount != nil {
		return max(*req.CorrectCount, 0), max(*req.IncorrectCount, 0), nil
	}
	if h.truth == nil {
		return 0, 0, errNoGroundTruth
	}
	gt, ok := h.truth.Get(req.CaseID)
	if !ok {
		return 0, 0, errNoGroundTruth
	}
	score := scoring.ScoreCase(h.labels, scoring.Canvas{Width: 1, Height: 1}, gt, submissionFromRequest(h.labels, req))
	return score.Counts.Correct, score.Counts.Incorrect, nil
}

// submissionFromRequest rebuilds a Submission from normalized box records.
func submissionFromRequest(labels scoring.Labels, req models.CompleteCaseRequest) scoring.Submission {
	records := req.Selections.UserBoxes
	if len(records) == 0 {
		records = req.Metadata.BoundingBoxes.UserSubmission
	}
	sub := scoring.Submission{Selections: map[string]bool{}}
	for _, rec := range records {
		sub.Boxes = append(sub.Boxes, scoring.UserBox{
			LabelIndex: labels.Index(rec.Label),
			Rect:       scoring.RectFromCoords(rec.Coordinates),
		})
	}
	selections := req.Selections.Nonlocalizable
	if len(selections) == 0 {
		selections = req.Metadata.NonlocalizableSelections
	}
	for label, on := range selections {
		sub.Selections[label] = on
	}
	return sub
}

func (h *Handler) HandleCheckpoint(w http.ResponseWriter, r *http.Request) {
	if !h.methodOrError(w, r, http.MethodPost) {
		return
	}
	code, ok := h.accessCodeOrError(w, r)
	if !ok {
		return
	}
	var req models.CheckpointRequest
	if !h.decodeOrError(w, r, &req) {
		return
	}
	ms, err := h.store.UpdateLatestCheckpoint(r.Context(), code, req.TimerCheckpointMs)
	if errors.Is(err, storage.ErrNoCase) {
		h.writeError(w, "No case found to checkpoint", http.StatusNotFound)
		return
	}
	if err != nil {
		h.writeError(w, "Unable to store checkpoint: "+err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, models.CheckpointResponse{Status: "ok", TimerCheckpointMs: ms})
}

func (h *Handler) HandleCaseLogs(w http.ResponseWriter, r *http.Request) {
	if !h.methodOrError(w, r, http.MethodGet) {
		return
	}
	code, ok := h.accessCodeOrError(w, r)
	if !ok {
		return
	}
	logs, err := h.store.ListCaseLogs(r.Context(), code)
	if err != nil {
		h.writeError(w, "Unable to list case logs: "+err.Error(), http.StatusInternalServerError)
		return
	}
	rows, err := dataset.CaseLogRows(logs)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, rows)
}
