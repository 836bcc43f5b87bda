package models

import "fmt"

// ProgressSnapshot is the cumulative progress the client reports to the server
type ProgressSnapshot struct {
	CorrectCount    int64 `json:"total_correct"`
	IncorrectCount  int64 `json:"total_incorrect"`
	CaseCount       int64 `json:"total_cases"`
	ImagesProcessed int64 `json:"images_processed"`
	ElapsedMs       int64 `json:"session_time_ms"`
	// ElapsedFormatted is ElapsedMs rendered as HH:MM:SS
	ElapsedFormatted string `json:"session_time_formatted"`
}

// SnapshotRequest is the body of /api/progress/snapshot and /api/progress/heartbeat
type SnapshotRequest struct {
	Metadata ProgressSnapshot `json:"metadata"`
}

// ProgressSummary is returned by GET /api/progress/summary (localization domain)
type ProgressSummary struct {
	CorrectCases          int64  `json:"correct_cases"`
	IncorrectCases        int64  `json:"incorrect_cases"`
	ImagesTotal           int64  `json:"images_total"`
	CasesTotal            int64  `json:"cases_total"`
	TotalTimeMs           int64  `json:"total_time_ms"`
	TotalTimeFormatted    string `json:"total_time_formatted"`
	LastTimerCheckpointMs int64  `json:"last_timer_checkpoint_ms"`
	RunID                 string `json:"run_id,omitempty"`
}

// Normalize clamps negative counters to zero. Missing fields already decode as zero.
func (s *ProgressSummary) Normalize() {
	s.CorrectCases = nonNegative(s.CorrectCases)
	s.IncorrectCases = nonNegative(s.IncorrectCases)
	s.ImagesTotal = nonNegative(s.ImagesTotal)
	s.CasesTotal = nonNegative(s.CasesTotal)
	s.TotalTimeMs = nonNegative(s.TotalTimeMs)
	s.LastTimerCheckpointMs = nonNegative(s.LastTimerCheckpointMs)
}

// ReportSummary is returned by GET /api/report/summary (report domain)
type ReportSummary struct {
	ReportCasesCompleted  int64    `json:"report_cases_completed"`
	AvgGreenScore         *float64 `json:"avg_green_score"` // null until a graded report exists
	TotalTimeMs           int64    `json:"total_time_ms"`
	TotalTimeFormatted    string   `json:"total_time_formatted"`
	LastTimerCheckpointMs int64    `json:"last_timer_checkpoint_ms"`
	RunID                 string   `json:"run_id,omitempty"`
}

// Normalize clamps negative counters to zero.
func (s *ReportSummary) Normalize() {
	s.ReportCasesCompleted = nonNegative(s.ReportCasesCompleted)
	s.TotalTimeMs = nonNegative(s.TotalTimeMs)
	s.LastTimerCheckpointMs = nonNegative(s.LastTimerCheckpointMs)
}

// BoxRecord is a labelled box in normalized [0,1] image coordinates
type BoxRecord struct {
	Label       string     `json:"label"`
	Coordinates [4]float64 `json:"coordinates"`
}

// BoundingBoxes pairs the ground truth with what the user drew
type BoundingBoxes struct {
	GroundTruth    []BoxRecord `json:"ground_truth"`
	UserSubmission []BoxRecord `json:"user_submission"`
}

// CaseMetadata is the metadata block of a completion payload
type CaseMetadata struct {
	IsCorrect                bool            `json:"is_correct"`
	CurrentCorrect           int             `json:"current_correct"`
	CurrentIncorrect         int             `json:"current_incorrect"`
	TotalCorrect             int64           `json:"total_correct"`
	TotalIncorrect           int64           `json:"total_incorrect"`
	TotalCases               int64           `json:"total_cases"`
	ImagesProcessed          int64           `json:"images_processed"`
	SessionTimeMs            int64           `json:"session_time_ms"`
	SessionTimeFormatted     string          `json:"session_time_formatted"`
	BoundingBoxes            BoundingBoxes   `json:"bounding_boxes"`
	NonlocalizableSelections map[string]bool `json:"nonlocalizable_selections"`
	ImageID                  string          `json:"image_id"`
}

// Selections is the per-case selection state stored by the server
type Selections struct {
	Nonlocalizable         map[string]bool `json:"nonlocalizable"`
	UserBoxes              []BoxRecord     `json:"user_boxes"`
	LocalizeSelectedLabels []string        `json:"localize_selected_labels"`
}

// CompleteCaseRequest is the body of POST /api/complete_case
type CompleteCaseRequest struct {
	CaseID         string       `json:"case_id"`
	Metadata       CaseMetadata `json:"metadata"`
	Selections     Selections   `json:"selections"`
	TimeSpentMs    int64        `json:"time_spent_ms"`
	CorrectCount   *int         `json:"correct_count,omitempty"`
	IncorrectCount *int         `json:"incorrect_count,omitempty"`
}

// Validate checks the fields the server cannot default
func (r *CompleteCaseRequest) Validate() error {
	if r.CaseID == "" {
		return fmt.Errorf("case_id is required")
	}
	if r.TimeSpentMs < 0 {
		r.TimeSpentMs = 0
	}
	return nil
}

// CheckpointRequest is the body of POST /api/user_timer_checkpoint
type CheckpointRequest struct {
	TimerCheckpointMs int64 `json:"timer_checkpoint_ms"`
}

// CheckpointResponse acknowledges a stored checkpoint
type CheckpointResponse struct {
	Status            string `json:"status"`
	TimerCheckpointMs int64  `json:"timer_checkpoint_ms"`
}

// ReportSubmitRequest is the body of POST /api/report/submit
type ReportSubmitRequest struct {
	CaseID      string   `json:"case_id"`
	Findings    string   `json:"findings"`
	TimeSpentMs int64    `json:"time_spent_ms"`
	GreenScore  *float64 `json:"green_score,omitempty"`
}

// StatusResponse is the generic acknowledgement body
type StatusResponse struct {
	Status string `json:"status"`
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
