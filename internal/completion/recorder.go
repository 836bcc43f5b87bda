// Package completion turns a graded case into a completion payload and drives
// the advance-to-next-case checkpoint protocol.
package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/lehigh-university-libraries/radtrack/internal/history"
	"github.com/lehigh-university-libraries/radtrack/internal/localstore"
	"github.com/lehigh-university-libraries/radtrack/internal/models"
	"github.com/lehigh-university-libraries/radtrack/internal/reconcile"
	"github.com/lehigh-university-libraries/radtrack/internal/scoring"
	"github.com/lehigh-university-libraries/radtrack/internal/timer"
)

// ErrAlreadySubmitted is returned when a case is completed twice without an
// Advance in between.
var ErrAlreadySubmitted = errors.New("case already submitted; advance to the next case first")

// Totals are the cumulative counters after a case.
type Totals struct {
	Correct   int64
	Incorrect int64
	Cases     int64
}

// Record is the outcome of CompleteCase.
type Record struct {
	CaseID  string
	Score   scoring.CaseScore
	Totals  Totals
	Request models.CompleteCaseRequest
}

// Recorder completes cases for the localization domain.
type Recorder struct {
	labels scoring.Labels
	canvas scoring.Canvas
	ns     *localstore.Namespace
	timer  *timer.State
	agent  *reconcile.Agent
	clock  clockwork.Clock
	reload func(context.Context) error

	mu      sync.Mutex
	pending chan error
	last    *Record
}

// Option configures a Recorder.
type Option func(*Recorder)

func WithClock(c clockwork.Clock) Option {
	return func(r *Recorder) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithReload sets the hook run as the last step of Advance.
func WithReload(fn func(context.Context) error) Option {
	return func(r *Recorder) { r.reload = fn }
}

func New(labels scoring.Labels, canvas scoring.Canvas, ns *localstore.Namespace, t *timer.State, agent *reconcile.Agent, opts ...Option) *Recorder {
	r := &Recorder{
		labels: labels,
		canvas: canvas,
		ns:     ns,
		timer:  t,
		agent:  agent,
		clock:  clockwork.NewRealClock(),
		reload: func(context.Context) error { return nil },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Last returns the most recent record, or nil.
func (r *Recorder) Last() *Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// CompleteCase grades the submission, folds it into the cumulative counters
// and the recent-history ring, pushes a snapshot and starts sending the
// completion payload. Advance waits for that send.
func (r *Recorder) CompleteCase(ctx context.Context, gt scoring.GroundTruth, sub scoring.Submission) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last != nil {
		return nil, ErrAlreadySubmitted
	}
	if gt.CaseID == "" {
		return nil, fmt.Errorf("case id is required")
	}

	score := scoring.ScoreCase(r.labels, r.canvas, gt, sub)
	totals := Totals{
		Correct:   max(r.ns.Int(localstore.FieldCorrect), 0) + int64(score.Counts.Correct),
		Incorrect: max(r.ns.Int(localstore.FieldIncorrect), 0) + int64(score.Counts.Incorrect),
		Cases:     max(r.ns.Int(localstore.FieldCases), 0) + 1,
	}
	if err := r.saveTotals(totals); err != nil {
		return nil, err
	}

	ring := history.Load[history.CaseEntry](r.ns, localstore.FieldRecentCases)
	ring.Push(history.CaseEntry{
		Correct:   score.Counts.Correct,
		Incorrect: score.Counts.Incorrect,
		Timestamp: r.clock.Now().UnixMilli(),
	})
	if err := history.Save(r.ns, localstore.FieldRecentCases, ring); err != nil {
		return nil, fmt.Errorf("failed to save recent cases: %w", err)
	}

	r.agent.PushSnapshot(ctx, 0, models.RouteSnapshot)

	req := r.buildRequest(gt, sub, score, totals)
	rec := &Record{CaseID: gt.CaseID, Score: score, Totals: totals, Request: req}
	r.last = rec

	// the send is not cancelled with the caller
	pending := make(chan error, 1)
	r.pending = pending
	go func() {
		pending <- r.agent.PushCompletion(context.WithoutCancel(ctx), req)
	}()

	slog.Info("Case completed",
		"case_id", gt.CaseID,
		"correct", score.Counts.Correct,
		"incorrect", score.Counts.Incorrect,
		"total_cases", totals.Cases)
	return rec, nil
}

func (r *Recorder) saveTotals(t Totals) error {
	for field, v := range map[string]int64{
		localstore.FieldCorrect:   t.Correct,
		localstore.FieldIncorrect: t.Incorrect,
		localstore.FieldCases:     t.Cases,
	} {
		if err := r.ns.SetInt(field, v); err != nil {
			return fmt.Errorf("failed to save totals: %w", err)
		}
	}
	return nil
}

func (r *Recorder) buildRequest(gt scoring.GroundTruth, sub scoring.Submission, score scoring.CaseScore, totals Totals) models.CompleteCaseRequest {
	window := r.timer.WindowElapsed()
	userBoxes := r.userBoxRecords(sub.Boxes)
	selections := make(map[string]bool, len(r.labels.Nonlocalizable))
	for _, label := range r.labels.Nonlocalizable {
		if sub.Selections[label] {
			selections[label] = true
		}
	}

	correct, incorrect := score.Counts.Correct, score.Counts.Incorrect
	return models.CompleteCaseRequest{
		CaseID: gt.CaseID,
		Metadata: models.CaseMetadata{
			IsCorrect:            correct > incorrect,
			CurrentCorrect:       correct,
			CurrentIncorrect:     incorrect,
			TotalCorrect:         totals.Correct,
			TotalIncorrect:       totals.Incorrect,
			TotalCases:           totals.Cases,
			ImagesProcessed:      r.agent.Snapshot(0).ImagesProcessed,
			SessionTimeMs:        window.Milliseconds(),
			SessionTimeFormatted: timer.Format(window),
			BoundingBoxes: models.BoundingBoxes{
				GroundTruth:    groundTruthRecords(gt),
				UserSubmission: userBoxes,
			},
			NonlocalizableSelections: selections,
			ImageID:                  gt.ImageID,
		},
		Selections: models.Selections{
			Nonlocalizable:         selections,
			UserBoxes:              userBoxes,
			LocalizeSelectedLabels: selectedLabels(userBoxes),
		},
		TimeSpentMs:    window.Milliseconds(),
		CorrectCount:   &correct,
		IncorrectCount: &incorrect,
	}
}

func (r *Recorder) userBoxRecords(boxes []scoring.UserBox) []models.BoxRecord {
	out := make([]models.BoxRecord, 0, len(boxes))
	for _, b := range boxes {
		label := "Unknown"
		if b.LabelIndex >= 0 && b.LabelIndex < len(r.labels.Localizable) {
			label = r.labels.Localizable[b.LabelIndex]
		}
		out = append(out, models.BoxRecord{
			Label:       label,
			Coordinates: b.Rect.Canonical().Normalize(r.canvas).Coords(),
		})
	}
	return out
}

func groundTruthRecords(gt scoring.GroundTruth) []models.BoxRecord {
	labels := make([]string, 0, len(gt.Boxes))
	for label := range gt.Boxes {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	out := []models.BoxRecord{}
	for _, label := range labels {
		for _, rect := range gt.Boxes[label] {
			out = append(out, models.BoxRecord{Label: label, Coordinates: rect.Coords()})
		}
	}
	return out
}

func selectedLabels(boxes []models.BoxRecord) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, b := range boxes {
		if !seen[b.Label] {
			seen[b.Label] = true
			out = append(out, b.Label)
		}
	}
	return out
}
