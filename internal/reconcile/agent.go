// Package reconcile keeps the local counters and timer approximately in step
// with the server-of-record. Every network call is best-effort; nothing here is
// retried except by the next natural heartbeat or snapshot.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"

	"github.com/lehigh-university-libraries/radtrack/internal/localstore"
	"github.com/lehigh-university-libraries/radtrack/internal/models"
	"github.com/lehigh-university-libraries/radtrack/internal/timer"
)

// Summary is the server's view of one domain, merged from the progress and
// report summary shapes.
type Summary struct {
	Correct          int64
	Incorrect        int64
	Images           int64
	Cases            int64
	AvgGreenScore    *float64
	TotalTimeMs      int64
	LastCheckpointMs int64
	RunID            string
}

func summaryFromProgress(p models.ProgressSummary) Summary {
	p.Normalize()
	return Summary{
		Correct:          p.CorrectCases,
		Incorrect:        p.IncorrectCases,
		Images:           p.ImagesTotal,
		Cases:            p.CasesTotal,
		TotalTimeMs:      p.TotalTimeMs,
		LastCheckpointMs: p.LastTimerCheckpointMs,
		RunID:            p.RunID,
	}
}

func summaryFromReport(r models.ReportSummary) Summary {
	r.Normalize()
	return Summary{
		Cases:            r.ReportCasesCompleted,
		AvgGreenScore:    r.AvgGreenScore,
		TotalTimeMs:      r.TotalTimeMs,
		LastCheckpointMs: r.LastTimerCheckpointMs,
		RunID:            r.RunID,
	}
}

// Agent reconciles one domain.
type Agent struct {
	ns        *localstore.Namespace
	timer     *timer.State
	transport Transport
	clock     clockwork.Clock

	mu      sync.RWMutex
	summary *Summary
	visible bool

	hbMu      sync.Mutex
	scheduler gocron.Scheduler
	interval  time.Duration
	hbEnabled bool
}

// Option configures an Agent.
type Option func(*Agent)

// WithClock sets the clock the heartbeat scheduler runs on.
func WithClock(c clockwork.Clock) Option {
	return func(a *Agent) {
		if c != nil {
			a.clock = c
		}
	}
}

// NewAgent builds an agent for the domain of ns. The page starts visible.
func NewAgent(ns *localstore.Namespace, t *timer.State, transport Transport, opts ...Option) *Agent {
	a := &Agent{
		ns:        ns,
		timer:     t,
		transport: transport,
		clock:     clockwork.NewRealClock(),
		visible:   true,
		interval:  DefaultHeartbeatInterval,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Agent) Domain() localstore.Domain { return a.ns.Domain() }

// Cached returns the last successfully fetched summary.
func (a *Agent) Cached() (Summary, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.summary == nil {
		return Summary{}, false
	}
	return *a.summary, true
}

func (a *Agent) summaryRoute() string {
	if a.ns.Domain() == localstore.DomainReport {
		return models.RouteReportSummary
	}
	return models.RouteProgressSummary
}

func (a *Agent) fetch(ctx context.Context) (Summary, error) {
	if a.ns.Domain() == localstore.DomainReport {
		var r models.ReportSummary
		if err := a.transport.GetJSON(ctx, models.RouteReportSummary, &r); err != nil {
			return Summary{}, err
		}
		return summaryFromReport(r), nil
	}
	var p models.ProgressSummary
	if err := a.transport.GetJSON(ctx, models.RouteProgressSummary, &p); err != nil {
		return Summary{}, err
	}
	return summaryFromProgress(p), nil
}

// RefreshSummary updates the cached summary only. On failure the previous
// cache stays in place.
func (a *Agent) RefreshSummary(ctx context.Context) error {
	s, err := a.fetch(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh %s: %w", a.summaryRoute(), err)
	}
	a.setCached(s)
	return nil
}

// StoreSummary caches a summary returned by another call, such as the body of
// a completion response.
func (a *Agent) StoreSummary(p models.ProgressSummary) {
	a.setCached(summaryFromProgress(p))
}

func (a *Agent) setCached(s Summary) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.summary = &s
}

// PullSummary fetches the server summary and merges it into local state: a new
// run id resets the namespace, the server checkpoint becomes the timer base
// (zero when the server has none) and the local image counter is raised to the
// server's total, never lowered, then pushed back as a snapshot. A manual
// pause survives the merge.
func (a *Agent) PullSummary(ctx context.Context) (Summary, error) {
	s, err := a.fetch(ctx)
	if err != nil {
		cached, _ := a.Cached()
		return cached, fmt.Errorf("failed to pull %s: %w", a.summaryRoute(), err)
	}
	a.setCached(s)

	reset, err := a.ns.EnsureRun(s.RunID)
	if err != nil {
		return s, err
	}
	if reset {
		slog.Info("Server run changed, starting a fresh session", "domain", a.ns.Domain(), "run_id", s.RunID)
		if err := a.timer.ResetNamespace(); err != nil {
			return s, err
		}
	}

	before := a.timer.Snapshot()
	base := time.Duration(s.LastCheckpointMs) * time.Millisecond
	if _, err := a.timer.CheckpointTo(base); err != nil {
		return s, err
	}
	if before.Paused && before.ManualPause {
		if err := a.timer.Pause(); err != nil {
			return s, err
		}
	}

	if a.tracksProgress() {
		if local := a.ns.Int(localstore.FieldImages); s.Images > local {
			if err := a.ns.SetInt(localstore.FieldImages, s.Images); err != nil {
				return s, fmt.Errorf("failed to sync image counter: %w", err)
			}
		}
		// let the server see the merged client counters right away
		a.PushSnapshot(ctx, 0, models.RouteSnapshot)
	}
	return s, nil
}

// Snapshot builds the progress snapshot from local state. A positive
// imagesOverride replaces the local image counter; the result is never below
// the cached server total.
func (a *Agent) Snapshot(imagesOverride int64) models.ProgressSnapshot {
	images := a.ns.Int(localstore.FieldImages)
	if imagesOverride > 0 {
		images = imagesOverride
	}
	if cached, ok := a.Cached(); ok && cached.Images > images {
		images = cached.Images
	}

	elapsed := a.timer.Elapsed()
	return models.ProgressSnapshot{
		CorrectCount:     max(a.ns.Int(localstore.FieldCorrect), 0),
		IncorrectCount:   max(a.ns.Int(localstore.FieldIncorrect), 0),
		CaseCount:        max(a.ns.Int(localstore.FieldCases), 0),
		ImagesProcessed:  max(images, 0),
		ElapsedMs:        elapsed.Milliseconds(),
		ElapsedFormatted: timer.Format(elapsed),
	}
}

// tracksProgress reports whether this agent owns the counters carried by the
// progress snapshot. Only the localization domain does.
func (a *Agent) tracksProgress() bool {
	return a.ns.Domain() == localstore.DomainLocalization
}

// PushSnapshot sends the current snapshot to endpoint. Failures are logged and
// swallowed. It is a no-op outside the localization domain.
func (a *Agent) PushSnapshot(ctx context.Context, imagesOverride int64, endpoint string) {
	if !a.tracksProgress() {
		return
	}
	req := models.SnapshotRequest{Metadata: a.Snapshot(imagesOverride)}
	if err := a.transport.PostJSON(ctx, endpoint, req, nil); err != nil {
		slog.Warn("Unable to push progress snapshot", "endpoint", endpoint, "err", err)
	}
}

// PushSnapshotBeacon sends the same payload as PushSnapshot through the
// unload-safe beacon. It never blocks.
func (a *Agent) PushSnapshotBeacon(imagesOverride int64, endpoint string) {
	if !a.tracksProgress() {
		return
	}
	a.transport.Beacon(endpoint, models.SnapshotRequest{Metadata: a.Snapshot(imagesOverride)})
}

// PushCheckpoint records ms as the server's timer checkpoint.
func (a *Agent) PushCheckpoint(ctx context.Context, ms int64) error {
	var resp models.CheckpointResponse
	if err := a.transport.PostJSON(ctx, models.RouteCheckpoint, models.CheckpointRequest{TimerCheckpointMs: ms}, &resp); err != nil {
		return fmt.Errorf("failed to push timer checkpoint: %w", err)
	}
	return nil
}

// PushCompletion sends a completed case and caches the summary it returns.
func (a *Agent) PushCompletion(ctx context.Context, req models.CompleteCaseRequest) error {
	var summary models.ProgressSummary
	if err := a.transport.PostJSON(ctx, models.RouteCompleteCase, req, &summary); err != nil {
		return fmt.Errorf("failed to push completed case: %w", err)
	}
	a.StoreSummary(summary)
	return nil
}

// PushReport sends a submitted report and caches the report summary it returns.
func (a *Agent) PushReport(ctx context.Context, req models.ReportSubmitRequest) error {
	var summary models.ReportSummary
	if err := a.transport.PostJSON(ctx, models.RouteReportSubmit, req, &summary); err != nil {
		return fmt.Errorf("failed to push report: %w", err)
	}
	a.setCached(summaryFromReport(summary))
	return nil
}
