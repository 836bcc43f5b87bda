// Package tracker models one page lifetime of the annotation client: Open is a
// page load, Close is the unload.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lehigh-university-libraries/radtrack/internal/completion"
	"github.com/lehigh-university-libraries/radtrack/internal/config"
	"github.com/lehigh-university-libraries/radtrack/internal/history"
	"github.com/lehigh-university-libraries/radtrack/internal/localstore"
	"github.com/lehigh-university-libraries/radtrack/internal/models"
	"github.com/lehigh-university-libraries/radtrack/internal/reconcile"
	"github.com/lehigh-university-libraries/radtrack/internal/scoring"
	"github.com/lehigh-university-libraries/radtrack/internal/timer"
)

const drainTimeout = 3 * time.Second

// ErrWrongDomain is returned when an operation belongs to the other domain.
var ErrWrongDomain = errors.New("operation not available in this domain")

type Option func(*Tracker)

func WithClock(c clockwork.Clock) Option {
	return func(t *Tracker) { t.clock = c }
}

// WithStore uses store instead of opening the SQLite state file. The caller
// keeps ownership of it.
func WithStore(store localstore.KeyedStore) Option {
	return func(t *Tracker) { t.store = store }
}

// WithTransport replaces the HTTP transport built from the config.
func WithTransport(tr reconcile.Transport) Option {
	return func(t *Tracker) { t.transport = tr }
}

func WithDomain(d localstore.Domain) Option {
	return func(t *Tracker) { t.domain = d }
}

// Tracker wires the timer, agent and recorder of one domain.
type Tracker struct {
	cfg       config.Config
	domain    localstore.Domain
	clock     clockwork.Clock
	store     localstore.KeyedStore
	closer    io.Closer
	transport reconcile.Transport

	ns       *localstore.Namespace
	timer    *timer.State
	agent    *reconcile.Agent
	recorder *completion.Recorder

	closeOnce sync.Once
}

// Open performs a page load: local state is initialized, a navigation pause is
// folded back (report domain) and the server summary is pulled. A failed pull
// is logged and the tracker keeps working from local state.
func Open(ctx context.Context, cfg config.Config, opts ...Option) (*Tracker, error) {
	t := &Tracker{
		cfg:   cfg,
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(t)
	}

	if t.store == nil {
		store, err := localstore.OpenSQLite(cfg.StatePath)
		if err != nil {
			return nil, err
		}
		t.store = store
		t.closer = store
	}
	if t.transport == nil {
		t.transport = reconcile.NewHTTPTransport(cfg.ServerURL, cfg.AccessCode, cfg.HTTPTimeout())
	}

	t.ns = localstore.NewNamespace(t.store, t.domain, cfg.AccessCode)
	t.timer = timer.New(t.ns, t.clock)
	t.agent = reconcile.NewAgent(t.ns, t.timer, t.transport, reconcile.WithClock(t.clock))
	if t.domain == localstore.DomainLocalization {
		t.recorder = completion.New(cfg.Labels, cfg.Canvas, t.ns, t.timer, t.agent,
			completion.WithClock(t.clock),
			completion.WithReload(t.load))
	}

	if err := t.load(ctx); err != nil {
		_ = t.closeStore()
		return nil, err
	}
	return t, nil
}

// load is the page-load sequence, also run as the reload after an advance.
func (t *Tracker) load(ctx context.Context) error {
	if err := t.timer.Init(); err != nil {
		return err
	}
	if t.domain == localstore.DomainReport {
		resumed, err := t.timer.RestoreOnLoad()
		if err != nil {
			return err
		}
		if resumed {
			slog.Debug("Resumed report timer after navigation")
		}
	}
	if _, err := t.agent.PullSummary(ctx); err != nil {
		slog.Warn("Unable to pull server summary, using local state", "domain", t.domain, "err", err)
	}
	return nil
}

// Close performs the page unload: one beacon flush, nothing awaited except
// letting queued beacons leave the process.
func (t *Tracker) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.agent.StopHeartbeat()
		if t.domain == localstore.DomainReport {
			if perr := t.timer.PauseForNavigation(); perr != nil {
				slog.Warn("Unable to pause report timer on unload", "err", perr)
			}
		}
		t.agent.PushSnapshotBeacon(0, models.RouteSnapshot)
		if d, ok := t.transport.(interface{ Drain(time.Duration) }); ok {
			d.Drain(drainTimeout)
		}
		err = t.closeStore()
	})
	return err
}

func (t *Tracker) closeStore() error {
	if t.closer == nil {
		return nil
	}
	if err := t.closer.Close(); err != nil {
		return fmt.Errorf("failed to close state store: %w", err)
	}
	return nil
}

func (t *Tracker) Domain() localstore.Domain { return t.domain }
func (t *Tracker) Timer() *timer.State       { return t.timer }
func (t *Tracker) Agent() *reconcile.Agent   { return t.agent }

// Recorder is nil in the report domain.
func (t *Tracker) Recorder() *completion.Recorder { return t.recorder }

func (t *Tracker) Pause() error  { return t.timer.Pause() }
func (t *Tracker) Resume() error { return t.timer.Resume() }

// Sync pulls the server summary and merges it into local state.
func (t *Tracker) Sync(ctx context.Context) (reconcile.Summary, error) {
	return t.agent.PullSummary(ctx)
}

// Watch keeps the page open with the heartbeat running until ctx is done.
func (t *Tracker) Watch(ctx context.Context) error {
	if err := t.agent.StartHeartbeat(t.cfg.HeartbeatInterval()); err != nil {
		return err
	}
	defer t.agent.StopHeartbeat()
	<-ctx.Done()
	return nil
}

// Submit completes a localization case and advances to the next one.
func (t *Tracker) Submit(ctx context.Context, gt scoring.GroundTruth, sub scoring.Submission) (*completion.Record, error) {
	if t.recorder == nil {
		return nil, ErrWrongDomain
	}
	rec, err := t.recorder.CompleteCase(ctx, gt, sub)
	if err != nil {
		return nil, err
	}
	if err := t.recorder.Advance(ctx); err != nil {
		return rec, err
	}
	return rec, nil
}

// SubmitReport records a report with the current window as its time. green is
// the GREEN score in [0,1], nil when ungraded. The local timer folds only after
// the server has the report.
func (t *Tracker) SubmitReport(ctx context.Context, caseID, findings string, green *float64) error {
	if t.domain != localstore.DomainReport {
		return ErrWrongDomain
	}
	if caseID == "" {
		return fmt.Errorf("case id is required")
	}
	req := models.ReportSubmitRequest{
		CaseID:      caseID,
		Findings:    findings,
		TimeSpentMs: t.timer.WindowElapsed().Milliseconds(),
		GreenScore:  green,
	}
	if err := t.agent.PushReport(ctx, req); err != nil {
		slog.Warn("Report was not saved, continuing", "case_id", caseID, "err", err)
	}

	if green != nil {
		ring := history.Load[history.ReportEntry](t.ns, localstore.FieldRecentScores)
		ring.Push(history.ReportEntry{Green: *green * 100, Timestamp: t.clock.Now().UnixMilli()})
		if err := history.Save(t.ns, localstore.FieldRecentScores, ring); err != nil {
			return err
		}
	}
	if err := t.ns.SetInt(localstore.FieldCases, max(t.ns.Int(localstore.FieldCases), 0)+1); err != nil {
		return fmt.Errorf("failed to count report: %w", err)
	}
	if _, err := t.timer.Checkpoint(); err != nil {
		return err
	}
	return nil
}
