package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/lehigh-university-libraries/radtrack/internal/models"
)

// DefaultHeartbeatInterval is used when StartHeartbeat gets a non-positive interval.
const DefaultHeartbeatInterval = 15 * time.Second

// StartHeartbeat schedules a periodic snapshot push to the heartbeat endpoint.
// Beats are skipped while the page is hidden or the timer is paused.
func (a *Agent) StartHeartbeat(interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	a.hbMu.Lock()
	defer a.hbMu.Unlock()
	a.interval = interval
	a.hbEnabled = true
	if !a.Visible() {
		return nil
	}
	return a.startLocked()
}

// StopHeartbeat shuts the scheduler down. It is safe to call more than once.
func (a *Agent) StopHeartbeat() {
	a.hbMu.Lock()
	defer a.hbMu.Unlock()
	a.hbEnabled = false
	a.stopLocked()
}

// SetVisible records page visibility. Hiding stops the heartbeat; becoming
// visible again restarts it.
func (a *Agent) SetVisible(visible bool) {
	a.mu.Lock()
	changed := a.visible != visible
	a.visible = visible
	a.mu.Unlock()
	if !changed {
		return
	}

	a.hbMu.Lock()
	defer a.hbMu.Unlock()
	if !a.hbEnabled {
		return
	}
	if !visible {
		a.stopLocked()
		return
	}
	if err := a.startLocked(); err != nil {
		slog.Warn("Unable to restart heartbeat", "domain", a.ns.Domain(), "err", err)
	}
}

// Visible reports the last visibility set on the agent.
func (a *Agent) Visible() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.visible
}

// HeartbeatRunning reports whether a heartbeat scheduler is active.
func (a *Agent) HeartbeatRunning() bool {
	a.hbMu.Lock()
	defer a.hbMu.Unlock()
	return a.scheduler != nil
}

func (a *Agent) startLocked() error {
	a.stopLocked()

	s, err := gocron.NewScheduler(gocron.WithClock(a.clock))
	if err != nil {
		return fmt.Errorf("failed to create heartbeat scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(a.interval),
		gocron.NewTask(a.tick, a.interval),
		gocron.WithName(fmt.Sprintf("%s-heartbeat", a.ns.Domain())),
	)
	if err != nil {
		_ = s.Shutdown()
		return fmt.Errorf("failed to create heartbeat job: %w", err)
	}
	s.Start()
	a.scheduler = s
	slog.Debug("Heartbeat started", "domain", a.ns.Domain(), "interval", a.interval)
	return nil
}

func (a *Agent) stopLocked() {
	if a.scheduler == nil {
		return
	}
	if err := a.scheduler.Shutdown(); err != nil {
		slog.Warn("Unable to stop heartbeat", "domain", a.ns.Domain(), "err", err)
	}
	a.scheduler = nil
}

func (a *Agent) tick(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	a.beat(ctx)
}

// beat is one heartbeat. Overlapping beats are allowed since the push is an
// idempotent snapshot.
func (a *Agent) beat(ctx context.Context) bool {
	if !a.Visible() || a.timer.Paused() {
		return false
	}
	a.PushSnapshot(ctx, 0, models.RouteHeartbeat)
	if err := a.RefreshSummary(ctx); err != nil {
		slog.Warn("Heartbeat summary refresh failed", "err", err)
	}
	return true
}
