// Package timer implements the reload-resilient session timer. All state lives in
// a localstore.Namespace so that a reload resumes where the previous page left
// off; the struct itself only holds the clock and a mutex.
package timer

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lehigh-university-libraries/radtrack/internal/localstore"
)

// Fields is a parsed view of the persisted timer state.
type Fields struct {
	SessionStart     time.Time
	Paused           bool
	PauseStart       time.Time
	AccumulatedPause time.Duration
	Base             time.Duration
	ManualPause      bool
}

// State is the timer for one domain. Construct it once per page load.
type State struct {
	ns    *localstore.Namespace
	clock clockwork.Clock
	mu    sync.Mutex
}

// New returns a timer over ns. A nil clock means the real clock.
func New(ns *localstore.Namespace, clock clockwork.Clock) *State {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &State{ns: ns, clock: clock}
}

// Init writes defaults for any field that is missing, so that a first load
// starts a fresh window and a reload keeps the existing one.
func (s *State) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initLocked()
}

func (s *State) initLocked() error {
	now := s.nowMs()
	defaults := []struct {
		field string
		value int64
	}{
		{localstore.FieldSessionStart, now},
		{localstore.FieldPauseStart, 0},
		{localstore.FieldAccumulatedPause, 0},
		{localstore.FieldTimerBase, 0},
	}
	for _, d := range defaults {
		if s.ns.Has(d.field) {
			continue
		}
		if err := s.ns.SetInt(d.field, d.value); err != nil {
			return fmt.Errorf("failed to initialize timer: %w", err)
		}
	}
	if !s.ns.Has(localstore.FieldPaused) {
		if err := s.ns.SetBool(localstore.FieldPaused, false); err != nil {
			return fmt.Errorf("failed to initialize timer: %w", err)
		}
	}
	return nil
}

// Elapsed is timerBase plus the current window, never negative.
func (s *State) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsedLocked(true)
}

// WindowElapsed is the time spent in the current window only.
func (s *State) WindowElapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsedLocked(false)
}

func (s *State) elapsedLocked(withBase bool) time.Duration {
	now := s.nowMs()
	start := s.ns.Int(localstore.FieldSessionStart)
	if start <= 0 {
		start = now
	}
	acc := s.ns.Int(localstore.FieldAccumulatedPause)

	var window int64
	if s.ns.Bool(localstore.FieldPaused) {
		window = s.ns.Int(localstore.FieldPauseStart) - start - acc
	} else {
		window = now - start - acc
	}

	total := window
	if withBase {
		total += s.ns.Int(localstore.FieldTimerBase)
	}
	if total < 0 {
		return 0
	}
	return time.Duration(total) * time.Millisecond
}

// Paused reports whether the timer is paused.
func (s *State) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ns.Bool(localstore.FieldPaused)
}

// Pause starts a user-initiated pause. Pausing twice is a no-op.
func (s *State) Pause() error {
	return s.pause(true)
}

// PauseForNavigation pauses without the manual flag, so the next RestoreOnLoad
// resumes automatically.
func (s *State) PauseForNavigation() error {
	return s.pause(false)
}

func (s *State) pause(manual bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ns.Bool(localstore.FieldPaused) {
		return nil
	}
	if err := s.ns.SetBool(localstore.FieldPaused, true); err != nil {
		return fmt.Errorf("failed to pause timer: %w", err)
	}
	if err := s.ns.SetInt(localstore.FieldPauseStart, s.nowMs()); err != nil {
		return fmt.Errorf("failed to pause timer: %w", err)
	}
	if manual {
		return s.ns.SetBool(localstore.FieldManualPause, true)
	}
	return s.ns.Delete(localstore.FieldManualPause)
}

// Resume folds the pause interval into the accumulated pause. Resuming a running
// timer is a no-op.
func (s *State) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resumeLocked()
}

func (s *State) resumeLocked() error {
	if !s.ns.Bool(localstore.FieldPaused) {
		return nil
	}
	if pstart := s.ns.Int(localstore.FieldPauseStart); pstart > 0 {
		if delta := s.nowMs() - pstart; delta > 0 {
			acc := s.ns.Int(localstore.FieldAccumulatedPause)
			if err := s.ns.SetInt(localstore.FieldAccumulatedPause, acc+delta); err != nil {
				return fmt.Errorf("failed to resume timer: %w", err)
			}
		}
	}
	if err := s.ns.SetBool(localstore.FieldPaused, false); err != nil {
		return fmt.Errorf("failed to resume timer: %w", err)
	}
	if err := s.ns.SetInt(localstore.FieldPauseStart, 0); err != nil {
		return fmt.Errorf("failed to resume timer: %w", err)
	}
	return s.ns.Delete(localstore.FieldManualPause)
}

// RestoreOnLoad resumes a timer left paused by navigation. Manual pauses stay.
func (s *State) RestoreOnLoad() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ns.Bool(localstore.FieldPaused) || s.ns.Bool(localstore.FieldManualPause) {
		return false, nil
	}
	return true, s.resumeLocked()
}

// Checkpoint folds the current elapsed time into the base and starts a new window.
func (s *State) Checkpoint() (time.Duration, error) {
	return s.CheckpointTo(-1)
}

// CheckpointTo uses v as the new base when v >= 0, otherwise the current elapsed
// time. The window restarts unpaused either way.
func (s *State) CheckpointTo(v time.Duration) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := v
	if base < 0 {
		base = s.elapsedLocked(true)
	}
	ms := base.Milliseconds()
	if err := s.writeWindowLocked(ms); err != nil {
		return 0, fmt.Errorf("failed to checkpoint timer: %w", err)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// ResetNamespace reinitializes every timer field to zero/now.
func (s *State) ResetNamespace() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeWindowLocked(0); err != nil {
		return fmt.Errorf("failed to reset timer: %w", err)
	}
	return nil
}

func (s *State) writeWindowLocked(baseMs int64) error {
	if err := s.ns.SetInt(localstore.FieldTimerBase, baseMs); err != nil {
		return err
	}
	if err := s.ns.SetInt(localstore.FieldSessionStart, s.nowMs()); err != nil {
		return err
	}
	if err := s.ns.SetInt(localstore.FieldAccumulatedPause, 0); err != nil {
		return err
	}
	if err := s.ns.SetBool(localstore.FieldPaused, false); err != nil {
		return err
	}
	if err := s.ns.SetInt(localstore.FieldPauseStart, 0); err != nil {
		return err
	}
	return s.ns.Delete(localstore.FieldManualPause)
}

// Snapshot returns the persisted fields as read right now.
func (s *State) Snapshot() Fields {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Fields{
		SessionStart:     time.UnixMilli(s.ns.Int(localstore.FieldSessionStart)),
		Paused:           s.ns.Bool(localstore.FieldPaused),
		PauseStart:       time.UnixMilli(s.ns.Int(localstore.FieldPauseStart)),
		AccumulatedPause: time.Duration(s.ns.Int(localstore.FieldAccumulatedPause)) * time.Millisecond,
		Base:             time.Duration(s.ns.Int(localstore.FieldTimerBase)) * time.Millisecond,
		ManualPause:      s.ns.Bool(localstore.FieldManualPause),
	}
}

func (s *State) nowMs() int64 {
	return s.clock.Now().UnixMilli()
}
