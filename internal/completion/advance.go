package completion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lehigh-university-libraries/radtrack/internal/localstore"
	"github.com/lehigh-university-libraries/radtrack/internal/models"
)

// Advance moves to the next case:
//
//  1. wait for the completion send (a failure is logged, never blocking)
//  2. push a snapshot with the incremented image count
//  3. refresh the cached server summary
//  4. send the current elapsed time as the server checkpoint
//  5. fold that same value into the local timer base
//  6. increment the local image counter
//  7. reload
//
// Step 4 must precede step 5, otherwise a later pull could replace a correct
// local base with a stale server one.
func (r *Recorder) Advance(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := max(r.ns.Int(localstore.FieldImages), 0)

	if r.pending != nil {
		select {
		case err := <-r.pending:
			if err != nil {
				slog.Warn("Case completion was not saved, continuing", "err", err)
			}
		case <-ctx.Done():
			slog.Warn("Abandoned case completion send", "err", ctx.Err())
		}
		r.pending = nil
	}

	r.agent.PushSnapshot(ctx, current+1, models.RouteSnapshot)

	if err := r.agent.RefreshSummary(ctx); err != nil {
		slog.Warn("Unable to refresh summary before advancing", "err", err)
	}

	total := r.timer.Elapsed()
	if err := r.agent.PushCheckpoint(ctx, total.Milliseconds()); err != nil {
		slog.Warn("Unable to push timer checkpoint", "elapsed_ms", total.Milliseconds(), "err", err)
	}

	if _, err := r.timer.CheckpointTo(total); err != nil {
		return fmt.Errorf("failed to checkpoint timer: %w", err)
	}

	if err := r.ns.SetInt(localstore.FieldImages, current+1); err != nil {
		return fmt.Errorf("failed to increment image counter: %w", err)
	}
	r.last = nil

	slog.Debug("Advancing to next case", "images", current+1, "elapsed", total)
	return r.reload(ctx)
}
