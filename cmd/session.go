package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/radtrack/internal/localstore"
	"github.com/lehigh-university-libraries/radtrack/internal/tracker"
)

func domainFor(report bool) localstore.Domain {
	if report {
		return localstore.DomainReport
	}
	return localstore.DomainLocalization
}

// withTracker runs fn inside one page lifetime.
func (a *app) withTracker(ctx context.Context, report bool, fn func(*tracker.Tracker) error) error {
	t, err := tracker.Open(ctx, a.cfg, tracker.WithDomain(domainFor(report)))
	if err != nil {
		return err
	}
	runErr := fn(t)
	if err := t.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func newSessionCmd(a *app) *cobra.Command {
	var report bool

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect and control the annotation timer",
		Long: `Each session subcommand is one page load: it opens the local state, pulls
the server summary, acts, and unloads. A localization session ends with a
single snapshot beacon.

Loading adopts the server's last timer checkpoint, so time not yet saved by a
completed case is dropped on every invocation. With no completed case the
timer starts again from zero. Use "watch" to keep one page open.

Use --report for the report-writing timer instead of the localization timer.`,
	}
	cmd.PersistentFlags().BoolVar(&report, "report", false, "Use the report domain")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show elapsed time, counters and recent accuracy",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withTracker(cmd.Context(), report, func(t *tracker.Tracker) error {
				printStatus(cmd.OutOrStdout(), t.Status())
				return nil
			})
		},
	}

	pause := &cobra.Command{
		Use:   "pause",
		Short: "Pause the timer until resumed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withTracker(cmd.Context(), report, func(t *tracker.Tracker) error {
				if err := t.Pause(); err != nil {
					return err
				}
				printStatus(cmd.OutOrStdout(), t.Status())
				return nil
			})
		},
	}

	resume := &cobra.Command{
		Use:   "resume",
		Short: "Resume a paused timer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withTracker(cmd.Context(), report, func(t *tracker.Tracker) error {
				if err := t.Resume(); err != nil {
					return err
				}
				printStatus(cmd.OutOrStdout(), t.Status())
				return nil
			})
		},
	}

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull the server summary and report any failure",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withTracker(cmd.Context(), report, func(t *tracker.Tracker) error {
				if _, err := t.Sync(cmd.Context()); err != nil {
					return err
				}
				printStatus(cmd.OutOrStdout(), t.Status())
				return nil
			})
		},
	}

	watch := &cobra.Command{
		Use:   "watch",
		Short: "Keep the page open with the heartbeat running until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withTracker(cmd.Context(), report, func(t *tracker.Tracker) error {
				fmt.Fprintf(cmd.OutOrStdout(), "Watching %s session, heartbeat every %s (Ctrl+C to stop)\n",
					t.Domain(), a.cfg.HeartbeatInterval())
				if err := t.Watch(cmd.Context()); err != nil {
					return err
				}
				printStatus(cmd.OutOrStdout(), t.Status())
				return nil
			})
		},
	}

	cmd.AddCommand(status, pause, resume, syncCmd, watch)
	return cmd
}

func printStatus(w io.Writer, st tracker.Status) {
	fmt.Fprintf(w, "Domain:      %s\n", st.Domain)
	fmt.Fprintf(w, "Access code: %s\n", st.AccessCode)
	state := "running"
	if st.Paused {
		state = "paused"
		if st.ManualPause {
			state = "paused (manual)"
		}
	}
	fmt.Fprintf(w, "Timer:       %s [%s]\n", st.Formatted, state)

	if st.Recent.Reports != nil {
		fmt.Fprintf(w, "Reports:     %d\n", st.Cases)
		r := st.Recent.Reports
		if r.Count > 0 {
			fmt.Fprintf(w, "Last %d:      high %.1f, low %.1f, avg %.1f\n", r.Count, r.High, r.Low, r.Average)
		}
	} else {
		fmt.Fprintf(w, "Cases:       %d (%d correct, %d incorrect)\n", st.Cases, st.Correct, st.Incorrect)
		fmt.Fprintf(w, "Images:      %d\n", st.Images)
		if c := st.Recent.Cases; c != nil && c.Count > 0 {
			fmt.Fprintf(w, "Last %d:      %d correct, %d incorrect (%.1f%%)\n", c.Count, c.Correct, c.Incorrect, c.Accuracy)
		}
	}

	if st.Server == nil {
		fmt.Fprintln(w, "Server:      unreachable")
		return
	}
	fmt.Fprintf(w, "Server:      %d cases, checkpoint %dms", st.Server.Cases, st.Server.LastCheckpointMs)
	if st.Server.AvgGreenScore != nil {
		fmt.Fprintf(w, ", avg GREEN %.2f", *st.Server.AvgGreenScore)
	}
	fmt.Fprintln(w)
}
