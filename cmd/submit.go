package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/radtrack/internal/tracker"
)

func newSubmitCmd(a *app) *cobra.Command {
	var (
		caseID     string
		submission string
		truth      string
		report     bool
		findings   string
		green      float64
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Complete the current case and advance to the next one",
		Long: `Grades the submission, records it locally and on the server, checkpoints
the timer and advances the image counter. Network failures are logged and
never block the advance.

With --report, records a written report for the report-writing timer instead.`,
		Example: `  # Localization case
  radtrack submit --case case-17 --submission ./case-17.yaml

  # Report with a GREEN score
  radtrack submit --report --case case-17 --findings "Mild cardiomegaly." --green 0.82`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if report {
				var score *float64
				if cmd.Flags().Changed("green") {
					if green < 0 || green > 1 {
						return fmt.Errorf("--green must be between 0 and 1, got %g", green)
					}
					score = &green
				}
				return a.withTracker(cmd.Context(), true, func(t *tracker.Tracker) error {
					if err := t.SubmitReport(cmd.Context(), caseID, findings, score); err != nil {
						return err
					}
					printStatus(out, t.Status())
					return nil
				})
			}

			if submission == "" {
				return fmt.Errorf("--submission is required for localization cases")
			}
			fileCase, sub, err := loadSubmission(submission, a.cfg.Labels)
			if err != nil {
				return err
			}
			if caseID == "" {
				caseID = fileCase
			}
			if truth == "" {
				truth = a.cfg.Server.GroundTruthPath
			}
			gt, err := lookupCase(truth, caseID)
			if err != nil {
				return err
			}

			return a.withTracker(cmd.Context(), false, func(t *tracker.Tracker) error {
				rec, err := t.Submit(cmd.Context(), gt, sub)
				if err != nil {
					return err
				}
				printScore(out, rec.CaseID, rec.Score)
				fmt.Fprintln(out)
				printStatus(out, t.Status())
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&caseID, "case", "", "Case id (defaults to case_id in the submission)")
	cmd.Flags().StringVar(&submission, "submission", "", "Submission file (YAML or JSON)")
	cmd.Flags().StringVar(&truth, "truth", "", "Ground-truth file (defaults to server.ground_truth)")
	cmd.Flags().BoolVar(&report, "report", false, "Submit a written report instead of a localization case")
	cmd.Flags().StringVar(&findings, "findings", "", "Report text (with --report)")
	cmd.Flags().Float64Var(&green, "green", 0, "GREEN score in [0,1] (with --report)")

	return cmd
}
