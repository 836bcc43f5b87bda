package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/radtrack/internal/scoring"
)

func newScoreCmd(a *app) *cobra.Command {
	var (
		caseID     string
		submission string
		truth      string
		reportDir  string
	)

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Grade a submission offline and write a YAML report",
		Long: `Grades one submission against the ground truth without touching the timer
or the server. Localizable findings are correct when the aggregate IoU of the
drawn boxes reaches 0.30; nonlocalizable findings by their toggle.`,
		Example: `  radtrack score --case case-17 --submission ./case-17.yaml --truth ./truth.parquet`,
		RunE: func(cmd *cobra.Command, args []string) error {
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

			score := scoring.ScoreCase(a.cfg.Labels, a.cfg.Canvas, gt, sub)
			printScore(cmd.OutOrStdout(), gt.CaseID, score)

			if reportDir == "" {
				reportDir = a.cfg.ReportDir
			}
			path, err := scoring.SaveReportYAML(reportDir, scoring.NewReport(gt, a.cfg.Canvas, score, time.Now()))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&caseID, "case", "", "Case id (defaults to case_id in the submission)")
	cmd.Flags().StringVar(&submission, "submission", "", "Submission file (YAML or JSON)")
	cmd.Flags().StringVar(&truth, "truth", "", "Ground-truth file (defaults to server.ground_truth)")
	cmd.Flags().StringVar(&reportDir, "report-dir", "", "Directory for YAML reports (defaults to report_dir)")
	_ = cmd.MarkFlagRequired("submission")

	return cmd
}

func printScore(w io.Writer, caseID string, score scoring.CaseScore) {
	fmt.Fprintf(w, "Case %s\n", caseID)
	for _, r := range score.Localizable {
		fmt.Fprintf(w, "  %-34s IoU %.2f  %s\n", r.Label, r.IoU, verdict(r.Correct))
	}
	for _, r := range score.Nonlocalizable {
		fmt.Fprintf(w, "  %-34s present=%t selected=%t  %s\n", r.Label, r.Present, r.Selected, verdict(r.Correct))
	}
	fmt.Fprintf(w, "Correct: %d  Incorrect: %d\n", score.Counts.Correct, score.Counts.Incorrect)
}

func verdict(correct bool) string {
	if correct {
		return "correct"
	}
	return "incorrect"
}
