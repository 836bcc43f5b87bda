package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/radtrack/internal/dataset"
	"github.com/lehigh-university-libraries/radtrack/internal/storage"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		out    string
		dbPath string
		code   string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export server case logs to Parquet or JSONL",
		Long: `Reads the server-of-record database and writes one row per completed case.
The format follows the output extension: .parquet or .jsonl.`,
		Example: `  # Every access code, Parquet
  radtrack export --out ./case_logs.parquet

  # One reader, JSONL
  radtrack export --out ./rad7.jsonl --code RAD7`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				dbPath = a.cfg.Server.DBPath
			}
			store, err := storage.Open(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			logs, err := store.ListCaseLogs(cmd.Context(), code)
			if err != nil {
				return err
			}
			rows, err := dataset.CaseLogRows(logs)
			if err != nil {
				return err
			}
			if err := dataset.WriteCaseLogs(out, rows); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d case logs to %s\n", len(rows), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "case_logs.parquet", "Output file (.parquet or .jsonl)")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (defaults to server.db_path)")
	cmd.Flags().StringVar(&code, "code", "", "Only export this access code")

	return cmd
}
