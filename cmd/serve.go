package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/radtrack/internal/dataset"
	"github.com/lehigh-university-libraries/radtrack/internal/handlers"
	"github.com/lehigh-university-libraries/radtrack/internal/metrics"
	"github.com/lehigh-university-libraries/radtrack/internal/storage"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		port        string
		dbPath      string
		groundTruth string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the reference server-of-record",
		Long: `Starts the server-of-record that trackers reconcile against.

It stores completed cases, reports and progress snapshots per access code in
SQLite and exposes Prometheus metrics on /metrics. With a ground-truth file it
also grades cases that arrive without counts.`,
		Example: `  # Start server on the configured port (default 8888)
  radtrack serve

  # Grade server-side against a Parquet ground truth
  radtrack serve --port 3000 --ground-truth ./truth.parquet`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("port") {
				port = a.cfg.Server.Port
			}
			if dbPath == "" {
				dbPath = a.cfg.Server.DBPath
			}
			if groundTruth == "" {
				groundTruth = a.cfg.Server.GroundTruthPath
			}

			store, err := storage.Open(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			reg := prom.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			opts := []handlers.Option{
				handlers.WithLabels(a.cfg.Labels),
				handlers.WithMetrics(metrics.New(reg)),
			}
			if groundTruth != "" {
				set, err := dataset.NewLoader(groundTruth).Load()
				if err != nil {
					return err
				}
				opts = append(opts, handlers.WithGroundTruth(set))
			}
			handler := handlers.New(store, opts...)

			addr := ":" + port
			server := &http.Server{
				Addr:              addr,
				Handler:           handler.Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Server-of-record available", "addr", addr, "url", "http://localhost"+addr, "db", dbPath, "run_id", handler.RunID())
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "8888", "Port to listen on")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (defaults to server.db_path)")
	cmd.Flags().StringVar(&groundTruth, "ground-truth", "", "Ground-truth file (.json, .jsonl or .parquet)")

	return cmd
}
