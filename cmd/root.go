package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/radtrack/internal/config"
)

// app carries the settings every subcommand reads after PersistentPreRunE.
type app struct {
	configPath string
	logLevel   string
	cfg        config.Config
}

func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "radtrack",
		Short: "Annotation session tracker for radiology training cases",
		Long: `radtrack tracks time and accuracy while annotating chest radiographs.

Each command that opens the tracker is one page load: local progress lives in a
SQLite state file and is reconciled with the server-of-record, which the same
binary can run with "radtrack serve".`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
			return a.init()
		},
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", config.DefaultConfigPath(), "Path to a YAML or TOML config file")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(newSessionCmd(a))
	cmd.AddCommand(newScoreCmd(a))
	cmd.AddCommand(newSubmitCmd(a))
	cmd.AddCommand(newExportCmd(a))

	return cmd
}

func (a *app) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	a.cfg = cfg

	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(cfg.LogLevel))); err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}
