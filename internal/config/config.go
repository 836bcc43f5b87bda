// Package config loads radtrack settings from a YAML or TOML file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/radtrack/internal/scoring"
)

const (
	defaultServerURL          = "http://localhost:8888"
	defaultHeartbeatSeconds   = 15
	defaultHTTPTimeoutSeconds = 30
	defaultCanvasSize         = 1024
	defaultPort               = "8888"
)

// ErrEmptyPath is returned by Load when no config path is given.
var ErrEmptyPath = errors.New("config path is empty")

type Config struct {
	ServerURL          string         `yaml:"server_url" toml:"server_url"`
	AccessCode         string         `yaml:"access_code" toml:"access_code"`
	StatePath          string         `yaml:"state_path" toml:"state_path"`
	HeartbeatSeconds   int            `yaml:"heartbeat_seconds" toml:"heartbeat_seconds"`
	HTTPTimeoutSeconds int            `yaml:"http_timeout_seconds" toml:"http_timeout_seconds"`
	LogLevel           string         `yaml:"log_level" toml:"log_level"`
	ReportDir          string         `yaml:"report_dir" toml:"report_dir"`
	Canvas             scoring.Canvas `yaml:"canvas" toml:"canvas"`
	Labels             scoring.Labels `yaml:"labels" toml:"labels"`
	Server             ServerConfig   `yaml:"server" toml:"server"`
}

// ServerConfig configures the reference server-of-record.
type ServerConfig struct {
	Port            string `yaml:"port" toml:"port"`
	DBPath          string `yaml:"db_path" toml:"db_path"`
	GroundTruthPath string `yaml:"ground_truth" toml:"ground_truth"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ServerURL:          defaultServerURL,
		StatePath:          DefaultStatePath(),
		HeartbeatSeconds:   defaultHeartbeatSeconds,
		HTTPTimeoutSeconds: defaultHTTPTimeoutSeconds,
		LogLevel:           "info",
		ReportDir:          "reports",
		Canvas:             scoring.Canvas{Width: defaultCanvasSize, Height: defaultCanvasSize},
		Labels:             scoring.DefaultLabels(),
		Server: ServerConfig{
			Port:   defaultPort,
			DBPath: filepath.Join(XDGDataHome(), "radtrack", "server.db"),
		},
	}
}

// Load reads path over the defaults, then applies environment overrides. A
// missing file is not an error. Files ending in .toml are TOML, anything else
// is YAML.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, ErrEmptyPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(path, data, &cfg); err != nil {
			return cfg, err
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func decode(path string, data []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("failed to decode config %s: %w", path, err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	envOverride(&cfg.ServerURL, "RADTRACK_SERVER_URL")
	envOverride(&cfg.AccessCode, "RADTRACK_ACCESS_CODE")
	envOverride(&cfg.StatePath, "RADTRACK_STATE_PATH")
	envOverride(&cfg.LogLevel, "RADTRACK_LOG_LEVEL")
	envOverride(&cfg.ReportDir, "RADTRACK_REPORT_DIR")
	envOverride(&cfg.Server.DBPath, "RADTRACK_DB_PATH")
	envOverride(&cfg.Server.GroundTruthPath, "RADTRACK_GROUND_TRUTH")
	envOverride(&cfg.Server.Port, "PORT")
	if err := envOverrideInt(&cfg.HeartbeatSeconds, "RADTRACK_HEARTBEAT_SECONDS"); err != nil {
		return err
	}
	return envOverrideInt(&cfg.HTTPTimeoutSeconds, "RADTRACK_HTTP_TIMEOUT_SECONDS")
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}

// Validate rejects settings the tracker cannot run with.
func (c Config) Validate() error {
	if c.Canvas.Width <= 0 || c.Canvas.Height <= 0 {
		return fmt.Errorf("canvas size must be positive, got %gx%g", c.Canvas.Width, c.Canvas.Height)
	}
	if len(c.Labels.Localizable) == 0 {
		return fmt.Errorf("labels.localizable must not be empty")
	}
	if len(c.Labels.Nonlocalizable) == 0 {
		return fmt.Errorf("labels.nonlocalizable must not be empty")
	}
	if c.ServerURL == "" {
		return fmt.Errorf("server_url must not be empty")
	}
	return nil
}

// HeartbeatInterval is HeartbeatSeconds as a duration, defaulting when unset.
func (c Config) HeartbeatInterval() time.Duration {
	if c.HeartbeatSeconds <= 0 {
		return defaultHeartbeatSeconds * time.Second
	}
	return time.Duration(c.HeartbeatSeconds) * time.Second
}

// HTTPTimeout is HTTPTimeoutSeconds as a duration, defaulting when unset.
func (c Config) HTTPTimeout() time.Duration {
	if c.HTTPTimeoutSeconds <= 0 {
		return defaultHTTPTimeoutSeconds * time.Second
	}
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}
