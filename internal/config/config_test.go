package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg-data")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8888", cfg.ServerURL)
	assert.Equal(t, 15*time.Second, cfg.HeartbeatInterval())
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout())
	assert.Equal(t, "/tmp/xdg-data/radtrack/state.db", cfg.StatePath)
	assert.Equal(t, 1024.0, cfg.Canvas.Width)
	assert.Len(t, cfg.Labels.Nonlocalizable, 6)
}

func TestLoadEmptyPath(t *testing.T) {
	_, err := Load("")
	assert.ErrorIs(t, err, ErrEmptyPath)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "radtrack.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
server_url: https://rad.example.edu
access_code: ABC123
heartbeat_seconds: 5
canvas:
  width: 800
  height: 600
labels:
  localizable: [Fracture]
  nonlocalizable: [Pneumothorax]
server:
  port: "9000"
  ground_truth: /data/gt.jsonl
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://rad.example.edu", cfg.ServerURL)
	assert.Equal(t, "ABC123", cfg.AccessCode)
	assert.Equal(t, 5*time.Second, cfg.HeartbeatInterval())
	assert.Equal(t, 800.0, cfg.Canvas.Width)
	assert.Equal(t, []string{"Fracture"}, cfg.Labels.Localizable)
	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "/data/gt.jsonl", cfg.Server.GroundTruthPath)
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "radtrack.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
server_url = "http://10.0.0.5:8888"
http_timeout_seconds = 3

[canvas]
width = 512
height = 512

[server]
db_path = "/var/lib/radtrack.db"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.5:8888", cfg.ServerURL)
	assert.Equal(t, 3*time.Second, cfg.HTTPTimeout())
	assert.Equal(t, 512.0, cfg.Canvas.Height)
	assert.Equal(t, "/var/lib/radtrack.db", cfg.Server.DBPath)
	assert.NotEmpty(t, cfg.Labels.Localizable, "labels keep their defaults")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RADTRACK_SERVER_URL", "http://env:1")
	t.Setenv("RADTRACK_ACCESS_CODE", "ENV")
	t.Setenv("RADTRACK_HEARTBEAT_SECONDS", "60")
	t.Setenv("PORT", "7000")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "http://env:1", cfg.ServerURL)
	assert.Equal(t, "ENV", cfg.AccessCode)
	assert.Equal(t, time.Minute, cfg.HeartbeatInterval())
	assert.Equal(t, "7000", cfg.Server.Port)

	t.Setenv("RADTRACK_HEARTBEAT_SECONDS", "soon")
	_, err = Load(filepath.Join(t.TempDir(), "none.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero canvas", func(c *Config) { c.Canvas.Width = 0 }},
		{"negative canvas", func(c *Config) { c.Canvas.Height = -1 }},
		{"no localizable labels", func(c *Config) { c.Labels.Localizable = nil }},
		{"no nonlocalizable labels", func(c *Config) { c.Labels.Nonlocalizable = []string{} }},
		{"no server", func(c *Config) { c.ServerURL = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}
