package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tracker.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 0.01, cfg.Control.Kp)
	assert.Equal(t, 0.0, cfg.Control.Ki)
	assert.Equal(t, 0.01, cfg.Control.Kd)
	assert.Equal(t, 0.1, cfg.Control.ClipValue)
	assert.Equal(t, 0.02, cfg.Control.PlanarThreshold)
	assert.Equal(t, 0.20, cfg.Control.DepthThreshold)
	assert.InDelta(t, 33.3, float64(cfg.Control.SamplePeriod())/float64(time.Millisecond), 1e-3)
	assert.Equal(t, time.Second, cfg.Motion.ConnectTimeout())
	require.NoError(t, cfg.Validate())
}

func TestLoad_OverridesAndDefaults(t *testing.T) {
	path := writeConfig(t, `
listen_addr: ":9000"
control:
  kp: 0.05
motion:
  url: "ws://motion:9090/goals"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, 0.05, cfg.Control.Kp)
	// Untouched fields keep their defaults.
	assert.Equal(t, 0.1, cfg.Control.ClipValue)
	assert.Equal(t, "ws://motion:9090/goals", cfg.Motion.URL)
	assert.Equal(t, "world", cfg.Frames.World)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero sample period", func(c *Config) { c.Control.SamplePeriodMs = 0 }},
		{"negative clip", func(c *Config) { c.Control.ClipValue = -1 }},
		{"zero planar threshold", func(c *Config) { c.Control.PlanarThreshold = 0 }},
		{"depth tighter than planar", func(c *Config) { c.Control.DepthThreshold = 0.01 }},
		{"negative connect timeout", func(c *Config) { c.Motion.ConnectTimeoutMs = -1 }},
		{"empty world frame", func(c *Config) { c.Frames.World = "" }},
		{"zero lookup timeout", func(c *Config) { c.Frames.LookupTimeoutMs = 0 }},
		{"negative validity", func(c *Config) { c.Frames.ValidityMs = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
