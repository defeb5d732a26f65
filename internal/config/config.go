// Package config loads the tracker configuration from a YAML file and
// applies validation and defaults. All control constants are fixed at
// startup; the core is not runtime-reconfigurable.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ControlConfig holds the per-axis PID gains and the control-loop timing.
// The same gains and sample period apply to all three axes; the derivative
// and integral terms are only valid when the sample period equals the loop
// tick period, so both are derived from SamplePeriodMs.
type ControlConfig struct {
	Kp             float64 `yaml:"kp"`
	Ki             float64 `yaml:"ki"`
	Kd             float64 `yaml:"kd"`
	SamplePeriodMs float64 `yaml:"sample_period_ms"`
	ClipValue      float64 `yaml:"clip_value"` // max |output| per axis per tick

	// Convergence thresholds in meters. Depth (z) tolerates a larger
	// error than the planar axes.
	PlanarThreshold float64 `yaml:"planar_threshold"`
	DepthThreshold  float64 `yaml:"depth_threshold"`
}

// MotionConfig describes how to reach the motion-execution service.
type MotionConfig struct {
	URL              string `yaml:"url"`                // e.g. "ws://localhost:9090/goals"
	ConnectTimeoutMs int    `yaml:"connect_timeout_ms"` // bounded wait for reachability
}

// FramesConfig names the coordinate frames used when transforming
// detections into the control frame.
type FramesConfig struct {
	Source string `yaml:"source"` // frame detections arrive in
	World  string `yaml:"world"`  // frame the controller commands in

	LookupTimeoutMs int `yaml:"lookup_timeout_ms"` // bounded wait per transform lookup
	ValidityMs      int `yaml:"validity_ms"`       // 0 disables the extrapolation check
}

// Config aggregates all application configuration.
type Config struct {
	ListenAddr string        `yaml:"listen_addr"`
	Control    ControlConfig `yaml:"control"`
	Motion     MotionConfig  `yaml:"motion"`
	Frames     FramesConfig  `yaml:"frames"`
}

// Default returns the built-in configuration, matching the tuned constants
// the tracker ships with.
func Default() *Config {
	return &Config{
		ListenAddr: ":8080",
		Control: ControlConfig{
			Kp:              0.01,
			Ki:              0.0,
			Kd:              0.01,
			SamplePeriodMs:  33.3,
			ClipValue:       0.1,
			PlanarThreshold: 0.02,
			DepthThreshold:  0.20,
		},
		Motion: MotionConfig{
			ConnectTimeoutMs: 1000,
		},
		Frames: FramesConfig{
			Source:          "camera_depth_frame",
			World:           "world",
			LookupTimeoutMs: 1000,
			ValidityMs:      10000,
		},
	}
}

// Load reads a YAML file, fills in defaults for omitted values, and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the control law cannot
// operate with.
func (c *Config) Validate() error {
	if c.Control.SamplePeriodMs <= 0 {
		return fmt.Errorf("control.sample_period_ms must be > 0, got %v", c.Control.SamplePeriodMs)
	}
	if c.Control.ClipValue <= 0 {
		return fmt.Errorf("control.clip_value must be > 0, got %v", c.Control.ClipValue)
	}
	if c.Control.PlanarThreshold <= 0 {
		return fmt.Errorf("control.planar_threshold must be > 0, got %v", c.Control.PlanarThreshold)
	}
	if c.Control.DepthThreshold < c.Control.PlanarThreshold {
		return fmt.Errorf("control.depth_threshold must be >= planar_threshold, got %v < %v",
			c.Control.DepthThreshold, c.Control.PlanarThreshold)
	}
	if c.Motion.ConnectTimeoutMs < 0 {
		return fmt.Errorf("motion.connect_timeout_ms must be >= 0, got %d", c.Motion.ConnectTimeoutMs)
	}
	if c.Frames.Source == "" || c.Frames.World == "" {
		return fmt.Errorf("frames.source and frames.world are required")
	}
	if c.Frames.LookupTimeoutMs <= 0 {
		return fmt.Errorf("frames.lookup_timeout_ms must be > 0, got %d", c.Frames.LookupTimeoutMs)
	}
	if c.Frames.ValidityMs < 0 {
		return fmt.Errorf("frames.validity_ms must be >= 0, got %d", c.Frames.ValidityMs)
	}
	return nil
}

// SamplePeriod returns the control tick period as a duration.
func (c *ControlConfig) SamplePeriod() time.Duration {
	return time.Duration(c.SamplePeriodMs * float64(time.Millisecond))
}

// ConnectTimeout returns the bounded reachability wait as a duration.
func (c *MotionConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMs) * time.Millisecond
}

// LookupTimeout returns the bounded per-lookup wait as a duration.
func (c *FramesConfig) LookupTimeout() time.Duration {
	return time.Duration(c.LookupTimeoutMs) * time.Millisecond
}

// Validity returns the transform validity window as a duration.
func (c *FramesConfig) Validity() time.Duration {
	return time.Duration(c.ValidityMs) * time.Millisecond
}
