package motion

import (
	"sync"
	"time"

	"visual-servo/internal/protocol"
)

// SimConfig tunes the simulated executor.
type SimConfig struct {
	// Reach is the maximum |coordinate| the simulated arm accepts, in
	// meters. Zero disables the workspace check.
	Reach float64
	// Delay is the simulated execution time per goal.
	Delay time.Duration
	// FailEvery makes every Nth executed goal report failure. Zero means
	// every execution succeeds.
	FailEvery int
}

// Sim is an Executor that pretends to move: it bounds-checks goals, sleeps
// for the configured execution time, and optionally injects failures so the
// dispatcher's error paths can be exercised.
type Sim struct {
	cfg SimConfig

	mu       sync.Mutex
	executed int
}

// NewSim creates a simulated executor.
func NewSim(cfg SimConfig) *Sim {
	return &Sim{cfg: cfg}
}

// Accepts rejects goals outside the configured reach.
func (s *Sim) Accepts(pose protocol.Pose) bool {
	if s.cfg.Reach <= 0 {
		return true
	}
	p := pose.Position
	return abs(p.X) <= s.cfg.Reach && abs(p.Y) <= s.cfg.Reach && abs(p.Z) <= s.cfg.Reach
}

// Execute sleeps for the configured delay and reports success, except for
// every FailEvery-th goal.
func (s *Sim) Execute(pose protocol.Pose) bool {
	if s.cfg.Delay > 0 {
		time.Sleep(s.cfg.Delay)
	}

	s.mu.Lock()
	s.executed++
	n := s.executed
	s.mu.Unlock()

	if s.cfg.FailEvery > 0 && n%s.cfg.FailEvery == 0 {
		return false
	}
	return true
}

// Close implements Executor.
func (s *Sim) Close() error { return nil }

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
