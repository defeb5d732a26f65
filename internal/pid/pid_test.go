package pid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCfg = Config{
	Kp:           0.01,
	Ki:           0.0,
	Kd:           0.01,
	SamplePeriod: 33300 * time.Microsecond,
}

func TestStep_FirstEvaluationHasNoDerivativeKick(t *testing.T) {
	now := time.Now()
	s := State{Setpoint: 1.0}

	s, out := Step(testCfg, s, 0.0, now)

	// Kd would contribute (1-0)/0.0333 = 30 on a naive first step. The
	// previous error is seeded with the current error instead.
	assert.InDelta(t, 0.01, out, 1e-12)
	assert.InDelta(t, 1.0, s.PrevError, 1e-12)
	assert.InDelta(t, 0.0333, s.Integral, 1e-6)
}

func TestStep_RateLimitedReturnsPreviousOutput(t *testing.T) {
	now := time.Now()
	s := State{Setpoint: 1.0}

	s, first := Step(testCfg, s, 0.0, now)
	before := s

	// Called again 1ms later: well inside the sample period.
	s, again := Step(testCfg, s, 0.5, now.Add(time.Millisecond))

	assert.Equal(t, first, again)
	assert.Equal(t, before, s, "state must be untouched by a rate-limited call")
}

func TestStep_IntegralAccumulates(t *testing.T) {
	cfg := Config{Kp: 0, Ki: 1.0, Kd: 0, SamplePeriod: 100 * time.Millisecond}
	now := time.Now()
	s := State{Setpoint: 1.0}

	var out float64
	for i := 0; i < 5; i++ {
		now = now.Add(cfg.SamplePeriod)
		s, out = Step(cfg, s, 0.0, now)
	}

	// error=1 for 5 periods of 0.1s each.
	assert.InDelta(t, 0.5, s.Integral, 1e-9)
	assert.InDelta(t, 0.5, out, 1e-9)
}

func TestStep_DerivativeOnErrorChange(t *testing.T) {
	cfg := Config{Kp: 0, Ki: 0, Kd: 1.0, SamplePeriod: 100 * time.Millisecond}
	now := time.Now()
	s := State{Setpoint: 1.0}

	s, _ = Step(cfg, s, 0.0, now)

	now = now.Add(cfg.SamplePeriod)
	s, out := Step(cfg, s, 0.5, now)

	// Error went 1.0 -> 0.5 over one period.
	assert.InDelta(t, -5.0, out, 1e-9)
	assert.InDelta(t, 0.5, s.PrevError, 1e-9)
}

func TestSetpointChangeKeepsMemory(t *testing.T) {
	cfg := Config{Kp: 0, Ki: 1.0, Kd: 0, SamplePeriod: 100 * time.Millisecond}
	now := time.Now()
	s := State{Setpoint: 1.0}

	now = now.Add(cfg.SamplePeriod)
	s, _ = Step(cfg, s, 0.0, now)
	require.NotZero(t, s.Integral)

	accumulated := s.Integral
	s.Setpoint = 2.0

	now = now.Add(cfg.SamplePeriod)
	s, out := Step(cfg, s, 0.0, now)

	// The pre-retarget integral persists into the new computation.
	assert.InDelta(t, accumulated+2.0*0.1, s.Integral, 1e-9)
	assert.InDelta(t, s.Integral, out, 1e-9)
}

func TestReset(t *testing.T) {
	now := time.Now()
	s := State{Setpoint: 1.0}
	s, _ = Step(testCfg, s, 0.0, now)

	s.Reset()

	assert.Equal(t, State{Setpoint: 1.0}, s)
}
