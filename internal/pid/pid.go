// Package pid implements a discrete PID controller with rate-limited
// evaluation: calls arriving faster than the configured sample period
// return the previously computed output unchanged.
package pid

import "time"

// Config holds the controller gains and sample period.
type Config struct {
	Kp           float64
	Ki           float64
	Kd           float64
	SamplePeriod time.Duration
}

// State is the controller memory carried between steps. It is an explicit
// value so callers can snapshot, inspect, and test it deterministically.
type State struct {
	Setpoint   float64
	Integral   float64
	PrevError  float64
	LastOutput float64
	LastTime   time.Time
}

// Reset clears the accumulated integral and derivative memory. The setpoint
// is kept. Note that setting a new setpoint does not reset; callers must opt
// in explicitly.
func (s *State) Reset() {
	s.Integral = 0
	s.PrevError = 0
	s.LastOutput = 0
	s.LastTime = time.Time{}
}

// Step advances the controller by one evaluation at time now and returns the
// updated state and control output.
//
// If less than cfg.SamplePeriod has elapsed since the last evaluation, the
// state is returned unchanged together with the previous output. Otherwise:
//
//	error      = setpoint - measurement
//	integral  += error * dt
//	derivative = (error - prevError) / dt
//	output     = Kp*error + Ki*integral + Kd*derivative
//
// where dt is the sample period. On the very first evaluation the previous
// error is taken to be the current error, so the derivative term starts at
// zero instead of spiking.
//
// No saturation is applied; clipping is the caller's responsibility.
func Step(cfg Config, s State, measurement float64, now time.Time) (State, float64) {
	if !s.LastTime.IsZero() && now.Sub(s.LastTime) < cfg.SamplePeriod {
		return s, s.LastOutput
	}

	dt := cfg.SamplePeriod.Seconds()
	err := s.Setpoint - measurement

	prev := s.PrevError
	if s.LastTime.IsZero() {
		prev = err
	}

	s.Integral += err * dt
	derivative := (err - prev) / dt

	out := cfg.Kp*err + cfg.Ki*s.Integral + cfg.Kd*derivative

	s.PrevError = err
	s.LastOutput = out
	s.LastTime = now
	return s, out
}
