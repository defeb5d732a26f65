// Package servo implements the closed-loop visual servo core: a three-axis
// camera controller driven by per-axis PID, and the fixed-rate control loop
// that steps it toward a target and decides convergence.
package servo

import (
	"fmt"
	"time"

	"visual-servo/internal/pid"
)

// Position is the controller's commanded position in meters. It is what the
// loop drives toward the target and hands to the motion service, not a
// sensor reading.
type Position struct {
	X, Y, Z float64
}

func (p Position) String() string {
	return fmt.Sprintf("(%g, %g, %g)", p.X, p.Y, p.Z)
}

// Config holds the control constants, fixed for the controller's lifetime.
type Config struct {
	Gains     pid.Config // shared by all three axes
	ClipValue float64    // max |output| per axis per tick

	// Convergence thresholds in meters. Depth (z) deliberately tolerates
	// a larger error than the planar axes.
	PlanarThreshold float64
	DepthThreshold  float64
}

// Camera owns the commanded position and the three axis controllers.
//
// Camera is not safe for concurrent use; the Loop confines it to its own
// goroutine. All three axes share one sample period, equal to the loop tick
// period; the integral and derivative terms are only valid under that
// coupling.
type Camera struct {
	cfg      Config
	position Position
	x, y, z  pid.State
}

// NewCamera creates a camera controller at the origin.
func NewCamera(cfg Config) *Camera {
	return &Camera{cfg: cfg}
}

// SetGoal replaces each axis's setpoint with the target's coordinate. The
// current position is kept, and so is the axes' integral and derivative
// memory: retargeting mid-motion continues from the accumulated state.
func (c *Camera) SetGoal(target Position) {
	c.x.Setpoint = target.X
	c.y.Setpoint = target.Y
	c.z.Setpoint = target.Z
}

// Error returns the absolute difference between the commanded position and
// each axis setpoint. It has no side effects.
func (c *Camera) Error() (ex, ey, ez float64) {
	return abs(c.position.X - c.x.Setpoint),
		abs(c.position.Y - c.y.Setpoint),
		abs(c.position.Z - c.z.Setpoint)
}

// Step advances all three axes by one control tick at time now: each axis's
// PID output is clipped to [-ClipValue, +ClipValue] and integrated into the position over
// one sample period. Returns the updated position.
func (c *Camera) Step(now time.Time) Position {
	dt := c.cfg.Gains.SamplePeriod.Seconds()

	var vx, vy, vz float64
	c.x, vx = pid.Step(c.cfg.Gains, c.x, c.position.X, now)
	c.y, vy = pid.Step(c.cfg.Gains, c.y, c.position.Y, now)
	c.z, vz = pid.Step(c.cfg.Gains, c.z, c.position.Z, now)

	c.position.X += clamp(vx, -c.cfg.ClipValue, c.cfg.ClipValue) * dt
	c.position.Y += clamp(vy, -c.cfg.ClipValue, c.cfg.ClipValue) * dt
	c.position.Z += clamp(vz, -c.cfg.ClipValue, c.cfg.ClipValue) * dt

	return c.position
}

// Position returns the current commanded position.
func (c *Camera) Position() Position {
	return c.position
}

// AxisStates exposes the raw per-axis PID state for inspection.
func (c *Camera) AxisStates() (x, y, z pid.State) {
	return c.x, c.y, c.z
}

// clamp keeps value inside [lo, hi].
func clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
