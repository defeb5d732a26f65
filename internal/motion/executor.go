package motion

import "visual-servo/internal/protocol"

// Executor defines the interface for a motion-execution backend.
type Executor interface {
	// Accepts reports whether a pose goal is admissible, e.g. inside the
	// backend's reachable workspace. Called once per incoming goal.
	Accepts(pose protocol.Pose) bool

	// Execute carries out an accepted goal, blocking until it finishes.
	// Returns whether execution succeeded.
	Execute(pose protocol.Pose) bool

	// Close releases backend resources.
	Close() error
}
