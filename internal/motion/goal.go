// Package motion dispatches pose goals to the motion-execution service and
// tracks each goal's accept/reject decision and terminal result without
// blocking the caller.
package motion

import (
	"fmt"
	"sync"
)

// Outcome is the lifecycle state of a dispatched goal. Transitions are
// monotonic: once a goal reaches Rejected, Succeeded, or Failed it never
// changes again.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeAccepted
	OutcomeRejected
	OutcomeSucceeded
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "PENDING"
	case OutcomeAccepted:
		return "ACCEPTED"
	case OutcomeRejected:
		return "REJECTED"
	case OutcomeSucceeded:
		return "SUCCEEDED"
	case OutcomeFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Terminal reports whether no further transition is possible.
func (o Outcome) Terminal() bool {
	return o == OutcomeRejected || o == OutcomeSucceeded || o == OutcomeFailed
}

// Goal is the handle for one in-flight request. Goals are independent;
// dispatching a new goal does not cancel earlier ones.
type Goal struct {
	ID       string
	Position [3]float64

	mu      sync.Mutex
	outcome Outcome
	done    chan struct{}
}

func newGoal(id string, pos [3]float64) *Goal {
	return &Goal{
		ID:       id,
		Position: pos,
		done:     make(chan struct{}),
	}
}

// Outcome returns the goal's current state.
func (g *Goal) Outcome() Outcome {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.outcome
}

// Done is closed when the goal reaches a terminal outcome.
func (g *Goal) Done() <-chan struct{} {
	return g.done
}

// resolve applies a transition if it is legal and reports whether it took
// effect. Legal transitions: Pending -> Accepted/Rejected/Failed and
// Pending/Accepted -> Succeeded/Failed. Everything else is ignored.
func (g *Goal) resolve(next Outcome) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.outcome.Terminal() {
		return false
	}
	switch next {
	case OutcomeAccepted, OutcomeRejected:
		if g.outcome != OutcomePending {
			return false
		}
	case OutcomeSucceeded, OutcomeFailed:
		// fine from Pending (send failure) or Accepted
	default:
		return false
	}

	g.outcome = next
	if next.Terminal() {
		close(g.done)
	}
	return true
}
