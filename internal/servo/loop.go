package servo

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// Phase is the control loop's lifecycle state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhaseConverged
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseRunning:
		return "RUNNING"
	case PhaseConverged:
		return "CONVERGED"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Loop drives a Camera at a fixed rate toward the most recent target.
//
// One goroutine owns the camera, the ticker, and the phase transitions, so
// there is never more than one active ticker per loop: a target arriving
// while Running only swaps the setpoints in place. On convergence the ticker
// is stopped and the loop sits Converged until the next target.
//
// Ticks are periodic relative to the wall clock; neither publishing nor goal
// dispatch may block the tick, so both callbacks must return promptly.
type Loop struct {
	cam *Camera
	cfg Config

	// onPosition is invoked with the updated position once per stepping
	// tick. dispatch forwards the position to the motion service. Either
	// may be nil.
	onPosition func(Position)
	dispatch   func(Position)

	targets chan Position
	stopCh  chan struct{}
	done    chan struct{}

	mu    sync.Mutex
	phase Phase
}

// NewLoop creates a loop around cam. Call Start to begin processing targets.
func NewLoop(cam *Camera, onPosition, dispatch func(Position)) *Loop {
	return &Loop{
		cam:        cam,
		cfg:        cam.cfg,
		onPosition: onPosition,
		dispatch:   dispatch,
		targets:    make(chan Position, 1),
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start launches the loop goroutine.
func (l *Loop) Start() {
	go l.run()
}

// SetTarget hands the loop a new target without blocking. If a target is
// already queued but not yet consumed, it is superseded.
func (l *Loop) SetTarget(target Position) {
	for {
		select {
		case l.targets <- target:
			return
		default:
			// Drop the stale queued target and try again.
			select {
			case <-l.targets:
			default:
			}
		}
	}
}

// Phase returns the loop's current lifecycle state.
func (l *Loop) Phase() Phase {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.phase
}

// Stop terminates the loop goroutine and waits for it to exit.
func (l *Loop) Stop() {
	close(l.stopCh)
	<-l.done
}

func (l *Loop) setPhase(p Phase) {
	l.mu.Lock()
	l.phase = p
	l.mu.Unlock()
}

func (l *Loop) run() {
	defer close(l.done)

	var ticker *time.Ticker
	var tick <-chan time.Time

	stopTicker := func() {
		if ticker != nil {
			ticker.Stop()
			ticker = nil
			tick = nil
		}
	}
	defer stopTicker()

	for {
		select {
		case <-l.stopCh:
			return

		case target := <-l.targets:
			l.cam.SetGoal(target)
			if ticker == nil {
				ticker = time.NewTicker(l.cfg.Gains.SamplePeriod)
				tick = ticker.C
			}
			l.setPhase(PhaseRunning)

		case now := <-tick:
			ex, ey, ez := l.cam.Error()
			if ex < l.cfg.PlanarThreshold && ey < l.cfg.PlanarThreshold && ez < l.cfg.DepthThreshold {
				stopTicker()
				l.setPhase(PhaseConverged)
				log.Printf("servo: reached target position at %s", l.cam.Position())
				continue
			}

			pos := l.cam.Step(now)
			if l.onPosition != nil {
				l.onPosition(pos)
			}
			if l.dispatch != nil {
				l.dispatch(pos)
			}
		}
	}
}
