// Package transform resolves points between coordinate frames. A Buffer
// holds stamped rigid transforms (translation + unit quaternion rotation)
// between named frames and classifies failures the way the tracking node
// needs to report them: unknown frame, unconnected frames, or a stamp
// outside the transform's validity window.
package transform

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gonum.org/v1/gonum/num/quat"
)

// Failure classes. Callers treat all three as recoverable: the detection
// that triggered the lookup is dropped and logged.
var (
	ErrLookup        = errors.New("transform: unknown frame")
	ErrConnectivity  = errors.New("transform: frames not connected")
	ErrExtrapolation = errors.New("transform: stamp outside validity window")
)

// Point is a position in some coordinate frame, in meters.
type Point struct {
	X, Y, Z float64
}

// Transform is a stamped rigid transform from one frame to another.
type Transform struct {
	Translation Point
	Rotation    quat.Number // unit quaternion
	Stamp       time.Time
}

// Identity returns the identity rotation.
func Identity() quat.Number {
	return quat.Number{Real: 1}
}

// Apply maps p through the transform: rotate, then translate.
func (t Transform) Apply(p Point) Point {
	r := rotate(t.Rotation, p)
	return Point{
		X: r.X + t.Translation.X,
		Y: r.Y + t.Translation.Y,
		Z: r.Z + t.Translation.Z,
	}
}

// Invert returns the inverse transform.
func (t Transform) Invert() Transform {
	inv := quat.Conj(t.Rotation)
	nt := rotate(inv, t.Translation)
	return Transform{
		Translation: Point{X: -nt.X, Y: -nt.Y, Z: -nt.Z},
		Rotation:    inv,
		Stamp:       t.Stamp,
	}
}

// rotate applies q p q* with p embedded as a pure quaternion.
func rotate(q quat.Number, p Point) Point {
	v := quat.Number{Imag: p.X, Jmag: p.Y, Kmag: p.Z}
	r := quat.Mul(quat.Mul(q, v), quat.Conj(q))
	return Point{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}

// Provider resolves a point from one frame to another, waiting up to the
// context deadline for the transform to become available.
type Provider interface {
	Transform(ctx context.Context, p Point, from, to string, at time.Time) (Point, error)
}

type frameKey struct {
	from, to string
}

// Buffer is an in-memory Provider. Transforms are registered per directed
// frame pair; lookups also match the inverse pair. There is no multi-hop
// chaining: two known frames without a registered pair are reported as
// unconnected.
type Buffer struct {
	mu       sync.RWMutex
	entries  map[frameKey]Transform
	frames   map[string]bool
	validity time.Duration // 0 disables the extrapolation check
	updated  chan struct{} // closed and replaced on every Set
}

// NewBuffer creates an empty buffer. validity bounds how far a lookup stamp
// may drift from a transform's stamp before the lookup is classified as
// extrapolation; zero disables the check.
func NewBuffer(validity time.Duration) *Buffer {
	return &Buffer{
		entries:  make(map[frameKey]Transform),
		frames:   make(map[string]bool),
		validity: validity,
		updated:  make(chan struct{}),
	}
}

// Set registers (or replaces) the transform from one frame to another and
// wakes any lookup waiting for it.
func (b *Buffer) Set(from, to string, tr Transform) {
	b.mu.Lock()
	b.entries[frameKey{from, to}] = tr
	b.frames[from] = true
	b.frames[to] = true
	close(b.updated)
	b.updated = make(chan struct{})
	b.mu.Unlock()
}

// Transform resolves p from one frame to another at the given stamp. If the
// transform is not yet available it waits until it is or until ctx expires,
// whichever comes first; on expiry the last classification is returned.
func (b *Buffer) Transform(ctx context.Context, p Point, from, to string, at time.Time) (Point, error) {
	for {
		out, wait, err := b.tryTransform(p, from, to, at)
		if err == nil {
			return out, nil
		}
		select {
		case <-ctx.Done():
			return Point{}, err
		case <-wait:
		}
	}
}

func (b *Buffer) tryTransform(p Point, from, to string, at time.Time) (Point, <-chan struct{}, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	tr, ok := b.entries[frameKey{from, to}]
	if !ok {
		if inv, found := b.entries[frameKey{to, from}]; found {
			tr, ok = inv.Invert(), true
		}
	}
	if !ok {
		if !b.frames[from] || !b.frames[to] {
			return Point{}, b.updated, fmt.Errorf("%w: %q -> %q", ErrLookup, from, to)
		}
		return Point{}, b.updated, fmt.Errorf("%w: %q -> %q", ErrConnectivity, from, to)
	}

	if b.validity > 0 && !at.IsZero() {
		drift := at.Sub(tr.Stamp)
		if drift < 0 {
			drift = -drift
		}
		if drift > b.validity {
			return Point{}, b.updated, fmt.Errorf("%w: %q -> %q at %s (transform stamped %s)",
				ErrExtrapolation, from, to, at.Format(time.RFC3339Nano), tr.Stamp.Format(time.RFC3339Nano))
		}
	}

	return tr.Apply(p), nil, nil
}
