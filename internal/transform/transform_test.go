package transform

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/num/quat"
)

// yaw90 rotates 90 degrees about +z.
func yaw90() quat.Number {
	s := math.Sqrt2 / 2
	return quat.Number{Real: s, Kmag: s}
}

func TestApply_TranslationOnly(t *testing.T) {
	tr := Transform{Translation: Point{X: 1, Y: 2, Z: 3}, Rotation: Identity()}
	got := tr.Apply(Point{X: 0.5, Y: 0, Z: -1})
	assert.InDelta(t, 1.5, got.X, 1e-9)
	assert.InDelta(t, 2.0, got.Y, 1e-9)
	assert.InDelta(t, 2.0, got.Z, 1e-9)
}

func TestApply_Rotation(t *testing.T) {
	tr := Transform{Rotation: yaw90()}
	got := tr.Apply(Point{X: 1, Y: 0, Z: 0})
	assert.InDelta(t, 0, got.X, 1e-9)
	assert.InDelta(t, 1, got.Y, 1e-9)
	assert.InDelta(t, 0, got.Z, 1e-9)
}

func TestInvert_RoundTrip(t *testing.T) {
	tr := Transform{Translation: Point{X: 1, Y: -2, Z: 0.5}, Rotation: yaw90()}
	p := Point{X: 0.3, Y: 0.7, Z: -1.1}

	back := tr.Invert().Apply(tr.Apply(p))

	assert.InDelta(t, p.X, back.X, 1e-9)
	assert.InDelta(t, p.Y, back.Y, 1e-9)
	assert.InDelta(t, p.Z, back.Z, 1e-9)
}

func TestBuffer_LookupErrors(t *testing.T) {
	b := NewBuffer(0)
	b.Set("camera", "world", Transform{Rotation: Identity()})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := b.Transform(ctx, Point{}, "laser", "world", time.Time{})
	assert.ErrorIs(t, err, ErrLookup)

	b.Set("laser", "base", Transform{Rotation: Identity()})
	ctx2, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()

	// Both frames known, but no registered pair between them.
	_, err = b.Transform(ctx2, Point{}, "laser", "world", time.Time{})
	assert.ErrorIs(t, err, ErrConnectivity)
}

func TestBuffer_Extrapolation(t *testing.T) {
	b := NewBuffer(100 * time.Millisecond)
	stamp := time.Now()
	b.Set("camera", "world", Transform{Rotation: Identity(), Stamp: stamp})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := b.Transform(ctx, Point{}, "camera", "world", stamp.Add(time.Second))
	assert.ErrorIs(t, err, ErrExtrapolation)

	got, err := b.Transform(context.Background(), Point{X: 1}, "camera", "world", stamp.Add(50*time.Millisecond))
	require.NoError(t, err)
	assert.InDelta(t, 1, got.X, 1e-9)
}

func TestBuffer_InverseLookup(t *testing.T) {
	b := NewBuffer(0)
	b.Set("camera", "world", Transform{Translation: Point{X: 1}, Rotation: Identity()})

	got, err := b.Transform(context.Background(), Point{X: 1}, "world", "camera", time.Time{})
	require.NoError(t, err)
	assert.InDelta(t, 0, got.X, 1e-9)
}

func TestBuffer_WaitsForTransform(t *testing.T) {
	b := NewBuffer(0)

	done := make(chan Point, 1)
	go func() {
		got, err := b.Transform(context.Background(), Point{X: 1}, "camera", "world", time.Time{})
		if err == nil {
			done <- got
		}
	}()

	time.Sleep(10 * time.Millisecond)
	b.Set("camera", "world", Transform{Translation: Point{Y: 2}, Rotation: Identity()})

	select {
	case got := <-done:
		assert.InDelta(t, 1, got.X, 1e-9)
		assert.InDelta(t, 2, got.Y, 1e-9)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for transform to resolve")
	}
}
