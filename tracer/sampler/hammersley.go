// Package sampler provides the low-discrepancy point sets and the warping
// functions used to turn them into light path samples.
package sampler

import (
	"math"
	"math/bits"

	"github.com/fzbRun/Bidirectional-Instant-Radiosity/types"
)

// 2^-32
const invPow32 = 1.0 / 4294967296.0

// Mirror the binary digits of bits around the radix point. The result lies
// in [0, 1).
func RadicalInverse(value uint32) float32 {
	// Computed in float64; rounding to float32 may otherwise yield 1.0
	// for inputs close to 2^32-1.
	v := float32(float64(bits.Reverse32(value)) * invPow32)
	if v >= 1 {
		v = math.Nextafter32(1, 0)
	}
	return v
}

// Get the i-th point of an n-point Hammersley set: (i/n, RadicalInverse(i)).
// A zero n is treated as a single-point set.
func Hammersley(i, n uint32) types.Vec2 {
	if n == 0 {
		n = 1
	}
	return types.Vec2{float32(float64(i) / float64(n)), RadicalInverse(i)}
}

// Apply a Cranley-Patterson rotation: shift p by offset modulo 1.
func Rotate(p, offset types.Vec2) types.Vec2 {
	return types.Vec2{fract(p[0] + offset[0]), fract(p[1] + offset[1])}
}

func fract(v float32) float32 {
	f := v - float32(math.Floor(float64(v)))
	if f >= 1 {
		f = 0
	}
	return f
}

// A rotated Hammersley stream. Two sequences with different offsets provide
// independent draws for the same slot index.
type Sequence struct {
	// Number of points in the set.
	N uint32

	// Cranley-Patterson offset.
	Offset types.Vec2

	// Swap the coordinates of each point.
	Swap bool
}

// Get the i-th point of the sequence.
func (s Sequence) At(i uint32) types.Vec2 {
	p := Rotate(Hammersley(i, s.N), s.Offset)
	if s.Swap {
		p[0], p[1] = p[1], p[0]
	}
	return p
}
