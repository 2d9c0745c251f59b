package sampler

import (
	"math"

	"github.com/fzbRun/Bidirectional-Instant-Radiosity/types"
)

// Map u to a cosine weighted direction on the +Z hemisphere. Returns the
// direction and its solid angle density cos(theta)/pi.
func CosineHemisphere(u types.Vec2) (types.Vec3, float32) {
	r := math.Sqrt(float64(u[0]))
	phi := 2 * math.Pi * float64(u[1])
	z := float32(math.Sqrt(math.Max(0, 1-float64(u[0]))))
	dir := types.Vec3{float32(r * math.Cos(phi)), float32(r * math.Sin(phi)), z}
	return dir, z / math.Pi
}

// Map u to a uniformly distributed direction on the unit sphere. Returns the
// direction and its density 1/(4pi).
func UniformSphere(u types.Vec2) (types.Vec3, float32) {
	z := 1 - 2*float64(u[0])
	r := math.Sqrt(math.Max(0, 1-z*z))
	phi := 2 * math.Pi * float64(u[1])
	dir := types.Vec3{float32(r * math.Cos(phi)), float32(r * math.Sin(phi)), float32(z)}
	return dir, 1 / (4 * math.Pi)
}

// Map u to uniformly distributed barycentric coordinates (b1, b2) of a
// triangle.
func UniformTriangle(u types.Vec2) (float32, float32) {
	su := float32(math.Sqrt(float64(u[0])))
	return 1 - su, u[1] * su
}

// Build an orthonormal basis (t, b) around the unit vector n.
func OrthonormalBasis(n types.Vec3) (types.Vec3, types.Vec3) {
	// Frisvad's construction with the branch free sign fix.
	sign := float32(math.Copysign(1, float64(n[2])))
	a := -1 / (sign + n[2])
	b := n[0] * n[1] * a
	t := types.Vec3{1 + sign*n[0]*n[0]*a, sign * b, -sign * n[0]}
	bt := types.Vec3{b, sign + n[1]*n[1]*a, -n[1]}
	return t, bt
}

// Transform a local (+Z up) direction to the frame around n.
func ToWorld(local, n types.Vec3) types.Vec3 {
	t, b := OrthonormalBasis(n)
	return t.Mul(local[0]).Add(b.Mul(local[1])).Add(n.Mul(local[2]))
}
