package traversal

import (
	"math"

	"github.com/fzbRun/Bidirectional-Instant-Radiosity/types"
)

// Offset applied to secondary ray origins to avoid self intersections.
const RayEpsilon float32 = 1e-4

// A ray segment [TMin, TMax) along Dir.
type Ray struct {
	Origin types.Vec3
	Dir    types.Vec3
	TMin   float32
	TMax   float32
}

// Create a ray with an unbounded extent. The direction is normalized.
func NewRay(origin, dir types.Vec3) Ray {
	return Ray{
		Origin: origin,
		Dir:    dir.Normalize(),
		TMin:   RayEpsilon,
		TMax:   math.MaxFloat32,
	}
}

// Create a ray segment from origin towards target that stops just short of
// the target.
func NewShadowRay(origin, target types.Vec3) Ray {
	delta := target.Sub(origin)
	dist := delta.Len()
	if dist == 0 {
		return Ray{Origin: origin, TMin: 0, TMax: 0}
	}
	return Ray{
		Origin: origin,
		Dir:    delta.Mul(1 / dist),
		TMin:   RayEpsilon,
		TMax:   dist - RayEpsilon,
	}
}

// Get the point at distance t along the ray.
func (r Ray) At(t float32) types.Vec3 {
	return r.Origin.Add(r.Dir.Mul(t))
}

// Get the per-axis reciprocal of the ray direction. Zero components map to
// +/-Inf so the slab test handles axis aligned rays.
func (r Ray) InvDir() types.Vec3 {
	var inv types.Vec3
	for axis := 0; axis < 3; axis++ {
		inv[axis] = 1 / r.Dir[axis]
	}
	return inv
}

// Intersect the ray with a box using the slab method. Returns the entry
// distance clamped to TMin and whether the box overlaps [TMin, TMax).
func IntersectBox(ray Ray, invDir types.Vec3, box types.AABB) (float32, bool) {
	tNear, tFar := ray.TMin, ray.TMax
	for axis := 0; axis < 3; axis++ {
		t0 := (box.Min[axis] - ray.Origin[axis]) * invDir[axis]
		t1 := (box.Max[axis] - ray.Origin[axis]) * invDir[axis]
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		// NaNs (0 * Inf) fail both comparisons and leave the interval as is.
		if t0 > tNear {
			tNear = t0
		}
		if t1 < tFar {
			tFar = t1
		}
		if tNear > tFar {
			return 0, false
		}
	}
	return tNear, true
}

// Intersect the ray with a triangle using the Moller-Trumbore algorithm.
// Returns the hit distance and the barycentric coordinates of the hit
// relative to v1 and v2. Both faces are considered.
func IntersectTriangle(ray Ray, v0, v1, v2 types.Vec3) (t, u, v float32, ok bool) {
	// Relative to the edge lengths so the parallel test is scale invariant.
	const epsilon = 1e-7

	e1 := v1.Sub(v0)
	e2 := v2.Sub(v0)
	p := ray.Dir.Cross(e2)
	det := e1.Dot(p)
	if limit := epsilon * e1.Len() * p.Len(); det == 0 || (det > -limit && det < limit) {
		return 0, 0, 0, false
	}
	invDet := 1 / det

	s := ray.Origin.Sub(v0)
	u = s.Dot(p) * invDet
	if u < 0 || u > 1 {
		return 0, 0, 0, false
	}

	q := s.Cross(e1)
	v = ray.Dir.Dot(q) * invDet
	if v < 0 || u+v > 1 {
		return 0, 0, 0, false
	}

	t = e2.Dot(q) * invDet
	if t < ray.TMin || t >= ray.TMax {
		return 0, 0, 0, false
	}
	return t, u, v, true
}
