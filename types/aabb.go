package types

import "math"

// An axis aligned bounding box. Point boxes (Min == Max) are valid.
type AABB struct {
	Min Vec3
	Max Vec3
}

// Create an inverted box that acts as the identity element for Union/Extend.
func EmptyAABB() AABB {
	return AABB{
		Min: Vec3{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32},
		Max: Vec3{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32},
	}
}

// Returns true if the box does not enclose any point.
func (b AABB) IsEmpty() bool {
	return b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] || b.Min[2] > b.Max[2]
}

// Grow box to include point p.
func (b AABB) Extend(p Vec3) AABB {
	return AABB{Min: MinVec3(b.Min, p), Max: MaxVec3(b.Max, p)}
}

// Get the union of two boxes.
func (b AABB) Union(b2 AABB) AABB {
	return AABB{Min: MinVec3(b.Min, b2.Min), Max: MaxVec3(b.Max, b2.Max)}
}

// Get box side lengths.
func (b AABB) Extent() Vec3 {
	if b.IsEmpty() {
		return Vec3{}
	}
	return b.Max.Sub(b.Min)
}

// Get box center.
func (b AABB) Center() Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Get the index of the axis with the greatest extent. Ties favor the lower axis.
func (b AABB) LongestAxis() int {
	side := b.Extent()
	axis := 0
	if side[1] > side[axis] {
		axis = 1
	}
	if side[2] > side[axis] {
		axis = 2
	}
	return axis
}

// Get box surface area.
func (b AABB) SurfaceArea() float32 {
	side := b.Extent()
	return 2 * (side[0]*side[1] + side[1]*side[2] + side[0]*side[2])
}

// Check whether box b2 is enclosed by this box.
func (b AABB) Contains(b2 AABB) bool {
	for axis := 0; axis < 3; axis++ {
		if b2.Min[axis] < b.Min[axis] || b2.Max[axis] > b.Max[axis] {
			return false
		}
	}
	return true
}
