// Package traversal implements nearest-hit and occlusion queries against a
// flattened BVH.
package traversal

import (
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/asset/scene"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/types"
)

// The traversal stack depth. bvh.Validate rejects trees that could
// overflow it.
const maxStackDepth = scene.MaxBvhDepth

// Geometry provides the triangles referenced by BVH leaves.
type Geometry interface {
	TriangleCount(mesh int32) int
	Triangle(mesh int32, tri int) (v0, v1, v2 types.Vec3)
}

// The result of a nearest-hit query.
type Hit struct {
	Mesh     int32
	Triangle int32

	// Hit distance and barycentric coordinates.
	T float32
	U float32
	V float32

	Valid bool
}

// The zero hit with all indices set to -1.
var Miss = Hit{Mesh: -1, Triangle: -1}

// Find the nearest intersection of the ray with the geometry referenced by
// the BVH leaves.
func Intersect(nodes []scene.BvhNode, geom Geometry, ray Ray) Hit {
	hit := Miss
	traverse(nodes, geom, ray, func(mesh int32, tri int, t, u, v float32) bool {
		hit = Hit{Mesh: mesh, Triangle: int32(tri), T: t, U: u, V: v, Valid: true}
		return false
	})
	return hit
}

// Returns true if any geometry blocks the segment between origin and target.
func Occluded(nodes []scene.BvhNode, geom Geometry, origin, target types.Vec3) bool {
	return OccludedRay(nodes, geom, NewShadowRay(origin, target))
}

// Returns true if the ray hits any geometry within [TMin, TMax).
func OccludedRay(nodes []scene.BvhNode, geom Geometry, ray Ray) bool {
	occluded := false
	traverse(nodes, geom, ray, func(int32, int, float32, float32, float32) bool {
		occluded = true
		return true
	})
	return occluded
}

// Walk the BVH with an explicit stack visiting the nearer child first. The
// onHit callback is invoked for every triangle hit closer than the current
// ray extent; returning true stops the traversal.
func traverse(nodes []scene.BvhNode, geom Geometry, ray Ray, onHit func(mesh int32, tri int, t, u, v float32) bool) {
	if len(nodes) == 0 || ray.TMax <= ray.TMin {
		return
	}

	invDir := ray.InvDir()
	if _, ok := IntersectBox(ray, invDir, nodes[0].BBox()); !ok {
		return
	}

	var stack [maxStackDepth]int32
	stack[0] = 0
	sp := 1
	for sp > 0 {
		sp--
		node := &nodes[stack[sp]]

		if node.IsLeaf() {
			if node.MeshIndex < 0 {
				continue
			}
			triCount := geom.TriangleCount(node.MeshIndex)
			for tri := 0; tri < triCount; tri++ {
				v0, v1, v2 := geom.Triangle(node.MeshIndex, tri)
				t, u, v, ok := IntersectTriangle(ray, v0, v1, v2)
				if !ok {
					continue
				}
				ray.TMax = t
				if onHit(node.MeshIndex, tri, t, u, v) {
					return
				}
			}
			continue
		}

		left, right := node.LeftIndex, node.RightIndex
		tLeft, hitLeft := IntersectBox(ray, invDir, nodes[left].BBox())
		tRight, hitRight := IntersectBox(ray, invDir, nodes[right].BBox())

		// Push the far child first so the near child is popped next.
		if hitLeft && hitRight && tRight < tLeft {
			left, right = right, left
			hitLeft, hitRight = hitRight, hitLeft
		}
		if hitRight && sp < maxStackDepth {
			stack[sp] = right
			sp++
		}
		if hitLeft && sp < maxStackDepth {
			stack[sp] = left
			sp++
		}
	}
}
