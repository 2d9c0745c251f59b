package bvh

import "github.com/fzbRun/Bidirectional-Instant-Radiosity/asset/scene"

// Check the structural integrity of a flattened node list before it is
// published to the tracer:
//
//   - child indices are -1 or in [1, len(nodes)) and never self-referencing
//   - children are either both set (internal node) or both -1 (leaf)
//   - internal nodes carry no mesh index
//   - leaf mesh indices are in [0, meshCount); only the single-node tree of
//     an empty scene may hold no mesh
//   - every node is reachable exactly once from the root
//   - no node is deeper than scene.MaxBvhDepth-1 so traversal never
//     overflows its fixed stack
func Validate(nodes []scene.BvhNode, meshCount int) error {
	if len(nodes) == 0 {
		return invalid(0, ErrCorruptIndex, "empty node list")
	}

	for index := range nodes {
		node := &nodes[index]
		for _, child := range [2]int32{node.LeftIndex, node.RightIndex} {
			if child == -1 {
				continue
			}
			if child < 1 || int(child) >= len(nodes) {
				return invalid(index, ErrCorruptIndex, "child index %d out of range [1, %d)", child, len(nodes))
			}
			if int(child) == index {
				return invalid(index, ErrCorruptIndex, "node references itself")
			}
		}

		if (node.LeftIndex == -1) != (node.RightIndex == -1) {
			return invalid(index, ErrMalformedLeaf, "node has a single child")
		}

		if !node.IsLeaf() {
			if node.MeshIndex != -1 {
				return invalid(index, ErrMalformedLeaf, "internal node references mesh %d", node.MeshIndex)
			}
			continue
		}

		switch {
		case node.MeshIndex == -1 && len(nodes) != 1:
			return invalid(index, ErrMalformedLeaf, "leaf without mesh")
		case node.MeshIndex < -1 || int(node.MeshIndex) >= meshCount:
			return invalid(index, ErrCorruptIndex, "mesh index %d out of range [0, %d)", node.MeshIndex, meshCount)
		}
	}

	// Walk the tree and make sure that each node is reached exactly once.
	type entry struct {
		index int32
		depth int
	}
	visited := make([]bool, len(nodes))
	stack := []entry{{0, 0}}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[cur.index] {
			return invalid(int(cur.index), ErrCycle, "node reachable through more than one path")
		}
		visited[cur.index] = true

		if cur.depth >= scene.MaxBvhDepth {
			return invalid(int(cur.index), ErrTooDeep, "node depth %d exceeds limit %d", cur.depth, scene.MaxBvhDepth-1)
		}

		node := &nodes[cur.index]
		if !node.IsLeaf() {
			stack = append(stack, entry{node.RightIndex, cur.depth + 1}, entry{node.LeftIndex, cur.depth + 1})
		}
	}

	for index, seen := range visited {
		if !seen {
			return invalid(index, ErrCorruptIndex, "node unreachable from root")
		}
	}

	return nil
}
