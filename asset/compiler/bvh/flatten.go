package bvh

import "github.com/fzbRun/Bidirectional-Instant-Radiosity/asset/scene"

// LeafPolicy controls how leaves holding two meshes are flattened.
type LeafPolicy uint8

const (
	// Flattened leaves reference the first mesh of the construction leaf;
	// the second mesh is dropped and reported by FlattenStats. The output
	// has exactly one entry per construction node.
	KeepFirstMesh LeafPolicy = iota

	// Two-mesh leaves are emitted as an internal node with two single-mesh
	// leaves so no geometry is lost.
	SplitLeaves
)

func (p LeafPolicy) String() string {
	switch p {
	case KeepFirstMesh:
		return "keep-first"
	case SplitLeaves:
		return "split-leaves"
	}
	return "unknown"
}

// Statistics collected while flattening a tree.
type FlattenStats struct {
	Nodes  int
	Leaves int

	// Meshes dropped by the KeepFirstMesh policy.
	DroppedMeshes int

	// Construction leaves expanded by the SplitLeaves policy.
	SplitLeaves int
}

type flattener struct {
	tree    *Tree
	policy  LeafPolicy
	out     []scene.BvhNode
	visited []bool
	stats   FlattenStats
}

// Flatten a construction tree into a pre-order node list with the root at
// index 0. Child indices always point forward; absent children are -1.
func Flatten(tree *Tree, policy LeafPolicy) ([]scene.BvhNode, FlattenStats, error) {
	if tree == nil || len(tree.Nodes) == 0 {
		return nil, FlattenStats{}, invalid(0, ErrCorruptIndex, "empty construction tree")
	}

	f := &flattener{
		tree:    tree,
		policy:  policy,
		out:     make([]scene.BvhNode, 0, len(tree.Nodes)+tree.LeafCount),
		visited: make([]bool, len(tree.Nodes)),
	}
	if _, err := f.emit(tree.Root); err != nil {
		return nil, FlattenStats{}, err
	}

	f.stats.Nodes = len(f.out)
	return f.out, f.stats, nil
}

func (f *flattener) emit(nodeIndex int32) (int32, error) {
	if nodeIndex < 0 || int(nodeIndex) >= len(f.tree.Nodes) {
		return -1, invalid(int(nodeIndex), ErrCorruptIndex, "arena index out of range [0, %d)", len(f.tree.Nodes))
	}
	if f.visited[nodeIndex] {
		return -1, invalid(int(nodeIndex), ErrCycle, "construction node visited twice")
	}
	f.visited[nodeIndex] = true

	node := &f.tree.Nodes[nodeIndex]
	outIndex := int32(len(f.out))
	f.out = append(f.out, scene.NewBvhNode(node.AABB))

	if node.IsLeaf() {
		return outIndex, f.emitLeaf(outIndex, node)
	}
	if node.Left == -1 || node.Right == -1 {
		return -1, invalid(int(nodeIndex), ErrMalformedLeaf, "internal node with a single child")
	}

	left, err := f.emit(node.Left)
	if err != nil {
		return -1, err
	}
	right, err := f.emit(node.Right)
	if err != nil {
		return -1, err
	}
	f.out[outIndex].SetChildNodes(left, right)
	return outIndex, nil
}

func (f *flattener) emitLeaf(outIndex int32, node *TreeNode) error {
	if node.MeshCount < 0 || node.MeshCount > MaxLeafMeshes {
		return invalid(int(outIndex), ErrMalformedLeaf, "leaf holds %d meshes", node.MeshCount)
	}

	if node.MeshCount == 0 {
		f.stats.Leaves++
		return nil
	}

	if node.MeshCount == 1 || f.policy == KeepFirstMesh {
		f.out[outIndex].SetMeshIndex(node.Meshes[0])
		f.stats.DroppedMeshes += node.MeshCount - 1
		f.stats.Leaves++
		return nil
	}

	// Expand into an internal node with one leaf per mesh.
	f.stats.SplitLeaves++
	var children [MaxLeafMeshes]int32
	for index := 0; index < node.MeshCount; index++ {
		mesh := node.Meshes[index]
		if mesh < 0 || int(mesh) >= len(f.tree.ItemBounds) {
			return invalid(int(outIndex), ErrCorruptIndex, "mesh index %d out of range", mesh)
		}
		leaf := scene.NewBvhNode(f.tree.ItemBounds[mesh])
		leaf.SetMeshIndex(mesh)
		children[index] = int32(len(f.out))
		f.out = append(f.out, leaf)
		f.stats.Leaves++
	}
	f.out[outIndex].SetChildNodes(children[0], children[1])
	return nil
}
