package bvh

import (
	"math"
	"sort"
	"time"

	"github.com/fzbRun/Bidirectional-Instant-Radiosity/log"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/types"
)

type Axis uint8

const (
	XAxis Axis = iota
	YAxis
	ZAxis
)

const (
	// The maximum number of meshes that a leaf can hold.
	MaxLeafMeshes = 2

	// The number of split points that the SAH strategy evaluates on
	// the top level node. Deeper levels evaluate fewer candidates.
	maxSplitCandidates = 64

	// The minimum number of split candidates per node.
	minSplitCandidates = 4

	// Skip split candidate generation when the node extent along the
	// split axis is less than this threshold.
	minSideLength float32 = 1e-6
)

var (
	// A split scoring strategy that uses the surface area heuristic (SAH).
	SurfaceAreaHeuristic ScoreStrategy = surfaceAreaHeuristic{}

	// A split strategy that cuts the node box in half along the split axis.
	SpatialMedian ScoreStrategy = spatialMedian{}
)

// The BoundedVolume interface is implemented by all meshes that can be
// partitioned by the bvh builder.
type BoundedVolume interface {
	BBox() types.AABB
	Center() types.Vec3
}

// A split scoring strategy.
type ScoreStrategy interface {
	// Generate candidate split points along axis for a node box.
	SplitCandidates(bbox types.AABB, axis Axis, depth int) []float32

	// Calculate a score for splitting workList at splitPoint along a
	// particular Axis. Lower scores are better; splits that leave one
	// side empty must score math.MaxFloat32.
	ScoreSplit(workList []BoundedVolume, axis Axis, splitPoint float32) (leftCount, rightCount int, score float32)
}

// A node of the construction tree. Nodes are stored in an arena and refer
// to their children by arena index (-1 if absent). A node with no children
// is a leaf holding at most MaxLeafMeshes meshes.
type TreeNode struct {
	Left  int32
	Right int32

	AABB types.AABB

	Meshes    [MaxLeafMeshes]int32
	MeshCount int
}

// Returns true if this node has no children.
func (n *TreeNode) IsLeaf() bool {
	return n.Left == -1 && n.Right == -1
}

// The construction tree built by Build.
type Tree struct {
	// Arena of tree nodes.
	Nodes []TreeNode

	// Root node index.
	Root int32

	// The bounding box of each partitioned item.
	ItemBounds []types.AABB

	LeafCount int
	MaxDepth  int
}

// Returns true if the tree was built from an empty item list. Such trees
// contain a single degenerate leaf with a point box at the origin.
func (t *Tree) Empty() bool {
	return len(t.ItemBounds) == 0
}

// Get the root bounding box.
func (t *Tree) Bounds() types.AABB {
	return t.Nodes[t.Root].AABB
}

// A build option.
type BuildOption func(*builder)

// Select the split scoring strategy. Defaults to SurfaceAreaHeuristic.
func WithScoreStrategy(strategy ScoreStrategy) BuildOption {
	return func(b *builder) {
		b.scoreStrategy = strategy
	}
}

// Set the number of items that are packed into a leaf. Values are clamped
// to [1, MaxLeafMeshes].
func WithMaxLeafItems(count int) BuildOption {
	return func(b *builder) {
		switch {
		case count < 1:
			b.maxLeafItems = 1
		case count > MaxLeafMeshes:
			b.maxLeafItems = MaxLeafMeshes
		default:
			b.maxLeafItems = count
		}
	}
}

type splitScore struct {
	splitPoint float32

	leftCount, rightCount int
	score                 float32
}

type builder struct {
	logger log.Logger

	items []BoundedVolume
	tree  *Tree

	maxLeafItems int

	// A channel for receiving score results.
	scoreChan chan splitScore

	// The split scoring strategy to use.
	scoreStrategy ScoreStrategy
}

// Construct a BVH from a set of bounded volumes. Leaf nodes refer to items
// by their index in workList.
//
// Each node is split along the axis where its box has the greatest extent.
// Split candidates are scored in parallel by the selected ScoreStrategy; if
// no candidate produces two non-empty partitions the builder falls back to
// an object median split so that every leaf ends up with at most
// MaxLeafMeshes items.
func Build(workList []BoundedVolume, opts ...BuildOption) *Tree {
	b := &builder{
		logger:        log.New("bvh builder"),
		items:         workList,
		maxLeafItems:  MaxLeafMeshes,
		scoreChan:     make(chan splitScore),
		scoreStrategy: SurfaceAreaHeuristic,
		tree: &Tree{
			Nodes:      make([]TreeNode, 0, 2*len(workList)),
			ItemBounds: make([]types.AABB, len(workList)),
		},
	}
	for _, opt := range opts {
		opt(b)
	}

	if len(workList) == 0 {
		b.tree.Nodes = append(b.tree.Nodes, TreeNode{Left: -1, Right: -1, Meshes: [MaxLeafMeshes]int32{-1, -1}})
		b.tree.LeafCount = 1
		b.logger.Warning("no meshes to partition; emitting a degenerate leaf")
		return b.tree
	}

	indices := make([]int32, len(workList))
	for index, item := range workList {
		indices[index] = int32(index)
		b.tree.ItemBounds[index] = item.BBox()
	}

	start := time.Now()
	b.tree.Root = b.partition(indices, 0)
	b.logger.Debugf(
		"BVH tree build time: %d ms, maxDepth: %d, nodes: %d, leafs: %d",
		time.Since(start).Nanoseconds()/1e6,
		b.tree.MaxDepth, len(b.tree.Nodes), b.tree.LeafCount,
	)
	return b.tree
}

// Partition the work list and return the node index.
func (b *builder) partition(workList []int32, depth int) int32 {
	if depth > b.tree.MaxDepth {
		b.tree.MaxDepth = depth
	}

	node := TreeNode{Left: -1, Right: -1, AABB: types.EmptyAABB(), Meshes: [MaxLeafMeshes]int32{-1, -1}}
	for _, item := range workList {
		node.AABB = node.AABB.Union(b.tree.ItemBounds[item])
	}

	if len(workList) <= b.maxLeafItems {
		for index, item := range workList {
			node.Meshes[index] = item
		}
		node.MeshCount = len(workList)
		b.tree.LeafCount++
		b.tree.Nodes = append(b.tree.Nodes, node)
		return int32(len(b.tree.Nodes) - 1)
	}

	axis := Axis(node.AABB.LongestAxis())
	left, right := b.split(workList, node.AABB, axis, depth)

	nodeIndex := len(b.tree.Nodes)
	b.tree.Nodes = append(b.tree.Nodes, node)

	leftNodeIndex := b.partition(left, depth+1)
	rightNodeIndex := b.partition(right, depth+1)
	b.tree.Nodes[nodeIndex].Left = leftNodeIndex
	b.tree.Nodes[nodeIndex].Right = rightNodeIndex

	return int32(nodeIndex)
}

// Split the work list into two non-empty sets.
func (b *builder) split(workList []int32, bbox types.AABB, axis Axis, depth int) ([]int32, []int32) {
	volumes := make([]BoundedVolume, len(workList))
	for index, item := range workList {
		volumes[index] = b.items[item]
	}

	var bestSplit *splitScore
	var candidates []float32
	if bbox.Extent()[axis] >= minSideLength {
		candidates = b.scoreStrategy.SplitCandidates(bbox, axis, depth)
	}

	// Run split tests in parallel
	for _, splitPoint := range candidates {
		go func(splitPoint float32) {
			lCount, rCount, score := b.scoreStrategy.ScoreSplit(volumes, axis, splitPoint)
			b.scoreChan <- splitScore{
				splitPoint: splitPoint,
				leftCount:  lCount,
				rightCount: rCount,
				score:      score,
			}
		}(splitPoint)
	}

	// Process all scores and pick the best split. Ties are resolved in
	// favor of the lower split point so that builds are reproducible.
	for pendingScores := len(candidates); pendingScores > 0; pendingScores-- {
		candidate := <-b.scoreChan
		if candidate.leftCount == 0 || candidate.rightCount == 0 || candidate.score == math.MaxFloat32 {
			continue
		}
		if bestSplit == nil || candidate.score < bestSplit.score ||
			(candidate.score == bestSplit.score && candidate.splitPoint < bestSplit.splitPoint) {
			c := candidate
			bestSplit = &c
		}
	}

	if bestSplit == nil {
		return objectMedianSplit(workList, volumes, axis)
	}

	left := make([]int32, 0, bestSplit.leftCount)
	right := make([]int32, 0, bestSplit.rightCount)
	for index, item := range workList {
		if volumes[index].Center()[axis] < bestSplit.splitPoint {
			left = append(left, item)
		} else {
			right = append(right, item)
		}
	}
	return left, right
}

// Sort items by their center along axis and split the list in half.
func objectMedianSplit(workList []int32, volumes []BoundedVolume, axis Axis) ([]int32, []int32) {
	order := make([]int, len(workList))
	for index := range order {
		order[index] = index
	}
	sort.SliceStable(order, func(i, j int) bool {
		return volumes[order[i]].Center()[axis] < volumes[order[j]].Center()[axis]
	})

	sorted := make([]int32, len(workList))
	for index, src := range order {
		sorted[index] = workList[src]
	}
	mid := len(sorted) / 2
	return sorted[:mid], sorted[mid:]
}

// A score implementation that uses surface area heuristic for calculating split scores.
type surfaceAreaHeuristic struct{}

// Generate evenly spaced split points. Split steps become coarser the deeper
// we go since nodes hold fewer items.
func (h surfaceAreaHeuristic) SplitCandidates(bbox types.AABB, axis Axis, depth int) []float32 {
	count := maxSplitCandidates / (depth + 1)
	if count < minSplitCandidates {
		count = minSplitCandidates
	}

	side := bbox.Extent()[axis]
	step := side / float32(count+1)
	candidates := make([]float32, count)
	for index := range candidates {
		candidates[index] = bbox.Min[axis] + step*float32(index+1)
	}
	return candidates
}

// Score a BVH split based on the surface area heuristic. The SAH calculates
// the split score using the formula (lower score is better):
//
// left count * left BBOX area + rightCount * right BBOX area.
//
// SAH avoids splits that generate empty partitions by assigning the worst
// possible score (MaxFloat32) when it enounters such cases.
func (h surfaceAreaHeuristic) ScoreSplit(workList []BoundedVolume, axis Axis, splitPoint float32) (leftCount, rightCount int, score float32) {
	lbox := types.EmptyAABB()
	rbox := types.EmptyAABB()

	for _, item := range workList {
		if item.Center()[axis] < splitPoint {
			leftCount++
			lbox = lbox.Union(item.BBox())
		} else {
			rightCount++
			rbox = rbox.Union(item.BBox())
		}
	}

	// Make sure that we don't generate empty partitions
	if leftCount == 0 || rightCount == 0 {
		return leftCount, rightCount, math.MaxFloat32
	}

	score = float32(leftCount)*lbox.SurfaceArea() + float32(rightCount)*rbox.SurfaceArea()
	return leftCount, rightCount, score
}

type spatialMedian struct{}

func (s spatialMedian) SplitCandidates(bbox types.AABB, axis Axis, _ int) []float32 {
	return []float32{bbox.Center()[axis]}
}

// Every split that produces two non-empty partitions scores the same.
func (s spatialMedian) ScoreSplit(workList []BoundedVolume, axis Axis, splitPoint float32) (leftCount, rightCount int, score float32) {
	for _, item := range workList {
		if item.Center()[axis] < splitPoint {
			leftCount++
		} else {
			rightCount++
		}
	}

	if leftCount == 0 || rightCount == 0 {
		return leftCount, rightCount, math.MaxFloat32
	}
	return leftCount, rightCount, 0
}
