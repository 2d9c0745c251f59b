package scene

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"

	"github.com/fzbRun/Bidirectional-Instant-Radiosity/types"
	"github.com/olekukonko/tablewriter"
)

// The traversal stack size. Trees whose nodes sit deeper than
// MaxBvhDepth-1 edges below the root are rejected when validated.
const MaxBvhDepth = 64

// Flattened BVH nodes are fixed-size records that are uploaded as-is to
// the compute backend. The record layout (36 bytes, little endian) is:
//
// - [0]  left child index (int32; -1 if absent)
// - [4]  right child index (int32; -1 if absent)
// - [8]  bbox min xyz (3 x float32)
// - [20] bbox max xyz (3 x float32)
// - [32] mesh index (int32; -1 for internal nodes)
//
// A node with both child indices set to -1 is a leaf. The root is always
// stored at index 0.
type BvhNode struct {
	LeftIndex  int32
	RightIndex int32

	Min types.Vec3
	Max types.Vec3

	MeshIndex int32
}

// Create a node with no children and no mesh.
func NewBvhNode(bbox types.AABB) BvhNode {
	return BvhNode{
		LeftIndex:  -1,
		RightIndex: -1,
		Min:        bbox.Min,
		Max:        bbox.Max,
		MeshIndex:  -1,
	}
}

// Set bounding box.
func (n *BvhNode) SetBBox(bbox types.AABB) {
	n.Min = bbox.Min
	n.Max = bbox.Max
}

// Get bounding box.
func (n *BvhNode) BBox() types.AABB {
	return types.AABB{Min: n.Min, Max: n.Max}
}

// Set left and right child node indices.
func (n *BvhNode) SetChildNodes(left, right int32) {
	n.LeftIndex = left
	n.RightIndex = right
}

// Set mesh index.
func (n *BvhNode) SetMeshIndex(index int32) {
	n.MeshIndex = index
}

// Returns true if this node has no children.
func (n *BvhNode) IsLeaf() bool {
	return n.LeftIndex == -1 && n.RightIndex == -1
}

// Surface material parameters.
type Material struct {
	// Layout:
	// [0] roughness
	// [1] metallic
	// [2] index of refraction
	BxdfParams types.Vec4

	// Diffuse reflectance.
	Kd types.Vec4

	// Specular reflectance.
	Ks types.Vec4

	// Emitted radiance.
	Ke types.Vec4
}

// Returns true if the material emits light.
func (m *Material) IsEmissive() bool {
	return m.Ke.Vec3().MaxComponent() > 0
}

// Get surface roughness.
func (m *Material) Roughness() float32 {
	return m.BxdfParams[0]
}

// A vertex as seen by the compute kernels. We use Vec4 for alignment
// purposes; the W component is unused.
type ComputeVertex struct {
	Position types.Vec4
	Normal   types.Vec4
}

// Mesh entries reference a contiguous range of the scene index list.
type MeshRecord struct {
	Material Material

	// First index and index count into the scene index list.
	FirstIndex uint32
	IndexCount uint32

	// Padding so that the record size stays a multiple of 16 bytes.
	_ [2]uint32

	Min types.Vec3
	_   float32
	Max types.Vec3
	_   float32
}

// Set bounding box.
func (m *MeshRecord) SetBBox(bbox types.AABB) {
	m.Min = bbox.Min
	m.Max = bbox.Max
}

// Get bounding box.
func (m *MeshRecord) BBox() types.AABB {
	return types.AABB{Min: m.Min, Max: m.Max}
}

// Get the number of triangles in this mesh.
func (m *MeshRecord) TriangleCount() int {
	return int(m.IndexCount / 3)
}

type Scene struct {
	BvhNodeList []BvhNode
	MeshList    []MeshRecord
	Emitters    []Emitter

	// Geometry is stored as an array of structs; per-vertex uv and tangent
	// data live in separate lists that are indexed like VertexList.
	VertexList  []ComputeVertex
	IndexList   []uint32
	UvList      []types.Vec2
	TangentList []types.Vec4

	// The scene camera.
	Camera *Camera
}

// Build a tabular representation of scene statistics.
func (sc *Scene) Stats() string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Asset Type", "Asset", "Count", "Size"})
	table.Append([]string{"Geometry", "---", "", fmtSize(sc.VertexList, sc.IndexList, sc.UvList, sc.TangentList)})
	table.Append([]string{"", "Vertices", fmt.Sprint(len(sc.VertexList)), fmtSize(sc.VertexList)})
	table.Append([]string{"", "Indices", fmt.Sprint(len(sc.IndexList)), fmtSize(sc.IndexList)})
	table.Append([]string{"", "UVs", fmt.Sprint(len(sc.UvList)), fmtSize(sc.UvList)})
	table.Append([]string{"", "Tangents", fmt.Sprint(len(sc.TangentList)), fmtSize(sc.TangentList)})
	table.Append([]string{" ", " ", " ", " "})
	table.Append([]string{"Acceleration", "---", "", fmtSize(sc.BvhNodeList)})
	table.Append([]string{"", "BVH nodes", fmt.Sprint(len(sc.BvhNodeList)), fmtSize(sc.BvhNodeList)})
	table.Append([]string{" ", " ", " ", " "})
	table.Append([]string{"Meshes/emitters", "---", "", fmtSize(sc.MeshList, sc.Emitters)})
	table.Append([]string{"", "Meshes", fmt.Sprint(len(sc.MeshList)), fmtSize(sc.MeshList)})
	table.Append([]string{"", "Emitters", fmt.Sprint(len(sc.Emitters)), fmtSize(sc.Emitters)})
	table.SetFooter([]string{"Total", " ", " ", strings.TrimLeft(fmtSize(sc.VertexList, sc.IndexList, sc.UvList, sc.TangentList, sc.BvhNodeList, sc.MeshList, sc.Emitters), " ")})

	table.Render()
	return buf.String()
}

// Sum the total space used by a set of slices and return back a formatted
// value with the appropriate byte/kb/mb unit.
func fmtSize(items ...interface{}) string {
	var totalBytes float32 = 0.0
	for _, item := range items {
		t := reflect.TypeOf(item)
		v := reflect.ValueOf(item)
		if v.Len() == 0 {
			continue
		}

		totalBytes += float32(int(t.Elem().Size()) * v.Len())
	}

	if totalBytes < 1e3 {
		return fmt.Sprintf("%3d bytes", int(totalBytes))
	} else if totalBytes < 1e6 {
		return fmt.Sprintf("%3.1f kb", totalBytes/1e3)
	}
	return fmt.Sprintf("%5.1f mb", totalBytes/1e6)
}
