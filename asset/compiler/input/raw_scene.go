package input

import (
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/types"
)

type Material struct {
	Name string

	// Diffuse, specular and emissive terms.
	Kd types.Vec3
	Ks types.Vec3
	Ke types.Vec3

	Roughness float32
	Metallic  float32
	IOR       float32

	// True if material is referenced by scene geometry.
	Used bool
}

// Create a material with a neutral grey diffuse term.
func NewMaterial(name string) *Material {
	return &Material{
		Name:      name,
		Kd:        types.Vec3{0.8, 0.8, 0.8},
		Roughness: 1,
		IOR:       1,
	}
}

// A mesh vertex.
type Vertex struct {
	Position types.Vec3
	TexCoord types.Vec2
	Normal   types.Vec3
	Tangent  types.Vec3
}

// A mesh is an indexed triangle list sharing a single material.
type Mesh struct {
	Name          string
	Vertices      []Vertex
	Indices       []uint32
	MaterialIndex int

	bbox            types.AABB
	bboxNeedsUpdate bool
}

// Create a new mesh.
func NewMesh(name string) *Mesh {
	return &Mesh{
		Name:            name,
		Vertices:        make([]Vertex, 0),
		Indices:         make([]uint32, 0),
		bboxNeedsUpdate: true,
	}
}

// Append a triangle to the mesh.
func (m *Mesh) AddTriangle(v0, v1, v2 Vertex) {
	base := uint32(len(m.Vertices))
	m.Vertices = append(m.Vertices, v0, v1, v2)
	m.Indices = append(m.Indices, base, base+1, base+2)
	m.bboxNeedsUpdate = true
}

// Get the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// Mark the bbox of this mesh as dirty.
func (m *Mesh) MarkBBoxDirty() {
	m.bboxNeedsUpdate = true
}

// Get mesh bounding box. An empty mesh yields the empty box.
func (m *Mesh) BBox() types.AABB {
	if m.bboxNeedsUpdate {
		m.bbox = types.EmptyAABB()
		for _, index := range m.Indices {
			m.bbox = m.bbox.Extend(m.Vertices[index].Position)
		}
		m.bboxNeedsUpdate = false
	}

	return m.bbox
}

// Get mesh AABB center.
func (m *Mesh) Center() types.Vec3 {
	return m.BBox().Center()
}

type LightType uint8

const (
	PointLight LightType = iota
	QuadLight
)

// An explicit light source. Emissive materials are turned into lights by the
// compiler and are not listed here.
type Light struct {
	Type LightType

	// Point light position or quad center.
	Position types.Vec3

	// Point light emission axis; zero for omni-directional lights.
	Normal types.Vec3

	// Quad edges.
	EdgeU types.Vec3
	EdgeV types.Vec3

	// Emitted flux (rgb).
	Power types.Vec3
}

// Camera settings.
type Camera struct {
	FOV  float32
	Eye  types.Vec3
	Look types.Vec3
	Up   types.Vec3
}

// The scene contains all elements that are processed and optimized by the
// scene compiler.
type Scene struct {
	Meshes    []*Mesh
	Materials []*Material
	Lights    []*Light
	Camera    *Camera
}

// Create a new scene.
func NewScene() *Scene {
	return &Scene{
		Meshes:    make([]*Mesh, 0),
		Materials: make([]*Material, 0),
		Lights:    make([]*Light, 0),
		Camera: &Camera{
			FOV:  45.0,
			Eye:  types.Vec3{0, 0, 0},
			Look: types.Vec3{0, 0, -1},
			Up:   types.Vec3{0, 1, 0},
		},
	}
}
