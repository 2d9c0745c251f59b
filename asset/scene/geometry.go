package scene

import "github.com/fzbRun/Bidirectional-Instant-Radiosity/types"

// Get the number of triangles of a mesh. Out of range mesh indices have no
// triangles.
func (sc *Scene) TriangleCount(mesh int32) int {
	if mesh < 0 || int(mesh) >= len(sc.MeshList) {
		return 0
	}
	return sc.MeshList[mesh].TriangleCount()
}

// Get the vertex positions of a mesh triangle.
func (sc *Scene) Triangle(mesh int32, tri int) (v0, v1, v2 types.Vec3) {
	i0, i1, i2 := sc.triangleIndices(mesh, tri)
	return sc.VertexList[i0].Position.Vec3(),
		sc.VertexList[i1].Position.Vec3(),
		sc.VertexList[i2].Position.Vec3()
}

// Resolve the surface point at barycentric coordinates (u, v) of a mesh
// triangle. The shading normal is interpolated from the vertex normals and
// falls back to the geometric normal when the vertex normals cancel out.
func (sc *Scene) SampleVertexAt(mesh int32, tri int, u, v float32) SampleVertex {
	i0, i1, i2 := sc.triangleIndices(mesh, tri)
	a, b, c := sc.VertexList[i0], sc.VertexList[i1], sc.VertexList[i2]
	w := 1 - u - v

	pos := a.Position.Vec3().Mul(w).Add(b.Position.Vec3().Mul(u)).Add(c.Position.Vec3().Mul(v))
	normal := a.Normal.Vec3().Mul(w).Add(b.Normal.Vec3().Mul(u)).Add(c.Normal.Vec3().Mul(v)).Normalize()
	if normal.LenSq() == 0 {
		p0, p1, p2 := a.Position.Vec3(), b.Position.Vec3(), c.Position.Vec3()
		normal = p1.Sub(p0).Cross(p2.Sub(p0)).Normalize()
	}

	return SampleVertex{
		Position: pos.Vec4(1),
		Normal:   normal.Vec4(0),
		Material: sc.MeshList[mesh].Material,
	}
}

func (sc *Scene) triangleIndices(mesh int32, tri int) (uint32, uint32, uint32) {
	base := sc.MeshList[mesh].FirstIndex + uint32(3*tri)
	return sc.IndexList[base], sc.IndexList[base+1], sc.IndexList[base+2]
}
