package compiler

import (
	"testing"

	"github.com/fzbRun/Bidirectional-Instant-Radiosity/asset/compiler/bvh"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/asset/compiler/input"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/types"
)

func quadMesh(name string, y float32, material int) *input.Mesh {
	mesh := input.NewMesh(name)
	mesh.MaterialIndex = material
	n := types.Vec3{0, 1, 0}
	v := func(x, z float32) input.Vertex {
		return input.Vertex{Position: types.Vec3{x, y, z}, Normal: n}
	}
	mesh.AddTriangle(v(-1, -1), v(-1, 1), v(1, 1))
	mesh.AddTriangle(v(-1, -1), v(1, 1), v(1, -1))
	return mesh
}

func testScene() *input.Scene {
	sc := input.NewScene()

	floor := input.NewMaterial("floor")
	floor.Used = true
	lamp := input.NewMaterial("lamp")
	lamp.Ke = types.Vec3{5, 5, 5}
	lamp.Used = true
	sc.Materials = append(sc.Materials, floor, lamp)

	sc.Meshes = append(sc.Meshes,
		quadMesh("floor", 0, 0),
		input.NewMesh("empty"),
		quadMesh("lamp", 4, 1),
		quadMesh("shelf", 2, 7),
	)
	sc.Lights = append(sc.Lights, &input.Light{
		Type:     input.PointLight,
		Position: types.Vec3{0, 3, 0},
		Normal:   types.Vec3{0, -1, 0},
		Power:    types.Vec3{10, 10, 10},
	})
	sc.Camera.Eye = types.Vec3{0, 1, 5}
	return sc
}

func TestCompile(t *testing.T) {
	compiled, err := Compile(testScene())
	if err != nil {
		t.Fatal(err)
	}

	if len(compiled.MeshList) != 3 {
		t.Fatalf("expected empty mesh to be skipped and 3 meshes to be compiled; got %d", len(compiled.MeshList))
	}
	if len(compiled.VertexList) != 18 || len(compiled.IndexList) != 18 {
		t.Fatalf("expected 18 vertices and indices; got %d, %d", len(compiled.VertexList), len(compiled.IndexList))
	}
	if err = bvh.Validate(compiled.BvhNodeList, len(compiled.MeshList)); err != nil {
		t.Fatal(err)
	}

	// Mesh records point at their own index range.
	for mIndex, record := range compiled.MeshList {
		if record.FirstIndex != uint32(6*mIndex) || record.IndexCount != 6 {
			t.Fatalf("expected mesh %d to cover indices [%d, %d); got [%d, %d)", mIndex, 6*mIndex, 6*mIndex+6, record.FirstIndex, record.FirstIndex+record.IndexCount)
		}
	}

	// Unknown material indices fall back to the default material.
	if compiled.MeshList[2].Material != defaultMaterial {
		t.Fatalf("expected mesh with unknown material to use the default material; got %+v", compiled.MeshList[2].Material)
	}

	// One point light plus two emissive triangles.
	if len(compiled.Emitters) != 3 {
		t.Fatalf("expected 3 emitters; got %d", len(compiled.Emitters))
	}

	root := compiled.BvhNodeList[0].BBox()
	expRoot := types.AABB{Min: types.Vec3{-1, 0, -1}, Max: types.Vec3{1, 4, 1}}
	if root != expRoot {
		t.Fatalf("expected root box %v; got %v", expRoot, root)
	}

	if compiled.Camera == nil || compiled.Camera.Position != (types.Vec3{0, 1, 5}) {
		t.Fatalf("expected camera to be positioned at the parsed eye; got %v", compiled.Camera)
	}
}

func TestCompileLeafPolicy(t *testing.T) {
	specs := []struct {
		policy   bvh.LeafPolicy
		expNodes int
	}{
		{bvh.SplitLeaves, 5},
		{bvh.KeepFirstMesh, 3},
	}

	for index, spec := range specs {
		compiled, err := Compile(testScene(), WithLeafPolicy(spec.policy), WithScoreStrategy(bvh.SpatialMedian))
		if err != nil {
			t.Fatalf("[spec %d] %v", index, err)
		}
		if len(compiled.BvhNodeList) != spec.expNodes {
			t.Fatalf("[spec %d] expected %d nodes; got %d", index, spec.expNodes, len(compiled.BvhNodeList))
		}
	}
}

func TestCompileEmptyScene(t *testing.T) {
	compiled, err := Compile(input.NewScene())
	if err != nil {
		t.Fatal(err)
	}
	if len(compiled.BvhNodeList) != 1 || compiled.BvhNodeList[0].MeshIndex != -1 {
		t.Fatalf("expected a single degenerate leaf; got %+v", compiled.BvhNodeList)
	}
}
