package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fzbRun/Bidirectional-Instant-Radiosity/asset/scene"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/types"
)

func TestDumpNodes(t *testing.T) {
	bbox := types.AABB{Min: types.Vec3{-1, 0, -1}, Max: types.Vec3{1, 0, 1}}
	leaf := scene.NewBvhNode(bbox)
	leaf.SetMeshIndex(0)
	sc := &scene.Scene{
		MeshList: []scene.MeshRecord{{IndexCount: 3}},
		VertexList: []scene.ComputeVertex{
			{Position: types.Vec4{-1, 0, -1, 1}},
			{Position: types.Vec4{1, 0, -1, 1}},
			{Position: types.Vec4{0, 0, 1, 1}},
		},
		IndexList:   []uint32{0, 1, 2},
		BvhNodeList: []scene.BvhNode{leaf},
	}
	sc.MeshList[0].SetBBox(bbox)

	dumpFile := filepath.Join(t.TempDir(), "nodes.bin")
	if err := dumpNodes(sc, dumpFile); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(dumpFile)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 36 {
		t.Fatalf("expected one 36 byte node record; got %d bytes", len(data))
	}

	sc.BvhNodeList[0].SetMeshIndex(4)
	if err = dumpNodes(sc, filepath.Join(t.TempDir(), "bad.bin")); err == nil {
		t.Fatal("expected an error for a scene with a corrupt BVH")
	}
}
