package writer

import (
	"archive/zip"
	"encoding/gob"
	"path/filepath"
	"testing"

	"github.com/fzbRun/Bidirectional-Instant-Radiosity/asset/scene"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/types"
)

func TestWriteScene(t *testing.T) {
	sc := &scene.Scene{
		BvhNodeList: []scene.BvhNode{scene.NewBvhNode(types.AABB{Min: types.Vec3{-1, -1, -1}, Max: types.Vec3{1, 1, 1}})},
		IndexList:   []uint32{0, 1, 2},
		Emitters: []scene.Emitter{
			scene.NewPointLight(types.Vec3{0, 1, 0}, types.Vec3{}, types.Vec3{1, 1, 1}),
		},
		Camera: scene.NewCamera(45),
	}

	zipFile := filepath.Join(t.TempDir(), "scene.zip")
	if err := WriteScene(sc, zipFile); err != nil {
		t.Fatal(err)
	}

	zr, err := zip.OpenReader(zipFile)
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()

	if len(zr.File) != 2 || zr.File[0].Name != versionFile || zr.File[1].Name != dataFile {
		t.Fatalf("expected archive to contain %s and %s; got %d files", versionFile, dataFile, len(zr.File))
	}

	rc, err := zr.File[1].Open()
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()

	var decoded scene.Scene
	if err = gob.NewDecoder(rc).Decode(&decoded); err != nil {
		t.Fatal(err)
	}
	if len(decoded.Emitters) != 1 || decoded.Emitters[0].Power != sc.Emitters[0].Power {
		t.Fatalf("expected emitter to be preserved; got %+v", decoded.Emitters)
	}
	if decoded.Camera == nil || decoded.Camera.FOV != 45 {
		t.Fatalf("expected camera to be preserved; got %v", decoded.Camera)
	}
}

func TestWriteSceneErrors(t *testing.T) {
	if err := WriteScene(&scene.Scene{}, filepath.Join(t.TempDir(), "scene.bin")); err == nil {
		t.Fatal("expected unsupported format error")
	}
	if err := WriteScene(&scene.Scene{}, filepath.Join(t.TempDir(), "missing", "scene.zip")); err == nil {
		t.Fatal("expected an error when the output directory does not exist")
	}
}
