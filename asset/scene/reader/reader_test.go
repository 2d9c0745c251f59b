package reader

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/fzbRun/Bidirectional-Instant-Radiosity/asset"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/asset/compiler"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/asset/compiler/bvh"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/asset/scene"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/asset/scene/writer"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/types"
)

const testObj = `
# test scene
mtllib scene.mtl
camera_fov 60
camera_eye 0 1 5
camera_look 0 1 0
camera_up 0 1 0
light_point 0 3 0 0 -1 0 10 10 10
light_quad 0 2.9 0 0.5 0 0 0 0 0.5 5 5 5

v -1 0 -1
v 1 0 -1
v 1 0 1
v -1 0 1
v -1 2 -1
v 1 2 -1
v 0 2 1
vt 0 0
vt 1 0
vt 1 1
vt 0 1

o floor
usemtl white
f 1/1 4/4 3/3 2/2

o lamp
usemtl glow
f -3 -2 -1
usemtl white
s off
f 5 6 7
`

const testMtl = `
newmtl white
Kd 0.8 0.8 0.8
Pr 0.5

newmtl glow
include white
Ke 4 4 4

newmtl unused
Kd 1 0 0
`

func writeTestScene(t *testing.T) string {
	dir := t.TempDir()
	objFile := filepath.Join(dir, "scene.obj")
	if err := os.WriteFile(objFile, []byte(testObj), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "scene.mtl"), []byte(testMtl), 0644); err != nil {
		t.Fatal(err)
	}
	return objFile
}

func TestWavefrontReader(t *testing.T) {
	sc, err := ReadScene(writeTestScene(t))
	if err != nil {
		t.Fatal(err)
	}

	// floor (2 triangles), lamp/glow and lamp/white.
	if len(sc.MeshList) != 3 {
		t.Fatalf("expected 3 meshes; got %d", len(sc.MeshList))
	}
	expTris := []int{2, 1, 1}
	for index, exp := range expTris {
		if got := sc.MeshList[index].TriangleCount(); got != exp {
			t.Fatalf("expected mesh %d to contain %d triangles; got %d", index, exp, got)
		}
	}
	if len(sc.IndexList) != 12 || len(sc.VertexList) != 12 {
		t.Fatalf("expected 12 indices and vertices; got %d and %d", len(sc.IndexList), len(sc.VertexList))
	}

	glow := sc.MeshList[1].Material
	if glow.Ke != (types.Vec4{4, 4, 4, 0}) {
		t.Fatalf("expected emissive lamp material; got Ke %v", glow.Ke)
	}
	if glow.Roughness() != 0.5 || glow.Kd != (types.Vec4{0.8, 0.8, 0.8, 0}) {
		t.Fatalf("expected included material parameters to be inherited; got %+v", glow)
	}

	// Two explicit lights and one emissive triangle.
	if len(sc.Emitters) != 3 {
		t.Fatalf("expected 3 emitters; got %d", len(sc.Emitters))
	}

	if v := sc.VertexList[0]; !types.ApproxEqual(v.Normal.Vec3(), types.Vec3{0, 1, 0}, 1e-6) {
		t.Fatalf("expected generated floor normal (0, 1, 0); got %v", v.Normal)
	}
	if tan := sc.TangentList[0].Vec3(); !types.ApproxEqual(tan, types.Vec3{1, 0, 0}, 1e-5) {
		t.Fatalf("expected floor tangent along +u (1, 0, 0); got %v", tan)
	}
	if uv := sc.UvList[1]; uv != (types.Vec2{0, 1}) {
		t.Fatalf("expected second floor vertex uv (0, 1); got %v", uv)
	}

	if sc.Camera.FOV != 60 || sc.Camera.Position != (types.Vec3{0, 1, 5}) {
		t.Fatalf("expected camera fov 60 at (0, 1, 5); got %s", sc.Camera)
	}

	if err = bvh.Validate(sc.BvhNodeList, len(sc.MeshList)); err != nil {
		t.Fatal(err)
	}
}

func TestWavefrontReaderCompilerOptions(t *testing.T) {
	objFile := writeTestScene(t)

	split, err := ReadScene(objFile, compiler.WithLeafPolicy(bvh.SplitLeaves))
	if err != nil {
		t.Fatal(err)
	}
	keep, err := ReadScene(objFile, compiler.WithLeafPolicy(bvh.KeepFirstMesh))
	if err != nil {
		t.Fatal(err)
	}
	if len(keep.BvhNodeList) > len(split.BvhNodeList) {
		t.Fatalf("expected split leaves to never produce fewer nodes; got %d > %d", len(keep.BvhNodeList), len(split.BvhNodeList))
	}
}

func TestWavefrontReaderErrors(t *testing.T) {
	specs := []struct {
		name   string
		input  string
		expErr string
	}{
		{"short face", "v 0 0 0\nf 1 1", `unsupported syntax for "f"`},
		{"bad vertex", "v 0 0", `expected 3 arguments`},
		{"index out of range", "v 0 0 0\nf 1 2 3", "index out of bounds"},
		{"mixed face formats", "v 0 0 0\nv 1 0 0\nv 0 1 0\nvt 0 0\nf 1/1 2 3", "expected each face argument to contain 2 indices"},
		{"unknown material", "usemtl missing", `undefined material with name "missing"`},
		{"short point light", "light_point 0 0 0", `"light_point"; expected 9 arguments`},
		{"bad quad light", "light_quad 0 0 0 1 0 0 0 0 1 x 1 1", "invalid syntax"},
		{"bad fov", "camera_fov wide", "invalid syntax"},
		{"missing object name", "o", "expected 1 argument for object name"},
	}

	for _, spec := range specs {
		res := asset.NewResourceFromStream("test.obj", strings.NewReader(spec.input))
		_, err := newWavefrontReader().Read(res)
		if err == nil || !strings.Contains(err.Error(), spec.expErr) {
			t.Fatalf("[%s] expected error containing %q; got %v", spec.name, spec.expErr, err)
		}
		if !strings.Contains(err.Error(), "[test.obj: ") {
			t.Fatalf("[%s] expected error to reference the file and line; got %v", spec.name, err)
		}
	}
}

func TestMaterialLibraryErrors(t *testing.T) {
	specs := []struct {
		name   string
		input  string
		expErr string
	}{
		{"no newmtl", "Kd 1 1 1", `got "Kd" without a "newmtl"`},
		{"duplicate", "newmtl a\nnewmtl a", `material "a" already defined`},
		{"unknown include", "newmtl a\ninclude b", `could not include unknown material "b"`},
		{"bad value", "newmtl a\nNi glass", "invalid syntax"},
	}

	for _, spec := range specs {
		res := asset.NewResourceFromStream("test.mtl", strings.NewReader(spec.input))
		err := newWavefrontReader().parseMaterials(res)
		if err == nil || !strings.Contains(err.Error(), spec.expErr) {
			t.Fatalf("[%s] expected error containing %q; got %v", spec.name, spec.expErr, err)
		}
	}
}

func TestDefaultMaterial(t *testing.T) {
	input := "v 0 0 0\nv 1 0 0\nv 0 0 1\nf 1 2 3\n"
	res := asset.NewResourceFromStream("test.obj", strings.NewReader(input))
	sc, err := newWavefrontReader().Read(res)
	if err != nil {
		t.Fatal(err)
	}
	if len(sc.MeshList) != 1 {
		t.Fatalf("expected 1 mesh; got %d", len(sc.MeshList))
	}
	if kd := sc.MeshList[0].Material.Kd; kd != (types.Vec4{0.8, 0.8, 0.8, 0}) {
		t.Fatalf("expected default grey material; got %v", kd)
	}
	if len(sc.Emitters) != 0 {
		t.Fatalf("expected no emitters; got %d", len(sc.Emitters))
	}
}

func TestZipRoundTrip(t *testing.T) {
	sc, err := ReadScene(writeTestScene(t))
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err = writer.WriteSceneTo(sc, &buf); err != nil {
		t.Fatal(err)
	}

	loaded, err := newZipSceneReader().Read(asset.NewResourceFromStream("scene.zip", &buf))
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(sc.BvhNodeList, loaded.BvhNodeList) {
		t.Fatal("expected BVH nodes to survive the round trip")
	}
	if !reflect.DeepEqual(sc.Emitters, loaded.Emitters) {
		t.Fatal("expected emitters to survive the round trip")
	}
	if !reflect.DeepEqual(sc.VertexList, loaded.VertexList) || !reflect.DeepEqual(sc.IndexList, loaded.IndexList) {
		t.Fatal("expected geometry to survive the round trip")
	}
	if loaded.Camera == nil || loaded.Camera.Position != sc.Camera.Position {
		t.Fatalf("expected camera to survive the round trip; got %v", loaded.Camera)
	}
}

func TestZipReaderErrors(t *testing.T) {
	if _, err := newZipSceneReader().Read(asset.NewResourceFromStream("bad.zip", strings.NewReader("not a zip"))); err == nil {
		t.Fatal("expected an error for a corrupt archive")
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("readme.txt")
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte("hello"))
	if err = zw.Close(); err != nil {
		t.Fatal(err)
	}
	_, err = newZipSceneReader().Read(asset.NewResourceFromStream("empty.zip", &buf))
	if err == nil || !strings.Contains(err.Error(), "does not contain scene.bin") {
		t.Fatalf("expected missing scene data error; got %v", err)
	}

	buf.Reset()
	zw = zip.NewWriter(&buf)
	if w, err = zw.Create(versionFile); err != nil {
		t.Fatal(err)
	}
	w.Write([]byte("bir-scene/0"))
	if err = zw.Close(); err != nil {
		t.Fatal(err)
	}
	_, err = newZipSceneReader().Read(asset.NewResourceFromStream("old.zip", &buf))
	if err == nil || !strings.Contains(err.Error(), "unsupported scene format") {
		t.Fatalf("expected format version error; got %v", err)
	}

	// A node referencing a mesh that does not exist.
	corrupt := &scene.Scene{BvhNodeList: []scene.BvhNode{{LeftIndex: -1, RightIndex: -1, MeshIndex: 3}}}
	buf.Reset()
	if err = writer.WriteSceneTo(corrupt, &buf); err != nil {
		t.Fatal(err)
	}
	_, err = newZipSceneReader().Read(asset.NewResourceFromStream("corrupt.zip", &buf))
	if !errors.Is(err, bvh.ErrCorruptIndex) {
		t.Fatalf("expected ErrCorruptIndex; got %v", err)
	}

	if _, err = ReadScene("scene.fbx"); err == nil || !strings.Contains(err.Error(), "unsupported file format") {
		t.Fatal("expected unsupported format error")
	}
}
