package tracer

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/fzbRun/Bidirectional-Instant-Radiosity/asset/compiler/bvh"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/asset/scene"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/tracer/device"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/tracer/shading"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/types"
)

const (
	testFrameW = 8
	testFrameH = 6
)

// A large floor lit by a spot light that faces it.
func testScene() *scene.Scene {
	n := types.Vec4{0, 1, 0, 0}
	sc := &scene.Scene{
		MeshList: []scene.MeshRecord{
			{Material: scene.Material{Kd: types.Vec4{0.5, 0.5, 0.5, 0}}, IndexCount: 3},
		},
		VertexList: []scene.ComputeVertex{
			{Position: types.Vec4{-1000, 0, -1000, 1}, Normal: n},
			{Position: types.Vec4{0, 0, 1000, 1}, Normal: n},
			{Position: types.Vec4{1000, 0, -1000, 1}, Normal: n},
		},
		IndexList: []uint32{0, 1, 2},
		Emitters: []scene.Emitter{
			scene.NewPointLight(types.Vec3{0, 1, 0}, types.Vec3{0, -1, 0}, types.Vec3{10, 10, 10}),
		},
	}

	bbox := types.EmptyAABB()
	for _, v := range sc.VertexList {
		bbox = bbox.Extend(v.Position.Vec3())
	}
	sc.MeshList[0].SetBBox(bbox)
	leaf := scene.NewBvhNode(bbox)
	leaf.SetMeshIndex(0)
	sc.BvhNodeList = []scene.BvhNode{leaf}
	return sc
}

func testRequest(seed int64) *FrameRequest {
	rng := rand.New(rand.NewSource(seed))
	eye := types.Vec3{0, 2, 0}
	uniform := &scene.UniformBlock{
		Model:        types.Ident4(),
		View:         types.LookAtV(eye, types.Vec3{}, types.Vec3{0, 0, -1}),
		Proj:         types.Perspective4(60, float32(testFrameW)/float32(testFrameH), 0.1, 100),
		CameraPos:    eye.Vec4(1),
		RandomNumber: types.Vec4{rng.Float32(), 0, 0, 0},
		RandomXY:     make([]types.Vec4, scene.DefaultRandomSamples),
	}
	for i := range uniform.RandomXY {
		uniform.RandomXY[i] = types.Vec4{rng.Float32(), rng.Float32(), 0, 0}
	}
	return &FrameRequest{
		Uniform:  uniform,
		Shading:  shading.Config{ClampDistance: 0.1, DirectLighting: true},
		Exposure: 1,
		Gamma:    2.2,
	}
}

func createTestTracer(t *testing.T) *Tracer {
	tr := NewTracer("test", device.NewDevice("cpu", 4), nil)
	if err := tr.UploadScene(testScene(), scene.DefaultCandidateVPLs, scene.DefaultResampledVPLs); err != nil {
		t.Fatal(err)
	}
	if err := tr.Setup(testFrameW, testFrameH); err != nil {
		t.Fatal(err)
	}
	return tr
}

func TestTrace(t *testing.T) {
	tr := createTestTracer(t)
	defer tr.Close()

	stats, err := tr.Trace(context.Background(), testRequest(1))
	if err != nil {
		t.Fatal(err)
	}

	expPhases := []string{"reset", "generate", "resample", "shade", "post-process"}
	if len(stats.Phases) != len(expPhases) {
		t.Fatalf("expected %d phases; got %d", len(expPhases), len(stats.Phases))
	}
	for i, exp := range expPhases {
		if stats.Phases[i].Name != exp {
			t.Fatalf("expected phase %d to be %q; got %q", i, exp, stats.Phases[i].Name)
		}
	}

	if stats.ValidCandidates == 0 {
		t.Fatal("expected the candidate pool to contain valid VPLs")
	}

	candidates := tr.CandidateVPLs()
	if len(candidates) != scene.DefaultCandidateVPLs {
		t.Fatalf("expected %d candidates; got %d", scene.DefaultCandidateVPLs, len(candidates))
	}

	// Resampling preserves the candidate pool power.
	var poolPower, resampledPower float64
	for i := range candidates {
		poolPower += float64(candidates[i].Power())
	}
	resampled := tr.ResampledVPLs()
	if len(resampled) != scene.DefaultResampledVPLs {
		t.Fatalf("expected %d resampled VPLs; got %d", scene.DefaultResampledVPLs, len(resampled))
	}
	for i := range resampled {
		resampledPower += float64(resampled[i].Power())
	}
	if math.Abs(poolPower-resampledPower) > 1e-3*poolPower {
		t.Fatalf("expected resampled power %f to match pool power %f", resampledPower, poolPower)
	}
	if stats.Resample.DistinctSources == 0 || stats.Resample.DistinctSources > scene.DefaultResampledVPLs {
		t.Fatalf("expected distinct sources in (0, %d]; got %d", scene.DefaultResampledVPLs, stats.Resample.DistinctSources)
	}

	// The floor below the camera receives direct light.
	accum := make([]types.Vec3, testFrameW*testFrameH)
	if err := tr.ReadAccumulator(accum); err != nil {
		t.Fatal(err)
	}
	center := accum[(testFrameH/2)*testFrameW+testFrameW/2]
	if center[0] <= 0 {
		t.Fatalf("expected lit center pixel; got %v", center)
	}

	frame := make([]uint8, testFrameW*testFrameH*4)
	if err := tr.ReadFrame(frame); err != nil {
		t.Fatal(err)
	}
	for i := 3; i < len(frame); i += 4 {
		if frame[i] != 255 {
			t.Fatalf("expected opaque frame; got alpha %d at byte %d", frame[i], i)
		}
	}
}

func TestTraceAccumulation(t *testing.T) {
	tr := createTestTracer(t)
	defer tr.Close()

	req := testRequest(2)
	if _, err := tr.Trace(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	first := make([]types.Vec3, testFrameW*testFrameH)
	if err := tr.ReadAccumulator(first); err != nil {
		t.Fatal(err)
	}

	req.FrameCount = 1
	stats, err := tr.Trace(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Phases[0].Name == "reset" {
		t.Fatal("expected accumulating frames to skip the reset stage")
	}

	second := make([]types.Vec3, testFrameW*testFrameH)
	if err := tr.ReadAccumulator(second); err != nil {
		t.Fatal(err)
	}
	for i := range first {
		exp := first[i].Mul(2)
		if !types.ApproxEqual(second[i], exp, 1e-4*(1+exp.MaxComponent())) {
			t.Fatalf("expected accumulated pixel %d to be %v; got %v", i, exp, second[i])
		}
	}
}

func TestTraceErrors(t *testing.T) {
	tr := NewTracer("test", device.NewDevice("cpu", 1), nil)
	defer tr.Close()

	if _, err := tr.Trace(context.Background(), testRequest(1)); !errors.Is(err, ErrNoSceneData) {
		t.Fatalf("expected ErrNoSceneData; got %v", err)
	}
	if err := tr.UploadScene(&scene.Scene{}, 8, 4); !errors.Is(err, ErrNoSceneData) {
		t.Fatalf("expected ErrNoSceneData for an empty scene; got %v", err)
	}

	corrupt := testScene()
	corrupt.BvhNodeList[0].SetMeshIndex(5)
	if err := tr.UploadScene(corrupt, 8, 4); !errors.Is(err, bvh.ErrCorruptIndex) {
		t.Fatalf("expected ErrCorruptIndex; got %v", err)
	}

	if err := tr.UploadScene(testScene(), 8, 4); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Trace(context.Background(), testRequest(1)); !errors.Is(err, ErrNoFrameBuffer) {
		t.Fatalf("expected ErrNoFrameBuffer; got %v", err)
	}

	// 70000^2 wraps around in 32 bits.
	for _, dims := range [][2]uint32{{0, 4}, {70000, 70000}, {65536, 65536}} {
		if err := tr.Setup(dims[0], dims[1]); !errors.Is(err, ErrFrameSize) {
			t.Fatalf("expected ErrFrameSize for %dx%d; got %v", dims[0], dims[1], err)
		}
	}

	if err := tr.Setup(2, 2); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := tr.Trace(ctx, testRequest(1)); !errors.Is(err, ErrInterrupted) {
		t.Fatalf("expected ErrInterrupted; got %v", err)
	}
}

func TestNodeBlock(t *testing.T) {
	tr := NewTracer("test", device.NewDevice("cpu", 1), nil)
	defer tr.Close()

	if _, err := tr.NodeBlock(); !errors.Is(err, ErrNoSceneData) {
		t.Fatalf("expected ErrNoSceneData; got %v", err)
	}

	sc := testScene()
	if err := tr.UploadScene(sc, 8, 4); err != nil {
		t.Fatal(err)
	}
	data, err := tr.NodeBlock()
	if err != nil {
		t.Fatal(err)
	}
	if exp := 36 * len(sc.BvhNodeList); len(data) != exp {
		t.Fatalf("expected %d bytes; got %d", exp, len(data))
	}
	if minX := math.Float32frombits(binary.LittleEndian.Uint32(data[8:])); minX != -1000 {
		t.Fatalf("expected root min.x -1000; got %f", minX)
	}
}

func TestCustomPipeline(t *testing.T) {
	var calls []string
	stage := func(name string) PipelineStage {
		return func(tr *Tracer, req *FrameRequest) (time.Duration, error) {
			calls = append(calls, name)
			return 0, nil
		}
	}

	pipeline := &Pipeline{
		Generate:    stage("generate"),
		Shade:       stage("shade"),
		PostProcess: []PipelineStage{stage("first"), nil, stage("second")},
	}
	tr := NewTracer("test", device.NewDevice("cpu", 1), pipeline)
	defer tr.Close()
	if err := tr.UploadScene(testScene(), 8, 4); err != nil {
		t.Fatal(err)
	}
	if err := tr.Setup(2, 2); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Trace(context.Background(), testRequest(1)); err != nil {
		t.Fatal(err)
	}

	exp := []string{"generate", "shade", "first", "second"}
	if len(calls) != len(exp) {
		t.Fatalf("expected %d stage calls; got %v", len(exp), calls)
	}
	for i := range exp {
		if calls[i] != exp[i] {
			t.Fatalf("expected call %d to be %q; got %q", i, exp[i], calls[i])
		}
	}

	failing := &Pipeline{Generate: func(tr *Tracer, req *FrameRequest) (time.Duration, error) {
		return 0, errors.New("boom")
	}}
	tr.pipeline = failing
	if _, err := tr.Trace(context.Background(), testRequest(1)); err == nil {
		t.Fatal("expected stage error to abort the frame")
	}
}

func TestReinhard(t *testing.T) {
	specs := []struct {
		in, invGamma, exp float32
	}{
		{0, 1, 0},
		{-1, 1, 0},
		{1, 1, 0.5},
		{3, 1, 0.75},
		{1, 0.5, float32(math.Sqrt(0.5))},
	}
	for index, spec := range specs {
		if out := Reinhard(spec.in, float64(spec.invGamma)); math.Abs(float64(out-spec.exp)) > 1e-6 {
			t.Fatalf("[spec %d] expected %f; got %f", index, spec.exp, out)
		}
	}
	if toByte(2) != 255 || toByte(0) != 0 || toByte(0.5) != 128 {
		t.Fatal("expected toByte to clamp and round")
	}
}
