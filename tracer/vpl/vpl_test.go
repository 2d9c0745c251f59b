package vpl

import (
	"math"
	"math/rand"
	"testing"

	"github.com/fzbRun/Bidirectional-Instant-Radiosity/asset/scene"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/types"
)

const floorY = 0

// A large floor triangle facing +Y lit by the given emitters.
func floorScene(emitters ...scene.Emitter) *scene.Scene {
	n := types.Vec4{0, 1, 0, 0}
	sc := &scene.Scene{
		MeshList: []scene.MeshRecord{
			{
				Material:   scene.Material{Kd: types.Vec4{0.5, 0.5, 0.5, 0}},
				FirstIndex: 0,
				IndexCount: 3,
			},
		},
		VertexList: []scene.ComputeVertex{
			{Position: types.Vec4{-1000, floorY, -1000, 1}, Normal: n},
			{Position: types.Vec4{0, floorY, 1000, 1}, Normal: n},
			{Position: types.Vec4{1000, floorY, -1000, 1}, Normal: n},
		},
		IndexList: []uint32{0, 1, 2},
		Emitters:  emitters,
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

func testUniform(xi float32) *scene.UniformBlock {
	return &scene.UniformBlock{
		RandomNumber: types.Vec4{xi, 0, 0, 0},
		RandomXY: []types.Vec4{
			{0.25, 0.5, 0, 0},
			{0.5, 0.125, 0, 0},
		},
	}
}

func downLight(power float32) scene.Emitter {
	return scene.NewPointLight(types.Vec3{0, 1, 0}, types.Vec3{0, -1, 0}, types.Vec3{power, power, power})
}

func TestGeneratorEnergy(t *testing.T) {
	const flux = 10
	sc := floorScene(downLight(flux))
	gen := NewGenerator(sc, sc.BvhNodeList, scene.DefaultCandidateVPLs)

	candidates := make([]scene.VPL, scene.DefaultCandidateVPLs)
	gen.Generate(candidates, testUniform(0.3))

	var sum float64
	for index, v := range candidates {
		if !v.Valid() {
			t.Fatalf("expected candidate %d to be valid", index)
		}
		if math.Abs(float64(v.Position[1]-floorY)) > 1e-3 {
			t.Fatalf("expected candidate %d to lie on the floor; got %v", index, v.Position)
		}
		if v.Normal.Vec3().Dot(types.Vec3{0, 1, 0}) <= 0 {
			t.Fatalf("expected candidate %d normal to face the light; got %v", index, v.Normal)
		}
		if v.UsageCount() != 0 {
			t.Fatalf("expected candidate %d usage count to be 0; got %d", index, v.UsageCount())
		}
		sum += float64(v.Irradiance[0])
	}

	if math.Abs(sum-flux)/flux > 1e-3 {
		t.Fatalf("expected candidate irradiance to sum to the emitted flux %v; got %v", flux, sum)
	}
}

func TestGeneratorDegenerateInputs(t *testing.T) {
	zeroArea := scene.NewQuadLight(types.Vec3{0, 1, 0}, types.Vec3{1, 0, 0}, types.Vec3{2, 0, 0}, types.Vec3{5, 5, 5})
	upLight := scene.NewPointLight(types.Vec3{0, 1, 0}, types.Vec3{0, 1, 0}, types.Vec3{5, 5, 5})

	specs := []struct {
		name     string
		emitters []scene.Emitter
	}{
		{"no emitters", nil},
		{"zero power", []scene.Emitter{downLight(0)}},
		{"zero area", []scene.Emitter{zeroArea}},
		{"all rays miss", []scene.Emitter{upLight}},
	}

	for _, spec := range specs {
		sc := floorScene(spec.emitters...)
		gen := NewGenerator(sc, sc.BvhNodeList, 64)
		candidates := make([]scene.VPL, 70)
		gen.Generate(candidates, testUniform(0.5))
		for index, v := range candidates {
			if v != (scene.VPL{}) {
				t.Fatalf("[%s] expected candidate %d to be the zero VPL; got %+v", spec.name, index, v)
			}
		}
	}
}

func TestEmitterSelection(t *testing.T) {
	sc := floorScene(downLight(0), downLight(1), downLight(3), downLight(0))
	gen := NewGenerator(sc, sc.BvhNodeList, 16)

	specs := []struct {
		u           float32
		expIndex    int
		expPdf      float32
		expRemapped float32
	}{
		{0, 1, 0.25, 0},
		{0.1, 1, 0.25, 0.4},
		{0.5, 2, 0.75, 1.0 / 3.0},
		{0.9999999, 2, 0.75, 1},
	}

	for index, spec := range specs {
		emitter, pdf, remapped := gen.pickEmitter(spec.u)
		if emitter != spec.expIndex {
			t.Fatalf("[spec %d] expected emitter %d; got %d", index, spec.expIndex, emitter)
		}
		if math.Abs(float64(pdf-spec.expPdf)) > 1e-5 || math.Abs(float64(remapped-spec.expRemapped)) > 1e-5 {
			t.Fatalf("[spec %d] expected pdf %v and remapped u %v; got %v, %v", index, spec.expPdf, spec.expRemapped, pdf, remapped)
		}
		if remapped >= 1 {
			t.Fatalf("[spec %d] expected remapped u to be < 1; got %v", index, remapped)
		}
	}
}

func TestResampleSingleCandidate(t *testing.T) {
	candidates := make([]scene.VPL, scene.DefaultCandidateVPLs)
	candidates[500] = scene.NewVPL(scene.SampleVertex{Position: types.Vec4{1, 2, 3, 1}}, types.Vec3{2, 2, 2}, 2, 0.5)

	r := NewResampler(scene.DefaultResampledVPLs)
	out := make([]scene.VPL, scene.DefaultResampledVPLs)
	stats := r.Resample(candidates, out, testUniform(0.77))

	if stats.WeightedCandidates != 1 || stats.DistinctSources != 1 {
		t.Fatalf("expected a single weighted and selected candidate; got %+v", stats)
	}
	for j, v := range out {
		if src := r.Source(uint32(j)); src != 500 {
			t.Fatalf("expected slot %d to select candidate 500; got %d", j, src)
		}
		if v.Position != candidates[500].Position || v.Pdf() != 0.5 {
			t.Fatalf("expected slot %d to copy candidate 500; got %+v", j, v)
		}
		if v.UsageCount() != scene.DefaultResampledVPLs {
			t.Fatalf("expected usage count %d; got %d", scene.DefaultResampledVPLs, v.UsageCount())
		}
		if math.Abs(float64(v.Power()-2.0/128)) > 1e-6 {
			t.Fatalf("expected slot power 2/128; got %v", v.Power())
		}
	}
}

func TestResampleZeroWeight(t *testing.T) {
	candidates := make([]scene.VPL, 32)
	candidates[3] = scene.NewVPL(scene.SampleVertex{}, types.Vec3{1, 1, 1}, -4, 1)

	out := make([]scene.VPL, 8)
	for index := range out {
		out[index].PowerUsagePdf = types.Vec4{9, 9, 9, 9}
	}
	stats := NewResampler(8).Resample(candidates, out, testUniform(0.1))
	if stats.TotalWeight != 0 {
		t.Fatalf("expected total weight 0; got %v", stats.TotalWeight)
	}
	for j, v := range out {
		if v != (scene.VPL{}) {
			t.Fatalf("expected slot %d to be the zero VPL; got %+v", j, v)
		}
	}
}

func TestResampleUniformFrequency(t *testing.T) {
	const (
		n      = scene.DefaultCandidateVPLs
		m      = scene.DefaultResampledVPLs
		trials = 4000
	)

	candidates := make([]scene.VPL, n)
	for index := range candidates {
		candidates[index] = scene.NewVPL(scene.SampleVertex{}, types.Vec3{1, 1, 1}, 1, 1)
	}

	rng := rand.New(rand.NewSource(1))
	counts := make([]int, n)
	r := NewResampler(m)
	for trial := 0; trial < trials; trial++ {
		r.Prepare(candidates, testUniform(rng.Float32()))
		for j := uint32(0); j < m; j++ {
			counts[r.Source(j)]++
		}
	}

	exp := float64(m) / float64(n)
	for index, count := range counts {
		freq := float64(count) / trials
		if math.Abs(freq-exp) > 0.02 {
			t.Fatalf("expected candidate %d selection frequency to be close to %v; got %v", index, exp, freq)
		}
	}
}

func TestEnergyConservation(t *testing.T) {
	const flux = 25
	sc := floorScene(downLight(flux))

	candidates := make([]scene.VPL, scene.DefaultCandidateVPLs)
	NewGenerator(sc, sc.BvhNodeList, scene.DefaultCandidateVPLs).Generate(candidates, testUniform(0.6))

	var candidatePower float64
	for _, v := range candidates {
		candidatePower += float64(v.Power())
	}

	out := make([]scene.VPL, scene.DefaultResampledVPLs)
	stats := NewResampler(scene.DefaultResampledVPLs).Resample(candidates, out, testUniform(0.6))
	if math.Abs(stats.TotalWeight-candidatePower) > 1e-3 {
		t.Fatalf("expected total weight %v; got %v", candidatePower, stats.TotalWeight)
	}

	var resampledPower, resampledFlux float64
	for _, v := range out {
		resampledPower += float64(v.Power())
		resampledFlux += float64(v.Irradiance[0])
	}

	if math.Abs(resampledPower-candidatePower)/candidatePower > 1e-3 {
		t.Fatalf("expected resampled power %v to match candidate power %v", resampledPower, candidatePower)
	}
	if math.Abs(resampledFlux-flux)/flux > 1e-3 {
		t.Fatalf("expected resampled VPLs to carry the emitted flux %v; got %v", flux, resampledFlux)
	}
}
