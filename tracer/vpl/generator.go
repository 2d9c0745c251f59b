// Package vpl creates the virtual point lights of a frame: a candidate pool
// traced from the scene emitters and its power-weighted resampling.
package vpl

import (
	"sort"

	"github.com/fzbRun/Bidirectional-Instant-Radiosity/asset/scene"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/tracer/sampler"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/tracer/traversal"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/types"
)

// Uniform block random table entries used to decorrelate the emitter
// position and emission direction draws.
const (
	positionOffsetSlot  = 0
	directionOffsetSlot = 1
)

// The Generator traces one light path segment per candidate slot and
// deposits a VPL at the first surface hit.
type Generator struct {
	scene *scene.Scene
	nodes []scene.BvhNode

	// Number of candidate slots; the Hammersley set size.
	count uint32

	// Emitter selection CDF (normalized) and total emitted luminance.
	cdf        []float32
	totalPower float32
}

// Create a generator for count candidate slots. The node list is usually
// the scene BVH; it may also be a device buffer copy of it.
func NewGenerator(sc *scene.Scene, nodes []scene.BvhNode, count uint32) *Generator {
	g := &Generator{
		scene: sc,
		nodes: nodes,
		count: count,
		cdf:   make([]float32, len(sc.Emitters)),
	}

	prefix := make([]float64, len(sc.Emitters))
	var sum float64
	for index := range sc.Emitters {
		sum += float64(sc.Emitters[index].Luminance())
		prefix[index] = sum
	}
	g.totalPower = float32(sum)
	if sum > 0 {
		for index := range g.cdf {
			g.cdf[index] = float32(prefix[index] / sum)
		}
	}
	return g
}

// Get the number of candidate slots.
func (g *Generator) Count() uint32 {
	return g.count
}

// Get the total luminance emitted by the scene emitters.
func (g *Generator) TotalPower() float32 {
	return g.totalPower
}

// Fill the VPL for a candidate slot. Slots whose light path does not reach
// a surface yield the zero VPL.
func (g *Generator) GenerateSlot(slot uint32, uniform *scene.UniformBlock) scene.VPL {
	if g.totalPower <= 0 || g.count == 0 {
		return scene.VPL{}
	}

	posSeq := sampler.Sequence{N: g.count, Offset: uniform.RandomSample(positionOffsetSlot)}
	dirSeq := sampler.Sequence{N: g.count, Offset: uniform.RandomSample(directionOffsetSlot), Swap: true}
	a := posSeq.At(slot)
	b := dirSeq.At(slot)

	emitterIndex, pdfLight, remapped := g.pickEmitter(a[0])
	if pdfLight <= 0 {
		return scene.VPL{}
	}
	emitter := &g.scene.Emitters[emitterIndex]

	origin, pdfA := emitter.SamplePoint(types.Vec2{remapped, a[1]})
	if pdfA <= 0 {
		return scene.VPL{}
	}

	var dir types.Vec3
	var pdfW, cos float32
	if emitter.Type == scene.PointLight && !emitter.IsDirectional() {
		dir, pdfW = sampler.UniformSphere(b)
		cos = 1
	} else {
		var local types.Vec3
		local, pdfW = sampler.CosineHemisphere(b)
		dir = sampler.ToWorld(local, emitter.Normal.Vec3())
		cos = local[2]
	}
	if pdfW <= 0 || cos <= 0 {
		return scene.VPL{}
	}

	hit := traversal.Intersect(g.nodes, g.scene, traversal.NewRay(origin, dir))
	if !hit.Valid {
		return scene.VPL{}
	}

	sv := g.scene.SampleVertexAt(hit.Mesh, int(hit.Triangle), hit.U, hit.V)
	if sv.Normal.Vec3().Dot(dir) > 0 {
		sv.Normal = sv.Normal.Vec3().Neg().Vec4(0)
	}

	// Le * cos / (pdf * N) reduces to the emitter flux share Phi/N.
	pdf := pdfLight * pdfA * pdfW
	irradiance := emitter.Emission().Mul(cos / (pdf * float32(g.count)))
	return scene.NewVPL(sv, irradiance, irradiance.Luminance(), pdf)
}

// Serially fill dst with candidates. Extra dst entries beyond the slot
// count are reset to the zero VPL.
func (g *Generator) Generate(dst []scene.VPL, uniform *scene.UniformBlock) {
	for slot := range dst {
		if uint32(slot) >= g.count {
			dst[slot] = scene.VPL{}
			continue
		}
		dst[slot] = g.GenerateSlot(uint32(slot), uniform)
	}
}

// Select an emitter proportional to its power. Returns the emitter index,
// its selection probability and u remapped to [0, 1) within the selected
// CDF interval.
func (g *Generator) pickEmitter(u float32) (int, float32, float32) {
	index := sort.Search(len(g.cdf), func(i int) bool { return g.cdf[i] > u })
	if index == len(g.cdf) {
		index = len(g.cdf) - 1
	}
	// Skip zero-power emitters at the end of the CDF.
	for index > 0 && g.cdf[index] == g.cdf[index-1] {
		index--
	}

	var lo float32
	if index > 0 {
		lo = g.cdf[index-1]
	}
	width := g.cdf[index] - lo
	if width <= 0 {
		return index, 0, 0
	}

	remapped := (u - lo) / width
	if remapped >= 1 {
		remapped = 0.99999994
	} else if remapped < 0 {
		remapped = 0
	}
	return index, width, remapped
}
