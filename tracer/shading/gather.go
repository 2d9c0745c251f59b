package shading

import (
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/asset/scene"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/tracer/traversal"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/types"
)

// Shading options.
type Config struct {
	// Lower bound for the VPL distance used by the gather step. It bounds
	// the 1/d^2 singularity next to VPLs; larger values trade bias for
	// less noise.
	ClampDistance float32

	// Add direct light from the scene emitters.
	DirectLighting bool
}

// Sum the light reflected towards wo by the VPLs visible from point.
func Gather(point scene.SampleVertex, wo types.Vec3, vpls []scene.VPL, nodes []scene.BvhNode, geom traversal.Geometry, cfg Config) types.Vec3 {
	var out types.Vec3

	x := point.Position.Vec3()
	n := point.Normal.Vec3()
	clampSq := cfg.ClampDistance * cfg.ClampDistance

	for index := range vpls {
		v := &vpls[index]
		if !v.Valid() {
			continue
		}

		delta := v.Position.Vec3().Sub(x)
		distSq := delta.LenSq()
		if distSq == 0 {
			continue
		}
		dir := delta.Mul(1 / sqrt32(distSq))

		cosX := n.Dot(dir)
		cosV := -v.Normal.Vec3().Dot(dir)
		if cosX <= 0 || cosV <= 0 {
			continue
		}

		if traversal.Occluded(nodes, geom, x, v.Position.Vec3()) {
			continue
		}

		if distSq < clampSq {
			distSq = clampSq
		}

		// The VPL side is diffuse only; a VPL does not record where its
		// light arrived from.
		f := BRDF(&point.Material, n, dir, wo)
		g := cosX * cosV / distSq
		contrib := f.MulVec(Lambert(&v.Material)).MulVec(v.Irradiance.Vec3()).Mul(g)
		out = out.Add(contrib)
	}

	return out
}

// Estimate the direct light reflected towards wo using one sample per
// emitter.
func Direct(point scene.SampleVertex, wo types.Vec3, emitters []scene.Emitter, nodes []scene.BvhNode, geom traversal.Geometry, sample types.Vec2) types.Vec3 {
	var out types.Vec3

	x := point.Position.Vec3()
	n := point.Normal.Vec3()

	for index := range emitters {
		e := &emitters[index]
		p, pdfA := e.SamplePoint(sample)
		if pdfA <= 0 {
			continue
		}

		delta := p.Sub(x)
		distSq := delta.LenSq()
		if distSq == 0 {
			continue
		}
		dir := delta.Mul(1 / sqrt32(distSq))

		cosX := n.Dot(dir)
		if cosX <= 0 {
			continue
		}

		// Emitters without a preferred direction radiate equally.
		cosL := float32(1)
		if e.IsDirectional() {
			cosL = -e.Normal.Vec3().Dot(dir)
			if cosL <= 0 {
				continue
			}
		}

		if traversal.Occluded(nodes, geom, x, p) {
			continue
		}

		f := BRDF(&point.Material, n, dir, wo)
		out = out.Add(f.MulVec(e.Emission()).Mul(cosX * cosL / (distSq * pdfA)))
	}

	return out
}
