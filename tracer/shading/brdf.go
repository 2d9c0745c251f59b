// Package shading evaluates the direct and the VPL-gathered indirect light
// arriving at camera-visible surface points.
package shading

import (
	"math"

	"github.com/fzbRun/Bidirectional-Instant-Radiosity/asset/scene"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/types"
)

const (
	invPi = 1.0 / math.Pi

	// Roughness is clamped to this value before it is mapped to a
	// Blinn-Phong exponent.
	minRoughness = 0.01
)

// Evaluate the material BRDF for light arriving from wi and leaving towards
// wo. All vectors are unit length and point away from the surface.
func BRDF(mat *scene.Material, n, wi, wo types.Vec3) types.Vec3 {
	f := mat.Kd.Vec3().Mul(invPi)

	ks := mat.Ks.Vec3()
	if ks.MaxComponent() <= 0 {
		return f
	}

	h := wi.Add(wo).Normalize()
	nDotH := n.Dot(h)
	if nDotH <= 0 {
		return f
	}

	exponent := blinnExponent(mat.Roughness())
	norm := (exponent + 8) / (8 * math.Pi)
	spec := float32(norm * math.Pow(float64(nDotH), exponent))
	return f.Add(ks.Mul(spec))
}

// Map roughness to a Blinn-Phong exponent: 2/r^2 - 2.
func blinnExponent(roughness float32) float64 {
	r := math.Max(float64(roughness), minRoughness)
	return math.Max(2/(r*r)-2, 0)
}

// Get the diffuse part of a material BRDF.
func Lambert(mat *scene.Material) types.Vec3 {
	return mat.Kd.Vec3().Mul(invPi)
}
