package scene

import (
	"math"

	"github.com/fzbRun/Bidirectional-Instant-Radiosity/types"
)

// The type of a light source.
type EmitterType uint32

const (
	// A point light. When a normal is specified, the light emits into the
	// hemisphere around it following a cosine lobe; otherwise it emits
	// uniformly in all directions.
	PointLight EmitterType = iota

	// A parallelogram spanned by EdgeU and EdgeV with lambertian emission.
	QuadLight

	// A triangle (Position, Position+EdgeU, Position+EdgeV) with lambertian
	// emission. Generated for emissive mesh primitives.
	TriangleLight
)

func (t EmitterType) String() string {
	switch t {
	case PointLight:
		return "point"
	case QuadLight:
		return "quad"
	case TriangleLight:
		return "triangle"
	}
	return "unknown"
}

// A light source that seeds VPL generation.
type Emitter struct {
	Type EmitterType

	// Surface area; 0 for point lights.
	Area float32

	_ [2]uint32

	// Point light position, quad corner or first triangle vertex.
	Position types.Vec4

	// Quad/triangle edge vectors.
	EdgeU types.Vec4
	EdgeV types.Vec4

	// Emission axis. Zero for omni-directional point lights.
	Normal types.Vec4

	// Total emitted radiant flux (rgb).
	Power types.Vec4
}

// Create a point light. Pass a zero normal for an omni-directional light.
func NewPointLight(position, normal, power types.Vec3) Emitter {
	return Emitter{
		Type:     PointLight,
		Position: position.Vec4(1),
		Normal:   normal.Normalize().Vec4(0),
		Power:    power.Vec4(0),
	}
}

// Create a quad light centered at center and spanned by the edges u and v.
// The emitting side faces u x v.
func NewQuadLight(center, u, v, power types.Vec3) Emitter {
	cross := u.Cross(v)
	return Emitter{
		Type:     QuadLight,
		Area:     cross.Len(),
		Position: center.Sub(u.Mul(0.5)).Sub(v.Mul(0.5)).Vec4(1),
		EdgeU:    u.Vec4(0),
		EdgeV:    v.Vec4(0),
		Normal:   cross.Normalize().Vec4(0),
		Power:    power.Vec4(0),
	}
}

// Create a triangle light from an emissive primitive with the given
// emitted radiance. The emitting side faces (v1-v0) x (v2-v0).
func NewTriangleLight(v0, v1, v2, radiance types.Vec3) Emitter {
	u := v1.Sub(v0)
	v := v2.Sub(v0)
	cross := u.Cross(v)
	area := 0.5 * cross.Len()
	return Emitter{
		Type:     TriangleLight,
		Area:     area,
		Position: v0.Vec4(1),
		EdgeU:    u.Vec4(0),
		EdgeV:    v.Vec4(0),
		Normal:   cross.Normalize().Vec4(0),
		Power:    radiance.Mul(math.Pi * area).Vec4(0),
	}
}

// Returns true if the emitter has a preferred emission direction.
func (e *Emitter) IsDirectional() bool {
	return e.Normal.Vec3().LenSq() > 0
}

// Get the emitted flux luminance.
func (e *Emitter) Luminance() float32 {
	return float32(math.Max(0, float64(e.Power.Vec3().Luminance())))
}

// Map a point of the unit square to a point on the emitter surface. Returns
// the point and its area density. Point lights always return a density of
// 1; zero-area quads and triangles return a density of 0.
func (e *Emitter) SamplePoint(u types.Vec2) (types.Vec3, float32) {
	origin := e.Position.Vec3()
	switch e.Type {
	case QuadLight:
		if e.Area <= 0 {
			return origin, 0
		}
		return origin.Add(e.EdgeU.Vec3().Mul(u[0])).Add(e.EdgeV.Vec3().Mul(u[1])), 1.0 / e.Area
	case TriangleLight:
		if e.Area <= 0 {
			return origin, 0
		}
		s, t := u[0], u[1]
		if s+t > 1 {
			s, t = 1-s, 1-t
		}
		return origin.Add(e.EdgeU.Vec3().Mul(s)).Add(e.EdgeV.Vec3().Mul(t)), 1.0 / e.Area
	}
	return origin, 1
}

// Get the radiometric quantity that is transported along a sampled
// direction: radiance for area lights and intensity for point lights.
func (e *Emitter) Emission() types.Vec3 {
	power := e.Power.Vec3()
	switch {
	case e.Type != PointLight:
		if e.Area <= 0 {
			return types.Vec3{}
		}
		return power.Mul(float32(1.0 / (math.Pi * float64(e.Area))))
	case e.IsDirectional():
		// cosine lobe: flux = pi * I0
		return power.Mul(float32(1.0 / math.Pi))
	}
	return power.Mul(float32(1.0 / (4 * math.Pi)))
}
