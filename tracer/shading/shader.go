package shading

import (
	"math"

	"github.com/fzbRun/Bidirectional-Instant-Radiosity/asset/scene"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/tracer/sampler"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/tracer/traversal"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/types"
)

// Random table entry used to decorrelate direct light samples from the
// pixel jitter.
const directOffsetSlot = 2

// A Shader evaluates the radiance reaching the camera through each pixel of
// a frame.
type Shader struct {
	scene *scene.Scene
	nodes []scene.BvhNode
	vpls  []scene.VPL
	cfg   Config

	uniform     *scene.UniformBlock
	invViewProj types.Mat4
	width       uint32
	height      uint32
}

// Create a shader for a width x height frame.
func NewShader(sc *scene.Scene, nodes []scene.BvhNode, vpls []scene.VPL, uniform *scene.UniformBlock, width, height uint32, cfg Config) *Shader {
	return &Shader{
		scene:       sc,
		nodes:       nodes,
		vpls:        vpls,
		cfg:         cfg,
		uniform:     uniform,
		invViewProj: uniform.InvViewProj(),
		width:       width,
		height:      height,
	}
}

// Build the jittered primary ray through pixel (x, y). Pixel (0, 0) is the
// top-left corner of the frame.
func (s *Shader) CameraRay(x, y uint32) traversal.Ray {
	pixel := int(y*s.width + x)
	jitter := s.uniform.RandomSample(pixel)

	ndcX := 2*(float32(x)+jitter[0])/float32(s.width) - 1
	ndcY := 1 - 2*(float32(y)+jitter[1])/float32(s.height)

	v := s.invViewProj.Mul4x1(types.Vec4{ndcX, ndcY, -1, 1})
	near := v.Mul(1 / v[3]).Vec3()
	eye := s.uniform.CameraPos.Vec3()
	return traversal.NewRay(eye, near.Sub(eye))
}

// Get the radiance arriving through pixel (x, y).
func (s *Shader) ShadePixel(x, y uint32) types.Vec3 {
	ray := s.CameraRay(x, y)
	hit := traversal.Intersect(s.nodes, s.scene, ray)
	if !hit.Valid {
		return types.Vec3{}
	}

	point := s.scene.SampleVertexAt(hit.Mesh, int(hit.Triangle), hit.U, hit.V)
	wo := ray.Dir.Neg()
	if point.Normal.Vec3().Dot(wo) < 0 {
		point.Normal = point.Normal.Vec3().Neg().Vec4(0)
	}

	radiance := point.Material.Ke.Vec3()
	if s.cfg.DirectLighting {
		pixel := int(y*s.width + x)
		sample := sampler.Rotate(s.uniform.RandomSample(pixel+1), s.uniform.RandomSample(directOffsetSlot))
		radiance = radiance.Add(Direct(point, wo, s.scene.Emitters, s.nodes, s.scene, sample))
	}
	radiance = radiance.Add(Gather(point, wo, s.vpls, s.nodes, s.scene, s.cfg))
	return radiance
}

func sqrt32(v float32) float32 {
	return float32(math.Sqrt(float64(v)))
}
