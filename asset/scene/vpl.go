package scene

import "github.com/fzbRun/Bidirectional-Instant-Radiosity/types"

// Default buffer cardinalities.
const (
	DefaultCandidateVPLs = 1024
	DefaultResampledVPLs = 128
	DefaultRandomSamples = 128
)

// A surface point reached by a light or camera path.
type SampleVertex struct {
	Position types.Vec4
	Normal   types.Vec4
	Material Material
}

// A virtual point light. The record layout (128 bytes) is shared by the
// candidate and the resampled VPL buffers.
type VPL struct {
	Position types.Vec4
	Normal   types.Vec4
	Material Material

	// The rgb flux that arrived at the VPL position.
	Irradiance types.Vec4

	// Layout:
	// [0] power; the selection weight used for resampling
	// [1] usage count
	// [2] pdf of the light path that created the VPL
	// [3] reserved
	PowerUsagePdf types.Vec4
}

// Create a VPL at a sampled surface point.
func NewVPL(sv SampleVertex, irradiance types.Vec3, power, pdf float32) VPL {
	if power < 0 {
		power = 0
	}
	return VPL{
		Position:      sv.Position,
		Normal:        sv.Normal,
		Material:      sv.Material,
		Irradiance:    irradiance.Vec4(0),
		PowerUsagePdf: types.Vec4{power, 0, pdf, 0},
	}
}

// Get VPL power.
func (v *VPL) Power() float32 {
	return v.PowerUsagePdf[0]
}

// Get the number of times this VPL was selected.
func (v *VPL) UsageCount() uint32 {
	return uint32(v.PowerUsagePdf[1])
}

// Set the usage counter.
func (v *VPL) SetUsageCount(count uint32) {
	v.PowerUsagePdf[1] = float32(count)
}

// Get the probability density of the light path that created this VPL.
func (v *VPL) Pdf() float32 {
	return v.PowerUsagePdf[2]
}

// Returns true if the VPL carries light. Zero VPLs are used as sentinels
// for missed rays and starved resampling slots.
func (v *VPL) Valid() bool {
	return v.PowerUsagePdf[0] > 0 && v.PowerUsagePdf[2] > 0
}

// The per-frame uniform block. It supplies the stochastic inputs of the
// generation, resampling and shading kernels so that work units never
// need to draw random numbers of their own.
type UniformBlock struct {
	Model types.Mat4
	View  types.Mat4
	Proj  types.Mat4

	CameraPos types.Vec4

	// [0] per-frame random scalar in [0, 1)
	RandomNumber types.Vec4

	// Random 2D coordinates (xy) in [0, 1).
	RandomXY []types.Vec4
}

// Get the random table entry for index i. The table wraps around; an empty
// table yields zero.
func (u *UniformBlock) RandomSample(i int) types.Vec2 {
	if len(u.RandomXY) == 0 {
		return types.Vec2{}
	}
	entry := u.RandomXY[i%len(u.RandomXY)]
	return types.Vec2{entry[0], entry[1]}
}

// Get the inverse of the combined view-projection matrix.
func (u *UniformBlock) InvViewProj() types.Mat4 {
	return u.Proj.Mul4(u.View).Inv()
}
