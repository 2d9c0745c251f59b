package scene

import (
	"fmt"

	"github.com/fzbRun/Bidirectional-Instant-Radiosity/types"
)

const (
	defaultNear float32 = 0.01
	defaultFar  float32 = 1000
)

// The camera type controls the scene camera.
type Camera struct {
	Position types.Vec3
	LookAt   types.Vec3
	Up       types.Vec3

	// Pitch and yaw angles (radians) applied on the next Update call.
	Pitch float32
	Yaw   float32

	ViewMat types.Mat4
	ProjMat types.Mat4

	// Vertical field of view in degrees.
	FOV float32

	Near float32
	Far  float32
}

func NewCamera(fov float32) *Camera {
	return &Camera{
		ViewMat:  types.Ident4(),
		ProjMat:  types.Ident4(),
		Position: types.Vec3{0, 0, 0},
		LookAt:   types.Vec3{0, 0, -1},
		Up:       types.Vec3{0, 1, 0},
		FOV:      fov,
		Near:     defaultNear,
		Far:      defaultFar,
	}
}

func (c *Camera) String() string {
	return fmt.Sprintf(
		"eye: (%3.3f, %3.3f, %3.3f), look: (%3.3f, %3.3f, %3.3f), fov: %3.1f",
		c.Position[0], c.Position[1], c.Position[2],
		c.LookAt[0], c.LookAt[1], c.LookAt[2],
		c.FOV,
	)
}

// Setup camera projection matrix.
func (c *Camera) SetupProjection(aspect float32) {
	near, far := c.Near, c.Far
	if near <= 0 {
		near = defaultNear
	}
	if far <= near {
		far = defaultFar
	}
	c.ProjMat = types.Perspective4(c.FOV, aspect, near, far)
	c.Update()
}

// Update camera orientation and view matrix. Pending pitch/yaw rotations are
// consumed.
func (c *Camera) Update() {
	dir := c.LookAt.Sub(c.Position).Normalize()
	if c.Pitch != 0 || c.Yaw != 0 {
		pitchAxis := dir.Cross(c.Up)
		orient := types.Rotate4(pitchAxis, c.Pitch).Mul4(types.Rotate4(c.Up, c.Yaw))
		dir = orient.Mul4x1(dir.Vec4(0)).Vec3().Normalize()
		c.LookAt = c.Position.Add(dir)
		c.Pitch, c.Yaw = 0, 0
	}

	c.ViewMat = types.LookAtV(c.Position, c.LookAt, c.Up)
}

func (c *Camera) InvViewProjMat() types.Mat4 {
	return c.ProjMat.Mul4(c.ViewMat).Inv()
}
