package types

import (
	"math"

	"golang.org/x/image/math/f32"
)

// A 4x4 matrix stored in column-major order; element (row, col) lives at
// index col*4+row.
type Mat4 f32.Mat4

// Create a 4x4 identity matrix.
func Ident4() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Get element at (row, col).
func (m Mat4) At(row, col int) float32 {
	return m[col*4+row]
}

// Multiply with another 4x4 matrix.
func (m Mat4) Mul4(m2 Mat4) Mat4 {
	var out Mat4
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			var sum float32
			for k := 0; k < 4; k++ {
				sum += m[k*4+row] * m2[col*4+k]
			}
			out[col*4+row] = sum
		}
	}
	return out
}

// Multiply with a column vector.
func (m Mat4) Mul4x1(v Vec4) Vec4 {
	return Vec4{
		m[0]*v[0] + m[4]*v[1] + m[8]*v[2] + m[12]*v[3],
		m[1]*v[0] + m[5]*v[1] + m[9]*v[2] + m[13]*v[3],
		m[2]*v[0] + m[6]*v[1] + m[10]*v[2] + m[14]*v[3],
		m[3]*v[0] + m[7]*v[1] + m[11]*v[2] + m[15]*v[3],
	}
}

// Transpose matrix.
func (m Mat4) Transpose() Mat4 {
	var out Mat4
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			out[row*4+col] = m[col*4+row]
		}
	}
	return out
}

// Calculate the matrix inverse using Gauss-Jordan elimination with partial
// pivoting. A singular matrix yields the zero matrix.
func (m Mat4) Inv() Mat4 {
	var aug [4][8]float64
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			aug[row][col] = float64(m.At(row, col))
		}
		aug[row][4+row] = 1
	}

	for col := 0; col < 4; col++ {
		pivot := col
		for row := col + 1; row < 4; row++ {
			if math.Abs(aug[row][col]) > math.Abs(aug[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(aug[pivot][col]) < 1e-12 {
			return Mat4{}
		}
		aug[col], aug[pivot] = aug[pivot], aug[col]

		scaler := 1.0 / aug[col][col]
		for k := 0; k < 8; k++ {
			aug[col][k] *= scaler
		}

		for row := 0; row < 4; row++ {
			if row == col {
				continue
			}
			factor := aug[row][col]
			for k := 0; k < 8; k++ {
				aug[row][k] -= factor * aug[col][k]
			}
		}
	}

	var out Mat4
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			out[col*4+row] = float32(aug[row][4+col])
		}
	}
	return out
}

// Create a translation matrix.
func Translate4(v Vec3) Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		v[0], v[1], v[2], 1,
	}
}

// Create a scale matrix.
func Scale4(v Vec3) Mat4 {
	return Mat4{
		v[0], 0, 0, 0,
		0, v[1], 0, 0,
		0, 0, v[2], 0,
		0, 0, 0, 1,
	}
}

// Create a rotation matrix for rotating angle radians around axis.
func Rotate4(axis Vec3, angle float32) Mat4 {
	a := axis.Normalize()
	s := float32(math.Sin(float64(angle)))
	c := float32(math.Cos(float64(angle)))
	k := 1 - c
	x, y, z := a[0], a[1], a[2]

	return Mat4{
		x*x*k + c, y*x*k + z*s, z*x*k - y*s, 0,
		x*y*k - z*s, y*y*k + c, z*y*k + x*s, 0,
		x*z*k + y*s, y*z*k - x*s, z*z*k + c, 0,
		0, 0, 0, 1,
	}
}

// Generate a view matrix for a camera at eye looking at center.
func LookAtV(eye, center, up Vec3) Mat4 {
	f := center.Sub(eye).Normalize()
	s := f.Cross(up.Normalize()).Normalize()
	u := s.Cross(f)

	m := Mat4{
		s[0], u[0], -f[0], 0,
		s[1], u[1], -f[1], 0,
		s[2], u[2], -f[2], 0,
		0, 0, 0, 1,
	}
	return m.Mul4(Translate4(eye.Neg()))
}

// Generate a perspective projection matrix. The field of view is specified
// in degrees.
func Perspective4(fovy, aspect, near, far float32) Mat4 {
	f := float32(1.0 / math.Tan(float64(fovy)*math.Pi/360.0))
	nmf := near - far
	return Mat4{
		f / aspect, 0, 0, 0,
		0, f, 0, 0,
		0, 0, (near + far) / nmf, -1,
		0, 0, (2 * far * near) / nmf, 0,
	}
}
