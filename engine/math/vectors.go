package math

import gomath "math"

func NewVec2(x, y float32) Vec2 {
	return Vec2{X: x, Y: y}
}

func NewVec3(x, y, z float32) Vec3 {
	return Vec3{X: x, Y: y, Z: z}
}

func NewVec4(x, y, z, w float32) Vec4 {
	return Vec4{X: x, Y: y, Z: z, W: w}
}

func NewUVec3(x, y, z uint32) UVec3 {
	return UVec3{X: x, Y: y, Z: z}
}

// Slice returns the components in declaration order.
func (v Vec2) Slice() []float32 { return []float32{v.X, v.Y} }

func (v Vec3) Slice() []float32 { return []float32{v.X, v.Y, v.Z} }

func (v Vec4) Slice() []float32 { return []float32{v.X, v.Y, v.Z, v.W} }

func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

func (v Vec3) MulScalar(s float32) Vec3 {
	return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

func (v Vec3) Length() float32 {
	return float32(gomath.Sqrt(float64(v.X*v.X + v.Y*v.Y + v.Z*v.Z)))
}

// Compare reports whether every component is within tolerance.
func (v Vec3) Compare(other Vec3, tolerance float32) bool {
	return Abs(v.X-other.X) <= tolerance &&
		Abs(v.Y-other.Y) <= tolerance &&
		Abs(v.Z-other.Z) <= tolerance
}

// Component returns the i-th component (0..2), or 0 when out of range.
func (v UVec3) Component(i int) uint32 {
	switch i {
	case 0:
		return v.X
	case 1:
		return v.Y
	case 2:
		return v.Z
	}
	return 0
}
