package region

// Vector3 is an integer block position.
type Vector3 struct {
	X, Y, Z int
}

// Min returns the component-wise minimum of v and o.
func (v Vector3) Min(o Vector3) Vector3 {
	return Vector3{X: min(v.X, o.X), Y: min(v.Y, o.Y), Z: min(v.Z, o.Z)}
}

// Max returns the component-wise maximum of v and o.
func (v Vector3) Max(o Vector3) Vector3 {
	return Vector3{X: max(v.X, o.X), Y: max(v.Y, o.Y), Z: max(v.Z, o.Z)}
}

// Vector2 is an integer position on the X/Z plane.
type Vector2 struct {
	X, Z int
}

// Cuboid is the payload of a KindCuboid region. Min <= Max on every axis.
type Cuboid struct {
	Min, Max Vector3
}

// Polygon is the payload of a KindPolygon region: an ordered outline on the
// X/Z plane extruded between MinY and MaxY.
type Polygon struct {
	Points []Vector2
	MinY   int
	MaxY   int
}
