// Package geometry holds the joint angle math used by the exercise engine.
package geometry

import "math"

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Flat drops the depth component.
func (p Point) Flat() Point {
	return Point{X: p.X, Y: p.Y}
}

// Midpoint returns the point halfway between a and b.
func Midpoint(a, b Point) Point {
	return Point{
		X: (a.X + b.X) / 2,
		Y: (a.Y + b.Y) / 2,
		Z: (a.Z + b.Z) / 2,
	}
}

// Angle2D returns the angle in degrees at vertex p2 formed by p1 and p3,
// using only the x and y coordinates. A zero-length arm yields 0, which
// callers must read as "unknown".
func Angle2D(p1, p2, p3 Point) float64 {
	return Angle3D(p1.Flat(), p2.Flat(), p3.Flat())
}

// Angle3D is Angle2D including the z coordinate.
func Angle3D(p1, p2, p3 Point) float64 {
	bax, bay, baz := p1.X-p2.X, p1.Y-p2.Y, p1.Z-p2.Z
	bcx, bcy, bcz := p3.X-p2.X, p3.Y-p2.Y, p3.Z-p2.Z

	magBA := math.Sqrt(bax*bax + bay*bay + baz*baz)
	magBC := math.Sqrt(bcx*bcx + bcy*bcy + bcz*bcz)
	if magBA == 0 || magBC == 0 {
		return 0
	}

	cos := (bax*bcx + bay*bcy + baz*bcz) / (magBA * magBC)
	cos = math.Max(-1, math.Min(1, cos))

	return math.Acos(cos) * 180 / math.Pi
}

// InTolerance reports whether value lies in the closed window of width
// tolerance centred on ideal.
func InTolerance(value, ideal, tolerance float64) bool {
	half := tolerance / 2
	return value >= ideal-half && value <= ideal+half
}
