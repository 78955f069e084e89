package geometry

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestAngle2D(t *testing.T) {
	tests := []struct {
		name       string
		p1, p2, p3 Point
		want       float64
	}{
		{"right angle", Point{X: 1}, Point{}, Point{Y: 1}, 90},
		{"straight", Point{X: 1}, Point{}, Point{X: -1}, 180},
		{"same direction", Point{X: 1}, Point{}, Point{X: 2}, 0},
		{"depth ignored", Point{X: 1, Z: 5}, Point{}, Point{Y: 1, Z: -3}, 90},
		{"forty five", Point{X: 1}, Point{}, Point{X: 1, Y: 1}, 45},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Angle2D(tt.p1, tt.p2, tt.p3)
			if !almostEqual(got, tt.want) {
				t.Errorf("Angle2D = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAngle3D(t *testing.T) {
	got := Angle3D(Point{X: 1}, Point{}, Point{X: -1})
	if !almostEqual(got, 180) {
		t.Errorf("collinear opposite = %v, want 180", got)
	}

	got = Angle3D(Point{X: 1}, Point{}, Point{Z: 1})
	if !almostEqual(got, 90) {
		t.Errorf("x/z axes = %v, want 90", got)
	}
}

func TestAngleDegenerate(t *testing.T) {
	p := Point{X: 0.3, Y: 0.4, Z: 0.1}
	if got := Angle3D(p, p, Point{X: 1}); got != 0 {
		t.Errorf("zero-length arm = %v, want 0", got)
	}
	if got := Angle2D(Point{X: 1}, p, p); got != 0 {
		t.Errorf("zero-length arm = %v, want 0", got)
	}
}

func TestInTolerance(t *testing.T) {
	tests := []struct {
		value float64
		want  bool
	}{
		{70, true},
		{69.9, false},
		{90, true},
		{110, true},
		{110.1, false},
	}

	for _, tt := range tests {
		if got := InTolerance(tt.value, 90, 40); got != tt.want {
			t.Errorf("InTolerance(%v, 90, 40) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestMidpoint(t *testing.T) {
	got := Midpoint(Point{X: 0, Y: 1, Z: 2}, Point{X: 2, Y: 3, Z: 4})
	if got != (Point{X: 1, Y: 2, Z: 3}) {
		t.Errorf("Midpoint = %+v", got)
	}
}
