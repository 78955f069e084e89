package engine

import (
	"github.com/san-kum/fitpipe/server/geometry"
	"github.com/san-kum/fitpipe/server/models"
)

// Role is a side-agnostic body part. A Pose resolves it to the left or
// right landmark of its frame.
type Role int

const (
	RoleNose Role = iota
	RoleEar
	RoleShoulder
	RoleElbow
	RoleWrist
	RoleHip
	RoleKnee
	RoleAnkle
	RoleFoot
	// RoleMidHip is the point halfway between both hips, regardless of side.
	RoleMidHip
)

var roleLandmarks = map[Role][2]models.Landmark{
	RoleNose:     {models.Nose, models.Nose},
	RoleEar:      {models.LeftEar, models.RightEar},
	RoleShoulder: {models.LeftShoulder, models.RightShoulder},
	RoleElbow:    {models.LeftElbow, models.RightElbow},
	RoleWrist:    {models.LeftWrist, models.RightWrist},
	RoleHip:      {models.LeftHip, models.RightHip},
	RoleKnee:     {models.LeftKnee, models.RightKnee},
	RoleAnkle:    {models.LeftAnkle, models.RightAnkle},
	RoleFoot:     {models.LeftFootIndex, models.RightFootIndex},
}

// Landmark resolves r on side s. RoleMidHip has no single landmark and
// resolves to the left hip.
func (r Role) Landmark(s Side) models.Landmark {
	pair, ok := roleLandmarks[r]
	if !ok {
		pair = roleLandmarks[RoleHip]
	}
	if s == SideRight {
		return pair[1]
	}
	return pair[0]
}

// Pair returns the left and right landmarks of r.
func (r Role) Pair() [2]models.Landmark {
	return roleLandmarks[r]
}

// Joint names the angle at Vertex between A and C. Side pins the joint to
// one body half; SideAny follows the pose. Spatial joints include depth.
type Joint struct {
	A, Vertex, C Role
	Side         Side
	Spatial      bool
}

// On returns a copy of j pinned to side s.
func (j Joint) On(s Side) Joint {
	j.Side = s
	return j
}

// Pose is a frame viewed through the side chosen for the attempt.
type Pose struct {
	Frame *models.Frame
	Side  Side
}

func (p Pose) Point(r Role) geometry.Point {
	return p.PointOn(p.Side, r)
}

func (p Pose) PointOn(s Side, r Role) geometry.Point {
	if s == SideAny {
		s = p.Side
	}
	if r == RoleMidHip {
		return geometry.Midpoint(
			p.Frame.At(models.LeftHip).Point(),
			p.Frame.At(models.RightHip).Point(),
		)
	}
	return p.Frame.At(r.Landmark(s)).Point()
}

func (p Pose) Angle(j Joint) float64 {
	a := p.PointOn(j.Side, j.A)
	b := p.PointOn(j.Side, j.Vertex)
	c := p.PointOn(j.Side, j.C)
	if j.Spatial {
		return geometry.Angle3D(a, b, c)
	}
	return geometry.Angle2D(a, b, c)
}
