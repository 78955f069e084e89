package engine

import (
	"github.com/san-kum/fitpipe/server/geometry"
	"github.com/san-kum/fitpipe/server/models"
)

const (
	pushUpBadFormThreshold = 12
	pushUpBufferCap        = 60

	pushUpStartElbow     = 180.0
	pushUpStartElbowTol  = 30.0
	pushUpStartArm       = 75.0
	pushUpStartArmTol    = 40.0
	pushUpFlexDelta      = 5.0
	pushUpBottomElbow    = 80.0
	pushUpBottomElbowTol = 40.0
	pushUpTopTol         = 40.0
	pushUpBackoffSlack   = 10.0
	pushUpNeck           = 160.0
	pushUpNeckTol        = 40.0
	pushUpHipLine        = 170.0
	pushUpHipLineTol     = 40.0
	pushUpMaxBodyIncline = 60.0
	pushUpLowMargin      = 0.1
)

var (
	pushUpElbow     = Joint{A: RoleShoulder, Vertex: RoleElbow, C: RoleWrist}
	pushUpArm       = Joint{A: RoleWrist, Vertex: RoleShoulder, C: RoleHip}
	pushUpNeckJoint = Joint{A: RoleEar, Vertex: RoleShoulder, C: RoleHip}
	pushUpHipJoint  = Joint{A: RoleShoulder, Vertex: RoleHip, C: RoleAnkle, Spatial: true}
)

// bodyIncline is the angle at the ankle between the body line and the
// floor, the floor being the ankle's height below the wrist.
func bodyIncline(p Pose) float64 {
	wrist := p.Point(RoleWrist)
	ankle := p.Point(RoleAnkle)
	floor := geometry.Point{X: wrist.X, Y: ankle.Y, Z: wrist.Z}
	return geometry.Angle3D(p.Point(RoleShoulder), ankle, floor)
}

func pushUpProfile() *Profile {
	return &Profile{
		Exercise: PushUp,
		Roles:    []Role{RoleEar, RoleShoulder, RoleHip, RoleAnkle, RoleWrist, RoleElbow},
		Important: []models.Landmark{
			models.Nose,
			models.LeftShoulder, models.RightShoulder,
			models.LeftElbow, models.RightElbow,
			models.LeftWrist, models.RightWrist,
			models.LeftHip, models.RightHip,
			models.LeftKnee, models.RightKnee,
			models.LeftAnkle, models.RightAnkle,
		},
		BadFormThreshold: pushUpBadFormThreshold,
		BufferCap:        pushUpBufferCap,

		FormCorrect: func(p Pose, _ *RepBuffer) (bool, string) {
			straight := geometry.InTolerance(p.Angle(pushUpNeckJoint), pushUpNeck, pushUpNeckTol) &&
				geometry.InTolerance(p.Angle(pushUpHipJoint), pushUpHipLine, pushUpHipLineTol)
			if !straight {
				return false, "Keep your body straight"
			}
			if bodyIncline(p) >= pushUpMaxBodyIncline {
				return false, "Get into a plank position"
			}
			// Image y grows downward: the head must stay clear above the hands.
			if p.Point(RoleEar).Y > p.Point(RoleWrist).Y-pushUpLowMargin {
				return false, "Body too low"
			}
			return true, ""
		},

		StartPose: func(p Pose) bool {
			return geometry.InTolerance(p.Angle(pushUpElbow), pushUpStartElbow, pushUpStartElbowTol) &&
				geometry.InTolerance(p.Angle(pushUpArm), pushUpStartArm, pushUpStartArmTol)
		},

		AdvancingToFlexion: func(p Pose, buf *RepBuffer) bool {
			return buf.LastAngle(pushUpElbow)-p.Angle(pushUpElbow) > pushUpFlexDelta
		},

		FlexionPeak: func(p Pose, buf *RepBuffer) Decision {
			elbow := p.Angle(pushUpElbow)
			reached := geometry.InTolerance(elbow, pushUpBottomElbow, pushUpBottomElbowTol)
			return towardPeak(elbow, buf.LastAngle(pushUpElbow), true, reached,
				pushUpBackoffSlack, "Go lower")
		},

		ExtensionPeak: func(p Pose, buf *RepBuffer) Decision {
			elbow := p.Angle(pushUpElbow)
			reached := geometry.InTolerance(elbow, buf.FirstAngle(pushUpElbow), pushUpTopTol)
			return towardPeak(elbow, buf.LastAngle(pushUpElbow), false, reached,
				pushUpBackoffSlack, "Straighten your arms")
		},

		Cues: map[Phase]string{
			Started:        "Push up started",
			GoingFlexion:   "Going down",
			GoingExtension: "Push up",
			Completed:      "Push up completed",
		},
	}
}
