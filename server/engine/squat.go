package engine

import (
	"math"

	"github.com/san-kum/fitpipe/server/geometry"
	"github.com/san-kum/fitpipe/server/models"
)

const (
	squatBadFormThreshold = 6
	squatBufferCap        = 30

	squatKneeOverFoot  = 0.05
	squatShoulderDrift = 0.05
	squatStanding      = 180.0
	squatStandingTol   = 40.0
	squatFlexDelta     = 5.0
	squatBottomHip     = 70.0
	squatBottomKnee    = 85.0
	squatShallowKnee   = 150.0
	squatTooDeepKnee   = 50.0
)

var (
	squatHipJoint  = Joint{A: RoleShoulder, Vertex: RoleHip, C: RoleKnee}
	squatKneeJoint = Joint{A: RoleHip, Vertex: RoleKnee, C: RoleAnkle}
)

// kneePastToes measures how far the knee travels beyond the toes in the
// direction the person faces. The facing direction is read from the foot,
// whose index toe points forward of the ankle.
func kneePastToes(p Pose) float64 {
	foot := p.Point(RoleFoot)
	facing := 1.0
	if foot.X < p.Point(RoleAnkle).X {
		facing = -1
	}
	return (p.Point(RoleKnee).X - foot.X) * facing
}

func squatProfile() *Profile {
	return &Profile{
		Exercise: Squat,
		Roles:    []Role{RoleShoulder, RoleHip, RoleKnee, RoleAnkle, RoleFoot},
		Important: []models.Landmark{
			models.Nose,
			models.LeftShoulder, models.RightShoulder,
			models.LeftHip, models.RightHip,
			models.LeftKnee, models.RightKnee,
			models.LeftAnkle, models.RightAnkle,
			models.LeftFootIndex, models.RightFootIndex,
		},
		BadFormThreshold: squatBadFormThreshold,
		BufferCap:        squatBufferCap,

		FormCorrect: func(p Pose, buf *RepBuffer) (bool, string) {
			if kneePastToes(p) > squatKneeOverFoot {
				return false, "Knee can't be over foot"
			}
			if buf.Count() > 0 && math.Abs(p.Point(RoleShoulder).X-buf.FirstX(RoleShoulder)) > squatShoulderDrift {
				return false, "Keep your shoulders steady"
			}
			return true, ""
		},

		StartPose: func(p Pose) bool {
			return geometry.InTolerance(p.Angle(squatKneeJoint), squatStanding, squatStandingTol) &&
				geometry.InTolerance(p.Angle(squatHipJoint), squatStanding, squatStandingTol)
		},

		AdvancingToFlexion: func(p Pose, buf *RepBuffer) bool {
			return buf.LastAngle(squatHipJoint)-p.Angle(squatHipJoint) > squatFlexDelta &&
				buf.LastAngle(squatKneeJoint)-p.Angle(squatKneeJoint) > squatFlexDelta
		},

		FlexionPeak: func(p Pose, buf *RepBuffer) Decision {
			hip, knee := p.Angle(squatHipJoint), p.Angle(squatKneeJoint)
			switch {
			case hip <= buf.LastAngle(squatHipJoint) || knee <= buf.LastAngle(squatKneeJoint):
				return Decision{Append: true, Advance: hip < squatBottomHip && knee < squatBottomKnee}
			case knee > squatShallowKnee:
				return Decision{Miss: "Not deep enough"}
			default:
				return Decision{}
			}
		},

		ExtensionPeak: func(p Pose, buf *RepBuffer) Decision {
			hip, knee := p.Angle(squatHipJoint), p.Angle(squatKneeJoint)
			switch {
			case hip >= buf.LastAngle(squatHipJoint) || knee >= buf.LastAngle(squatKneeJoint):
				standing := geometry.InTolerance(hip, squatStanding, squatStandingTol) &&
					geometry.InTolerance(knee, squatStanding, squatStandingTol)
				return Decision{Append: true, Advance: standing}
			case knee < squatTooDeepKnee:
				return Decision{Miss: "Too deep"}
			default:
				return Decision{}
			}
		},

		Cues: map[Phase]string{
			Started:        "Squat started",
			GoingFlexion:   "Going down",
			GoingExtension: "Going up",
			Completed:      "Squat completed",
		},
	}
}
