package engine

import (
	"math"

	"github.com/san-kum/fitpipe/server/geometry"
	"github.com/san-kum/fitpipe/server/models"
)

const (
	jumpingJackBadFormThreshold = 12
	jumpingJackBufferCap        = 60

	jackKnee         = 150.0
	jackKneeTol      = 60.0
	jackArmSymmetry  = 30.0
	jackLegSymmetry  = 20.0
	jackClosedArms   = 35.0
	jackClosedLegs   = 20.0
	jackFlexDelta    = 5.0
	jackOpenArms     = 150.0
	jackOpenLegSpan  = 75.0
	jackOpenLegTol   = 36.0
	jackBackArms     = 60.0
	jackBackLegs     = 40.0
	jackBackoffSlack = 10.0
)

var jackArm = Joint{A: RoleWrist, Vertex: RoleShoulder, C: RoleHip}
var jackKneeJoint = Joint{A: RoleHip, Vertex: RoleKnee, C: RoleAnkle}

// legSpread is the angle between one leg and the vertical through the
// middle of the hips.
func legSpread(s Side) Measure {
	return func(p Pose) float64 {
		ankle := p.PointOn(s, RoleAnkle)
		mid := p.Point(RoleMidHip)
		return geometry.Angle2D(ankle, mid, geometry.Point{X: mid.X, Y: ankle.Y})
	}
}

func armRaise(s Side) Measure {
	j := jackArm.On(s)
	return func(p Pose) float64 { return p.Angle(j) }
}

var (
	leftArm  = armRaise(SideLeft)
	rightArm = armRaise(SideRight)
	leftLeg  = legSpread(SideLeft)
	rightLeg = legSpread(SideRight)

	jackLimbs = []Measure{leftArm, rightArm, leftLeg, rightLeg}
)

func jumpingJackProfile() *Profile {
	return &Profile{
		Exercise:  JumpingJack,
		Roles:     []Role{RoleShoulder, RoleElbow, RoleWrist, RoleHip, RoleKnee, RoleAnkle},
		Bilateral: true,
		Important: []models.Landmark{
			models.Nose,
			models.LeftShoulder, models.RightShoulder,
			models.LeftWrist, models.RightWrist,
			models.LeftHip, models.RightHip,
			models.LeftKnee, models.RightKnee,
			models.LeftAnkle, models.RightAnkle,
		},
		BadFormThreshold: jumpingJackBadFormThreshold,
		BufferCap:        jumpingJackBufferCap,

		FormCorrect: func(p Pose, _ *RepBuffer) (bool, string) {
			for _, s := range []Side{SideLeft, SideRight} {
				if !geometry.InTolerance(p.Angle(jackKneeJoint.On(s)), jackKnee, jackKneeTol) {
					return false, "Keep your legs straight"
				}
			}
			if math.Abs(leftArm(p)-rightArm(p)) >= jackArmSymmetry {
				return false, "Arms are not symmetric"
			}
			if math.Abs(leftLeg(p)-rightLeg(p)) >= jackLegSymmetry {
				return false, "Legs are not symmetric"
			}
			return true, ""
		},

		StartPose: func(p Pose) bool {
			return leftArm(p) < jackClosedArms && rightArm(p) < jackClosedArms &&
				leftLeg(p) < jackClosedLegs && rightLeg(p) < jackClosedLegs
		},

		AdvancingToFlexion: func(p Pose, buf *RepBuffer) bool {
			for _, m := range jackLimbs {
				if m(p)-buf.Last(m) <= jackFlexDelta {
					return false
				}
			}
			return true
		},

		FlexionPeak: func(p Pose, buf *RepBuffer) Decision {
			moving := false
			for _, m := range jackLimbs {
				if m(p) >= buf.Last(m) {
					moving = true
					break
				}
			}
			switch {
			case moving:
				open := leftArm(p) > jackOpenArms && rightArm(p) > jackOpenArms &&
					geometry.InTolerance(leftLeg(p)+rightLeg(p), jackOpenLegSpan, jackOpenLegTol)
				return Decision{Append: true, Advance: open}
			case buf.Last(leftLeg)-leftLeg(p) > jackBackoffSlack || buf.Last(rightLeg)-rightLeg(p) > jackBackoffSlack:
				return Decision{Miss: "Did not reach maximum flexion"}
			default:
				return Decision{}
			}
		},

		ExtensionPeak: func(p Pose, buf *RepBuffer) Decision {
			moving := false
			for _, m := range jackLimbs {
				if m(p) <= buf.Last(m) {
					moving = true
					break
				}
			}
			if moving {
				closed := leftArm(p) < jackBackArms && rightArm(p) < jackBackArms &&
					leftLeg(p) < jackBackLegs && rightLeg(p) < jackBackLegs
				return Decision{Append: true, Advance: closed}
			}
			for _, m := range jackLimbs {
				if m(p)-buf.Last(m) <= jackBackoffSlack {
					return Decision{}
				}
			}
			return Decision{Miss: "Did not reach maximum depression"}
		},

		Cues: map[Phase]string{
			Started:        "Jumping jack started",
			GoingFlexion:   "Arms up",
			GoingExtension: "Arms down",
			Completed:      "Jumping jack completed",
		},
	}
}
