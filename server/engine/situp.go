package engine

import (
	"math"

	"github.com/san-kum/fitpipe/server/geometry"
	"github.com/san-kum/fitpipe/server/models"
)

const (
	sitUpBadFormThreshold = 12
	sitUpBufferCap        = 60

	sitUpKnee          = 90.0
	sitUpKneeTol       = 40.0
	sitUpFeetLift      = 0.1
	sitUpFeetSlide     = 0.05
	sitUpLyingHip      = 130.0
	sitUpLyingHipTol   = 40.0
	sitUpFlexDelta     = 5.0
	sitUpSittingHip    = 90.0
	sitUpSittingHipTol = 40.0
	sitUpBackoffSlack  = 10.0
)

var (
	sitUpKneeJoint = Joint{A: RoleHip, Vertex: RoleKnee, C: RoleAnkle, Spatial: true}
	sitUpHipJoint  = Joint{A: RoleShoulder, Vertex: RoleHip, C: RoleKnee, Spatial: true}
)

func sitUpProfile() *Profile {
	return &Profile{
		Exercise: SitUp,
		Roles:    []Role{RoleShoulder, RoleHip, RoleKnee, RoleAnkle, RoleFoot},
		Important: []models.Landmark{
			models.LeftShoulder, models.RightShoulder,
			models.LeftElbow, models.RightElbow,
			models.LeftHip, models.RightHip,
			models.LeftKnee, models.RightKnee,
			models.LeftAnkle, models.RightAnkle,
		},
		BadFormThreshold: sitUpBadFormThreshold,
		BufferCap:        sitUpBufferCap,

		FormCorrect: func(p Pose, buf *RepBuffer) (bool, string) {
			if !geometry.InTolerance(p.Angle(sitUpKneeJoint), sitUpKnee, sitUpKneeTol) {
				return false, "Knees Angle Wrong"
			}
			if math.Abs(p.Point(RoleHip).Y-p.Point(RoleFoot).Y) >= sitUpFeetLift {
				return false, "Feet Not On Ground"
			}
			if buf.Count() > 0 && math.Abs(p.Point(RoleFoot).X-buf.FirstX(RoleFoot)) > sitUpFeetSlide {
				return false, "Keep your feet in place"
			}
			return true, ""
		},

		StartPose: func(p Pose) bool {
			return geometry.InTolerance(p.Angle(sitUpHipJoint), sitUpLyingHip, sitUpLyingHipTol)
		},

		AdvancingToFlexion: func(p Pose, buf *RepBuffer) bool {
			return buf.LastAngle(sitUpHipJoint)-p.Angle(sitUpHipJoint) > sitUpFlexDelta
		},

		FlexionPeak: func(p Pose, buf *RepBuffer) Decision {
			hip := p.Angle(sitUpHipJoint)
			reached := geometry.InTolerance(hip, sitUpSittingHip, sitUpSittingHipTol)
			return towardPeak(hip, buf.LastAngle(sitUpHipJoint), true, reached,
				sitUpBackoffSlack, "Sit up higher")
		},

		ExtensionPeak: func(p Pose, buf *RepBuffer) Decision {
			hip := p.Angle(sitUpHipJoint)
			reached := geometry.InTolerance(hip, sitUpLyingHip, sitUpLyingHipTol)
			return towardPeak(hip, buf.LastAngle(sitUpHipJoint), false, reached,
				sitUpBackoffSlack, "Lie back down fully")
		},

		Cues: map[Phase]string{
			Started:        "Sit up started",
			GoingFlexion:   "Going up",
			GoingExtension: "Going down",
			Completed:      "Sit up completed",
		},
	}
}
