package engine

import (
	"fmt"

	"github.com/san-kum/fitpipe/server/models"
)

// Decision is a profile's verdict for one frame while heading to a peak.
// Miss, when set, is user feedback for a frame moving the wrong way before
// the peak was reached; it counts toward the bad-form threshold.
type Decision struct {
	Append  bool
	Advance bool
	Miss    string
}

// Profile parameterises the shared repetition state machine for one
// exercise. The predicates receive the current pose and the attempt's
// buffer and must not modify either.
type Profile struct {
	Exercise Exercise

	// Roles are the symmetric body parts used to choose a side. Bilateral
	// profiles analyse both sides, so every landmark of every role must be
	// visible instead.
	Roles     []Role
	Bilateral bool

	// Important landmarks must be present before a frame is analysed.
	Important []models.Landmark

	BadFormThreshold int
	BufferCap        int

	FormCorrect        func(p Pose, buf *RepBuffer) (ok bool, status string)
	StartPose          func(p Pose) bool
	AdvancingToFlexion func(p Pose, buf *RepBuffer) bool
	FlexionPeak        func(p Pose, buf *RepBuffer) Decision
	ExtensionPeak      func(p Pose, buf *RepBuffer) Decision

	// Cues are shown to the user when a phase is entered.
	Cues map[Phase]string
}

var profiles = map[Exercise]*Profile{
	PushUp:      pushUpProfile(),
	SitUp:       sitUpProfile(),
	Squat:       squatProfile(),
	JumpingJack: jumpingJackProfile(),
}

// ProfileFor returns the built-in profile of e.
func ProfileFor(e Exercise) (*Profile, error) {
	p, ok := profiles[e]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownExercise, e)
	}
	return p, nil
}

func (p *Profile) cue(phase Phase) string {
	return p.Cues[phase]
}

// towardPeak is the common GoingFlexion/GoingExtension rule for a single
// angle: frames moving toward the peak are kept, reaching the window
// advances, and backing off by more than slack reports miss.
func towardPeak(current, last float64, decreasing, reached bool, slack float64, miss string) Decision {
	moving := current >= last
	backoff := last - current
	if decreasing {
		moving = current <= last
		backoff = current - last
	}

	switch {
	case moving:
		return Decision{Append: true, Advance: reached}
	case backoff > slack:
		return Decision{Miss: miss}
	default:
		return Decision{}
	}
}
