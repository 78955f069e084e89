package engine

import (
	"errors"
	"fmt"
	"strings"
)

// Phase is a step of the repetition lifecycle. Completed and Failed are
// terminal for an attempt; the engine moves back to WaitingToStart while
// handling them.
type Phase int

const (
	WaitingToStart Phase = iota
	Started
	GoingFlexion
	GoingExtension
	Completed
	Failed
)

var phaseNames = map[Phase]string{
	WaitingToStart: "waiting_to_start",
	Started:        "started",
	GoingFlexion:   "going_flexion",
	GoingExtension: "going_extension",
	Completed:      "completed",
	Failed:         "failed",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

func (p Phase) Terminal() bool {
	return p == Completed || p == Failed
}

type Exercise int

const (
	PushUp Exercise = iota
	SitUp
	Squat
	JumpingJack
)

var ErrUnknownExercise = errors.New("unknown exercise")

var exerciseKeys = map[Exercise]string{
	PushUp:      "push_up",
	SitUp:       "sit_up",
	Squat:       "squat",
	JumpingJack: "jumping_jack",
}

// String returns the key the scoring service uses for the exercise.
func (e Exercise) String() string {
	if key, ok := exerciseKeys[e]; ok {
		return key
	}
	return fmt.Sprintf("Exercise(%d)", int(e))
}

// ParseExercise accepts the snake case key ("push_up") as well as the
// display title ("Push Up").
func ParseExercise(s string) (Exercise, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	for e, k := range exerciseKeys {
		if k == key {
			return e, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownExercise, s)
}

type Side int

const (
	// SideAny means "the side chosen for the attempt" when used in a Joint.
	SideAny Side = iota
	SideLeft
	SideRight
)

func (s Side) String() string {
	switch s {
	case SideLeft:
		return "left"
	case SideRight:
		return "right"
	default:
		return "any"
	}
}
