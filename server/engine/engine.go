package engine

import (
	"go.uber.org/zap"

	"github.com/san-kum/fitpipe/server/models"
)

const (
	StatusKeypointsMissing = "Important keypoints missing"
	StatusLowVisibility    = "Bad lighting or visibility"
	StatusTooManyFrames    = "Repetition took too long"
)

type OutcomeKind int

const (
	OutcomeContinue OutcomeKind = iota
	OutcomeCompleted
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	default:
		return "continue"
	}
}

// Outcome is the result of processing one frame. Frames is set only for
// OutcomeCompleted and holds the whole repetition in arrival order.
// Phase is the phase the frame led to; for terminal outcomes the engine is
// already back in WaitingToStart when Process returns.
type Outcome struct {
	Kind   OutcomeKind
	Frames []models.Frame
	Status string
	Phase  Phase
}

// Session is the mutable state of one exercise session.
type Session struct {
	Exercise     Exercise
	Phase        Phase
	BadFormCount int
	Status       string
	FormOK       bool
	Side         Side
	Reps         int
	Failures     int

	buffer *RepBuffer
}

// Snapshot is a read-only copy of a session.
type Snapshot struct {
	Exercise     Exercise
	Phase        Phase
	BadFormCount int
	Status       string
	FormOK       bool
	Side         Side
	Reps         int
	Failures     int
	Buffered     int
}

// Engine counts repetitions of one exercise from a stream of frames.
// It is not safe for concurrent use; callers serialise Process calls.
type Engine struct {
	profile *Profile
	session Session
	logger  *zap.Logger
}

func New(ex Exercise, logger *zap.Logger) (*Engine, error) {
	profile, err := ProfileFor(ex)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{logger: logger}
	e.start(profile)
	return e, nil
}

func (e *Engine) start(profile *Profile) {
	e.profile = profile
	e.session = Session{
		Exercise: profile.Exercise,
		Phase:    WaitingToStart,
		FormOK:   true,
		Side:     SideLeft,
		buffer:   NewRepBuffer(profile.BufferCap),
	}
}

func (e *Engine) Exercise() Exercise {
	return e.session.Exercise
}

func (e *Engine) Snapshot() Snapshot {
	s := &e.session
	return Snapshot{
		Exercise:     s.Exercise,
		Phase:        s.Phase,
		BadFormCount: s.BadFormCount,
		Status:       s.Status,
		FormOK:       s.FormOK,
		Side:         s.Side,
		Reps:         s.Reps,
		Failures:     s.Failures,
		Buffered:     s.buffer.Count(),
	}
}

// SwitchExercise abandons the attempt in progress and starts a fresh
// session for ex. Counters, buffer and phase are all reset.
func (e *Engine) SwitchExercise(ex Exercise) error {
	profile, err := ProfileFor(ex)
	if err != nil {
		return err
	}
	e.logger.Debug("switching exercise",
		zap.Stringer("from", e.session.Exercise),
		zap.Stringer("to", ex))
	e.start(profile)
	return nil
}

// Reset drops the attempt in progress without counting it as a failure.
func (e *Engine) Reset() {
	e.resetAttempt()
	e.session.Status = ""
	e.session.FormOK = true
}

func (e *Engine) resetAttempt() {
	e.session.buffer.Clear()
	e.session.BadFormCount = 0
	e.session.Phase = WaitingToStart
}

// Process analyses one frame and advances the session.
func (e *Engine) Process(frame *models.Frame) Outcome {
	s := &e.session
	p := e.profile

	if missing := missingKeypoints(frame, p.Important); len(missing) > 0 {
		s.Status = StatusKeypointsMissing
		return e.cont()
	}

	side, ok := s.Side, true
	if p.Bilateral {
		ok = allVisible(frame, p.Roles)
	} else {
		side, ok = SelectSide(frame, p.Roles, s.Side)
	}
	if !ok {
		s.Status = StatusLowVisibility
		if s.Phase == WaitingToStart {
			return e.cont()
		}
		return e.fail(StatusLowVisibility)
	}
	// The side is chosen between attempts so every buffered frame of an
	// attempt is measured on the same body half.
	if s.Phase == WaitingToStart {
		s.Side = side
	}

	pose := Pose{Frame: frame, Side: s.Side}
	formOK, formStatus := p.FormCorrect(pose, s.buffer)
	s.FormOK = formOK
	if !formOK {
		s.Status = formStatus
	}

	miss := e.step(pose, formOK)
	if miss != "" {
		s.Status = miss
	}
	if formOK && miss == "" {
		s.BadFormCount = 0
	} else {
		s.BadFormCount++
	}

	switch {
	case s.Phase == Completed:
		return e.complete()
	case s.Phase != WaitingToStart && s.BadFormCount >= p.BadFormThreshold:
		return e.fail(s.Status)
	case s.buffer.Count() > p.BufferCap:
		return e.fail(StatusTooManyFrames)
	}
	return e.cont()
}

// step runs the phase predicates for one frame and returns the miss status
// of a peak decision, if any.
func (e *Engine) step(pose Pose, formOK bool) string {
	// A frame with bad form never moves the repetition along.
	if !formOK {
		return ""
	}

	s := &e.session
	p := e.profile

	var d Decision
	next := s.Phase
	switch s.Phase {
	case WaitingToStart:
		if p.StartPose(pose) {
			s.buffer.Append(pose)
			next = Started
		}
	case Started:
		if p.AdvancingToFlexion(pose, s.buffer) {
			s.buffer.Append(pose)
			next = GoingFlexion
		}
	case GoingFlexion:
		d = p.FlexionPeak(pose, s.buffer)
		if d.Advance {
			next = GoingExtension
		}
	case GoingExtension:
		d = p.ExtensionPeak(pose, s.buffer)
		if d.Advance {
			next = Completed
		}
	}
	if d.Append {
		s.buffer.Append(pose)
	}

	if next != s.Phase {
		e.logger.Debug("phase transition",
			zap.Stringer("exercise", s.Exercise),
			zap.Stringer("from", s.Phase),
			zap.Stringer("phase", next),
			zap.Stringer("side", s.Side))
		s.Phase = next
		s.Status = p.cue(next)
	}
	return d.Miss
}

func (e *Engine) cont() Outcome {
	return Outcome{Kind: OutcomeContinue, Status: e.session.Status, Phase: e.session.Phase}
}

func (e *Engine) complete() Outcome {
	s := &e.session
	if s.buffer.Count() >= e.profile.BufferCap {
		return e.fail(StatusTooManyFrames)
	}

	frames := s.buffer.All()
	s.Reps++
	e.logger.Debug("repetition completed",
		zap.Stringer("exercise", s.Exercise),
		zap.Int("frames", len(frames)),
		zap.Int("reps", s.Reps))
	e.resetAttempt()

	return Outcome{Kind: OutcomeCompleted, Frames: frames, Status: s.Status, Phase: Completed}
}

func (e *Engine) fail(status string) Outcome {
	s := &e.session
	s.Failures++
	s.Status = status
	e.logger.Debug("repetition failed",
		zap.Stringer("exercise", s.Exercise),
		zap.Stringer("phase", s.Phase),
		zap.String("status", status),
		zap.Int("frames", s.buffer.Count()))
	e.resetAttempt()

	return Outcome{Kind: OutcomeFailed, Status: status, Phase: Failed}
}
