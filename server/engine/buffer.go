package engine

import "github.com/san-kum/fitpipe/server/models"

// Measure extracts a scalar from a pose.
type Measure func(Pose) float64

// RepBuffer holds the frames of the attempt in progress, each tagged with
// the side it was analysed with. Queries on an empty buffer return 0.
type RepBuffer struct {
	poses       []Pose
	firstAngles map[Joint]float64
}

func NewRepBuffer(capacity int) *RepBuffer {
	return &RepBuffer{
		poses:       make([]Pose, 0, capacity),
		firstAngles: make(map[Joint]float64),
	}
}

// Append stores a copy of the pose's frame.
func (b *RepBuffer) Append(p Pose) {
	frame := *p.Frame
	b.poses = append(b.poses, Pose{Frame: &frame, Side: p.Side})
}

func (b *RepBuffer) Clear() {
	b.poses = b.poses[:0]
	clear(b.firstAngles)
}

func (b *RepBuffer) Count() int {
	return len(b.poses)
}

// All returns the buffered frames in arrival order. The slice is a copy
// and stays valid after Clear.
func (b *RepBuffer) All() []models.Frame {
	frames := make([]models.Frame, len(b.poses))
	for i, p := range b.poses {
		frames[i] = *p.Frame
	}
	return frames
}

// FirstAngle is cached for the life of the attempt.
func (b *RepBuffer) FirstAngle(j Joint) float64 {
	if len(b.poses) == 0 {
		return 0
	}
	if v, ok := b.firstAngles[j]; ok {
		return v
	}
	v := b.poses[0].Angle(j)
	b.firstAngles[j] = v
	return v
}

func (b *RepBuffer) LastAngle(j Joint) float64 {
	if len(b.poses) == 0 {
		return 0
	}
	return b.poses[len(b.poses)-1].Angle(j)
}

func (b *RepBuffer) Last(m Measure) float64 {
	if len(b.poses) == 0 {
		return 0
	}
	return m(b.poses[len(b.poses)-1])
}

func (b *RepBuffer) FirstX(r Role) float64 {
	if len(b.poses) == 0 {
		return 0
	}
	return b.poses[0].Point(r).X
}

func (b *RepBuffer) LastY(r Role) float64 {
	if len(b.poses) == 0 {
		return 0
	}
	return b.poses[len(b.poses)-1].Point(r).Y
}
