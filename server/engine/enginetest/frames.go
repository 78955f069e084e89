// Package enginetest builds synthetic pose frames for tests.
package enginetest

import (
	"math"

	"github.com/san-kum/fitpipe/server/geometry"
	"github.com/san-kum/fitpipe/server/models"
)

// Confidence is the visibility and presence given to every keypoint.
const Confidence = 0.99

// Mirrored builds a frame from left-side landmarks, copying each point to
// its right-side twin so both body halves are identical.
func Mirrored(points map[models.Landmark]geometry.Point) *models.Frame {
	f := &models.Frame{}
	for i := range f.Keypoints {
		f.Keypoints[i] = models.Keypoint{Landmark: models.Landmark(i), Visibility: Confidence, Presence: Confidence}
	}
	for l, pt := range points {
		set(f, l, pt)
		if twin, ok := rightTwin(l); ok {
			set(f, twin, pt)
		}
	}
	return f
}

func set(f *models.Frame, l models.Landmark, pt geometry.Point) {
	f.Keypoints[l].X, f.Keypoints[l].Y, f.Keypoints[l].Z = pt.X, pt.Y, pt.Z
}

func rightTwin(l models.Landmark) (models.Landmark, bool) {
	switch l {
	case models.LeftEar, models.LeftShoulder, models.LeftElbow, models.LeftWrist,
		models.LeftHip, models.LeftKnee, models.LeftAnkle, models.LeftFootIndex:
		return l + 1, true
	}
	return l, false
}

// PushUp is a side view of a straight-bodied push-up with the elbow bent
// to elbowDeg. 180, 120, 90, 180 is one full repetition.
func PushUp(elbowDeg float64) *models.Frame {
	theta := elbowDeg * math.Pi / 180
	wrist := geometry.Point{X: 0.30, Y: 0.80}
	elbow := geometry.Point{X: 0.30, Y: 0.675}
	shoulder := geometry.Point{X: elbow.X + 0.125*math.Sin(theta), Y: elbow.Y + 0.125*math.Cos(theta)}
	ankle := geometry.Point{X: 0.90, Y: 0.65}
	hip := geometry.Midpoint(shoulder, ankle)

	dx, dy := shoulder.X-ankle.X, shoulder.Y-ankle.Y
	n := math.Hypot(dx, dy)
	ear := geometry.Point{X: shoulder.X + 0.06*dx/n, Y: shoulder.Y + 0.06*dy/n - 0.01}

	return Mirrored(map[models.Landmark]geometry.Point{
		models.Nose:          {X: ear.X - 0.02, Y: ear.Y},
		models.LeftEar:       ear,
		models.LeftShoulder:  shoulder,
		models.LeftElbow:     elbow,
		models.LeftWrist:     wrist,
		models.LeftHip:       hip,
		models.LeftKnee:      geometry.Midpoint(hip, ankle),
		models.LeftAnkle:     ankle,
		models.LeftFootIndex: {X: ankle.X + 0.02, Y: ankle.Y + 0.02},
	})
}

// PushUpRep is the frame sequence of one complete push-up.
func PushUpRep() []*models.Frame {
	return []*models.Frame{PushUp(180), PushUp(120), PushUp(90), PushUp(180)}
}

// Payload converts f to its wire form.
func Payload(f *models.Frame) *models.FramePayload {
	keypoints := make([]models.Keypoint, len(f.Keypoints))
	copy(keypoints, f.Keypoints[:])
	return &models.FramePayload{Timestamp: f.Timestamp, Keypoints: keypoints}
}
