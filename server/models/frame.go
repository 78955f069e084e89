package models

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/fitpipe/server/geometry"
)

var ErrInvalidFrame = errors.New("invalid frame")

// Keypoint is one landmark measurement. Visibility and Presence are the
// estimator's confidence scores in [0,1].
type Keypoint struct {
	Landmark   Landmark `json:"-"`
	X          float64  `json:"x"`
	Y          float64  `json:"y"`
	Z          float64  `json:"z"`
	Visibility float64  `json:"visibility"`
	Presence   float64  `json:"presence"`
}

func (k Keypoint) Point() geometry.Point {
	return geometry.Point{X: k.X, Y: k.Y, Z: k.Z}
}

// Frame is a full set of keypoints indexed by Landmark.
type Frame struct {
	Keypoints [LandmarkCount]Keypoint
	Timestamp int64
}

func (f *Frame) At(l Landmark) Keypoint {
	return f.Keypoints[l]
}

// Flatten returns x, y, z for every landmark in index order.
func (f *Frame) Flatten() []float64 {
	out := make([]float64, 0, LandmarkCount*3)
	for _, k := range f.Keypoints {
		out = append(out, k.X, k.Y, k.Z)
	}
	return out
}

// FramePayload is the JSON shape a client sends for one estimator result.
type FramePayload struct {
	Timestamp int64      `json:"timestamp"`
	Keypoints []Keypoint `json:"keypoints" binding:"required"`
}

// ToFrame validates the payload and builds a Frame from it.
func (p *FramePayload) ToFrame() (*Frame, error) {
	if len(p.Keypoints) != LandmarkCount {
		return nil, fmt.Errorf("%w: expected %d keypoints, got %d",
			ErrInvalidFrame, LandmarkCount, len(p.Keypoints))
	}

	frame := &Frame{Timestamp: p.Timestamp}
	for i, k := range p.Keypoints {
		if !finite(k.X, k.Y, k.Z, k.Visibility, k.Presence) {
			return nil, fmt.Errorf("%w: non-finite value at %s", ErrInvalidFrame, Landmark(i))
		}
		if k.Visibility < 0 || k.Visibility > 1 || k.Presence < 0 || k.Presence > 1 {
			return nil, fmt.Errorf("%w: confidence out of range at %s", ErrInvalidFrame, Landmark(i))
		}
		k.Landmark = Landmark(i)
		frame.Keypoints[i] = k
	}

	return frame, nil
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
