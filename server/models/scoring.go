package models

// SubmissionRequest is the body the scoring service expects for one
// completed repetition: every frame flattened to x, y, z triples.
type SubmissionRequest struct {
	PoseKey   string      `json:"poseKey"`
	Landmarks [][]float64 `json:"landmarks"`
}

type SubmissionResponse struct {
	Status   bool               `json:"status"`
	Feedback SubmissionFeedback `json:"feedback"`
}

type SubmissionFeedback struct {
	Landmarks string `json:"landmarks"`
	Angles    string `json:"angles"`
}

func NewSubmissionRequest(poseKey string, frames []Frame) *SubmissionRequest {
	landmarks := make([][]float64, 0, len(frames))
	for i := range frames {
		landmarks = append(landmarks, frames[i].Flatten())
	}
	return &SubmissionRequest{
		PoseKey:   poseKey,
		Landmarks: landmarks,
	}
}
