package models

import "time"

type FrameResult struct {
	SessionID string `json:"session_id"`
	Exercise  string `json:"exercise"`
	Outcome   string `json:"outcome"`
	Phase     string `json:"phase"`
	FormOK    bool   `json:"form_ok"`
	Status    string `json:"status"`
	RepCount  int    `json:"rep_count"`
	Side      string `json:"side"`
	AttemptID string `json:"attempt_id,omitempty"`
}

type SessionInfo struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"client_id"`
	Exercise  string    `json:"exercise"`
	Phase     string    `json:"phase"`
	FormOK    bool      `json:"form_ok"`
	Status    string    `json:"status"`
	RepCount  int       `json:"rep_count"`
	Failures  int       `json:"failures"`
	Side      string    `json:"side"`
	Buffered  int       `json:"buffered_frames"`
	CreatedAt time.Time `json:"created_at"`
	LastSeen  time.Time `json:"last_seen"`
}

const (
	AttemptCompleted = "completed"
	AttemptFailed    = "failed"
)

// AttemptRecord is one journaled repetition attempt.
type AttemptRecord struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"session_id"`
	Exercise         string    `json:"exercise"`
	Outcome          string    `json:"outcome"`
	Status           string    `json:"status"`
	FrameCount       int       `json:"frame_count"`
	Scored           bool      `json:"scored"`
	Accepted         bool      `json:"accepted"`
	LandmarkFeedback string    `json:"landmark_feedback,omitempty"`
	AngleFeedback    string    `json:"angle_feedback,omitempty"`
	Error            string    `json:"error,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}
