package processor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/san-kum/fitpipe/server/cache"
	"github.com/san-kum/fitpipe/server/engine"
	"github.com/san-kum/fitpipe/server/engine/enginetest"
	"github.com/san-kum/fitpipe/server/models"
)

type fakeScorer struct {
	mu       sync.Mutex
	requests []*models.SubmissionRequest
	response *models.SubmissionResponse
	err      error
}

func (s *fakeScorer) Submit(_ context.Context, request *models.SubmissionRequest) (*models.SubmissionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, request)
	return s.response, s.err
}

func (s *fakeScorer) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

type fakeJournal struct {
	records chan models.AttemptRecord
}

func (j *fakeJournal) RecordAttempt(_ context.Context, rec *models.AttemptRecord) error {
	j.records <- *rec
	return nil
}

func (j *fakeJournal) next(t *testing.T) models.AttemptRecord {
	t.Helper()
	select {
	case rec := <-j.records:
		return rec
	case <-time.After(2 * time.Second):
		t.Fatal("no attempt journaled")
		return models.AttemptRecord{}
	}
}

type harness struct {
	fp       *FrameProcessor
	scorer   *fakeScorer
	journal  *fakeJournal
	sessions *cache.MemoryCache[*Session]
}

func newHarness(t *testing.T, cfg *ProcessorConfig) *harness {
	t.Helper()
	return newHarnessTTL(t, cfg, time.Minute)
}

// newHarnessTTL is newHarness with idle sessions expiring after ttl.
func newHarnessTTL(t *testing.T, cfg *ProcessorConfig, ttl time.Duration) *harness {
	t.Helper()
	if cfg == nil {
		cfg = &ProcessorConfig{QueueSize: 8, Workers: 2, SubmitTimeout: time.Second, ScoringEnabled: true}
	}

	h := &harness{
		scorer: &fakeScorer{response: &models.SubmissionResponse{
			Status:   true,
			Feedback: models.SubmissionFeedback{Landmarks: "aligned", Angles: "elbow ok"},
		}},
		journal:  &fakeJournal{records: make(chan models.AttemptRecord, 16)},
		sessions: cache.NewMemoryCache[*Session](10, ttl, zap.NewNop()),
	}
	h.fp = NewFrameProcessor(h.scorer, h.journal, h.sessions, cfg, zap.NewNop())
	h.sessions.OnEvict(h.fp.SessionEvicted)
	t.Cleanup(func() {
		h.fp.Shutdown(time.Second)
		h.sessions.Close()
	})
	return h
}

func (h *harness) feed(t *testing.T, id string, frames ...*models.Frame) *models.FrameResult {
	t.Helper()
	var result *models.FrameResult
	for _, f := range frames {
		var err error
		result, err = h.fp.ProcessFrame(id, f)
		if err != nil {
			t.Fatalf("ProcessFrame: %v", err)
		}
	}
	return result
}

func sagging() *models.Frame {
	f := enginetest.PushUp(180)
	f.Keypoints[models.LeftEar].Y = 0.9
	f.Keypoints[models.RightEar].Y = 0.9
	return f
}

func TestCompletedRepetitionIsScoredAndJournaled(t *testing.T) {
	h := newHarness(t, nil)

	info, err := h.fp.CreateSession("client-1", engine.PushUp)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	notified := make(chan models.AttemptRecord, 1)
	if err := h.fp.SetListener(info.ID, func(rec models.AttemptRecord) { notified <- rec }); err != nil {
		t.Fatal(err)
	}

	result := h.feed(t, info.ID, enginetest.PushUpRep()...)
	if result.Outcome != "completed" || result.RepCount != 1 || result.AttemptID == "" {
		t.Fatalf("result = %+v", result)
	}

	rec := h.journal.next(t)
	if rec.ID != result.AttemptID || rec.SessionID != info.ID {
		t.Errorf("record ids = %s/%s", rec.ID, rec.SessionID)
	}
	if rec.Outcome != models.AttemptCompleted || rec.FrameCount != 4 || rec.Exercise != "push_up" {
		t.Errorf("record = %+v", rec)
	}
	if !rec.Scored || !rec.Accepted || rec.AngleFeedback != "elbow ok" {
		t.Errorf("scoring fields = %+v", rec)
	}

	select {
	case got := <-notified:
		if got.ID != rec.ID {
			t.Errorf("listener got %s, want %s", got.ID, rec.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("listener not notified")
	}

	if h.scorer.calls() != 1 {
		t.Fatalf("scorer calls = %d", h.scorer.calls())
	}
	req := h.scorer.requests[0]
	if req.PoseKey != "push_up" || len(req.Landmarks) != 4 {
		t.Errorf("submission poseKey=%q frames=%d", req.PoseKey, len(req.Landmarks))
	}

	stats := h.fp.GetStats()
	if stats.FramesProcessed != 4 || stats.RepsCompleted != 1 || stats.ActiveSessions != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestFailedAttemptIsJournaledUnscored(t *testing.T) {
	h := newHarness(t, nil)
	info, _ := h.fp.CreateSession("c", engine.PushUp)

	h.feed(t, info.ID, enginetest.PushUp(180))
	var result *models.FrameResult
	for i := 0; i < 12; i++ {
		result = h.feed(t, info.ID, sagging())
	}
	if result.Outcome != "failed" || result.Phase != "failed" {
		t.Fatalf("result = %+v", result)
	}

	rec := h.journal.next(t)
	if rec.Outcome != models.AttemptFailed || rec.Scored || rec.Status == "" {
		t.Errorf("record = %+v", rec)
	}
	if h.scorer.calls() != 0 {
		t.Errorf("failed attempt was submitted")
	}

	got, _ := h.fp.GetSession(info.ID)
	if got.Failures != 1 || got.Phase != "waiting_to_start" || got.Buffered != 0 {
		t.Errorf("session = %+v", got)
	}
}

func TestScoringErrorIsJournaled(t *testing.T) {
	h := newHarness(t, nil)
	h.scorer.err = errors.New("connection refused")
	h.scorer.response = nil

	info, _ := h.fp.CreateSession("c", engine.PushUp)
	h.feed(t, info.ID, enginetest.PushUpRep()...)

	rec := h.journal.next(t)
	if rec.Scored || rec.Error == "" {
		t.Errorf("record = %+v", rec)
	}
	if n := h.fp.GetStats().SubmissionFailures; n != 1 {
		t.Errorf("submission failures = %d, want 1", n)
	}
}

func TestScoringDisabled(t *testing.T) {
	h := newHarness(t, &ProcessorConfig{QueueSize: 4, Workers: 1, SubmitTimeout: time.Second})

	info, _ := h.fp.CreateSession("c", engine.PushUp)
	h.feed(t, info.ID, enginetest.PushUpRep()...)

	rec := h.journal.next(t)
	if rec.Outcome != models.AttemptCompleted || rec.Scored || rec.Error != "" {
		t.Errorf("record = %+v", rec)
	}
	if h.scorer.calls() != 0 {
		t.Error("scorer called with scoring disabled")
	}
}

func TestFullQueueDropsSubmission(t *testing.T) {
	// No workers and no buffer: every enqueue fails.
	h := newHarness(t, &ProcessorConfig{SubmitTimeout: time.Second, ScoringEnabled: true})

	info, _ := h.fp.CreateSession("c", engine.PushUp)
	result := h.feed(t, info.ID, enginetest.PushUpRep()...)
	if result.Outcome != "completed" {
		t.Fatalf("outcome = %s", result.Outcome)
	}

	rec := h.journal.next(t)
	if rec.Error != ErrQueueFull.Error() || rec.Scored {
		t.Errorf("record = %+v", rec)
	}
	if n := h.fp.GetStats().Dropped; n != 1 {
		t.Errorf("dropped = %d, want 1", n)
	}
}

func TestSessionLifecycle(t *testing.T) {
	h := newHarness(t, nil)

	if _, err := h.fp.ProcessFrame("missing", enginetest.PushUp(180)); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}

	info, err := h.fp.CreateSession("c", engine.PushUp)
	if err != nil {
		t.Fatal(err)
	}
	h.feed(t, info.ID, enginetest.PushUp(180))

	switched, err := h.fp.SwitchExercise(info.ID, engine.Squat)
	if err != nil {
		t.Fatalf("SwitchExercise: %v", err)
	}
	if switched.Exercise != "squat" || switched.Phase != "waiting_to_start" || switched.Buffered != 0 {
		t.Errorf("after switch = %+v", switched)
	}
	if _, err := h.fp.SwitchExercise(info.ID, engine.Exercise(9)); !errors.Is(err, engine.ErrUnknownExercise) {
		t.Errorf("err = %v, want ErrUnknownExercise", err)
	}

	if err := h.fp.CloseSession(info.ID); err != nil {
		t.Fatal(err)
	}
	if err := h.fp.CloseSession(info.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second close err = %v", err)
	}
	if _, err := h.fp.GetSession(info.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("get after close err = %v", err)
	}
}

func TestIdleSessionsExpire(t *testing.T) {
	h := newHarnessTTL(t, nil, 10*time.Millisecond)
	info, _ := h.fp.CreateSession("c", engine.Squat)

	time.Sleep(30 * time.Millisecond)
	if n := h.sessions.DeleteExpired(); n != 1 {
		t.Fatalf("expired = %d, want 1", n)
	}
	if _, err := h.fp.GetSession(info.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestShutdownRejectsWork(t *testing.T) {
	h := newHarness(t, nil)
	info, _ := h.fp.CreateSession("c", engine.PushUp)

	if err := h.fp.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if _, err := h.fp.ProcessFrame(info.ID, enginetest.PushUp(180)); !errors.Is(err, ErrShuttingDown) {
		t.Errorf("ProcessFrame err = %v", err)
	}
	if _, err := h.fp.CreateSession("c", engine.PushUp); !errors.Is(err, ErrShuttingDown) {
		t.Errorf("CreateSession err = %v", err)
	}
}
