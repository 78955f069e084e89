package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/san-kum/fitpipe/server/cache"
	"github.com/san-kum/fitpipe/server/engine"
	"github.com/san-kum/fitpipe/server/models"
)

var ErrSessionNotFound = errors.New("session not found")

// Scorer is the external service that grades a completed repetition.
type Scorer interface {
	Submit(ctx context.Context, request *models.SubmissionRequest) (*models.SubmissionResponse, error)
}

// AttemptRecorder persists finished attempts.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, rec *models.AttemptRecord) error
}

// FeedbackListener receives the journaled record of every terminal attempt
// of a session, after scoring.
type FeedbackListener func(rec models.AttemptRecord)

// FrameProcessor owns one engine per client session and hands terminal
// attempts to the submission queue.
type FrameProcessor struct {
	scorer   Scorer
	journal  AttemptRecorder
	logger   *zap.Logger
	queue    *ProcessingQueue
	sessions cache.Cache[*Session]
	config   *ProcessorConfig
	stats    ProcessorStats
	mutex    sync.RWMutex
	closing  bool
	ctx      context.Context
	cancel   context.CancelFunc
}

type ProcessorConfig struct {
	QueueSize     int
	Workers       int
	SubmitTimeout time.Duration

	// With scoring disabled, completed attempts are journaled unscored.
	ScoringEnabled bool
}

type ProcessorStats struct {
	StartTime          time.Time         `json:"start_time"`
	FramesProcessed    int64             `json:"frames_processed"`
	RepsCompleted      int64             `json:"reps_completed"`
	AttemptsFailed     int64             `json:"attempts_failed"`
	SubmissionsScored  int64             `json:"submissions_scored"`
	SubmissionFailures int64             `json:"submission_failures"`
	Dropped            int64             `json:"dropped"`
	AverageLatency     float64           `json:"average_latency_us"`
	ActiveSessions     int               `json:"active_sessions"`
	Queue              QueueStats        `json:"queue"`
	Cache              *cache.CacheStats `json:"cache"`
}

// Session is one client's exercise session. The engine is guarded by mu
// because a session may be fed from several connections.
type Session struct {
	ID        string
	ClientID  string
	CreatedAt time.Time

	mu       sync.Mutex
	engine   *engine.Engine
	lastSeen time.Time
	listener FeedbackListener
}

func NewFrameProcessor(scorer Scorer, journal AttemptRecorder, sessions cache.Cache[*Session], config *ProcessorConfig, logger *zap.Logger) *FrameProcessor {
	ctx, cancel := context.WithCancel(context.Background())

	processor := &FrameProcessor{
		scorer:   scorer,
		journal:  journal,
		logger:   logger,
		sessions: sessions,
		config:   config,
		stats:    ProcessorStats{StartTime: time.Now()},
		ctx:      ctx,
		cancel:   cancel,
	}

	processor.queue = NewProcessingQueue(config.QueueSize, config.Workers, processor.processAttempt, logger)

	return processor
}

func (fp *FrameProcessor) CreateSession(clientID string, exercise engine.Exercise) (*models.SessionInfo, error) {
	if fp.isClosing() {
		return nil, ErrShuttingDown
	}

	id := uuid.NewString()
	eng, err := engine.New(exercise, fp.logger.With(zap.String("session_id", id)))
	if err != nil {
		return nil, err
	}

	now := time.Now()
	session := &Session{
		ID:        id,
		ClientID:  clientID,
		CreatedAt: now,
		engine:    eng,
		lastSeen:  now,
	}
	fp.sessions.Set(id, session)

	fp.logger.Info("Session created",
		zap.String("session_id", id),
		zap.String("client_id", clientID),
		zap.Stringer("exercise", exercise))

	return session.info(), nil
}

func (fp *FrameProcessor) session(id string) (*Session, error) {
	session, err := fp.sessions.Get(id)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil, err
	}
	return session, nil
}

func (fp *FrameProcessor) GetSession(id string) (*models.SessionInfo, error) {
	session, err := fp.session(id)
	if err != nil {
		return nil, err
	}
	return session.info(), nil
}

// SetListener replaces the feedback listener of a session. A nil listener
// removes it.
func (fp *FrameProcessor) SetListener(id string, listener FeedbackListener) error {
	session, err := fp.session(id)
	if err != nil {
		return err
	}
	session.mu.Lock()
	session.listener = listener
	session.mu.Unlock()
	return nil
}

// SwitchExercise abandons the attempt in progress and restarts the session
// on a new exercise.
func (fp *FrameProcessor) SwitchExercise(id string, exercise engine.Exercise) (*models.SessionInfo, error) {
	session, err := fp.session(id)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	err = session.engine.SwitchExercise(exercise)
	session.mu.Unlock()
	if err != nil {
		return nil, err
	}

	fp.logger.Info("Session exercise switched",
		zap.String("session_id", id),
		zap.Stringer("exercise", exercise))
	return session.info(), nil
}

// SessionEvicted is the session cache's eviction hook.
func (fp *FrameProcessor) SessionEvicted(id string, session *Session) {
	info := session.info()
	fp.logger.Info("Session expired",
		zap.String("session_id", id),
		zap.String("exercise", info.Exercise),
		zap.Int("reps", info.RepCount),
		zap.Time("last_seen", info.LastSeen))
}

func (fp *FrameProcessor) CloseSession(id string) error {
	if !fp.sessions.Delete(id) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	fp.logger.Info("Session closed", zap.String("session_id", id))
	return nil
}

// ProcessFrame runs one frame through the session's engine. Terminal
// attempts are queued for scoring and journaling; the call never waits
// for them.
func (fp *FrameProcessor) ProcessFrame(id string, frame *models.Frame) (*models.FrameResult, error) {
	if fp.isClosing() {
		return nil, ErrShuttingDown
	}
	session, err := fp.session(id)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	session.mu.Lock()
	outcome := session.engine.Process(frame)
	snapshot := session.engine.Snapshot()
	session.lastSeen = start
	listener := session.listener
	session.mu.Unlock()

	result := &models.FrameResult{
		SessionID: id,
		Exercise:  snapshot.Exercise.String(),
		Outcome:   outcome.Kind.String(),
		Phase:     outcome.Phase.String(),
		FormOK:    snapshot.FormOK,
		Status:    outcome.Status,
		RepCount:  snapshot.Reps,
		Side:      snapshot.Side.String(),
	}

	if outcome.Kind != engine.OutcomeContinue {
		result.AttemptID = uuid.NewString()
		fp.submit(&QueueItem{
			AttemptID: result.AttemptID,
			SessionID: id,
			Exercise:  snapshot.Exercise,
			Outcome:   outcomeRecord(outcome.Kind),
			Status:    outcome.Status,
			Frames:    outcome.Frames,
			Notify:    listener,
			Enqueued:  time.Now(),
		})
	}

	fp.recordFrame(outcome.Kind, time.Since(start))
	return result, nil
}

func outcomeRecord(kind engine.OutcomeKind) string {
	if kind == engine.OutcomeCompleted {
		return models.AttemptCompleted
	}
	return models.AttemptFailed
}

func (fp *FrameProcessor) submit(item *QueueItem) {
	err := fp.queue.Enqueue(item)
	if err == nil {
		return
	}

	fp.logger.Error("Dropping attempt submission",
		zap.String("attempt_id", item.AttemptID),
		zap.String("session_id", item.SessionID),
		zap.Error(err))

	fp.mutex.Lock()
	fp.stats.Dropped++
	fp.mutex.Unlock()

	rec := item.record()
	rec.Error = err.Error()
	fp.record(&rec, item.Notify)
}

func (item *QueueItem) record() models.AttemptRecord {
	return models.AttemptRecord{
		ID:         item.AttemptID,
		SessionID:  item.SessionID,
		Exercise:   item.Exercise.String(),
		Outcome:    item.Outcome,
		Status:     item.Status,
		FrameCount: len(item.Frames),
		CreatedAt:  item.Enqueued.UTC(),
	}
}

// processAttempt is the queue's worker function.
func (fp *FrameProcessor) processAttempt(item *QueueItem) {
	rec := item.record()

	if item.Outcome == models.AttemptCompleted && fp.config.ScoringEnabled && fp.scorer != nil {
		ctx, cancel := context.WithTimeout(fp.ctx, fp.config.SubmitTimeout)
		request := models.NewSubmissionRequest(item.Exercise.String(), item.Frames)
		response, err := fp.scorer.Submit(ctx, request)
		cancel()

		fp.mutex.Lock()
		if err != nil {
			fp.stats.SubmissionFailures++
		} else {
			fp.stats.SubmissionsScored++
		}
		fp.mutex.Unlock()

		if err != nil {
			fp.logger.Error("Repetition submission failed",
				zap.String("attempt_id", item.AttemptID),
				zap.String("session_id", item.SessionID),
				zap.Stringer("exercise", item.Exercise),
				zap.Error(err))
			rec.Error = err.Error()
		} else {
			rec.Scored = true
			rec.Accepted = response.Status
			rec.LandmarkFeedback = response.Feedback.Landmarks
			rec.AngleFeedback = response.Feedback.Angles
		}
	}

	fp.record(&rec, item.Notify)
}

func (fp *FrameProcessor) record(rec *models.AttemptRecord, notify FeedbackListener) {
	if fp.journal != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := fp.journal.RecordAttempt(ctx, rec)
		cancel()
		if err != nil {
			fp.logger.Error("Failed to journal attempt",
				zap.String("attempt_id", rec.ID),
				zap.Error(err))
		}
	}

	if notify != nil {
		notify(*rec)
	}
}

func (fp *FrameProcessor) recordFrame(kind engine.OutcomeKind, latency time.Duration) {
	fp.mutex.Lock()
	defer fp.mutex.Unlock()

	fp.stats.FramesProcessed++
	switch kind {
	case engine.OutcomeCompleted:
		fp.stats.RepsCompleted++
	case engine.OutcomeFailed:
		fp.stats.AttemptsFailed++
	}

	current := float64(latency.Microseconds())
	if fp.stats.AverageLatency == 0 {
		fp.stats.AverageLatency = current
	} else {
		alpha := 0.1
		fp.stats.AverageLatency = alpha*current + (1-alpha)*fp.stats.AverageLatency
	}
}

func (fp *FrameProcessor) GetStats() *ProcessorStats {
	fp.mutex.RLock()
	stats := fp.stats
	fp.mutex.RUnlock()

	stats.ActiveSessions = fp.sessions.Len()
	stats.Queue = fp.queue.GetQueueStats()
	stats.Cache = fp.sessions.GetStats()
	return &stats
}

func (fp *FrameProcessor) isClosing() bool {
	fp.mutex.RLock()
	defer fp.mutex.RUnlock()
	return fp.closing
}

// Shutdown stops accepting frames, lets queued attempts finish within
// timeout and closes the session cache.
func (fp *FrameProcessor) Shutdown(timeout time.Duration) error {
	fp.logger.Info("Shutting down frame processor...")

	fp.mutex.Lock()
	fp.closing = true
	fp.mutex.Unlock()

	err := fp.queue.Shutdown(timeout)
	fp.cancel()
	if err != nil {
		fp.logger.Error("Failed to shutdown queue", zap.Error(err))
	}

	if cerr := fp.sessions.Close(); cerr != nil {
		fp.logger.Error("Failed to close session cache", zap.Error(cerr))
		if err == nil {
			err = cerr
		}
	}

	fp.logger.Info("Frame processor shutdown complete")
	return err
}

func (s *Session) info() *models.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.engine.Snapshot()
	return &models.SessionInfo{
		ID:        s.ID,
		ClientID:  s.ClientID,
		Exercise:  snapshot.Exercise.String(),
		Phase:     snapshot.Phase.String(),
		FormOK:    snapshot.FormOK,
		Status:    snapshot.Status,
		RepCount:  snapshot.Reps,
		Failures:  snapshot.Failures,
		Side:      snapshot.Side.String(),
		Buffered:  snapshot.Buffered,
		CreatedAt: s.CreatedAt,
		LastSeen:  s.lastSeen,
	}
}
