package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/san-kum/fitpipe/server/engine"
	"github.com/san-kum/fitpipe/server/models"
	"github.com/san-kum/fitpipe/server/processor"
	"github.com/san-kum/fitpipe/server/storage"
)

const (
	defaultAttemptLimit = 20
	maxAttemptLimit     = 200
)

// AttemptJournal is the read side of the attempt journal.
type AttemptJournal interface {
	ListAttempts(ctx context.Context, sessionID string, limit int) ([]models.AttemptRecord, error)
	Stats(ctx context.Context) (*storage.JournalStats, error)
}

type SessionHandler struct {
	processor *processor.FrameProcessor
	journal   AttemptJournal
	logger    *zap.Logger

	mutex sync.Mutex
	stats SystemStats
}

type SystemStats struct {
	TotalFrames    int64     `json:"total_frames"`
	ProcessedOK    int64     `json:"processed_ok"`
	ProcessedError int64     `json:"processed_error"`
	AvgProcessTime float64   `json:"avg_process_time_us"`
	LastUpdated    time.Time `json:"last_updated"`
}

type CreateSessionRequest struct {
	Exercise string `json:"exercise" binding:"required"`
	ClientID string `json:"client_id"`
}

type SwitchExerciseRequest struct {
	Exercise string `json:"exercise" binding:"required"`
}

func NewSessionHandler(processor *processor.FrameProcessor, journal AttemptJournal, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		processor: processor,
		journal:   journal,
		logger:    logger,
		stats:     SystemStats{LastUpdated: time.Now()},
	}
}

func (h *SessionHandler) CreateSession(c *gin.Context) {
	var request CreateSessionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	exercise, err := engine.ParseExercise(request.Exercise)
	if err != nil {
		respondError(c, err)
		return
	}

	clientID := request.ClientID
	if clientID == "" {
		clientID = c.ClientIP()
	}

	info, err := h.processor.CreateSession(clientID, exercise)
	if err != nil {
		h.logger.Error("Failed to create session", zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, info)
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	info, err := h.processor.GetSession(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *SessionHandler) DeleteSession(c *gin.Context) {
	if err := h.processor.CloseSession(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SessionHandler) SwitchExercise(c *gin.Context) {
	var request SwitchExerciseRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	exercise, err := engine.ParseExercise(request.Exercise)
	if err != nil {
		respondError(c, err)
		return
	}

	info, err := h.processor.SwitchExercise(c.Param("id"), exercise)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *SessionHandler) ProcessFrame(c *gin.Context) {
	startTime := time.Now()

	var payload models.FramePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.recordFrame(false, 0)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	frame, err := payload.ToFrame()
	if err != nil {
		h.recordFrame(false, 0)
		respondError(c, err)
		return
	}

	result, err := h.processor.ProcessFrame(c.Param("id"), frame)
	if err != nil {
		h.recordFrame(false, 0)
		respondError(c, err)
		return
	}

	h.recordFrame(true, time.Since(startTime))
	c.JSON(http.StatusOK, result)
}

func (h *SessionHandler) ListAttempts(c *gin.Context) {
	limit := defaultAttemptLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxAttemptLimit)
	}

	attempts, err := h.journal.ListAttempts(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		h.logger.Error("Failed to list attempts", zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": c.Param("id"),
		"attempts":   attempts,
	})
}

func (h *SessionHandler) GetStats(c *gin.Context) {
	h.mutex.Lock()
	h.stats.LastUpdated = time.Now()
	system := h.stats
	h.mutex.Unlock()

	var successRate float64
	if system.TotalFrames > 0 {
		successRate = float64(system.ProcessedOK) / float64(system.TotalFrames) * 100
	}

	processorStats := h.processor.GetStats()

	journalStats, err := h.journal.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to read journal stats", zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"system":    system,
		"processor": processorStats,
		"journal":   journalStats,
		"metrics": gin.H{
			"success_rate":   successRate,
			"uptime_seconds": time.Since(processorStats.StartTime).Seconds(),
		},
	})
}

func (h *SessionHandler) recordFrame(ok bool, duration time.Duration) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.stats.TotalFrames++
	if !ok {
		h.stats.ProcessedError++
		return
	}
	h.stats.ProcessedOK++

	current := float64(duration.Microseconds())
	if h.stats.AvgProcessTime == 0 {
		h.stats.AvgProcessTime = current
	} else {
		alpha := 0.1
		h.stats.AvgProcessTime = alpha*current + (1-alpha)*h.stats.AvgProcessTime
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, processor.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrUnknownExercise), errors.Is(err, models.ErrInvalidFrame):
		return http.StatusBadRequest
	case errors.Is(err, processor.ErrShuttingDown), errors.Is(err, processor.ErrQueueFull):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "Internal server error"
	}
	c.JSON(status, gin.H{"error": message})
}
