package processor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/san-kum/fitpipe/server/engine"
	"github.com/san-kum/fitpipe/server/models"
)

var (
	ErrQueueFull    = errors.New("submission queue full")
	ErrShuttingDown = errors.New("shutting down")
)

// ProcessingQueue runs finished attempts through a fixed pool of workers.
type ProcessingQueue struct {
	items      chan *QueueItem
	workers    int
	workerFunc func(*QueueItem)
	logger     *zap.Logger
	wg         sync.WaitGroup
	isRunning  bool
	mutex      sync.RWMutex
}

// QueueItem is one terminal attempt waiting to be scored and journaled.
type QueueItem struct {
	AttemptID string
	SessionID string
	Exercise  engine.Exercise
	Outcome   string
	Status    string
	Frames    []models.Frame
	Notify    FeedbackListener
	Enqueued  time.Time
}

type QueueStats struct {
	CurrentSize        int     `json:"current_size"`
	MaxCapacity        int     `json:"max_capacity"`
	ActiveWorkers      int     `json:"active_workers"`
	IsRunning          bool    `json:"is_running"`
	UtilizationPercent float64 `json:"utilization_percent"`
}

func NewProcessingQueue(queueSize, workers int, workerFunc func(*QueueItem), logger *zap.Logger) *ProcessingQueue {
	queue := &ProcessingQueue{
		items:      make(chan *QueueItem, queueSize),
		workers:    workers,
		workerFunc: workerFunc,
		logger:     logger,
		isRunning:  true,
	}

	for i := 0; i < workers; i++ {
		queue.wg.Add(1)
		go queue.worker(i)
	}

	return queue
}

func (pq *ProcessingQueue) worker(id int) {
	defer pq.wg.Done()

	for item := range pq.items {
		func() {
			defer func() {
				if r := recover(); r != nil {
					pq.logger.Error("Queue worker panic",
						zap.Int("worker", id),
						zap.String("attempt_id", item.AttemptID),
						zap.Any("panic", r))
				}
			}()

			pq.workerFunc(item)
		}()
	}
}

// Enqueue never blocks: a full queue is reported as ErrQueueFull.
func (pq *ProcessingQueue) Enqueue(item *QueueItem) error {
	pq.mutex.RLock()
	defer pq.mutex.RUnlock()

	if !pq.isRunning {
		return ErrShuttingDown
	}

	select {
	case pq.items <- item:
		return nil
	default:
		return ErrQueueFull
	}
}

func (pq *ProcessingQueue) Size() int {
	return len(pq.items)
}

func (pq *ProcessingQueue) Capacity() int {
	return cap(pq.items)
}

func (pq *ProcessingQueue) IsRunning() bool {
	pq.mutex.RLock()
	defer pq.mutex.RUnlock()
	return pq.isRunning
}

// Shutdown stops accepting items and waits for the workers to finish the
// ones already queued.
func (pq *ProcessingQueue) Shutdown(timeout time.Duration) error {
	pq.mutex.Lock()
	if !pq.isRunning {
		pq.mutex.Unlock()
		return nil
	}
	pq.isRunning = false
	close(pq.items)
	pq.mutex.Unlock()

	done := make(chan struct{})
	go func() {
		pq.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("shutdown timeout exceeded with %d items pending", pq.Size())
	}
}

func (pq *ProcessingQueue) GetQueueStats() QueueStats {
	pq.mutex.RLock()
	defer pq.mutex.RUnlock()

	stats := QueueStats{
		CurrentSize:   pq.Size(),
		MaxCapacity:   pq.Capacity(),
		ActiveWorkers: pq.workers,
		IsRunning:     pq.isRunning,
	}
	if stats.MaxCapacity > 0 {
		stats.UtilizationPercent = float64(stats.CurrentSize) / float64(stats.MaxCapacity) * 100
	}
	return stats
}
