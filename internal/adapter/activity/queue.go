// Package activity records reconcile activity off the request path.
package activity

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rl1809/scan-sync/internal/core/domain"
	"github.com/rl1809/scan-sync/internal/port"
)

var (
	ErrQueueFull   = errors.New("activity queue is full")
	ErrQueueClosed = errors.New("activity queue is closed")
)

const writeTimeout = 5 * time.Second

// Queue buffers activity entries and writes them to sink from a pool of
// workers, so a slow activity store never delays a reconcile.
type Queue struct {
	sink   port.ActivityLogger
	logger *slog.Logger
	ch     chan domain.ActivityEntry
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewQueue(sink port.ActivityLogger, size, workers int, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	if workers < 1 {
		workers = 1
	}

	q := &Queue{
		sink:   sink,
		logger: logger,
		ch:     make(chan domain.ActivityEntry, size),
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go func(id int) {
			defer q.wg.Done()
			q.workerLoop(id)
		}(i)
	}
	return q
}

// RecordActivity enqueues entry without blocking.
func (q *Queue) RecordActivity(ctx context.Context, entry domain.ActivityEntry) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- entry:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting entries and waits for the workers to flush.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	q.wg.Wait()
}

func (q *Queue) workerLoop(id int) {
	for entry := range q.ch {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := q.sink.RecordActivity(ctx, entry); err != nil {
			q.logger.Error("failed to write activity",
				"worker", id, "barcode", entry.Barcode, "zone", entry.Zone, "error", err)
		}
		cancel()
	}
}
