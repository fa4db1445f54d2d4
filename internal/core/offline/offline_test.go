package offline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/rl1809/scan-sync/internal/adapter/storage"
	"github.com/rl1809/scan-sync/internal/connectivity"
	"github.com/rl1809/scan-sync/internal/core/domain"
	"github.com/rl1809/scan-sync/internal/core/service"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// memQueue is an in-memory port.MutationQueue.
type memQueue struct {
	mu      sync.Mutex
	seq     int
	entries []domain.PendingMutation
	clock   time.Time
}

func (q *memQueue) Enqueue(ctx context.Context, m domain.PendingMutation) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	q.clock = q.clock.Add(time.Millisecond)
	if m.ID == "" {
		m.ID = fmt.Sprintf("m%d", q.seq)
	}
	m.CreatedAt = q.clock
	m.Synced = false
	q.entries = append(q.entries, m)
	return m.ID, nil
}

func (q *memQueue) ListUnsynced(ctx context.Context) ([]domain.PendingMutation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []domain.PendingMutation
	for _, m := range q.entries {
		if !m.Synced {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (q *memQueue) MarkSynced(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.entries {
		if q.entries[i].ID == id {
			q.entries[i].Synced = true
		}
	}
	return nil
}

func (q *memQueue) PruneSynced(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.entries[:0]
	for _, m := range q.entries {
		if !m.Synced {
			kept = append(kept, m)
		}
	}
	q.entries = kept
	return nil
}

func (q *memQueue) CountUnsynced(ctx context.Context) (int, error) {
	list, _ := q.ListUnsynced(ctx)
	return len(list), nil
}

func (q *memQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

type memProjection struct {
	mu      sync.Mutex
	records map[string]domain.LocalRecord
}

func newMemProjection() *memProjection {
	return &memProjection{records: make(map[string]domain.LocalRecord)}
}

func (p *memProjection) GetRecord(ctx context.Context, barcode string) (*domain.LocalRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.records[barcode]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (p *memProjection) PutRecord(ctx context.Context, rec domain.LocalRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records[rec.Barcode] = rec
	return nil
}

func (p *memProjection) ListRecords(ctx context.Context) ([]domain.LocalRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.LocalRecord
	for _, r := range p.records {
		out = append(out, r)
	}
	return out, nil
}

// engineDispatcher sends requests straight into a ReconcileService.
type engineDispatcher struct {
	mu     sync.Mutex
	engine *service.ReconcileService
	userID string
	calls  []domain.ReconcileRequest
	failOn map[string]error
	gate   chan struct{}
}

func newEngineDispatcher() (*engineDispatcher, *storage.MemoryAdapter) {
	repo := storage.NewMemoryAdapter()
	return &engineDispatcher{
		engine: service.NewReconcileService(repo, service.WithLedger(storage.NewMemoryLedger(time.Hour))),
		userID: "operator",
		failOn: make(map[string]error),
	}, repo
}

func (d *engineDispatcher) Reconcile(ctx context.Context, req domain.ReconcileRequest) (*domain.ReconcileResult, error) {
	d.mu.Lock()
	d.calls = append(d.calls, req)
	gate := d.gate
	failure := d.failOn[req.MutationID]
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failure != nil {
		return nil, failure
	}
	return d.engine.Reconcile(ctx, d.userID, req)
}

func (d *engineDispatcher) Calls() []domain.ReconcileRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.ReconcileRequest(nil), d.calls...)
}

type retryableErr struct {
	retryable bool
}

func (e retryableErr) Error() string   { return fmt.Sprintf("remote error (retryable=%v)", e.retryable) }
func (e retryableErr) Retryable() bool { return e.retryable }

var errNetwork = errors.New("connection reset")

func newTestTracker(online bool) (*Tracker, *memQueue, *memProjection, *engineDispatcher, *storage.MemoryAdapter, *connectivity.Monitor) {
	queue := &memQueue{clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	proj := newMemProjection()
	dispatcher, repo := newEngineDispatcher()
	monitor := connectivity.NewMonitor(online)
	orch := NewOrchestrator(queue, dispatcher, WithConnectivity(monitor))
	tracker := NewTracker(monitor, queue, NewProjection(proj), dispatcher, orch, nil)
	return tracker, queue, proj, dispatcher, repo, monitor
}

type onlineStub struct{}

func (onlineStub) Online() bool { return true }

func (onlineStub) Subscribe() (<-chan connectivity.Event, func()) {
	return make(chan connectivity.Event), func() {}
}
