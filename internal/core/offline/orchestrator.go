package offline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rl1809/scan-sync/internal/core/domain"
	"github.com/rl1809/scan-sync/internal/port"
)

var (
	ErrAlreadyDraining = errors.New("sync already in progress")
	ErrOffline         = errors.New("cannot sync while offline")
)

const DefaultDispatchTimeout = 15 * time.Second

type State int32

const (
	StateIdle State = iota
	StateDraining
)

func (s State) String() string {
	if s == StateDraining {
		return "draining"
	}
	return "idle"
}

// OnlineChecker reports the current connectivity state.
type OnlineChecker interface {
	Online() bool
}

type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

type Failure struct {
	MutationID string `json:"mutationId"`
	Barcode    string `json:"barcode"`
	Error      string `json:"error"`
}

// DrainResult summarizes one pass over the unsynced snapshot.
type DrainResult struct {
	Total      int       `json:"total"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Failures   []Failure `json:"failures,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

func (r DrainResult) Summary() string {
	if r.Failed == 0 {
		return fmt.Sprintf("Synced %d items", r.Succeeded)
	}
	return fmt.Sprintf("Synced %d items, %d failed", r.Succeeded, r.Failed)
}

type Status struct {
	State      State        `json:"-"`
	Progress   Progress     `json:"progress"`
	Pending    int          `json:"pending"`
	LastSync   time.Time    `json:"lastSync,omitempty"`
	LastResult *DrainResult `json:"lastResult,omitempty"`
	LastError  string       `json:"lastError,omitempty"`
}

// Orchestrator replays the local mutation log against the remote
// reconciliation engine, one mutation at a time in creation order.
type Orchestrator struct {
	queue      port.MutationQueue
	dispatcher port.Dispatcher
	online     OnlineChecker
	logger     *slog.Logger
	timeout    time.Duration
	onProgress func(Progress)
	now        func() time.Time

	state atomic.Int32

	mu         sync.Mutex
	progress   Progress
	lastSync   time.Time
	lastResult *DrainResult
	lastErr    error
}

type OrchestratorOption func(*Orchestrator)

func WithConnectivity(c OnlineChecker) OrchestratorOption {
	return func(o *Orchestrator) { o.online = c }
}

// WithDispatchTimeout bounds each dispatch. A timeout is a per-item failure.
func WithDispatchTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func WithProgress(fn func(Progress)) OrchestratorOption {
	return func(o *Orchestrator) { o.onProgress = fn }
}

func WithOrchestratorLogger(l *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

func NewOrchestrator(queue port.MutationQueue, dispatcher port.Dispatcher, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		queue:      queue,
		dispatcher: dispatcher,
		logger:     slog.Default(),
		timeout:    DefaultDispatchTimeout,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Drain replays the unsynced mutations present when it starts. It returns
// ErrAlreadyDraining if another drain holds the orchestrator and ErrOffline
// when the connectivity checker reports offline. Per-item failures are
// counted in the result, not returned as an error.
func (o *Orchestrator) Drain(ctx context.Context) (DrainResult, error) {
	if o.online != nil && !o.online.Online() {
		return DrainResult{}, ErrOffline
	}
	if !o.state.CompareAndSwap(int32(StateIdle), int32(StateDraining)) {
		return DrainResult{}, ErrAlreadyDraining
	}
	defer o.state.Store(int32(StateIdle))

	result := DrainResult{StartedAt: o.now()}

	snapshot, err := o.queue.ListUnsynced(ctx)
	if err != nil {
		err = fmt.Errorf("list unsynced: %w", err)
		o.finish(nil, err)
		return result, err
	}
	if len(snapshot) == 0 {
		return result, nil
	}

	result.Total = len(snapshot)
	o.setProgress(Progress{Current: 0, Total: result.Total})
	o.logger.Info("sync started", "pending", result.Total)

	for i, m := range snapshot {
		if err := o.replay(ctx, m); err != nil {
			result.Failed++
			result.Failures = append(result.Failures, Failure{MutationID: m.ID, Barcode: m.Barcode, Error: err.Error()})
			o.logger.Warn("mutation sync failed", "mutation_id", m.ID, "barcode", m.Barcode, "error", err)
		} else {
			result.Succeeded++
		}
		o.setProgress(Progress{Current: i + 1, Total: result.Total})
	}

	var drainErr error
	if err := o.queue.PruneSynced(ctx); err != nil {
		drainErr = fmt.Errorf("prune synced: %w", err)
	}

	result.FinishedAt = o.now()
	o.finish(&result, drainErr)
	o.logger.Info("sync finished",
		"succeeded", result.Succeeded, "failed", result.Failed, "summary", result.Summary())

	return result, drainErr
}

func (o *Orchestrator) replay(ctx context.Context, m domain.PendingMutation) error {
	dctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	if _, err := o.dispatcher.Reconcile(dctx, m.Request()); err != nil {
		return err
	}
	if err := o.queue.MarkSynced(ctx, m.ID); err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	return nil
}

func (o *Orchestrator) setProgress(p Progress) {
	o.mu.Lock()
	o.progress = p
	o.mu.Unlock()

	if o.onProgress != nil {
		o.onProgress(p)
	}
}

func (o *Orchestrator) finish(result *DrainResult, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if result != nil {
		o.lastSync = result.FinishedAt
		o.lastResult = result
	}
	o.lastErr = err
}

// Status reports the sync state and the current pending count.
func (o *Orchestrator) Status(ctx context.Context) (Status, error) {
	pending, err := o.queue.CountUnsynced(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("count unsynced: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	st := Status{
		State:      o.State(),
		Progress:   o.progress,
		Pending:    pending,
		LastSync:   o.lastSync,
		LastResult: o.lastResult,
	}
	if o.lastErr != nil {
		st.LastError = o.lastErr.Error()
	}
	return st, nil
}
