package offline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/scan-sync/internal/connectivity"
	"github.com/rl1809/scan-sync/internal/core/domain"
	"github.com/rl1809/scan-sync/internal/port"
)

// ConnectivitySource is the part of connectivity.Monitor the tracker needs.
type ConnectivitySource interface {
	Online() bool
	Subscribe() (<-chan connectivity.Event, func())
}

// Scan is one operator scan.
type Scan struct {
	Barcode     string
	Action      domain.Action
	Zone        string
	ProductData domain.ProductData
}

// ScanOutcome is what the operator sees after a scan. Offline outcomes come
// from the local projection.
type ScanOutcome struct {
	MutationID string `json:"mutationId"`
	Barcode    string `json:"barcode"`
	Product    string `json:"product"`
	Colour     string `json:"colour"`
	Size       string `json:"size"`
	Zone       string `json:"zone"`
	Quantity   int    `json:"quantity"`
	IsNewItem  bool   `json:"isNewItem"`
	LowStock   bool   `json:"lowStock"`
	Offline    bool   `json:"offline"`
}

// Tracker routes scans to the server when online and to the local queue and
// projection otherwise. Run drains the queue when connectivity returns.
type Tracker struct {
	conn         ConnectivitySource
	queue        port.MutationQueue
	projection   *Projection
	dispatcher   port.Dispatcher
	orchestrator *Orchestrator
	logger       *slog.Logger

	wg sync.WaitGroup
}

func NewTracker(conn ConnectivitySource, queue port.MutationQueue, projection *Projection,
	dispatcher port.Dispatcher, orchestrator *Orchestrator, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		conn:         conn,
		queue:        queue,
		projection:   projection,
		dispatcher:   dispatcher,
		orchestrator: orchestrator,
		logger:       logger,
	}
}

func (t *Tracker) Scan(ctx context.Context, s Scan) (ScanOutcome, error) {
	req := domain.ReconcileRequest{
		Action:      s.Action,
		Barcode:     s.Barcode,
		Zone:        s.Zone,
		ProductData: s.ProductData,
	}
	if err := req.Normalize(); err != nil {
		return ScanOutcome{}, err
	}
	if req.Zone != "" {
		req.ProductData.Zone = req.Zone
	}

	// The id is fixed before the first delivery attempt and stays with the
	// scan if it falls back to the queue, so a reply lost after the server
	// applied it replays as a duplicate.
	id, err := uuid.NewV7()
	if err != nil {
		return ScanOutcome{}, fmt.Errorf("generate mutation id: %w", err)
	}
	req.MutationID = id.String()

	if t.conn.Online() {
		if !t.flushBacklog(ctx) {
			return t.enqueue(context.WithoutCancel(ctx), req)
		}
		outcome, err := t.dispatch(ctx, req)
		if err == nil {
			return outcome, nil
		}
		if !shouldQueue(err) {
			return ScanOutcome{}, err
		}
		t.logger.Warn("direct sync failed, queueing scan", "mutation_id", req.MutationID, "barcode", req.Barcode, "error", err)
		// the remote deadline must not cost the local write
		ctx = context.WithoutCancel(ctx)
	}

	return t.enqueue(ctx, req)
}

// flushBacklog drains earlier queued scans so a direct scan never overtakes
// them. It reports whether the queue is empty afterwards.
func (t *Tracker) flushBacklog(ctx context.Context) bool {
	pending, err := t.queue.CountUnsynced(ctx)
	if err != nil {
		t.logger.Warn("failed to count unsynced scans", "error", err)
		return false
	}
	if pending == 0 {
		return true
	}

	_, err = t.orchestrator.Drain(ctx)
	switch {
	case err == nil, errors.Is(err, ErrAlreadyDraining), errors.Is(err, ErrOffline):
	default:
		t.logger.Warn("backlog sync failed", "pending", pending, "error", err)
	}

	pending, err = t.queue.CountUnsynced(ctx)
	return err == nil && pending == 0
}

func (t *Tracker) dispatch(ctx context.Context, req domain.ReconcileRequest) (ScanOutcome, error) {
	res, err := t.dispatcher.Reconcile(ctx, req)
	if err != nil {
		return ScanOutcome{}, err
	}
	return ScanOutcome{
		MutationID: req.MutationID,
		Barcode:    res.Barcode,
		Product:    res.Product,
		Colour:     res.Colour,
		Size:       res.Size,
		Zone:       res.Zone,
		Quantity:   res.Quantity,
		IsNewItem:  res.IsNewItem,
		LowStock:   res.LowStock,
	}, nil
}

func (t *Tracker) enqueue(ctx context.Context, req domain.ReconcileRequest) (ScanOutcome, error) {
	m := domain.PendingMutation{
		ID:          req.MutationID,
		Barcode:     req.Barcode,
		Action:      req.Action,
		Zone:        req.Zone,
		ProductData: req.ProductData,
	}
	id, err := t.queue.Enqueue(ctx, m)
	if err != nil {
		return ScanOutcome{}, fmt.Errorf("queue scan: %w", err)
	}
	m.ID = id

	rec, created, err := t.projection.ApplyMutation(ctx, m)
	if err != nil {
		// the scan is durably queued; only the local view is stale
		t.logger.Error("failed to update local projection", "mutation_id", id, "barcode", m.Barcode, "error", err)
		return ScanOutcome{MutationID: id, Barcode: m.Barcode, Zone: m.Zone, Offline: true}, nil
	}

	t.logger.Info("queued scan", "mutation_id", id, "barcode", m.Barcode, "action", m.Action, "quantity", rec.Quantity)

	return ScanOutcome{
		MutationID: id,
		Barcode:    rec.Barcode,
		Product:    rec.Product,
		Colour:     rec.Colour,
		Size:       rec.Size,
		Zone:       rec.Zone,
		Quantity:   rec.Quantity,
		IsNewItem:  created && rec.Quantity == 1,
		Offline:    true,
	}, nil
}

// shouldQueue reports whether a failed direct dispatch may be retried later.
func shouldQueue(err error) bool {
	if errors.Is(err, domain.ErrValidation) {
		return false
	}
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return true
}

func (t *Tracker) Pending(ctx context.Context) (int, error) {
	return t.queue.CountUnsynced(ctx)
}

// SyncNow drains if there is anything pending. A drain already in progress
// makes this a no-op.
func (t *Tracker) SyncNow(ctx context.Context) (DrainResult, error) {
	pending, err := t.queue.CountUnsynced(ctx)
	if err != nil {
		return DrainResult{}, fmt.Errorf("count unsynced: %w", err)
	}
	if pending == 0 {
		return DrainResult{}, nil
	}
	return t.orchestrator.Drain(ctx)
}

// Run drains on every became-online transition and, while online, every
// refresh interval. It returns when ctx is done, after any drain it
// started has finished.
func (t *Tracker) Run(ctx context.Context, refresh time.Duration) error {
	events, unsubscribe := t.conn.Subscribe()
	defer unsubscribe()
	defer t.wg.Wait()

	var tick <-chan time.Time
	if refresh > 0 {
		ticker := time.NewTicker(refresh)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev == connectivity.BecameOnline {
				t.trigger(ctx)
			}
		case <-tick:
			if t.conn.Online() {
				t.trigger(ctx)
			}
		}
	}
}

func (t *Tracker) trigger(ctx context.Context) {
	if t.orchestrator.State() == StateDraining {
		return
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		_, err := t.SyncNow(ctx)
		switch {
		case err == nil, errors.Is(err, ErrAlreadyDraining):
		case errors.Is(err, ErrOffline):
			t.logger.Debug("skipped sync while offline")
		default:
			t.logger.Error("sync failed", "error", err)
		}
	}()
}
