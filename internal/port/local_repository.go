package port

import (
	"context"

	"github.com/rl1809/scan-sync/internal/core/domain"
)

// MutationQueue is the durable local log of scans awaiting sync.
type MutationQueue interface {
	// Enqueue assigns createdAt, and an id when m.ID is empty, and persists
	// the mutation unsynced
	Enqueue(ctx context.Context, m domain.PendingMutation) (string, error)

	// ListUnsynced returns unsynced mutations in replay order (createdAt ascending)
	ListUnsynced(ctx context.Context) ([]domain.PendingMutation, error)

	// MarkSynced is a no-op for unknown or already synced ids
	MarkSynced(ctx context.Context, id string) error

	// PruneSynced deletes every synced mutation
	PruneSynced(ctx context.Context) error

	CountUnsynced(ctx context.Context) (int, error)
}

type ProjectionStore interface {
	// GetRecord returns nil when the barcode has no local record
	GetRecord(ctx context.Context, barcode string) (*domain.LocalRecord, error)
	PutRecord(ctx context.Context, rec domain.LocalRecord) error
	ListRecords(ctx context.Context) ([]domain.LocalRecord, error)
}

// Dispatcher sends one reconcile request to the remote engine.
type Dispatcher interface {
	Reconcile(ctx context.Context, req domain.ReconcileRequest) (*domain.ReconcileResult, error)
}
