package port

import (
	"context"
	"errors"

	"github.com/rl1809/scan-sync/internal/core/domain"
)

var (
	ErrOptimisticLock = errors.New("optimistic lock conflict")
	ErrRecordExists   = errors.New("record already exists for barcode and zone")
	ErrNotFound       = errors.New("record not found")
	ErrUnauthorized   = errors.New("missing or invalid credentials")
)

// InventoryRepository is the canonical store, scoped per user. Reads must
// observe writes made earlier in the same call chain.
type InventoryRepository interface {
	// ListByBarcode returns every zone-scoped record of a barcode, oldest first
	ListByBarcode(ctx context.Context, userID, barcode string) ([]domain.CanonicalRecord, error)

	// Insert creates a record, returns ErrRecordExists if (user, barcode, zone) is taken
	Insert(ctx context.Context, rec domain.CanonicalRecord) (domain.CanonicalRecord, error)

	// UpdateQuantity sets quantity with version check for optimistic locking
	UpdateQuantity(ctx context.Context, id string, quantity, version int) (domain.CanonicalRecord, error)
}

type ActivityLogger interface {
	RecordActivity(ctx context.Context, entry domain.ActivityEntry) error
}

// TokenVerifier resolves a bearer credential to a verified user id.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}
