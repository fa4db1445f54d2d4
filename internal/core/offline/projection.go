package offline

import (
	"context"
	"fmt"
	"time"

	"github.com/rl1809/scan-sync/internal/core/domain"
	"github.com/rl1809/scan-sync/internal/port"
)

// Projection folds queued mutations into the device-local view of each
// barcode. It only gives instant feedback and is never sent upstream.
type Projection struct {
	store port.ProjectionStore
	now   func() time.Time
}

func NewProjection(store port.ProjectionStore) *Projection {
	return &Projection{store: store, now: time.Now}
}

// ApplyMutation updates the record for m.Barcode and reports whether it was
// created. An existing record only changes quantity and lastModified.
func (p *Projection) ApplyMutation(ctx context.Context, m domain.PendingMutation) (domain.LocalRecord, bool, error) {
	existing, err := p.store.GetRecord(ctx, m.Barcode)
	if err != nil {
		return domain.LocalRecord{}, false, fmt.Errorf("load projection: %w", err)
	}

	now := p.now()
	created := existing == nil

	var rec domain.LocalRecord
	if created {
		rec = domain.LocalRecord{
			Barcode:  m.Barcode,
			Product:  m.ProductData.Product,
			Colour:   m.ProductData.Colour,
			Size:     m.ProductData.Size,
			Quantity: m.Action.InitialQuantity(),
			Zone:     m.Zone,
		}
	} else {
		rec = *existing
		rec.Quantity = m.Action.Apply(rec.Quantity)
	}
	rec.LastModified = now

	if err := p.store.PutRecord(ctx, rec); err != nil {
		return domain.LocalRecord{}, false, fmt.Errorf("save projection: %w", err)
	}
	return rec, created, nil
}

func (p *Projection) Get(ctx context.Context, barcode string) (*domain.LocalRecord, error) {
	return p.store.GetRecord(ctx, barcode)
}

func (p *Projection) List(ctx context.Context) ([]domain.LocalRecord, error) {
	return p.store.ListRecords(ctx)
}
