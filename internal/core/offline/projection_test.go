package offline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/scan-sync/internal/core/domain"
)

func TestProjection_CreateFromMutation(t *testing.T) {
	store := newMemProjection()
	p := NewProjection(store)
	ctx := context.Background()

	rec, created, err := p.ApplyMutation(ctx, domain.PendingMutation{
		Barcode: "B1", Action: domain.ActionIncrement, Zone: "A1",
		ProductData: domain.ProductData{Product: "Widget", Colour: "Red", Size: "M"},
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 1, rec.Quantity)
	assert.Equal(t, "Widget", rec.Product)
	assert.Equal(t, "A1", rec.Zone)

	rec, created, err = p.ApplyMutation(ctx, domain.PendingMutation{Barcode: "B2", Action: domain.ActionDecrement})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 0, rec.Quantity)
}

func TestProjection_UpdateKeepsFields(t *testing.T) {
	store := newMemProjection()
	p := NewProjection(store)
	ctx := context.Background()

	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return first }
	_, _, err := p.ApplyMutation(ctx, domain.PendingMutation{
		Barcode: "B1", Action: domain.ActionIncrement, Zone: "A1",
		ProductData: domain.ProductData{Product: "Widget"},
	})
	require.NoError(t, err)

	later := first.Add(time.Minute)
	p.now = func() time.Time { return later }
	rec, created, err := p.ApplyMutation(ctx, domain.PendingMutation{
		Barcode: "B1", Action: domain.ActionIncrement, Zone: "C9",
		ProductData: domain.ProductData{Product: "Other"},
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 2, rec.Quantity)
	assert.Equal(t, "Widget", rec.Product)
	assert.Equal(t, "A1", rec.Zone)
	assert.Equal(t, later, rec.LastModified)
}

func TestProjection_DecrementFloorsAtZero(t *testing.T) {
	p := NewProjection(newMemProjection())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		rec, _, err := p.ApplyMutation(ctx, domain.PendingMutation{Barcode: "B1", Action: domain.ActionDecrement})
		require.NoError(t, err)
		assert.Equal(t, 0, rec.Quantity)
	}

	got, err := p.Get(ctx, "B1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 0, got.Quantity)

	missing, err := p.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
