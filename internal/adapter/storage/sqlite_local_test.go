package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/scan-sync/internal/core/domain"
)

func openTestLocalStore(t *testing.T) *SQLiteLocalStore {
	t.Helper()
	store, err := OpenLocalStore(filepath.Join(t.TempDir(), "scanner.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestLocalStore_EnqueueAssignsIDAndOrder(t *testing.T) {
	store := openTestLocalStore(t)
	ctx := context.Background()

	// identical timestamps fall back to insertion order
	fixed := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return fixed })

	var ids []string
	for _, barcode := range []string{"B1", "B2", "B3"} {
		id, err := store.Enqueue(ctx, domain.PendingMutation{
			Barcode: barcode, Action: domain.ActionIncrement, Zone: "A1",
			ProductData: domain.ProductData{Product: "Widget"},
		})
		require.NoError(t, err)
		require.NotEmpty(t, id)
		ids = append(ids, id)
	}
	assert.Len(t, map[string]bool{ids[0]: true, ids[1]: true, ids[2]: true}, 3)

	pending, err := store.ListUnsynced(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	for i, m := range pending {
		assert.Equal(t, ids[i], m.ID)
		assert.False(t, m.Synced)
		assert.Equal(t, "Widget", m.ProductData.Product)
		assert.True(t, m.CreatedAt.Equal(fixed))
	}
}

func TestLocalStore_EnqueueKeepsCallerID(t *testing.T) {
	store := openTestLocalStore(t)
	ctx := context.Background()

	id, err := store.Enqueue(ctx, domain.PendingMutation{
		ID: "0190c9a2-7f00-7000-8000-000000000001", Barcode: "B1", Action: domain.ActionIncrement,
	})
	require.NoError(t, err)
	assert.Equal(t, "0190c9a2-7f00-7000-8000-000000000001", id)

	pending, err := store.ListUnsynced(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, id, pending[0].ID)
}

func TestLocalStore_CreatedAtOrdering(t *testing.T) {
	store := openTestLocalStore(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	times := []time.Time{base.Add(2 * time.Second), base, base.Add(time.Second)}
	barcodes := []string{"late", "early", "middle"}
	for i := range times {
		at := times[i]
		store.SetClock(func() time.Time { return at })
		_, err := store.Enqueue(ctx, domain.PendingMutation{Barcode: barcodes[i], Action: domain.ActionDecrement})
		require.NoError(t, err)
	}

	pending, err := store.ListUnsynced(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, "early", pending[0].Barcode)
	assert.Equal(t, "middle", pending[1].Barcode)
	assert.Equal(t, "late", pending[2].Barcode)
}

func TestLocalStore_MarkAndPrune(t *testing.T) {
	store := openTestLocalStore(t)
	ctx := context.Background()

	id1, err := store.Enqueue(ctx, domain.PendingMutation{Barcode: "B1", Action: domain.ActionIncrement})
	require.NoError(t, err)
	_, err = store.Enqueue(ctx, domain.PendingMutation{Barcode: "B2", Action: domain.ActionIncrement})
	require.NoError(t, err)

	require.NoError(t, store.MarkSynced(ctx, id1))
	require.NoError(t, store.MarkSynced(ctx, id1), "marking twice is a no-op")
	require.NoError(t, store.MarkSynced(ctx, "unknown-id"))

	count, err := store.CountUnsynced(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, store.PruneSynced(ctx))
	var total int
	require.NoError(t, store.db.QueryRow(`SELECT COUNT(*) FROM pending_mutations`).Scan(&total))
	assert.Equal(t, 1, total)

	pending, err := store.ListUnsynced(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "B2", pending[0].Barcode)
}

func TestLocalStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scanner.db")
	ctx := context.Background()

	store, err := OpenLocalStore(path)
	require.NoError(t, err)
	_, err = store.Enqueue(ctx, domain.PendingMutation{Barcode: "B1", Action: domain.ActionIncrement})
	require.NoError(t, err)
	require.NoError(t, store.PutRecord(ctx, domain.LocalRecord{Barcode: "B1", Quantity: 1, LastModified: time.Now()}))
	require.NoError(t, store.Close())

	reopened, err := OpenLocalStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	count, err := reopened.CountUnsynced(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	rec, err := reopened.GetRecord(ctx, "B1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.Quantity)
}

func TestLocalStore_Projection(t *testing.T) {
	store := openTestLocalStore(t)
	ctx := context.Background()

	rec, err := store.GetRecord(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, rec)

	modified := time.UnixMilli(time.Now().UnixMilli())
	require.NoError(t, store.PutRecord(ctx, domain.LocalRecord{
		Barcode: "B1", Product: "Widget", Colour: "Red", Size: "M", Quantity: 2, Zone: "A1", LastModified: modified,
	}))
	require.NoError(t, store.PutRecord(ctx, domain.LocalRecord{
		Barcode: "B1", Product: "Widget", Colour: "Red", Size: "M", Quantity: 3, Zone: "A1", LastModified: modified,
	}))
	require.NoError(t, store.PutRecord(ctx, domain.LocalRecord{Barcode: "A0", Quantity: 0, LastModified: modified}))

	rec, err = store.GetRecord(ctx, "B1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 3, rec.Quantity)
	assert.Equal(t, "Red", rec.Colour)
	assert.True(t, rec.LastModified.Equal(modified))

	all, err := store.ListRecords(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "A0", all[0].Barcode)
}
