package storage

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/scan-sync/internal/port"
)

func getMongoAdapter(t *testing.T) *MongoAdapter {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}

	client, err := ConnectMongo(context.Background(), uri)
	if err != nil {
		t.Skipf("MongoDB not available: %v", err)
	}
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	adapter := NewMongoAdapter(client.Database("scansync_test"))
	require.NoError(t, adapter.EnsureIndexes(context.Background()))
	return adapter
}

func TestMongoInsertListUpdate(t *testing.T) {
	adapter := getMongoAdapter(t)
	ctx := context.Background()
	user := "mongo-user-" + uuid.NewString()

	rec, err := adapter.Insert(ctx, newTestRecord(user, "B1", "A1", 1))
	require.NoError(t, err)

	_, err = adapter.Insert(ctx, newTestRecord(user, "B1", "A1", 1))
	require.ErrorIs(t, err, port.ErrRecordExists)

	_, err = adapter.Insert(ctx, newTestRecord(user, "B1", "A2", 7))
	require.NoError(t, err)

	records, err := adapter.ListByBarcode(ctx, user, "B1")
	require.NoError(t, err)
	require.Len(t, records, 2)

	updated, err := adapter.UpdateQuantity(ctx, rec.ID, 2, rec.Version)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Quantity)
	assert.Equal(t, 2, updated.Version)

	_, err = adapter.UpdateQuantity(ctx, rec.ID, 3, rec.Version)
	require.ErrorIs(t, err, port.ErrOptimisticLock)
}
