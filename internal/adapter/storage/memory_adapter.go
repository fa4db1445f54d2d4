package storage

import (
	"context"
	"sync"
	"time"

	"github.com/rl1809/scan-sync/internal/core/domain"
	"github.com/rl1809/scan-sync/internal/port"
)

// MemoryAdapter is an in-process canonical store with the same
// version and uniqueness rules as the SQL stores.
type MemoryAdapter struct {
	mu       sync.RWMutex
	records  []domain.CanonicalRecord
	activity []domain.ActivityEntry
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{}
}

func (m *MemoryAdapter) ListByBarcode(ctx context.Context, userID, barcode string) ([]domain.CanonicalRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.CanonicalRecord
	for _, rec := range m.records {
		if rec.UserID == userID && rec.Barcode == barcode {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *MemoryAdapter) Insert(ctx context.Context, rec domain.CanonicalRecord) (domain.CanonicalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.records {
		if existing.UserID == rec.UserID && existing.Barcode == rec.Barcode && existing.Zone == rec.Zone {
			return domain.CanonicalRecord{}, port.ErrRecordExists
		}
	}
	rec.Version = 1
	m.records = append(m.records, rec)
	return rec, nil
}

func (m *MemoryAdapter) UpdateQuantity(ctx context.Context, id string, quantity, version int) (domain.CanonicalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.records {
		if m.records[i].ID != id {
			continue
		}
		if m.records[i].Version != version {
			return domain.CanonicalRecord{}, port.ErrOptimisticLock
		}
		m.records[i].Quantity = quantity
		m.records[i].Version++
		m.records[i].UpdatedAt = time.Now().UTC()
		return m.records[i], nil
	}
	return domain.CanonicalRecord{}, port.ErrNotFound
}

func (m *MemoryAdapter) RecordActivity(ctx context.Context, entry domain.ActivityEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activity = append(m.activity, entry)
	return nil
}

// Activity returns a copy of the recorded activity entries.
func (m *MemoryAdapter) Activity() []domain.ActivityEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.ActivityEntry(nil), m.activity...)
}

// Snapshot returns a copy of every record of a user.
func (m *MemoryAdapter) Snapshot(userID string) []domain.CanonicalRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.CanonicalRecord
	for _, rec := range m.records {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out
}

type ledgerEntry struct {
	result  []byte
	expires time.Time
}

// MemoryLedger is the in-process idempotency ledger used when no Redis
// address is configured.
type MemoryLedger struct {
	mu       sync.Mutex
	ttl      time.Duration
	claimTTL time.Duration
	now      func() time.Time
	entries  map[string]ledgerEntry
}

func NewMemoryLedger(ttl time.Duration) *MemoryLedger {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &MemoryLedger{
		ttl:      ttl,
		claimTTL: min(ttl, DefaultClaimTTL),
		now:      time.Now,
		entries:  make(map[string]ledgerEntry),
	}
}

func (l *MemoryLedger) Claim(ctx context.Context, key string) (bool, []byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if e, ok := l.entries[key]; ok && now.Before(e.expires) {
		return false, e.result, nil
	}
	l.entries[key] = ledgerEntry{expires: now.Add(l.claimTTL)}
	return true, nil, nil
}

func (l *MemoryLedger) Complete(ctx context.Context, key string, result []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[key] = ledgerEntry{result: result, expires: l.now().Add(l.ttl)}
	return nil
}

func (l *MemoryLedger) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
	return nil
}
