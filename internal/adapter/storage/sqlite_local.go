package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/rl1809/scan-sync/internal/core/domain"
)

//go:embed sqlite_schema.sql
var localSchemaSQL string

// Schema version tracking:
// 1 - pending_mutations and inventory_projection
const localSchemaVersion = 1

// SQLiteLocalStore keeps the device-side mutation log and projection in a
// single SQLite file. It implements both port.MutationQueue and
// port.ProjectionStore.
type SQLiteLocalStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenLocalStore creates or opens the database at path and applies the
// schema. Safe to call on an existing file.
func OpenLocalStore(path string) (*SQLiteLocalStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows one writer; a single connection keeps pragmas in effect
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(localSchemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to execute schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", localSchemaVersion)); err != nil {
		db.Close()
		return nil, fmt.Errorf("set user_version: %w", err)
	}

	return &SQLiteLocalStore{db: db, now: time.Now}, nil
}

func (s *SQLiteLocalStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SetClock overrides the time source used for createdAt stamps.
func (s *SQLiteLocalStore) SetClock(now func() time.Time) {
	s.now = now
}

// Enqueue keeps m.ID when the caller already assigned one.
func (s *SQLiteLocalStore) Enqueue(ctx context.Context, m domain.PendingMutation) (string, error) {
	id := m.ID
	if id == "" {
		v7, err := uuid.NewV7()
		if err != nil {
			return "", fmt.Errorf("generate mutation id: %w", err)
		}
		id = v7.String()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_mutations (id, barcode, action, product, colour, size, zone, created_at, synced)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		id, m.Barcode, string(m.Action),
		m.ProductData.Product, m.ProductData.Colour, m.ProductData.Size,
		m.Zone, s.now().UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("insert mutation: %w", err)
	}
	return id, nil
}

// ListUnsynced orders by createdAt with insertion order breaking ties.
func (s *SQLiteLocalStore) ListUnsynced(ctx context.Context) ([]domain.PendingMutation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, barcode, action, product, colour, size, zone, created_at, synced
		FROM pending_mutations
		WHERE synced = 0
		ORDER BY created_at, seq`)
	if err != nil {
		return nil, fmt.Errorf("query mutations: %w", err)
	}
	defer rows.Close()

	var out []domain.PendingMutation
	for rows.Next() {
		var (
			m         domain.PendingMutation
			action    string
			createdAt int64
			synced    int
		)
		if err := rows.Scan(&m.ID, &m.Barcode, &action, &m.ProductData.Product, &m.ProductData.Colour,
			&m.ProductData.Size, &m.Zone, &createdAt, &synced); err != nil {
			return nil, fmt.Errorf("scan mutation: %w", err)
		}
		m.Action = domain.Action(action)
		m.CreatedAt = time.Unix(0, createdAt)
		m.Synced = synced != 0
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteLocalStore) MarkSynced(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE pending_mutations SET synced = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	return nil
}

func (s *SQLiteLocalStore) PruneSynced(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_mutations WHERE synced = 1`); err != nil {
		return fmt.Errorf("prune synced: %w", err)
	}
	return nil
}

func (s *SQLiteLocalStore) CountUnsynced(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_mutations WHERE synced = 0`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unsynced: %w", err)
	}
	return n, nil
}

func (s *SQLiteLocalStore) GetRecord(ctx context.Context, barcode string) (*domain.LocalRecord, error) {
	var (
		rec          domain.LocalRecord
		lastModified int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT barcode, product, colour, size, quantity, zone, last_modified
		FROM inventory_projection WHERE barcode = ?`, barcode,
	).Scan(&rec.Barcode, &rec.Product, &rec.Colour, &rec.Size, &rec.Quantity, &rec.Zone, &lastModified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query projection: %w", err)
	}
	rec.LastModified = time.UnixMilli(lastModified)
	return &rec, nil
}

func (s *SQLiteLocalStore) PutRecord(ctx context.Context, rec domain.LocalRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory_projection (barcode, product, colour, size, quantity, zone, last_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(barcode) DO UPDATE SET
			product = excluded.product,
			colour = excluded.colour,
			size = excluded.size,
			quantity = excluded.quantity,
			zone = excluded.zone,
			last_modified = excluded.last_modified`,
		rec.Barcode, rec.Product, rec.Colour, rec.Size, rec.Quantity, rec.Zone, rec.LastModified.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert projection: %w", err)
	}
	return nil
}

func (s *SQLiteLocalStore) ListRecords(ctx context.Context) ([]domain.LocalRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT barcode, product, colour, size, quantity, zone, last_modified
		FROM inventory_projection ORDER BY barcode`)
	if err != nil {
		return nil, fmt.Errorf("query projection: %w", err)
	}
	defer rows.Close()

	var out []domain.LocalRecord
	for rows.Next() {
		var (
			rec          domain.LocalRecord
			lastModified int64
		)
		if err := rows.Scan(&rec.Barcode, &rec.Product, &rec.Colour, &rec.Size, &rec.Quantity, &rec.Zone, &lastModified); err != nil {
			return nil, fmt.Errorf("scan projection: %w", err)
		}
		rec.LastModified = time.UnixMilli(lastModified)
		out = append(out, rec)
	}
	return out, rows.Err()
}
