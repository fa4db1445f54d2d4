package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rl1809/scan-sync/internal/core/domain"
	"github.com/rl1809/scan-sync/internal/port"
)

const pgUniqueViolation = "23505"

type PostgresAdapter struct {
	pool *pgxpool.Pool
}

// NewPostgresPool parses connString, sizes the pool and pings the server.
func NewPostgresPool(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

func NewPostgresAdapter(pool *pgxpool.Pool) *PostgresAdapter {
	return &PostgresAdapter{pool: pool}
}

func (p *PostgresAdapter) Migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS inventory (
			id UUID PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			barcode VARCHAR(128) NOT NULL,
			product VARCHAR(255) NOT NULL DEFAULT '',
			colour VARCHAR(64) NOT NULL DEFAULT '',
			size VARCHAR(64) NOT NULL DEFAULT '',
			zone VARCHAR(128) NOT NULL,
			quantity INTEGER NOT NULL DEFAULT 0,
			low_stock_threshold INTEGER NOT NULL DEFAULT 5,
			version INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
			UNIQUE (user_id, barcode, zone)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_inventory_user_barcode ON inventory(user_id, barcode)`,
		`CREATE TABLE IF NOT EXISTS activity_logs (
			id BIGSERIAL PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			action VARCHAR(16) NOT NULL,
			barcode VARCHAR(128) NOT NULL,
			zone VARCHAR(128) NOT NULL,
			quantity INTEGER NOT NULL,
			is_new_item BOOLEAN NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_logs_user ON activity_logs(user_id, created_at)`,
	}

	for _, migration := range migrations {
		if _, err := p.pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}

const pgRecordColumns = `id::text, user_id, barcode, product, colour, size, zone, quantity,
	low_stock_threshold, version, created_at, updated_at`

func scanPgRecord(row pgx.Row) (domain.CanonicalRecord, error) {
	var rec domain.CanonicalRecord
	err := row.Scan(&rec.ID, &rec.UserID, &rec.Barcode, &rec.Product, &rec.Colour, &rec.Size,
		&rec.Zone, &rec.Quantity, &rec.LowStockThreshold, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt)
	return rec, err
}

func (p *PostgresAdapter) ListByBarcode(ctx context.Context, userID, barcode string) ([]domain.CanonicalRecord, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+pgRecordColumns+`
		FROM inventory WHERE user_id = $1 AND barcode = $2
		ORDER BY created_at, id`, userID, barcode)
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}
	defer rows.Close()

	var records []domain.CanonicalRecord
	for rows.Next() {
		rec, err := scanPgRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan inventory: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (p *PostgresAdapter) Insert(ctx context.Context, rec domain.CanonicalRecord) (domain.CanonicalRecord, error) {
	rec.Version = 1
	_, err := p.pool.Exec(ctx, `
		INSERT INTO inventory (id, user_id, barcode, product, colour, size, zone, quantity,
			low_stock_threshold, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rec.ID, rec.UserID, rec.Barcode, rec.Product, rec.Colour, rec.Size, rec.Zone, rec.Quantity,
		rec.LowStockThreshold, rec.Version, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return domain.CanonicalRecord{}, port.ErrRecordExists
		}
		return domain.CanonicalRecord{}, fmt.Errorf("insert inventory: %w", err)
	}
	return rec, nil
}

func (p *PostgresAdapter) UpdateQuantity(ctx context.Context, id string, quantity, version int) (domain.CanonicalRecord, error) {
	rec, err := scanPgRecord(p.pool.QueryRow(ctx, `
		UPDATE inventory
		SET quantity = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND version = $3
		RETURNING `+pgRecordColumns, quantity, id, version))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.CanonicalRecord{}, port.ErrOptimisticLock
	}
	if err != nil {
		return domain.CanonicalRecord{}, fmt.Errorf("update inventory: %w", err)
	}
	return rec, nil
}

func (p *PostgresAdapter) RecordActivity(ctx context.Context, entry domain.ActivityEntry) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO activity_logs (user_id, action, barcode, zone, quantity, is_new_item, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.UserID, string(entry.Action), entry.Barcode, entry.Zone, entry.Quantity, entry.IsNewItem, entry.At)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}
