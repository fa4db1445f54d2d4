package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	mysqldriver "github.com/go-sql-driver/mysql"

	"github.com/rl1809/scan-sync/internal/core/domain"
	"github.com/rl1809/scan-sync/internal/port"
)

const mysqlDuplicateEntry = 1062

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS inventory (
		id VARCHAR(36) NOT NULL PRIMARY KEY,
		user_id VARCHAR(64) NOT NULL,
		barcode VARCHAR(128) COLLATE utf8mb4_bin NOT NULL,
		product VARCHAR(255) NOT NULL DEFAULT '',
		colour VARCHAR(64) NOT NULL DEFAULT '',
		size VARCHAR(64) NOT NULL DEFAULT '',
		zone VARCHAR(128) COLLATE utf8mb4_bin NOT NULL,
		quantity INT NOT NULL DEFAULT 0,
		low_stock_threshold INT NOT NULL DEFAULT 5,
		version INT NOT NULL DEFAULT 1,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		UNIQUE KEY uq_inventory_user_barcode_zone (user_id, barcode, zone),
		KEY idx_inventory_user_barcode (user_id, barcode)
	) DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_bin`,
	// barcodes and zones compare byte for byte; tables created with the
	// server default collation are converted in place
	`ALTER TABLE inventory
		MODIFY barcode VARCHAR(128) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin NOT NULL,
		MODIFY zone VARCHAR(128) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin NOT NULL`,
	`CREATE TABLE IF NOT EXISTS activity_logs (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		user_id VARCHAR(64) NOT NULL,
		action VARCHAR(16) NOT NULL,
		barcode VARCHAR(128) NOT NULL,
		zone VARCHAR(128) NOT NULL,
		quantity INT NOT NULL,
		is_new_item BOOLEAN NOT NULL,
		created_at DATETIME(6) NOT NULL,
		KEY idx_activity_user (user_id, created_at)
	)`,
}

// MySQLAdapter is the canonical store backed by MySQL. It also keeps the
// activity log.
type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// Migrate creates the tables if they do not exist and keeps barcode and
// zone on a case-sensitive collation.
func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	for _, stmt := range mysqlSchema {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) ListByBarcode(ctx context.Context, userID, barcode string) ([]domain.CanonicalRecord, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, user_id, barcode, product, colour, size, zone, quantity,
			low_stock_threshold, version, created_at, updated_at
		FROM inventory
		WHERE user_id = ? AND barcode = ?
		ORDER BY created_at, id`, userID, barcode,
	)
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}
	defer rows.Close()

	var records []domain.CanonicalRecord
	for rows.Next() {
		var rec domain.CanonicalRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Barcode, &rec.Product, &rec.Colour, &rec.Size,
			&rec.Zone, &rec.Quantity, &rec.LowStockThreshold, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan inventory: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (m *MySQLAdapter) Insert(ctx context.Context, rec domain.CanonicalRecord) (domain.CanonicalRecord, error) {
	rec.Version = 1
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO inventory (id, user_id, barcode, product, colour, size, zone, quantity,
			low_stock_threshold, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.Barcode, rec.Product, rec.Colour, rec.Size, rec.Zone, rec.Quantity,
		rec.LowStockThreshold, rec.Version, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		var myErr *mysqldriver.MySQLError
		if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
			return domain.CanonicalRecord{}, port.ErrRecordExists
		}
		return domain.CanonicalRecord{}, fmt.Errorf("insert inventory: %w", err)
	}
	return rec, nil
}

func (m *MySQLAdapter) UpdateQuantity(ctx context.Context, id string, quantity, version int) (domain.CanonicalRecord, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.CanonicalRecord{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE inventory
		SET quantity = ?, version = version + 1, updated_at = UTC_TIMESTAMP(6)
		WHERE id = ? AND version = ?`,
		quantity, id, version,
	)
	if err != nil {
		return domain.CanonicalRecord{}, fmt.Errorf("update inventory: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.CanonicalRecord{}, port.ErrOptimisticLock
	}

	var rec domain.CanonicalRecord
	err = tx.QueryRowContext(ctx, `
		SELECT id, user_id, barcode, product, colour, size, zone, quantity,
			low_stock_threshold, version, created_at, updated_at
		FROM inventory WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.UserID, &rec.Barcode, &rec.Product, &rec.Colour, &rec.Size,
		&rec.Zone, &rec.Quantity, &rec.LowStockThreshold, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CanonicalRecord{}, port.ErrNotFound
	}
	if err != nil {
		return domain.CanonicalRecord{}, fmt.Errorf("reload inventory: %w", err)
	}

	return rec, tx.Commit()
}

func (m *MySQLAdapter) RecordActivity(ctx context.Context, entry domain.ActivityEntry) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO activity_logs (user_id, action, barcode, zone, quantity, is_new_item, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.UserID, string(entry.Action), entry.Barcode, entry.Zone, entry.Quantity, entry.IsNewItem, entry.At,
	)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}
