package service_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/scan-sync/internal/adapter/activity"
	"github.com/rl1809/scan-sync/internal/adapter/storage"
	"github.com/rl1809/scan-sync/internal/core/domain"
	"github.com/rl1809/scan-sync/internal/core/service"
)

type testEnv struct {
	redis   *redis.Client
	mysql   *sql.DB
	ledger  *storage.RedisLedger
	db      *storage.MySQLAdapter
	cleanup func()
}

func setupTestEnv(t *testing.T) *testEnv {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		mysqlDSN = "root:root@tcp(localhost:3306)/scansync?parseTime=true"
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		rdb.Close()
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		rdb.Close()
		t.Skipf("MySQL not available: %v", err)
	}

	adapter := storage.NewMySQLAdapter(db)
	if err := adapter.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}

	return &testEnv{
		redis:  rdb,
		mysql:  db,
		ledger: storage.NewRedisLedger(rdb, time.Minute),
		db:     adapter,
		cleanup: func() {
			rdb.Close()
			db.Close()
		},
	}
}

func TestIntegration_ConcurrentScansNoLostUpdates(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	user := "integration-" + uuid.NewString()

	queue := activity.NewQueue(env.db, 100, 3, nil)
	svc := service.NewReconcileService(env.db,
		service.WithLedger(env.ledger),
		service.WithActivityLogger(queue),
		service.WithMaxAttempts(50),
	)

	var successCount atomic.Int32
	var wg sync.WaitGroup
	totalRequests := 10

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Reconcile(ctx, user, domain.ReconcileRequest{
				MutationID: uuid.NewString(),
				Action:     domain.ActionIncrement,
				Barcode:    "B1",
				Zone:       "A1",
			})
			if err == nil {
				successCount.Add(1)
			} else if !errors.Is(err, service.ErrConflictRetriesExhausted) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	queue.Close()

	records, err := env.db.ListByBarcode(ctx, user, "B1")
	if err != nil {
		t.Fatalf("ListByBarcode failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Quantity != int(successCount.Load()) {
		t.Errorf("expected quantity %d, got %d", successCount.Load(), records[0].Quantity)
	}

	var activityCount int
	env.mysql.QueryRowContext(ctx, `SELECT COUNT(*) FROM activity_logs WHERE user_id = ?`, user).Scan(&activityCount)
	if activityCount != int(successCount.Load()) {
		t.Errorf("expected %d activity rows, got %d", successCount.Load(), activityCount)
	}

	env.mysql.ExecContext(ctx, `DELETE FROM inventory WHERE user_id = ?`, user)
	env.mysql.ExecContext(ctx, `DELETE FROM activity_logs WHERE user_id = ?`, user)
}

func TestIntegration_IdempotencyPreventsDoubleApply(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	user := "integration-" + uuid.NewString()
	svc := service.NewReconcileService(env.db, service.WithLedger(env.ledger))

	req := domain.ReconcileRequest{
		MutationID: uuid.NewString(),
		Action:     domain.ActionIncrement,
		Barcode:    "B1",
		Zone:       "A1",
	}

	first, err := svc.Reconcile(ctx, user, req)
	if err != nil {
		t.Fatalf("first reconcile failed: %v", err)
	}
	replay, err := svc.Reconcile(ctx, user, req)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if replay.Quantity != first.Quantity || replay.ID != first.ID {
		t.Errorf("replay returned %+v, want %+v", replay.CanonicalRecord, first.CanonicalRecord)
	}

	records, _ := env.db.ListByBarcode(ctx, user, "B1")
	if len(records) != 1 || records[0].Quantity != 1 {
		t.Errorf("expected a single record with quantity 1, got %+v", records)
	}

	env.mysql.ExecContext(ctx, `DELETE FROM inventory WHERE user_id = ?`, user)
}

func TestIntegration_ZoneMigrationInheritsProduct(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	user := "integration-" + uuid.NewString()
	svc := service.NewReconcileService(env.db, service.WithLedger(env.ledger))

	if _, err := svc.Reconcile(ctx, user, domain.ReconcileRequest{
		Action:      domain.ActionIncrement,
		Barcode:     "B1",
		Zone:        "A1",
		ProductData: domain.ProductData{Product: "Pen", Colour: "Blue", Size: "M"},
	}); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	res, err := svc.Reconcile(ctx, user, domain.ReconcileRequest{
		Action:  domain.ActionIncrement,
		Barcode: "B1",
		Zone:    "B7",
	})
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if !res.IsNewItem || res.Quantity != 1 || res.Product != "Pen" || res.Colour != "Blue" {
		t.Errorf("unexpected migrated record: %+v", res.CanonicalRecord)
	}

	env.mysql.ExecContext(ctx, `DELETE FROM inventory WHERE user_id = ?`, user)
}
