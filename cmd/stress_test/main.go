package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/scan-sync/internal/adapter/storage"
	"github.com/rl1809/scan-sync/internal/core/domain"
	"github.com/rl1809/scan-sync/internal/core/service"
	"github.com/rl1809/scan-sync/internal/port"
)

const (
	userID        = "stress-user"
	barcode       = "stress-barcode"
	zone          = "A1"
	totalRequests = 200
	replays       = 50
	maxAttempts   = 100
)

func main() {
	ctx := context.Background()

	var ledger port.IdempotencyLedger = storage.NewMemoryLedger(time.Hour)
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("failed to connect redis: %v", err)
		}
		defer rdb.Close()
		ledger = storage.NewRedisLedger(rdb, time.Hour)
		log.Printf("using redis ledger at %s", addr)
	}

	store := storage.NewMemoryAdapter()
	reconcileService := service.NewReconcileService(store,
		service.WithLedger(ledger),
		service.WithMaxAttempts(maxAttempts),
	)

	mutationIDs := make([]string, totalRequests)
	for i := range mutationIDs {
		mutationIDs[i] = uuid.NewString()
	}

	// Counters
	var successCount atomic.Int32
	var conflictCount atomic.Int32
	var failCount atomic.Int32

	var mu sync.Mutex
	var applied []string

	send := func(mutationID string) error {
		_, err := reconcileService.Reconcile(ctx, userID, domain.ReconcileRequest{
			MutationID: mutationID,
			Action:     domain.ActionIncrement,
			Barcode:    barcode,
			Zone:       zone,
		})
		return err
	}

	// Spawn concurrent scans, each with its own mutation id
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(mutationID string) {
			defer wg.Done()

			err := send(mutationID)
			switch {
			case err == nil:
				successCount.Add(1)
				mu.Lock()
				applied = append(applied, mutationID)
				mu.Unlock()
			case errors.Is(err, service.ErrConflictRetriesExhausted):
				conflictCount.Add(1)
			default:
				failCount.Add(1)
			}
		}(mutationIDs[i])
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Replay a slice of the applied mutations; none may be applied twice
	var replayErrors atomic.Int32
	replayed := min(replays, len(applied))
	for i := 0; i < replayed; i++ {
		wg.Add(1)
		go func(mutationID string) {
			defer wg.Done()
			if err := send(mutationID); err != nil && !errors.Is(err, service.ErrDuplicateInFlight) {
				replayErrors.Add(1)
			}
		}(applied[i])
	}
	wg.Wait()

	// Results
	success := successCount.Load()
	records := store.Snapshot(userID)

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Total Scans:      %d\n", totalRequests)
	fmt.Printf("Applied:          %d\n", success)
	fmt.Printf("Retries Exhausted:%d\n", conflictCount.Load())
	fmt.Printf("Failed:           %d\n", failCount.Load())
	fmt.Printf("Replayed:         %d (errors %d)\n", replayed, replayErrors.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	// Assertions
	if len(records) != 1 {
		fmt.Printf("FAIL: Expected 1 record for %s/%s, got %d\n", barcode, zone, len(records))
		return
	}

	if records[0].Quantity == int(success) {
		fmt.Printf("PASS: Quantity %d matches applied scans\n", records[0].Quantity)
	} else {
		fmt.Printf("FAIL: Expected quantity %d, got %d\n", success, records[0].Quantity)
	}

	if failCount.Load() == 0 && replayErrors.Load() == 0 {
		fmt.Println("PASS: Replays returned stored results without reapplying")
	} else {
		fmt.Printf("FAIL: %d scan errors, %d replay errors\n", failCount.Load(), replayErrors.Load())
	}
}
