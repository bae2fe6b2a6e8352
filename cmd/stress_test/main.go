package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/pflag"

	"github.com/rl1809/warehouse-inventory/internal/adapter/idgen"
	"github.com/rl1809/warehouse-inventory/internal/adapter/storage"
	"github.com/rl1809/warehouse-inventory/internal/core/domain"
	"github.com/rl1809/warehouse-inventory/internal/core/service"
	"github.com/rl1809/warehouse-inventory/internal/port"
)

func main() {
	driver := pflag.String("driver", "sqlite", "memory, sqlite, mysql or postgres")
	dsn := pflag.String("dsn", "", "database DSN (a temporary SQLite file when empty)")
	totalRequests := pflag.Int("requests", 200, "concurrent quantity increases against one record")
	pflag.Parse()

	ctx := context.Background()

	repo, cleanup, err := openRepository(ctx, *driver, *dsn)
	if err != nil {
		log.Fatalf("failed to open storage: %v", err)
	}
	defer cleanup()

	ids, err := idgen.NewSnowflake(1)
	if err != nil {
		log.Fatalf("failed to create id generator: %v", err)
	}
	inventoryService := service.NewInventoryService(repo, ids)

	clerk := &domain.Principal{ID: ids.NextID(), Name: "stress"}
	record, err := inventoryService.Create(ctx, service.CreateRequest{
		LabelID:            fmt.Sprintf("STRESS-%d", time.Now().Unix()),
		ProductDescription: "stress test pallet",
		QuantityOnPallet:   domain.IntPtr(0),
	}, clerk)
	if err != nil {
		log.Fatalf("failed to create record: %v", err)
	}

	// Counters
	var successCount atomic.Int32
	var conflictCount atomic.Int32
	var failCount atomic.Int32

	// Spawn concurrent requests
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := inventoryService.AdjustQuantity(ctx, record.RecordID, 1, clerk)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, storage.ErrOptimisticLock):
				conflictCount.Add(1)
			default:
				failCount.Add(1)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := successCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Driver:           %s\n", *driver)
	fmt.Printf("Total Requests:   %d\n", *totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Conflicts:        %d\n", conflictCount.Load())
	fmt.Printf("Failed:           %d\n", failCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	final, err := inventoryService.Get(ctx, record.RecordID)
	if err != nil {
		log.Fatalf("failed to reload record: %v", err)
	}
	history, err := inventoryService.History(ctx, record.RecordID)
	if err != nil {
		log.Fatalf("failed to load history: %v", err)
	}

	// Assertions
	if final.QuantityOnPallet == int(success) {
		fmt.Printf("PASS: Quantity equals successful increases (%d)\n", success)
	} else {
		fmt.Printf("FAIL: Expected quantity %d, got %d\n", success, final.QuantityOnPallet)
	}

	if len(history) == int(success)+1 {
		fmt.Printf("PASS: One history entry per transition (%d)\n", len(history))
	} else {
		fmt.Printf("FAIL: Expected %d history entries, got %d\n", success+1, len(history))
	}

	if broken := brokenLinks(history); broken == 0 {
		fmt.Println("PASS: Every entry starts where the previous one ended")
	} else {
		fmt.Printf("FAIL: %d entries do not chain onto their predecessor\n", broken)
	}

	if len(history) > 0 && history[0].ID == final.LatestTransactionID {
		fmt.Println("PASS: Record points at its newest entry")
	} else {
		fmt.Println("FAIL: Record does not point at its newest entry")
	}
}

// brokenLinks counts entries whose previous quantity differs from the new
// quantity of the entry before them. history is newest first.
func brokenLinks(history []domain.TransactionRecord) int {
	broken := 0
	for i := 0; i+1 < len(history); i++ {
		newer, older := history[i], history[i+1]
		if newer.PreviousQuantity == nil || older.NewQuantity == nil || *newer.PreviousQuantity != *older.NewQuantity {
			broken++
		}
	}
	return broken
}

func openRepository(ctx context.Context, driver, dsn string) (port.InventoryRepository, func(), error) {
	if driver == "memory" {
		return storage.NewMemoryAdapter(), func() {}, nil
	}

	var tmpDir string
	if driver == "sqlite" && dsn == "" {
		dir, err := os.MkdirTemp("", "inventory-stress-")
		if err != nil {
			return nil, nil, err
		}
		tmpDir = dir
		dsn = "file:" + filepath.Join(dir, "stress.db") + "?_pragma=busy_timeout(5000)"
	}

	repo, closeDB, err := storage.OpenSQLAdapter(ctx, driver, dsn, storage.PoolConfig{
		MaxOpenConns:    50,
		MaxIdleConns:    25,
		ConnMaxLifetime: 5 * time.Minute,
	})
	if err != nil {
		return nil, nil, err
	}
	return repo, func() {
		closeDB()
		if tmpDir != "" {
			os.RemoveAll(tmpDir)
		}
	}, nil
}
