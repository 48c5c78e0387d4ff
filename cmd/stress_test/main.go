package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/parts-ledger/internal/adapter/catalog"
	"github.com/rl1809/parts-ledger/internal/adapter/storage"
	"github.com/rl1809/parts-ledger/internal/core/domain"
	"github.com/rl1809/parts-ledger/internal/core/service"
)

const partID = "stress-part"

func main() {
	initialStock := flag.Int("stock", 20, "units stocked before the run")
	totalRequests := flag.Int("requests", 50, "concurrent reservations of one unit each")
	maxRetries := flag.Int("retries", 50, "optimistic-lock retries per request")
	flag.Parse()

	ctx := context.Background()
	logger := zap.NewNop()

	repo := storage.NewMemoryAdapter()
	parts := catalog.NewMemoryCatalog(domain.Part{ID: partID, Name: "Stress part", UnitCost: decimal.NewFromInt(1), Active: true})
	opts := service.Options{MaxRetries: *maxRetries, RetryBaseDelay: time.Millisecond}
	bus := service.NewEventBus(logger, nil)

	items := service.NewItemService(repo, parts, bus, logger, opts)
	ledger := service.NewLedgerService(repo, parts, nil, bus, logger, opts)

	if _, err := items.CreateItem(ctx, service.CreateItemRequest{PartID: partID, InitialQuantity: *initialStock}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create item: %v\n", err)
		os.Exit(1)
	}

	var successCount, insufficientCount, conflictCount atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *totalRequests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			_, err := ledger.ReserveStock(ctx, service.ReserveRequest{
				ServiceOrderItemID: fmt.Sprintf("soi-%d", n),
				PartID:             partID,
				Quantity:           1,
			})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				insufficientCount.Add(1)
			case errors.Is(err, domain.ErrConcurrencyConflict):
				conflictCount.Add(1)
			default:
				fmt.Fprintf(os.Stderr, "unexpected error: %v\n", err)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := int(successCount.Load())
	expected := min(*initialStock, *totalRequests)

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:      %d\n", *initialStock)
	fmt.Printf("Total Requests:     %d\n", *totalRequests)
	fmt.Printf("Reserved:           %d\n", success)
	fmt.Printf("Insufficient:       %d\n", insufficientCount.Load())
	fmt.Printf("Retries Exhausted:  %d\n", conflictCount.Load())
	fmt.Printf("Duration:           %v\n", elapsed)
	fmt.Println("==========================================")

	failed := false
	if success > *initialStock {
		fmt.Printf("FAIL: oversold, %d reservations against %d units\n", success, *initialStock)
		failed = true
	} else if success == expected {
		fmt.Printf("PASS: exactly %d reservations succeeded\n", expected)
	} else {
		fmt.Printf("WARN: %d reservations succeeded, %d possible; raise -retries\n", success, expected)
	}

	report, err := ledger.Reconcile(ctx, partID)
	if err != nil {
		fmt.Printf("FAIL: reconcile: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Final Available:    %d\n", report.ActualAvailable)
	fmt.Printf("Final Reserved:     %d\n", report.ActualReserved)
	if report.Consistent() && report.ActualReserved == success {
		fmt.Println("PASS: ledger replay matches item balances")
	} else {
		fmt.Printf("FAIL: replay (%d, %d) does not match item (%d, %d)\n",
			report.ExpectedAvailable, report.ExpectedReserved, report.ActualAvailable, report.ActualReserved)
		failed = true
	}

	if failed {
		os.Exit(1)
	}
}
