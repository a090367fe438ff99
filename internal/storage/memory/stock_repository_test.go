package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kimcharlie25/K-inasal/internal/domain"
)

func seedStock() *StockRepository {
	return NewStockRepository([]domain.StockRecord{
		{MenuItemID: "item-1", TrackInventory: true, StockQuantity: 2},
		{MenuItemID: "item-2", TrackInventory: true, StockQuantity: 10},
		{MenuItemID: "item-free", TrackInventory: false, StockQuantity: 0},
	})
}

func TestReserve_DecrementsTrackedStock(t *testing.T) {
	repo := seedStock()
	ctx := context.Background()

	err := repo.Reserve(ctx, "res-1", []domain.StockDemand{
		{MenuItemID: "item-1", Name: "Chicken Inasal", Qty: 1},
		{MenuItemID: "item-2", Name: "Rice", Qty: 3},
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	records, err := repo.GetStock(ctx, []string{"item-1", "item-2"})
	if err != nil {
		t.Fatalf("get stock: %v", err)
	}
	if records[0].StockQuantity != 1 || records[1].StockQuantity != 7 {
		t.Errorf("expected 1 and 7 remaining, got %d and %d", records[0].StockQuantity, records[1].StockQuantity)
	}
}

func TestReserve_InsufficientStockIsAllOrNothing(t *testing.T) {
	repo := seedStock()
	ctx := context.Background()

	err := repo.Reserve(ctx, "res-1", []domain.StockDemand{
		{MenuItemID: "item-2", Name: "Rice", Qty: 5},
		{MenuItemID: "item-1", Name: "Chicken Inasal", Qty: 3},
	})
	item, ok := domain.IsInsufficientStock(err)
	if !ok {
		t.Fatalf("expected insufficient stock error, got %v", err)
	}
	if item != "Chicken Inasal" {
		t.Errorf("expected offending item Chicken Inasal, got %q", item)
	}

	// Ничего не списано, включая достаточную позицию.
	records, _ := repo.GetStock(ctx, []string{"item-1", "item-2"})
	if records[0].StockQuantity != 2 || records[1].StockQuantity != 10 {
		t.Errorf("expected stock untouched, got %+v", records)
	}
}

func TestReserve_UntrackedItemsExempt(t *testing.T) {
	repo := seedStock()

	err := repo.Reserve(context.Background(), "res-1", []domain.StockDemand{
		{MenuItemID: "item-free", Name: "Extra Sauce", Qty: 100},
	})
	if err != nil {
		t.Fatalf("untracked item must not be checked: %v", err)
	}
}

// Сценарий из требований: сток 2, два конкурентных запроса по 2 единицы —
// ровно один успех, итоговый сток 0, без отрицательных значений.
func TestReserve_ConcurrentContention(t *testing.T) {
	repo := seedStock()
	ctx := context.Background()

	const attempts = 2
	results := make([]error, attempts)
	var wg sync.WaitGroup
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func(i int) {
			defer wg.Done()
			results[i] = repo.Reserve(ctx, "res-"+string(rune('a'+i)), []domain.StockDemand{
				{MenuItemID: "item-1", Name: "Chicken Inasal", Qty: 2},
			})
		}(i)
	}
	wg.Wait()

	var successes, stockErrs int
	for _, err := range results {
		if err == nil {
			successes++
		} else if _, ok := domain.IsInsufficientStock(err); ok {
			stockErrs++
		} else {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 || stockErrs != 1 {
		t.Fatalf("expected exactly one success and one stock rejection, got %d/%d", successes, stockErrs)
	}

	records, _ := repo.GetStock(ctx, []string{"item-1"})
	if records[0].StockQuantity != 0 {
		t.Errorf("expected final stock 0, got %d", records[0].StockQuantity)
	}
}

func TestRelease_RefundsStock(t *testing.T) {
	repo := seedStock()
	ctx := context.Background()

	if err := repo.Reserve(ctx, "res-1", []domain.StockDemand{{MenuItemID: "item-1", Name: "Chicken Inasal", Qty: 2}}); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := repo.Release(ctx, "res-1"); err != nil {
		t.Fatalf("release: %v", err)
	}

	records, _ := repo.GetStock(ctx, []string{"item-1"})
	if records[0].StockQuantity != 2 {
		t.Errorf("expected stock restored to 2, got %d", records[0].StockQuantity)
	}

	// Повторный release не должен возвращать сток дважды.
	if err := repo.Release(ctx, "res-1"); err != nil {
		t.Fatalf("repeated release: %v", err)
	}
	records, _ = repo.GetStock(ctx, []string{"item-1"})
	if records[0].StockQuantity != 2 {
		t.Errorf("repeated release must be idempotent, got %d", records[0].StockQuantity)
	}
}

func TestMarkCommitted_ClearsPendingBacklog(t *testing.T) {
	repo := seedStock()
	ctx := context.Background()

	if err := repo.Reserve(ctx, "res-1", []domain.StockDemand{{MenuItemID: "item-1", Name: "Chicken Inasal", Qty: 1}}); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	stats, err := repo.PendingStats(ctx)
	if err != nil {
		t.Fatalf("pending stats: %v", err)
	}
	if stats.PendingCount != 1 {
		t.Fatalf("expected 1 pending reservation, got %d", stats.PendingCount)
	}

	if err := repo.MarkCommitted(ctx, "res-1"); err != nil {
		t.Fatalf("mark committed: %v", err)
	}
	stats, _ = repo.PendingStats(ctx)
	if stats.PendingCount != 0 {
		t.Errorf("expected no pending reservations after commit, got %d", stats.PendingCount)
	}

	// Committed-резерв не возвращает сток при release.
	if err := repo.Release(ctx, "res-1"); err != nil {
		t.Fatalf("release after commit: %v", err)
	}
	records, _ := repo.GetStock(ctx, []string{"item-1"})
	if records[0].StockQuantity != 1 {
		t.Errorf("committed reservation must not refund, got %d", records[0].StockQuantity)
	}
}

func TestReleaseExpired(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	repo := NewStockRepository(
		[]domain.StockRecord{{MenuItemID: "item-1", TrackInventory: true, StockQuantity: 5}},
		WithStockClock(func() time.Time { return current }),
	)
	ctx := context.Background()

	if err := repo.Reserve(ctx, "res-old", []domain.StockDemand{{MenuItemID: "item-1", Name: "Chicken Inasal", Qty: 2}}); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	current = current.Add(10 * time.Minute)
	if err := repo.Reserve(ctx, "res-new", []domain.StockDemand{{MenuItemID: "item-1", Name: "Chicken Inasal", Qty: 1}}); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	released, err := repo.ReleaseExpired(ctx, current.Add(-5*time.Minute), 10)
	if err != nil {
		t.Fatalf("release expired: %v", err)
	}
	if released != 1 {
		t.Fatalf("expected 1 expired reservation released, got %d", released)
	}

	records, _ := repo.GetStock(ctx, []string{"item-1"})
	if records[0].StockQuantity != 4 {
		t.Errorf("expected only the stale reservation refunded, got %d", records[0].StockQuantity)
	}
}
