package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kimcharlie25/K-inasal/internal/domain"
)

func makeOrder(id, contact string, createdAt time.Time) domain.Order {
	return domain.Order{
		ID:            id,
		CustomerName:  "Juan Dela Cruz",
		ContactNumber: contact,
		ServiceType:   domain.ServiceTypeDineIn,
		PaymentMethod: "cash",
		TotalMinor:    100,
		Status:        domain.OrderStatusPending,
		Lines: []domain.OrderLine{
			{ID: id + "-line", MenuItemID: "item-1", Name: "Chicken Inasal", Qty: 1, UnitPriceMinor: 100, SubtotalMinor: 100, CreatedAt: createdAt},
		},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestOrderRepository_CreateAndGet(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	if err := repo.Create(ctx, makeOrder("order-1", "0917", now)); err != nil {
		t.Fatalf("create: %v", err)
	}

	order, err := repo.Get(ctx, "order-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(order.Lines) != 1 || order.Lines[0].Name != "Chicken Inasal" {
		t.Errorf("expected lines loaded with order, got %+v", order.Lines)
	}

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderRepository_ListNewestFirst(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()
	base := time.Now().UTC()

	for i, id := range []string{"order-1", "order-2", "order-3"} {
		if err := repo.Create(ctx, makeOrder(id, "0917"+id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	orders, err := repo.List(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(orders) != 3 || orders[0].ID != "order-3" || orders[2].ID != "order-1" {
		t.Fatalf("expected newest first, got %v", orderIDs(orders))
	}

	limited, _ := repo.List(ctx, 2)
	if len(limited) != 2 {
		t.Errorf("expected limit respected, got %d", len(limited))
	}
}

func TestOrderRepository_RateLimit(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	repo := NewOrderRepository(
		WithRateWindow(time.Minute),
		WithClock(func() time.Time { return current }),
	)
	ctx := context.Background()

	if err := repo.Create(ctx, makeOrder("order-1", "0917", current)); err != nil {
		t.Fatalf("first create: %v", err)
	}

	err := repo.Create(ctx, makeOrder("order-2", "0917", current))
	if !domain.IsRateLimited(err) {
		t.Fatalf("expected rate limit error, got %v", err)
	}

	// Другой контактный номер не ограничен.
	if err := repo.Create(ctx, makeOrder("order-3", "0928", current)); err != nil {
		t.Fatalf("different contact must pass: %v", err)
	}

	// После окна — снова можно.
	current = current.Add(61 * time.Second)
	if err := repo.Create(ctx, makeOrder("order-4", "0917", current)); err != nil {
		t.Fatalf("after window: %v", err)
	}
}

func TestOrderRepository_UpdateStatus(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()

	if err := repo.Create(ctx, makeOrder("order-1", "0917", time.Now().UTC())); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := repo.UpdateStatus(ctx, "order-1", domain.OrderStatusConfirmed); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if err := repo.UpdateStatus(ctx, "order-1", domain.OrderStatusPending); !errors.Is(err, domain.ErrInvalidStatusTransition) {
		t.Errorf("expected invalid transition, got %v", err)
	}
	if err := repo.UpdateStatus(ctx, "missing", domain.OrderStatusConfirmed); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("expected not found, got %v", err)
	}

	order, _ := repo.Get(ctx, "order-1")
	if order.Status != domain.OrderStatusConfirmed {
		t.Errorf("expected confirmed, got %s", order.Status)
	}
}

type capturingPublisher struct {
	events []domain.ChangeEvent
}

func (p *capturingPublisher) Publish(ctx context.Context, event domain.ChangeEvent) error {
	p.events = append(p.events, event)
	return nil
}

func TestOrderRepository_PublishesChanges(t *testing.T) {
	pub := &capturingPublisher{}
	repo := NewOrderRepository(WithChangePublisher(pub))
	ctx := context.Background()

	if err := repo.Create(ctx, makeOrder("order-1", "0917", time.Now().UTC())); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.UpdateStatus(ctx, "order-1", domain.OrderStatusConfirmed); err != nil {
		t.Fatalf("update: %v", err)
	}

	if len(pub.events) != 2 {
		t.Fatalf("expected 2 change events, got %d", len(pub.events))
	}
	if pub.events[0].Kind != domain.ChangeKindInsert || pub.events[1].Kind != domain.ChangeKindUpdate {
		t.Errorf("expected insert then update, got %+v", pub.events)
	}
}

func orderIDs(orders []domain.Order) []string {
	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	return ids
}
