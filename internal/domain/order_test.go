package domain_test

import (
	"testing"
	"time"

	"github.com/kimcharlie25/K-inasal/internal/domain"
)

// helper для создания корректного заказа из трёх позиций.
func makeOrder() domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:            "order-1",
		CustomerName:  "Juan Dela Cruz",
		ContactNumber: "09171234567",
		ServiceType:   domain.ServiceTypeDineIn,
		PaymentMethod: "gcash",
		TotalMinor:    190,
		Status:        domain.OrderStatusPending,
		Lines: []domain.OrderLine{
			{ID: "line-1", MenuItemID: "item-1", Name: "Chicken Inasal", Qty: 1, UnitPriceMinor: 50, SubtotalMinor: 50, CreatedAt: now},
			{ID: "line-2", MenuItemID: "item-2", Name: "Halo-Halo", Qty: 2, UnitPriceMinor: 30, SubtotalMinor: 60, CreatedAt: now},
			{ID: "line-3", MenuItemID: "item-3", Name: "Sisig", Qty: 1, UnitPriceMinor: 80, SubtotalMinor: 80, CreatedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestOrderValidateInvariants_Ok(t *testing.T) {
	order := makeOrder()
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
	// 1*50 + 2*30 + 1*80 = 190
	var sum int64
	for _, line := range order.Lines {
		sum += line.SubtotalMinor
	}
	if sum != order.TotalMinor {
		t.Fatalf("expected lines sum %d to equal total %d", sum, order.TotalMinor)
	}
}

func TestOrderValidateInvariants_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(o *domain.Order)
		want error
	}{
		{
			name: "no customer name",
			mut:  func(o *domain.Order) { o.CustomerName = "" },
			want: domain.ErrCustomerNameRequired,
		},
		{
			name: "no contact number",
			mut:  func(o *domain.Order) { o.ContactNumber = "" },
			want: domain.ErrContactNumberRequired,
		},
		{
			name: "no lines",
			mut:  func(o *domain.Order) { o.Lines = nil },
			want: domain.ErrLinesRequired,
		},
		{
			name: "total mismatch",
			mut:  func(o *domain.Order) { o.TotalMinor = 200 },
			want: domain.ErrTotalMismatch,
		},
		{
			name: "subtotal mismatch",
			mut:  func(o *domain.Order) { o.Lines[0].SubtotalMinor = 49 },
			want: domain.ErrSubtotalMismatch,
		},
		{
			name: "zero qty",
			mut:  func(o *domain.Order) { o.Lines[1].Qty = 0 },
			want: domain.ErrLineQtyInvalid,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := makeOrder()
			tc.mut(&order)

			errs := order.ValidateInvariants()
			if len(errs) == 0 {
				t.Fatal("expected validation errors, got none")
			}
			found := false
			for _, err := range errs {
				if err == tc.want {
					found = true
					break
				}
			}
			if !found {
				t.Fatalf("expected %v among %v", tc.want, errs)
			}
		})
	}
}

func TestOrderStatusTransitions(t *testing.T) {
	cases := []struct {
		from domain.OrderStatus
		to   domain.OrderStatus
		ok   bool
	}{
		{domain.OrderStatusPending, domain.OrderStatusConfirmed, true},
		{domain.OrderStatusPending, domain.OrderStatusCancelled, true},
		{domain.OrderStatusPending, domain.OrderStatusCompleted, false},
		{domain.OrderStatusConfirmed, domain.OrderStatusCompleted, true},
		{domain.OrderStatusConfirmed, domain.OrderStatusCancelled, true},
		{domain.OrderStatusConfirmed, domain.OrderStatusPending, false},
		{domain.OrderStatusCompleted, domain.OrderStatusCancelled, false},
		{domain.OrderStatusCancelled, domain.OrderStatusConfirmed, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.ok {
			t.Errorf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.ok, got)
		}
	}
}
