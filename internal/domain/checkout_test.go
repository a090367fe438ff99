package domain_test

import (
	"testing"

	"github.com/kimcharlie25/K-inasal/internal/domain"
)

func makeCheckout() domain.CheckoutRequest {
	return domain.CheckoutRequest{
		CustomerName:  "Maria Santos",
		ContactNumber: "09281234567",
		ServiceType:   domain.ServiceTypeDineIn,
		PaymentMethod: "cash",
		TotalMinor:    250,
		Lines: []domain.CheckoutLine{
			{MenuItemID: "item-1", Name: "Chicken Inasal", Qty: 1, UnitPriceMinor: 150},
			{MenuItemID: "item-2", Name: "Rice", Qty: 2, UnitPriceMinor: 50},
		},
	}
}

func TestCheckoutValidate_Ok(t *testing.T) {
	req := makeCheckout()
	if errs := req.Validate(); len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
}

func TestCheckoutValidate_MissingIdentity(t *testing.T) {
	req := makeCheckout()
	req.CustomerName = ""
	req.ContactNumber = ""

	errs := req.Validate()
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %v", errs)
	}
	if errs[0] != domain.ErrCustomerNameRequired {
		t.Errorf("expected first error to be customer name, got %v", errs[0])
	}
}

func TestAggregateDemands_MergesVariationsOfSameItem(t *testing.T) {
	req := makeCheckout()
	// Две вариации одной базовой позиции делят общий пул стока.
	req.Lines = []domain.CheckoutLine{
		{MenuItemID: "item-1", Name: "Chicken Inasal", Qty: 1, UnitPriceMinor: 150,
			Variation: &domain.LineVariation{ID: "var-leg", Name: "Leg"}},
		{MenuItemID: "item-2", Name: "Rice", Qty: 2, UnitPriceMinor: 50},
		{MenuItemID: "item-1", Name: "Chicken Inasal", Qty: 3, UnitPriceMinor: 170,
			Variation: &domain.LineVariation{ID: "var-breast", Name: "Breast"}},
	}

	demands := req.AggregateDemands()
	if len(demands) != 2 {
		t.Fatalf("expected 2 demands, got %d", len(demands))
	}
	if demands[0].MenuItemID != "item-1" || demands[0].Qty != 4 {
		t.Errorf("expected item-1 qty 4 first, got %+v", demands[0])
	}
	if demands[1].MenuItemID != "item-2" || demands[1].Qty != 2 {
		t.Errorf("expected item-2 qty 2 second, got %+v", demands[1])
	}
}

func TestAggregateDemands_PreservesFirstOccurrenceOrder(t *testing.T) {
	req := makeCheckout()
	req.Lines = []domain.CheckoutLine{
		{MenuItemID: "item-b", Name: "B", Qty: 1, UnitPriceMinor: 10},
		{MenuItemID: "item-a", Name: "A", Qty: 1, UnitPriceMinor: 10},
		{MenuItemID: "item-b", Name: "B", Qty: 1, UnitPriceMinor: 10},
	}

	demands := req.AggregateDemands()
	if len(demands) != 2 || demands[0].MenuItemID != "item-b" || demands[1].MenuItemID != "item-a" {
		t.Fatalf("expected request order preserved, got %+v", demands)
	}
}

func TestAggregateDemands_SkipsEmptyIDs(t *testing.T) {
	req := makeCheckout()
	req.Lines = append(req.Lines, domain.CheckoutLine{Name: "Custom", Qty: 1, UnitPriceMinor: 10})

	demands := req.AggregateDemands()
	if len(demands) != 2 {
		t.Fatalf("expected lines without menu item id to be skipped, got %+v", demands)
	}
}
