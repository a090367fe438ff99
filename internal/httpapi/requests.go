package httpapi

import (
	"time"

	"github.com/kimcharlie25/K-inasal/internal/domain"
)

type lineVariationPayload struct {
	ID         string `json:"id"`
	Name       string `json:"name" validate:"required"`
	PriceMinor int64  `json:"price_minor" validate:"gte=0"`
}

type lineAddOnPayload struct {
	ID         string `json:"id"`
	Name       string `json:"name" validate:"required"`
	PriceMinor int64  `json:"price_minor" validate:"gte=0"`
	Qty        int32  `json:"qty" validate:"gt=0"`
}

type checkoutLinePayload struct {
	MenuItemID     string                `json:"menu_item_id"`
	Name           string                `json:"name" validate:"required"`
	Qty            int32                 `json:"qty" validate:"gt=0"`
	UnitPriceMinor int64                 `json:"unit_price_minor" validate:"gte=0"`
	Variation      *lineVariationPayload `json:"variation,omitempty" validate:"omitempty"`
	AddOns         []lineAddOnPayload    `json:"add_ons,omitempty" validate:"omitempty,dive"`
}

type checkoutPayload struct {
	CustomerName  string                `json:"customer_name" validate:"required"`
	ContactNumber string                `json:"contact_number" validate:"required"`
	ServiceType   string                `json:"service_type" validate:"required,oneof=dine-in pickup delivery"`
	PaymentMethod string                `json:"payment_method" validate:"required"`
	Notes         string                `json:"notes"`
	TotalMinor    int64                 `json:"total_minor" validate:"gte=0"`
	ReceiptURL    string                `json:"receipt_url"`
	TableRef      string                `json:"table_ref"`
	Lines         []checkoutLinePayload `json:"lines" validate:"required,min=1,dive"`
}

func (p *checkoutPayload) toDomain() domain.CheckoutRequest {
	lines := make([]domain.CheckoutLine, 0, len(p.Lines))
	for _, line := range p.Lines {
		domainLine := domain.CheckoutLine{
			MenuItemID:     line.MenuItemID,
			Name:           line.Name,
			Qty:            line.Qty,
			UnitPriceMinor: line.UnitPriceMinor,
		}
		if line.Variation != nil {
			domainLine.Variation = &domain.LineVariation{
				ID:         line.Variation.ID,
				Name:       line.Variation.Name,
				PriceMinor: line.Variation.PriceMinor,
			}
		}
		for _, addOn := range line.AddOns {
			domainLine.AddOns = append(domainLine.AddOns, domain.LineAddOn{
				ID:         addOn.ID,
				Name:       addOn.Name,
				PriceMinor: addOn.PriceMinor,
				Qty:        addOn.Qty,
			})
		}
		lines = append(lines, domainLine)
	}

	return domain.CheckoutRequest{
		CustomerName:  p.CustomerName,
		ContactNumber: p.ContactNumber,
		ServiceType:   domain.ServiceType(p.ServiceType),
		PaymentMethod: p.PaymentMethod,
		Notes:         p.Notes,
		TotalMinor:    p.TotalMinor,
		ReceiptURL:    p.ReceiptURL,
		TableRef:      p.TableRef,
		Lines:         lines,
	}
}

type statusUpdatePayload struct {
	Status string `json:"status" validate:"required,oneof=pending confirmed completed cancelled"`
}

type orderLineView struct {
	ID             string                `json:"id"`
	MenuItemID     string                `json:"menu_item_id,omitempty"`
	Name           string                `json:"name"`
	Variation      *domain.LineVariation `json:"variation,omitempty"`
	AddOns         []domain.LineAddOn    `json:"add_ons,omitempty"`
	UnitPriceMinor int64                 `json:"unit_price_minor"`
	Qty            int32                 `json:"qty"`
	SubtotalMinor  int64                 `json:"subtotal_minor"`
}

type orderView struct {
	ID            string          `json:"id"`
	CustomerName  string          `json:"customer_name"`
	ContactNumber string          `json:"contact_number"`
	ServiceType   string          `json:"service_type"`
	PaymentMethod string          `json:"payment_method"`
	Notes         string          `json:"notes,omitempty"`
	TotalMinor    int64           `json:"total_minor"`
	Status        string          `json:"status"`
	ReceiptURL    string          `json:"receipt_url,omitempty"`
	TableRef      string          `json:"table_ref,omitempty"`
	Lines         []orderLineView `json:"lines"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func toOrderView(order domain.Order) orderView {
	lines := make([]orderLineView, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, orderLineView{
			ID:             line.ID,
			MenuItemID:     line.MenuItemID,
			Name:           line.Name,
			Variation:      line.Variation,
			AddOns:         line.AddOns,
			UnitPriceMinor: line.UnitPriceMinor,
			Qty:            line.Qty,
			SubtotalMinor:  line.SubtotalMinor,
		})
	}
	return orderView{
		ID:            order.ID,
		CustomerName:  order.CustomerName,
		ContactNumber: order.ContactNumber,
		ServiceType:   string(order.ServiceType),
		PaymentMethod: order.PaymentMethod,
		Notes:         order.Notes,
		TotalMinor:    order.TotalMinor,
		Status:        string(order.Status),
		ReceiptURL:    order.ReceiptURL,
		TableRef:      order.TableRef,
		Lines:         lines,
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
	}
}

type tableView struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	QRURL     string    `json:"qr_url"`
	CreatedAt time.Time `json:"created_at"`
}

func toTableView(table domain.Table) tableView {
	return tableView{
		ID:        table.ID,
		Name:      table.Name,
		QRURL:     table.QRURL,
		CreatedAt: table.CreatedAt,
	}
}
