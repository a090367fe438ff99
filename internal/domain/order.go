package domain

import "time"

// OrderStatus описывает жизненный цикл заказа в зале.
type OrderStatus string

const (
	// OrderStatusPending — заказ оформлен гостем и ждёт подтверждения персоналом.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed — персонал принял заказ в работу.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusCompleted — заказ выдан/подан, цикл завершён.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled — заказ отменён до завершения цикла.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// CanTransitionTo проверяет допустимость смены статуса персоналом.
// Разрешены только pending → confirmed → completed и отмена незавершённого заказа.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case OrderStatusPending:
		return next == OrderStatusConfirmed || next == OrderStatusCancelled
	case OrderStatusConfirmed:
		return next == OrderStatusCompleted || next == OrderStatusCancelled
	default:
		return false
	}
}

// ServiceType — способ обслуживания, выбранный гостем.
type ServiceType string

const (
	ServiceTypeDineIn   ServiceType = "dine-in"
	ServiceTypePickup   ServiceType = "pickup"
	ServiceTypeDelivery ServiceType = "delivery"
)

// LineVariation — снапшот выбранной вариации позиции меню на момент заказа.
type LineVariation struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceMinor int64  `json:"price_minor"`
}

// LineAddOn — снапшот выбранной добавки к позиции.
type LineAddOn struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceMinor int64  `json:"price_minor"`
	Qty        int32  `json:"qty"`
}

// OrderLine представляет одну позицию заказа.
// Все поля, кроме ссылок, являются снапшотами: последующие правки меню
// не меняют исторические заказы.
type OrderLine struct {
	ID string
	// MenuItemID — ссылка на базовую позицию меню (общий пул стока для всех вариаций).
	MenuItemID string
	// Name — название позиции на момент заказа.
	Name      string
	Variation *LineVariation
	AddOns    []LineAddOn
	// UnitPriceMinor — цена за единицу в сентаво на момент заказа.
	UnitPriceMinor int64
	Qty            int32
	// SubtotalMinor = UnitPriceMinor * Qty; фиксируется при оформлении.
	SubtotalMinor int64
	CreatedAt     time.Time
}

// Order агрегирует шапку заказа и его позиции.
// Создаётся один раз при checkout; после этого мутирует только статус.
type Order struct {
	ID            string
	CustomerName  string
	ContactNumber string
	ServiceType   ServiceType
	PaymentMethod string
	Notes         string
	TotalMinor    int64
	Status        OrderStatus
	// ReceiptURL — опциональная ссылка на загруженный чек оплаты.
	ReceiptURL string
	// TableRef — опциональный номер стола (гость пришёл по QR-ссылке стола).
	TableRef string
	// ClientIP — best-effort идентификатор клиента, может быть пустым.
	ClientIP  string
	Lines     []OrderLine
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerName == "" {
		errs = append(errs, ErrCustomerNameRequired)
	}
	if o.ContactNumber == "" {
		errs = append(errs, ErrContactNumberRequired)
	}
	if len(o.Lines) == 0 {
		errs = append(errs, ErrLinesRequired)
	}
	if o.TotalMinor < 0 {
		errs = append(errs, ErrTotalNegative)
	}

	// Сверяем сумму заказа с суммой позиций, а каждую позицию — с ценой за единицу.
	var calc int64
	for _, line := range o.Lines {
		if line.Qty <= 0 {
			errs = append(errs, ErrLineQtyInvalid)
		}
		if line.UnitPriceMinor < 0 {
			errs = append(errs, ErrLinePriceInvalid)
		}
		if line.SubtotalMinor != line.UnitPriceMinor*int64(line.Qty) {
			errs = append(errs, ErrSubtotalMismatch)
		}
		calc += line.SubtotalMinor
	}
	if calc != o.TotalMinor {
		errs = append(errs, ErrTotalMismatch)
	}

	return errs
}
