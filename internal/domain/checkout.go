package domain

// CheckoutLine — позиция корзины в запросе на оформление заказа.
type CheckoutLine struct {
	// MenuItemID — идентификатор базовой позиции меню. Две строки с разными
	// вариациями одной позиции разделяют общий пул стока.
	MenuItemID     string
	Name           string
	Qty            int32
	UnitPriceMinor int64
	Variation      *LineVariation
	AddOns         []LineAddOn
}

// CheckoutRequest описывает запрос гостя на оформление заказа.
type CheckoutRequest struct {
	CustomerName  string
	ContactNumber string
	ServiceType   ServiceType
	PaymentMethod string
	Notes         string
	TotalMinor    int64
	Lines         []CheckoutLine
	ReceiptURL    string
	TableRef      string
}

// Validate проверяет обязательные поля запроса. Порядок проверок фиксирован,
// чтобы первая ошибка была детерминированной.
func (r *CheckoutRequest) Validate() []error {
	var errs []error

	if r.CustomerName == "" {
		errs = append(errs, ErrCustomerNameRequired)
	}
	if r.ContactNumber == "" {
		errs = append(errs, ErrContactNumberRequired)
	}
	if len(r.Lines) == 0 {
		errs = append(errs, ErrLinesRequired)
	}
	for _, line := range r.Lines {
		if line.Qty <= 0 {
			errs = append(errs, ErrLineQtyInvalid)
		}
		if line.UnitPriceMinor < 0 {
			errs = append(errs, ErrLinePriceInvalid)
		}
	}

	return errs
}

// StockDemand — агрегированная потребность в стоке по одной базовой позиции меню.
type StockDemand struct {
	MenuItemID string
	// Name — название позиции для сообщения об ошибке нехватки стока.
	Name string
	Qty  int32
}

// AggregateDemands складывает количества по базовой позиции меню по всем строкам
// корзины. Порядок результата — порядок первого вхождения позиции в запросе:
// от него зависит, какая позиция будет названа при отказе по стоку.
func (r *CheckoutRequest) AggregateDemands() []StockDemand {
	index := make(map[string]int, len(r.Lines))
	demands := make([]StockDemand, 0, len(r.Lines))

	for _, line := range r.Lines {
		if line.MenuItemID == "" {
			continue
		}
		if i, ok := index[line.MenuItemID]; ok {
			demands[i].Qty += line.Qty
			continue
		}
		index[line.MenuItemID] = len(demands)
		demands = append(demands, StockDemand{
			MenuItemID: line.MenuItemID,
			Name:       line.Name,
			Qty:        line.Qty,
		})
	}

	return demands
}
