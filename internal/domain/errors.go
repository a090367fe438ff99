package domain

import (
	"errors"
	"fmt"
)

var (
	// Ошибка отсутствующего имени гостя.
	ErrCustomerNameRequired = errors.New("customer name is required")
	// Ошибка отсутствующего контактного номера.
	ErrContactNumberRequired = errors.New("contact number is required")
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrLinesRequired = errors.New("order must contain at least one line")
	// Ошибка при некорректном количестве в позиции (<= 0).
	ErrLineQtyInvalid = errors.New("line qty must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrLinePriceInvalid = errors.New("line unit price must be non-negative")
	// Ошибка несоответствия subtotal позиции произведению цены и количества.
	ErrSubtotalMismatch = errors.New("line subtotal does not match unit price times qty")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrTotalMismatch = errors.New("order total does not match lines sum")
	// Ошибка отрицательной суммы заказа.
	ErrTotalNegative = errors.New("order total must be non-negative")
	// ErrRateLimited возвращается, когда хранилище отклонило заказ из-за частоты отправок.
	ErrRateLimited = errors.New("too many order submissions")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrTableNotFound возвращается, если стол не найден.
	ErrTableNotFound = errors.New("table not found")
	// ErrInvalidStatusTransition сигнализирует о недопустимой смене статуса заказа.
	ErrInvalidStatusTransition = errors.New("invalid order status transition")
	// ErrReservationNotFound возвращается, если резерв не найден по идентификатору.
	ErrReservationNotFound = errors.New("stock reservation not found")
	// ErrNotifierClosed возвращается при попытке работать с остановленным нотификатором.
	ErrNotifierClosed = errors.New("change notifier is closed")
)

// InsufficientStockError — бизнес-ошибка резервирования: на указанную позицию
// не хватает стока. Не ретраится, гость должен скорректировать корзину.
type InsufficientStockError struct {
	// Item — название позиции меню, видимое гостю.
	Item string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s", e.Item)
}

// IsInsufficientStock возвращает название позиции, если ошибка — нехватка стока.
func IsInsufficientStock(err error) (string, bool) {
	var stockErr *InsufficientStockError
	if errors.As(err, &stockErr) {
		return stockErr.Item, true
	}
	return "", false
}

// PersistenceError оборачивает сбой хранилища с признаком «можно повторить».
// Транзиентные ошибки (сеть, таймаут) ретраятся, терминальные — нет.
type PersistenceError struct {
	Retryable bool
	Err       error
}

func (e *PersistenceError) Error() string {
	if e.Retryable {
		return fmt.Sprintf("transient persistence failure: %v", e.Err)
	}
	return fmt.Sprintf("persistence failure: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NewPersistenceError помечает ошибку хранилища признаком retryable.
func NewPersistenceError(err error, retryable bool) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Retryable: retryable, Err: err}
}

// IsRetryable проверяет, является ли ошибка транзиентным сбоем хранилища.
func IsRetryable(err error) bool {
	var persErr *PersistenceError
	if errors.As(err, &persErr) {
		return persErr.Retryable
	}
	return false
}

// IsRateLimited проверяет, является ли ошибка отказом rate limiter-а хранилища.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
