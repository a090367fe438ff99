package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/kimcharlie25/K-inasal/internal/domain"
)

// Ledger — учёт стока при оформлении заказа. Проверка достаточности и списание
// выполняются одним условным декрементом в хранилище: это единственная точка
// сериализации конкурентных checkout-ов, рабочая и между независимыми
// инстансами процесса.
type Ledger struct {
	stock  domain.StockRepository
	logger *log.Entry
}

// NewLedger создаёт леджер поверх репозитория стока.
func NewLedger(stock domain.StockRepository, logger *log.Entry) *Ledger {
	if logger == nil {
		logger = log.WithField("component", "inventory-ledger")
	}
	return &Ledger{stock: stock, logger: logger}
}

// Reserve атомарно резервирует сток под агрегированные потребности заказа.
// При нехватке возвращается InsufficientStockError с первой недостаточной
// позицией в порядке запроса; ничего не списывается.
func (l *Ledger) Reserve(ctx context.Context, demands []domain.StockDemand) (domain.Reservation, error) {
	reservation := domain.Reservation{
		ID:        uuid.NewString(),
		Demands:   demands,
		CreatedAt: time.Now().UTC(),
	}

	if len(demands) == 0 {
		return reservation, nil
	}

	if err := l.stock.Reserve(ctx, reservation.ID, demands); err != nil {
		if item, ok := domain.IsInsufficientStock(err); ok {
			l.logger.WithField("item", item).Debug("reservation rejected: insufficient stock")
			return domain.Reservation{}, err
		}
		return domain.Reservation{}, fmt.Errorf("reserve stock: %w", err)
	}

	return reservation, nil
}

// Commit финализирует резерв после сохранения заказа. Сбой фиксации не
// возвращается вызывающему: заказ остаётся действительным, а зависший резерв
// виден через PendingStats и снимается выверкой. Возвращает false при сбое.
func (l *Ledger) Commit(ctx context.Context, reservation domain.Reservation) bool {
	if len(reservation.Demands) == 0 {
		return true
	}

	if err := l.stock.MarkCommitted(ctx, reservation.ID); err != nil {
		l.logger.WithError(err).WithField("reservation_id", reservation.ID).
			Error("failed to commit stock reservation, stock accounting degraded")
		return false
	}
	return true
}

// Release компенсирует резерв, возвращая списанный сток. Вызывается, когда
// заказ не удалось сохранить после успешного резервирования.
func (l *Ledger) Release(ctx context.Context, reservation domain.Reservation) error {
	if len(reservation.Demands) == 0 {
		return nil
	}

	if err := l.stock.Release(ctx, reservation.ID); err != nil {
		return fmt.Errorf("release reservation %s: %w", reservation.ID, err)
	}
	return nil
}
