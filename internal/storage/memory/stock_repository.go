package memory

import (
	"context"
	"sync"
	"time"

	"github.com/kimcharlie25/K-inasal/internal/domain"
)

// StockRepository — in-memory сток и резервы. Мьютекс играет роль той же точки
// сериализации, которой в postgres служит условный UPDATE: проверка
// достаточности и списание происходят под одной блокировкой.
// Реализует domain.StockRepository и domain.MenuCatalog.
type StockRepository struct {
	mu           sync.Mutex
	records      map[string]domain.StockRecord
	reservations map[string][]domain.StockReservation // reservationID -> строки

	now func() time.Time
}

// StockRepositoryOption настраивает in-memory репозиторий стока.
type StockRepositoryOption func(*StockRepository)

// WithStockClock подменяет источник времени в тестах.
func WithStockClock(now func() time.Time) StockRepositoryOption {
	return func(r *StockRepository) {
		r.now = now
	}
}

// NewStockRepository возвращает in-memory репозиторий стока,
// инициализированный переданными записями.
func NewStockRepository(records []domain.StockRecord, options ...StockRepositoryOption) *StockRepository {
	repo := &StockRepository{
		records:      make(map[string]domain.StockRecord, len(records)),
		reservations: make(map[string][]domain.StockReservation),
		now:          time.Now,
	}
	for _, rec := range records {
		repo.records[rec.MenuItemID] = rec
	}
	for _, option := range options {
		option(repo)
	}
	return repo
}

// Reserve списывает сток по всем позициям атомарно: при нехватке хотя бы одной
// отслеживаемой позиции не меняется ничего, возвращается InsufficientStockError
// с первой недостаточной позицией в порядке запроса.
func (r *StockRepository) Reserve(ctx context.Context, reservationID string, demands []domain.StockDemand) error {
	if err := ctx.Err(); err != nil {
		return domain.NewPersistenceError(err, true)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Сначала проверяем достаточность по всем позициям, затем списываем:
	// под одной блокировкой это эквивалентно условному декременту.
	for _, demand := range demands {
		rec, ok := r.records[demand.MenuItemID]
		if !ok || !rec.TrackInventory {
			continue
		}
		if rec.StockQuantity < demand.Qty {
			return &domain.InsufficientStockError{Item: demand.Name}
		}
	}

	now := r.now().UTC()
	rows := make([]domain.StockReservation, 0, len(demands))
	for _, demand := range demands {
		rec, ok := r.records[demand.MenuItemID]
		if !ok || !rec.TrackInventory {
			continue
		}
		rec.StockQuantity -= demand.Qty
		r.records[demand.MenuItemID] = rec
		rows = append(rows, domain.StockReservation{
			ID:            reservationID + "/" + demand.MenuItemID,
			ReservationID: reservationID,
			MenuItemID:    demand.MenuItemID,
			Qty:           demand.Qty,
			Status:        domain.ReservationStatusPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	r.reservations[reservationID] = rows

	return nil
}

// MarkCommitted финализирует pending-резерв.
func (r *StockRepository) MarkCommitted(ctx context.Context, reservationID string) error {
	return r.transition(reservationID, domain.ReservationStatusCommitted, false)
}

// Release возвращает списанный сток и помечает резерв released.
func (r *StockRepository) Release(ctx context.Context, reservationID string) error {
	return r.transition(reservationID, domain.ReservationStatusReleased, true)
}

func (r *StockRepository) transition(reservationID string, status domain.ReservationStatus, refund bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, ok := r.reservations[reservationID]
	if !ok {
		return domain.ErrReservationNotFound
	}

	now := r.now().UTC()
	for i := range rows {
		if rows[i].Status != domain.ReservationStatusPending {
			continue
		}
		if refund {
			rec := r.records[rows[i].MenuItemID]
			rec.StockQuantity += rows[i].Qty
			r.records[rows[i].MenuItemID] = rec
		}
		rows[i].Status = status
		rows[i].UpdatedAt = now
	}
	r.reservations[reservationID] = rows

	return nil
}

// PendingStats возвращает backlog незафиксированных резервов.
func (r *StockRepository) PendingStats(ctx context.Context) (domain.ReservationStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stats domain.ReservationStats
	for _, rows := range r.reservations {
		for _, row := range rows {
			if row.Status != domain.ReservationStatusPending {
				continue
			}
			stats.PendingCount++
			if stats.OldestPendingAt.IsZero() || row.CreatedAt.Before(stats.OldestPendingAt) {
				stats.OldestPendingAt = row.CreatedAt
			}
		}
	}

	return stats, nil
}

// ReleaseExpired снимает pending-резервы, созданные раньше before.
func (r *StockRepository) ReleaseExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	r.mu.Lock()
	expired := make([]string, 0)
	for id, rows := range r.reservations {
		for _, row := range rows {
			if row.Status == domain.ReservationStatusPending && row.CreatedAt.Before(before) {
				expired = append(expired, id)
				break
			}
		}
		if limit > 0 && len(expired) >= limit {
			break
		}
	}
	r.mu.Unlock()

	for _, id := range expired {
		if err := r.Release(ctx, id); err != nil {
			return 0, err
		}
	}

	return len(expired), nil
}

// GetStock возвращает учётные записи стока по указанным позициям.
func (r *StockRepository) GetStock(ctx context.Context, menuItemIDs []string) ([]domain.StockRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records := make([]domain.StockRecord, 0, len(menuItemIDs))
	for _, id := range menuItemIDs {
		if rec, ok := r.records[id]; ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

var (
	_ domain.StockRepository = (*StockRepository)(nil)
	_ domain.MenuCatalog     = (*StockRepository)(nil)
)
