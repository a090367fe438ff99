package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kimcharlie25/K-inasal/internal/domain"
)

// orderRepositoryInMemory — in-memory реализация OrderRepository для локальной
// разработки и тестов. Повторяет семантику postgres-реализации, включая
// rate limiter на частоту отправок с одного контактного номера.
type orderRepositoryInMemory struct {
	mu     sync.RWMutex
	items  map[string]domain.Order
	recent map[string]time.Time // contact number -> время последнего заказа

	rateWindow time.Duration
	now        func() time.Time

	publisher domain.ChangePublisher
}

// OrderRepositoryOption настраивает in-memory репозиторий заказов.
type OrderRepositoryOption func(*orderRepositoryInMemory)

// WithRateWindow задаёт окно rate limiter-а; 0 отключает ограничение.
func WithRateWindow(window time.Duration) OrderRepositoryOption {
	return func(r *orderRepositoryInMemory) {
		r.rateWindow = window
	}
}

// WithClock подменяет источник времени в тестах.
func WithClock(now func() time.Time) OrderRepositoryOption {
	return func(r *orderRepositoryInMemory) {
		r.now = now
	}
}

// WithChangePublisher подключает издателя событий изменения строк.
func WithChangePublisher(publisher domain.ChangePublisher) OrderRepositoryOption {
	return func(r *orderRepositoryInMemory) {
		r.publisher = publisher
	}
}

// NewOrderRepository возвращает in-memory репозиторий заказов.
func NewOrderRepository(options ...OrderRepositoryOption) domain.OrderRepository {
	repo := &orderRepositoryInMemory{
		items:  make(map[string]domain.Order),
		recent: make(map[string]time.Time),
		now:    time.Now,
	}
	for _, option := range options {
		option(repo)
	}
	return repo
}

// Create сохраняет заказ целиком; отказ rate limiter-а приходит до любой записи.
func (r *orderRepositoryInMemory) Create(ctx context.Context, order domain.Order) error {
	if err := ctx.Err(); err != nil {
		return domain.NewPersistenceError(err, true)
	}

	r.mu.Lock()
	if r.rateWindow > 0 {
		if last, ok := r.recent[order.ContactNumber]; ok && r.now().Sub(last) < r.rateWindow {
			r.mu.Unlock()
			return domain.ErrRateLimited
		}
	}
	if _, exists := r.items[order.ID]; exists {
		r.mu.Unlock()
		return domain.NewPersistenceError(errDuplicateOrder(order.ID), false)
	}
	// Сохраняем копию с копией позиций, чтобы избежать мутаций извне.
	r.items[order.ID] = cloneOrder(order)
	r.recent[order.ContactNumber] = r.now()
	r.mu.Unlock()

	r.publish(ctx, domain.ChangeKindInsert, domain.ChangeTableOrders)
	return nil
}

// Get возвращает заказ или ErrOrderNotFound.
func (r *orderRepositoryInMemory) Get(ctx context.Context, id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

// List возвращает заказы новыми вперёд; limit <= 0 — без ограничения.
func (r *orderRepositoryInMemory) List(ctx context.Context, limit int) ([]domain.Order, error) {
	r.mu.RLock()
	result := make([]domain.Order, 0, len(r.items))
	for _, order := range r.items {
		result = append(result, cloneOrder(order))
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// UpdateStatus меняет статус с проверкой допустимости перехода.
func (r *orderRepositoryInMemory) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	r.mu.Lock()
	order, ok := r.items[id]
	if !ok {
		r.mu.Unlock()
		return domain.ErrOrderNotFound
	}
	if !order.Status.CanTransitionTo(status) {
		r.mu.Unlock()
		return domain.ErrInvalidStatusTransition
	}
	order.Status = status
	order.UpdatedAt = r.now().UTC()
	r.items[id] = order
	r.mu.Unlock()

	r.publish(ctx, domain.ChangeKindUpdate, domain.ChangeTableOrders)
	return nil
}

func (r *orderRepositoryInMemory) publish(ctx context.Context, kind domain.ChangeKind, table string) {
	if r.publisher == nil {
		return
	}
	// Потеря события не критична: подписчики страхуются polling-ом.
	_ = r.publisher.Publish(ctx, domain.ChangeEvent{
		Kind:  kind,
		Table: table,
		At:    r.now().UTC(),
	})
}

func cloneOrder(order domain.Order) domain.Order {
	lines := make([]domain.OrderLine, len(order.Lines))
	copy(lines, order.Lines)
	order.Lines = lines
	return order
}

type errDuplicateOrder string

func (e errDuplicateOrder) Error() string {
	return "order already exists: " + string(e)
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
