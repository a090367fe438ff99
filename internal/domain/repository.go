package domain

import (
	"context"
	"time"
)

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет шапку заказа и его позиции атомарно: либо записано всё,
	// либо ничего. Отказ rate limiter-а хранилища возвращается как ErrRateLimited.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ с позициями или ErrOrderNotFound.
	Get(ctx context.Context, id string) (Order, error)
	// List возвращает заказы с позициями, новые первыми (created_at DESC).
	// limit <= 0 означает «без ограничения».
	List(ctx context.Context, limit int) ([]Order, error)
	// UpdateStatus меняет статус заказа с проверкой допустимости перехода.
	UpdateStatus(ctx context.Context, id string, status OrderStatus) error
}

// StockRepository — хранилище стока и резервов. Единственная точка
// сериализации конкурентных checkout-ов: условный декремент внутри Reserve.
type StockRepository interface {
	// Reserve атомарно списывает сток по всем позициям запроса: для каждой
	// отслеживаемой позиции выполняется условный декремент «минус n, если
	// остаток >= n», ноль затронутых строк означает нехватку и откат всего
	// резерва. Неотслеживаемые позиции проверке не подлежат.
	Reserve(ctx context.Context, reservationID string, demands []StockDemand) error
	// MarkCommitted финализирует резерв после сохранения заказа.
	MarkCommitted(ctx context.Context, reservationID string) error
	// Release компенсирует резерв: возвращает списанный сток и помечает
	// строки резерва как released.
	Release(ctx context.Context, reservationID string) error
	// PendingStats возвращает backlog незафиксированных резервов.
	PendingStats(ctx context.Context) (ReservationStats, error)
	// ReleaseExpired снимает зависшие pending-резервы, созданные раньше before,
	// не более limit за вызов. Возвращает число снятых резервов.
	ReleaseExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// TableRepository хранит столы зала.
type TableRepository interface {
	List(ctx context.Context) ([]Table, error)
	// Add создаёт стол со следующим порядковым номером и возвращает его.
	Add(ctx context.Context, baseURL string) (Table, error)
	Delete(ctx context.Context, id int64) error
}
