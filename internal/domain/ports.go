package domain

import (
	"context"
	"encoding/json"
	"time"
)

// MenuCatalog — чтение учёта стока из каталога меню.
type MenuCatalog interface {
	// GetStock возвращает учётные записи стока по указанным позициям.
	GetStock(ctx context.Context, menuItemIDs []string) ([]StockRecord, error)
}

// ChangeKind — тип изменения строки в хранилище заказов.
type ChangeKind string

const (
	ChangeKindInsert ChangeKind = "insert"
	ChangeKindUpdate ChangeKind = "update"
	ChangeKindDelete ChangeKind = "delete"
)

// Таблицы, изменения которых транслируются подписчикам.
const (
	ChangeTableOrders     = "orders"
	ChangeTableOrderLines = "order_lines"
)

// ChangeEvent — событие изменения строки заказа или позиции заказа.
// Подписчики не применяют NewRow/OldRow инкрементально: любое событие
// означает «перечитай список заказов целиком».
type ChangeEvent struct {
	Kind  ChangeKind `json:"kind"`
	Table string     `json:"table"`
	// NewRow/OldRow — необязательные сырые снапшоты строки; достаточно
	// для алертинга о новом заказе, но не для патчей состояния.
	NewRow json.RawMessage `json:"new_row,omitempty"`
	OldRow json.RawMessage `json:"old_row,omitempty"`
	At     time.Time       `json:"at"`
}

// ChangeHandler обрабатывает событие изменения. Вызывается последовательно
// в горутине подписки; не должен блокироваться надолго.
type ChangeHandler func(event ChangeEvent)

// Subscription — хэндл активной push-подписки.
type Subscription interface {
	// Done закрывается, когда подписка умерла (ошибка канала, таймаут, закрытие).
	Done() <-chan struct{}
	// Err возвращает причину после закрытия Done, иначе nil.
	Err() error
	// Unsubscribe снимает подписку; идемпотентен.
	Unsubscribe()
}

// PushChannel — подписка на события изменения строк заказов.
// Сбои канала не являются пользовательскими ошибками: подписчик обязан
// деградировать в polling, не теряя обновлений.
type PushChannel interface {
	Subscribe(ctx context.Context, tables []string, handler ChangeHandler) (Subscription, error)
}

// ChangePublisher — издающая сторона push-канала. Публикация best-effort:
// потеря события компенсируется страховочным polling-ом подписчиков.
type ChangePublisher interface {
	Publish(ctx context.Context, event ChangeEvent) error
}
