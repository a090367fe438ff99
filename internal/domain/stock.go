package domain

import "time"

// StockRecord — учётная запись стока по позиции меню. Владелец данных — каталог
// меню; ядро заказа читает флаг и количество и меняет количество только через
// условный декремент.
type StockRecord struct {
	MenuItemID string
	// TrackInventory — декрементировать ли сток при покупке. Позиции без учёта
	// стока освобождены от проверки достаточности.
	TrackInventory bool
	// StockQuantity не может стать отрицательным ни при какой конкурентности.
	StockQuantity int32
}

// ReservationStatus отражает состояние резерва стока под заказ.
type ReservationStatus string

const (
	// ReservationStatusPending — сток списан, но заказ ещё не зафиксирован.
	ReservationStatusPending ReservationStatus = "pending"
	// ReservationStatusCommitted — заказ сохранён, резерв финализирован.
	ReservationStatusCommitted ReservationStatus = "committed"
	// ReservationStatusReleased — резерв снят, сток возвращён (компенсация).
	ReservationStatusReleased ReservationStatus = "released"
)

// StockReservation — строка резерва по одной позиции меню.
type StockReservation struct {
	ID            string
	ReservationID string
	MenuItemID    string
	Qty           int32
	Status        ReservationStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Reservation — снапшот успешного резервирования всех позиций одного заказа.
type Reservation struct {
	ID        string
	Demands   []StockDemand
	CreatedAt time.Time
}

// ReservationStats описывает backlog незафиксированных резервов. Ненулевой
// backlog старше пары минут означает, что Commit где-то провалился и сток
// требует выверки.
type ReservationStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
