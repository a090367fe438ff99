package domain

import "time"

// Table — стол зала с постоянной QR-ссылкой на оформление заказа.
// Сама генерация QR-кода вне ядра; здесь хранится только URL.
type Table struct {
	ID        int64
	Name      string
	QRURL     string
	CreatedAt time.Time
}
