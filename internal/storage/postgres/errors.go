package postgres

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kimcharlie25/K-inasal/internal/domain"
)

// SQLSTATE-коды, на которые опирается маппинг ошибок хранилища.
// Классификация только по кодам; текст ошибки не инспектируется.
const (
	// sqlstateRateLimited — кастомный код, который возбуждает триггер
	// rate limiter-а при слишком частых заказах с одного номера.
	sqlstateRateLimited = "RL429"

	sqlstateUniqueViolation = "23505"
	sqlstateSerialization   = "40001"
	sqlstateDeadlock        = "40P01"
)

func isRateLimitViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == sqlstateRateLimited
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == sqlstateUniqueViolation
	}
	return false
}

// isTransient определяет, имеет ли смысл повторять операцию: обрывы
// соединения, таймауты, конфликты сериализации и дедлоки — да,
// остальное — терминальный сбой.
func isTransient(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == sqlstateSerialization || pgErr.Code == sqlstateDeadlock {
			return true
		}
		// Класс 08 — connection exception.
		return len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08"
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF)
}

// wrapPersistence помечает ошибку хранилища признаком транзиентности,
// чтобы слой intake мог решить, повторять ли запись.
func wrapPersistence(err error) error {
	if err == nil {
		return nil
	}
	return domain.NewPersistenceError(err, isTransient(err))
}
