package health

import (
	"context"
	"time"
)

const pingTimeout = 2 * time.Second

// Pinger проверяет доступность хранилища.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewStorageChecker создаёт проверку подключения к хранилищу.
func NewStorageChecker(name string, pinger Pinger) Checker {
	return CheckerFunc(func() Check {
		start := time.Now()

		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		defer cancel()

		check := Check{Name: name, Status: StatusHealthy}
		if err := pinger.Ping(ctx); err != nil {
			check.Status = StatusUnhealthy
			check.Message = err.Error()
		}
		check.DurationMs = time.Since(start).Milliseconds()
		return check
	})
}

// NewNotifierChecker создаёт проверку состояния нотификатора: polling-режим
// репортится как degraded, остановленный нотификатор — как unhealthy.
func NewNotifierChecker(name string, state func() string) Checker {
	return CheckerFunc(func() Check {
		check := Check{Name: name, Status: StatusHealthy}
		switch current := state(); current {
		case "degraded", "connecting":
			check.Status = StatusDegraded
			check.Message = "serving via polling: " + current
		case "closed":
			check.Status = StatusUnhealthy
			check.Message = "change notifier stopped"
		}
		return check
	})
}
