package intake

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/kimcharlie25/K-inasal/internal/domain"
)

// RetryConfig конфигурация повторов записи заказа.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 2.0,
	}
}

// executeWithRetry выполняет операцию хранилища с экспоненциальной задержкой.
// Повторяются только транзиентные сбои (domain.IsRetryable); бизнес-отказы
// (нехватка стока, rate limit, невалидные данные) возвращаются сразу.
func executeWithRetry(ctx context.Context, config RetryConfig, logger *log.Entry, operation string, fn func() error) error {
	var lastErr error
	delay := config.InitialDelay

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				logger.WithFields(log.Fields{
					"operation": operation,
					"attempt":   attempt,
				}).Info("Operation succeeded after retry")
			}
			return nil
		}

		lastErr = err

		if !domain.IsRetryable(err) {
			return err
		}

		if attempt < config.MaxAttempts {
			logger.WithFields(log.Fields{
				"operation": operation,
				"attempt":   attempt,
				"delay":     delay,
				"error":     err,
			}).Warn("Operation failed, retrying")

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}

			delay = time.Duration(float64(delay) * config.BackoffFactor)
			if delay > config.MaxDelay {
				delay = config.MaxDelay
			}
		}
	}

	logger.WithFields(log.Fields{
		"operation":    operation,
		"max_attempts": config.MaxAttempts,
		"error":        lastErr,
	}).Error("Operation failed after all retry attempts")

	return lastErr
}
