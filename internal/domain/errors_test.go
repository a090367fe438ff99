package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/kimcharlie25/K-inasal/internal/domain"
)

func TestIsInsufficientStock(t *testing.T) {
	err := fmt.Errorf("reserve: %w", &domain.InsufficientStockError{Item: "Chicken Inasal"})

	item, ok := domain.IsInsufficientStock(err)
	if !ok {
		t.Fatal("expected insufficient stock error to be recognized through wrapping")
	}
	if item != "Chicken Inasal" {
		t.Errorf("expected offending item name, got %q", item)
	}

	if _, ok := domain.IsInsufficientStock(errors.New("boom")); ok {
		t.Error("unrelated error should not be classified as stock error")
	}
}

func TestPersistenceError_Retryable(t *testing.T) {
	transient := domain.NewPersistenceError(errors.New("connection reset"), true)
	terminal := domain.NewPersistenceError(errors.New("constraint violated"), false)

	if !domain.IsRetryable(transient) {
		t.Error("transient persistence error must be retryable")
	}
	if domain.IsRetryable(terminal) {
		t.Error("terminal persistence error must not be retryable")
	}
	if domain.IsRetryable(errors.New("plain")) {
		t.Error("plain error must not be retryable")
	}

	wrapped := fmt.Errorf("submit: %w", transient)
	if !domain.IsRetryable(wrapped) {
		t.Error("retryable flag must survive wrapping")
	}
}

func TestPersistenceError_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := domain.NewPersistenceError(cause, false)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to see the cause")
	}
}

func TestIsRateLimited(t *testing.T) {
	err := fmt.Errorf("insert order: %w", domain.ErrRateLimited)
	if !domain.IsRateLimited(err) {
		t.Error("expected wrapped rate limit error to be classified")
	}
	if domain.IsRateLimited(errors.New("other")) {
		t.Error("unrelated error classified as rate limit")
	}
}

func TestNewPersistenceError_Nil(t *testing.T) {
	if err := domain.NewPersistenceError(nil, true); err != nil {
		t.Fatalf("expected nil for nil cause, got %v", err)
	}
}
