package intake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/kimcharlie25/K-inasal/internal/domain"
	"github.com/kimcharlie25/K-inasal/internal/metrics"
	"github.com/kimcharlie25/K-inasal/internal/service/ledger"
)

// identityResolver даёт best-effort идентификатор клиента для шапки заказа.
type identityResolver interface {
	ClientIP(ctx context.Context) string
}

// OrderIntake оформляет заказы гостей: валидация, резервирование стока,
// атомарная запись заказа и компенсация резерва при сбое записи.
type OrderIntake struct {
	orders   domain.OrderRepository
	ledger   *ledger.Ledger
	identity identityResolver
	metrics  *metrics.IntakeMetrics
	retry    RetryConfig
	logger   *log.Entry
	now      func() time.Time
}

// Option настраивает OrderIntake.
type Option func(*OrderIntake)

// WithRetryConfig задаёт параметры повторов записи заказа.
func WithRetryConfig(config RetryConfig) Option {
	return func(s *OrderIntake) {
		s.retry = config
	}
}

// WithIdentityResolver подключает определение IP клиента.
func WithIdentityResolver(resolver identityResolver) Option {
	return func(s *OrderIntake) {
		s.identity = resolver
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *OrderIntake) {
		s.now = now
	}
}

// NewOrderIntake создаёт сервис оформления заказов.
func NewOrderIntake(orders domain.OrderRepository, led *ledger.Ledger, intakeMetrics *metrics.IntakeMetrics, logger *log.Entry, options ...Option) *OrderIntake {
	if logger == nil {
		logger = log.WithField("component", "order-intake")
	}
	if intakeMetrics == nil {
		intakeMetrics = metrics.NewIntakeMetrics()
	}

	s := &OrderIntake{
		orders:  orders,
		ledger:  led,
		metrics: intakeMetrics,
		retry:   DefaultRetryConfig(),
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Submit оформляет заказ гостя. Порядок строгий: сначала резервируется сток,
// затем атомарно пишется заказ; при сбое записи резерв компенсируется, так что
// частично оформленных заказов не бывает. Сбой финализации резерва после
// успешной записи заказ не отменяет.
func (s *OrderIntake) Submit(ctx context.Context, request domain.CheckoutRequest) (domain.Order, error) {
	s.metrics.RecordSubmitted()
	started := time.Now()
	defer func() {
		s.metrics.RecordSubmitDuration(time.Since(started))
	}()

	if errs := request.Validate(); len(errs) > 0 {
		s.metrics.RecordRejected(metrics.RejectReasonValidation)
		return domain.Order{}, errors.Join(errs...)
	}

	order := s.buildOrder(ctx, request)
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		s.metrics.RecordRejected(metrics.RejectReasonValidation)
		return domain.Order{}, errors.Join(errs...)
	}

	reservation, err := s.ledger.Reserve(ctx, request.AggregateDemands())
	if err != nil {
		if item, ok := domain.IsInsufficientStock(err); ok {
			s.metrics.RecordRejected(metrics.RejectReasonStock)
			s.logger.WithField("item", item).Info("checkout rejected: insufficient stock")
			return domain.Order{}, err
		}
		s.metrics.RecordRejected(metrics.RejectReasonPersistence)
		return domain.Order{}, err
	}

	createErr := executeWithRetry(ctx, s.retry, s.logger, "CreateOrder", func() error {
		return s.orders.Create(ctx, order)
	})
	if createErr != nil {
		s.compensate(ctx, reservation, order.ID)
		switch {
		case domain.IsRateLimited(createErr):
			s.metrics.RecordRejected(metrics.RejectReasonRateLimit)
			return domain.Order{}, createErr
		default:
			s.metrics.RecordRejected(metrics.RejectReasonPersistence)
			return domain.Order{}, fmt.Errorf("create order: %w", createErr)
		}
	}

	if !s.ledger.Commit(ctx, reservation) {
		s.metrics.RecordCommitFailure()
	}

	s.metrics.RecordAccepted()
	s.logger.WithFields(log.Fields{
		"order_id":    order.ID,
		"total_minor": order.TotalMinor,
		"lines":       len(order.Lines),
	}).Info("Order accepted")

	return order, nil
}

// compensate возвращает зарезервированный сток после неудачной записи заказа.
// Сбой компенсации не скрывается от оператора: зависший резерв остаётся в
// pending и снимается фоновой выверкой.
func (s *OrderIntake) compensate(ctx context.Context, reservation domain.Reservation, orderID string) {
	if err := s.ledger.Release(ctx, reservation); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id":       orderID,
			"reservation_id": reservation.ID,
		}).Error("Failed to release stock reservation after create failure")
	}
}

func (s *OrderIntake) buildOrder(ctx context.Context, request domain.CheckoutRequest) domain.Order {
	now := s.now()

	clientIP := ""
	if s.identity != nil {
		clientIP = s.identity.ClientIP(ctx)
	}

	lines := make([]domain.OrderLine, 0, len(request.Lines))
	for _, line := range request.Lines {
		lines = append(lines, domain.OrderLine{
			ID:             uuid.NewString(),
			MenuItemID:     line.MenuItemID,
			Name:           line.Name,
			Variation:      line.Variation,
			AddOns:         line.AddOns,
			UnitPriceMinor: line.UnitPriceMinor,
			Qty:            line.Qty,
			SubtotalMinor:  line.UnitPriceMinor * int64(line.Qty),
			CreatedAt:      now,
		})
	}

	return domain.Order{
		ID:            uuid.NewString(),
		CustomerName:  request.CustomerName,
		ContactNumber: request.ContactNumber,
		ServiceType:   request.ServiceType,
		PaymentMethod: request.PaymentMethod,
		Notes:         request.Notes,
		TotalMinor:    request.TotalMinor,
		Status:        domain.OrderStatusPending,
		ReceiptURL:    request.ReceiptURL,
		TableRef:      request.TableRef,
		ClientIP:      clientIP,
		Lines:         lines,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
