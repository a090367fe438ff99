package notifier

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/kimcharlie25/K-inasal/internal/domain"
	"github.com/kimcharlie25/K-inasal/internal/metrics"
)

// State — состояние подписки нотификатора.
type State int32

const (
	// StateConnecting — подписка ещё не установлена.
	StateConnecting State = iota
	// StateSubscribed — push-канал активен, fallback-опрос остановлен.
	StateSubscribed
	// StateDegraded — push-канал умер, обновления едут через fallback-опрос.
	StateDegraded
	// StateClosed — нотификатор остановлен, колбэки больше не вызываются.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateDegraded:
		return "degraded"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	defaultFallbackInterval = 5 * time.Second
	defaultBackupInterval   = 10 * time.Second
	defaultListLimit        = 100
)

// Ticker абстрагирует time.Ticker для подмены в тестах.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory создаёт тикеры нотификатора.
type TickerFactory func(interval time.Duration) Ticker

type realTicker struct {
	ticker *time.Ticker
}

func (t *realTicker) C() <-chan time.Time { return t.ticker.C }
func (t *realTicker) Stop()               { t.ticker.Stop() }

func newRealTicker(interval time.Duration) Ticker {
	return &realTicker{ticker: time.NewTicker(interval)}
}

// ChangeNotifier держит актуальный список заказов у подписчика: слушает
// push-канал изменений, а при его сбое деградирует в опрос хранилища, не
// останавливая обновления. Любое событие означает полную перечитку списка;
// инкрементальные патчи не применяются, поэтому дубликаты и перестановки
// событий сходятся к одному и тому же состоянию.
type ChangeNotifier struct {
	push    domain.PushChannel
	orders  domain.OrderRepository
	metrics *metrics.NotifierMetrics
	logger  *log.Entry

	fallbackInterval time.Duration
	backupInterval   time.Duration
	listLimit        int
	newTicker        TickerFactory

	onOrders   func([]domain.Order)
	onNewOrder func(domain.ChangeEvent)

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
	events chan domain.ChangeEvent
}

// Option настраивает ChangeNotifier.
type Option func(*ChangeNotifier)

// WithFallbackInterval задаёт период fallback-опроса в деградации.
func WithFallbackInterval(interval time.Duration) Option {
	return func(n *ChangeNotifier) {
		n.fallbackInterval = interval
	}
}

// WithBackupInterval задаёт период страховочного опроса.
func WithBackupInterval(interval time.Duration) Option {
	return func(n *ChangeNotifier) {
		n.backupInterval = interval
	}
}

// WithTickerFactory подменяет источник тикеров (для тестов).
func WithTickerFactory(factory TickerFactory) Option {
	return func(n *ChangeNotifier) {
		n.newTicker = factory
	}
}

// WithListLimit ограничивает размер перечитываемого списка заказов.
func WithListLimit(limit int) Option {
	return func(n *ChangeNotifier) {
		n.listLimit = limit
	}
}

// WithOnOrders задаёт колбэк свежего снапшота списка заказов.
func WithOnOrders(fn func([]domain.Order)) Option {
	return func(n *ChangeNotifier) {
		n.onOrders = fn
	}
}

// WithOnNewOrder задаёт колбэк о вставке нового заказа (алертинг персонала).
func WithOnNewOrder(fn func(domain.ChangeEvent)) Option {
	return func(n *ChangeNotifier) {
		n.onNewOrder = fn
	}
}

// NewChangeNotifier создаёт нотификатор. Работа начинается после Start.
func NewChangeNotifier(push domain.PushChannel, orders domain.OrderRepository, notifierMetrics *metrics.NotifierMetrics, logger *log.Entry, options ...Option) *ChangeNotifier {
	if logger == nil {
		logger = log.WithField("component", "change-notifier")
	}
	if notifierMetrics == nil {
		notifierMetrics = metrics.NewNotifierMetrics()
	}

	n := &ChangeNotifier{
		push:             push,
		orders:           orders,
		metrics:          notifierMetrics,
		logger:           logger,
		fallbackInterval: defaultFallbackInterval,
		backupInterval:   defaultBackupInterval,
		listLimit:        defaultListLimit,
		newTicker:        newRealTicker,
		state:            StateConnecting,
		events:           make(chan domain.ChangeEvent, 16),
	}
	for _, option := range options {
		option(n)
	}
	return n
}

// Start запускает цикл подписки и опросов. Повторный Start после Close
// возвращает ErrNotifierClosed.
func (n *ChangeNotifier) Start(ctx context.Context) error {
	n.mu.Lock()
	if n.state == StateClosed {
		n.mu.Unlock()
		return domain.ErrNotifierClosed
	}
	if n.done != nil {
		n.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	n.done = make(chan struct{})
	done := n.done
	n.mu.Unlock()

	go n.run(runCtx, done)
	return nil
}

// Close останавливает нотификатор: снимает подписку, гасит оба тикера и ждёт
// выхода рабочей горутины. После возврата колбэки гарантированно не вызываются.
// Идемпотентен.
func (n *ChangeNotifier) Close() {
	n.mu.Lock()
	if n.state == StateClosed {
		n.mu.Unlock()
		return
	}
	n.state = StateClosed
	cancel := n.cancel
	done := n.done
	n.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	n.metrics.SetState(float64(StateClosed))
}

// State возвращает текущее состояние подписки.
func (n *ChangeNotifier) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

func (n *ChangeNotifier) setState(state State) {
	n.mu.Lock()
	if n.state != StateClosed {
		n.state = state
	}
	n.mu.Unlock()
	n.metrics.SetState(float64(state))
}

func (n *ChangeNotifier) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	backup := n.newTicker(n.backupInterval)
	defer backup.Stop()

	var fallback Ticker
	defer func() {
		if fallback != nil {
			fallback.Stop()
		}
	}()

	n.reconcile(ctx, metrics.ReconcileTriggerInitial)

	sub := n.trySubscribe(ctx)
	if sub == nil {
		fallback = n.degrade(fallback)
	}

	for {
		var fallbackC <-chan time.Time
		if fallback != nil {
			fallbackC = fallback.C()
		}
		var subDone <-chan struct{}
		if sub != nil {
			subDone = sub.Done()
		}

		select {
		case <-ctx.Done():
			if sub != nil {
				sub.Unsubscribe()
			}
			return

		case event := <-n.events:
			n.handleEvent(ctx, event)

		case <-subDone:
			n.logger.WithError(sub.Err()).Warn("Push subscription lost, degrading to polling")
			sub.Unsubscribe()
			sub = nil
			fallback = n.degrade(fallback)

		case <-fallbackC:
			n.reconcile(ctx, metrics.ReconcileTriggerFallback)
			if sub = n.trySubscribe(ctx); sub != nil {
				fallback.Stop()
				fallback = nil
			}

		case <-backup.C():
			n.reconcile(ctx, metrics.ReconcileTriggerBackup)
		}
	}
}

// degrade переводит нотификатор в polling-режим. Fallback-тикер создаётся
// один раз на эпизод деградации.
func (n *ChangeNotifier) degrade(fallback Ticker) Ticker {
	n.setState(StateDegraded)
	n.metrics.RecordDegraded()
	if fallback == nil {
		fallback = n.newTicker(n.fallbackInterval)
	}
	return fallback
}

func (n *ChangeNotifier) trySubscribe(ctx context.Context) domain.Subscription {
	tables := []string{domain.ChangeTableOrders, domain.ChangeTableOrderLines}
	sub, err := n.push.Subscribe(ctx, tables, n.enqueue)
	if err != nil {
		n.logger.WithError(err).Warn("Push subscribe failed")
		return nil
	}
	n.setState(StateSubscribed)
	n.logger.Info("Push subscription established")
	return sub
}

// enqueue вызывается из горутины push-канала. Переполнение буфера не блокирует
// канал: потерянное событие компенсируется ближайшим опросом.
func (n *ChangeNotifier) enqueue(event domain.ChangeEvent) {
	select {
	case n.events <- event:
	default:
		n.logger.Debug("Change event buffer full, dropping event")
	}
}

func (n *ChangeNotifier) handleEvent(ctx context.Context, event domain.ChangeEvent) {
	n.metrics.RecordEvent(string(event.Kind))
	n.reconcile(ctx, metrics.ReconcileTriggerEvent)

	if event.Kind == domain.ChangeKindInsert && event.Table == domain.ChangeTableOrders && n.onNewOrder != nil {
		n.onNewOrder(event)
	}
}

// reconcile перечитывает список заказов целиком и отдаёт снапшот подписчику.
// Ошибка чтения не фатальна: следующий тик или событие повторят попытку.
func (n *ChangeNotifier) reconcile(ctx context.Context, trigger string) {
	n.metrics.RecordReconcile(trigger)

	orders, err := n.orders.List(ctx, n.listLimit)
	if err != nil {
		n.logger.WithError(err).WithField("trigger", trigger).Warn("Order list refetch failed")
		return
	}
	if n.onOrders != nil {
		n.onOrders(orders)
	}
}
