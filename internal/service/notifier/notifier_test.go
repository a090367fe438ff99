package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/kimcharlie25/K-inasal/internal/domain"
	"github.com/kimcharlie25/K-inasal/internal/messaging/inproc"
	"github.com/kimcharlie25/K-inasal/internal/storage/memory"
)

func testLogger() *log.Entry {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return log.NewEntry(logger)
}

type fakeTicker struct {
	interval time.Duration
	ch       chan time.Time

	mu      sync.Mutex
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *fakeTicker) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *fakeTicker) Tick() {
	t.ch <- time.Now()
}

// fakeTickers фиксирует все созданные тикеры, чтобы тесты могли щёлкать ими
// вручную и проверять отсутствие утечек.
type fakeTickers struct {
	mu      sync.Mutex
	created []*fakeTicker
}

func (f *fakeTickers) factory(interval time.Duration) Ticker {
	ticker := &fakeTicker{interval: interval, ch: make(chan time.Time)}
	f.mu.Lock()
	f.created = append(f.created, ticker)
	f.mu.Unlock()
	return ticker
}

func (f *fakeTickers) byInterval(interval time.Duration) []*fakeTicker {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*fakeTicker
	for _, ticker := range f.created {
		if ticker.interval == interval {
			out = append(out, ticker)
		}
	}
	return out
}

func (f *fakeTickers) all() []*fakeTicker {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeTicker(nil), f.created...)
}

type harness struct {
	notifier  *ChangeNotifier
	channel   *inproc.PushChannel
	orders    domain.OrderRepository
	tickers   *fakeTickers
	snapshots atomic.Int64
	newOrders atomic.Int64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		channel: inproc.NewPushChannel(),
		tickers: &fakeTickers{},
	}
	h.orders = memory.NewOrderRepository(memory.WithChangePublisher(h.channel))
	h.notifier = NewChangeNotifier(h.channel, h.orders, nil, testLogger(),
		WithTickerFactory(h.tickers.factory),
		WithOnOrders(func([]domain.Order) { h.snapshots.Add(1) }),
		WithOnNewOrder(func(domain.ChangeEvent) { h.newOrders.Add(1) }),
	)
	t.Cleanup(h.notifier.Close)
	return h
}

func waitState(t *testing.T, n *ChangeNotifier, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return n.State() == want },
		2*time.Second, time.Millisecond, "state %s not reached", want)
}

func waitCount(t *testing.T, counter *atomic.Int64, atLeast int64) {
	t.Helper()
	require.Eventually(t, func() bool { return counter.Load() >= atLeast },
		2*time.Second, time.Millisecond)
}

func publish(t *testing.T, h *harness, kind domain.ChangeKind, table string) {
	t.Helper()
	err := h.channel.Publish(context.Background(), domain.ChangeEvent{
		Kind:   kind,
		Table:  table,
		NewRow: json.RawMessage(`{"id":"o-1"}`),
		At:     time.Now(),
	})
	require.NoError(t, err)
}

func TestPushEventTriggersRefetchAndNewOrderAlert(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.notifier.Start(context.Background()))
	waitState(t, h.notifier, StateSubscribed)
	waitCount(t, &h.snapshots, 1) // initial reconcile

	publish(t, h, domain.ChangeKindInsert, domain.ChangeTableOrders)
	waitCount(t, &h.snapshots, 2)
	waitCount(t, &h.newOrders, 1)

	// Updates refetch the list but do not alert about a new order.
	publish(t, h, domain.ChangeKindUpdate, domain.ChangeTableOrders)
	waitCount(t, &h.snapshots, 3)
	require.Equal(t, int64(1), h.newOrders.Load())

	// Line-level changes also converge through a full refetch.
	publish(t, h, domain.ChangeKindInsert, domain.ChangeTableOrderLines)
	waitCount(t, &h.snapshots, 4)
	require.Equal(t, int64(1), h.newOrders.Load())
}

func TestDuplicateEventsConverge(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.notifier.Start(context.Background()))
	waitState(t, h.notifier, StateSubscribed)
	waitCount(t, &h.snapshots, 1)

	for i := 0; i < 3; i++ {
		publish(t, h, domain.ChangeKindUpdate, domain.ChangeTableOrders)
	}
	waitCount(t, &h.snapshots, 4)
	require.Equal(t, int64(0), h.newOrders.Load())
}

func TestChannelFailureDegradesToPolling(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.notifier.Start(context.Background()))
	waitState(t, h.notifier, StateSubscribed)
	waitCount(t, &h.snapshots, 1)

	h.channel.Fail(errors.New("broker gone"))
	waitState(t, h.notifier, StateDegraded)

	fallbacks := h.tickers.byInterval(defaultFallbackInterval)
	require.Len(t, fallbacks, 1, "degradation must start exactly one fallback ticker")

	// Each fallback tick refetches even though no push events arrive.
	before := h.snapshots.Load()
	fallbacks[0].Tick()
	waitCount(t, &h.snapshots, before+1)
	require.Equal(t, StateDegraded, h.notifier.State())
}

func TestRecoveryStopsFallbackPollOnly(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.notifier.Start(context.Background()))
	waitState(t, h.notifier, StateSubscribed)

	h.channel.Fail(errors.New("broker gone"))
	waitState(t, h.notifier, StateDegraded)

	h.channel.Restore()
	fallback := h.tickers.byInterval(defaultFallbackInterval)[0]
	fallback.Tick()
	waitState(t, h.notifier, StateSubscribed)

	require.Eventually(t, fallback.Stopped, 2*time.Second, time.Millisecond,
		"fallback ticker must stop after recovery")

	// The backup ticker keeps polling in the subscribed state.
	backup := h.tickers.byInterval(defaultBackupInterval)[0]
	require.False(t, backup.Stopped())
	before := h.snapshots.Load()
	backup.Tick()
	waitCount(t, &h.snapshots, before+1)

	// Push is live again after recovery.
	beforePush := h.snapshots.Load()
	publish(t, h, domain.ChangeKindInsert, domain.ChangeTableOrders)
	waitCount(t, &h.snapshots, beforePush+1)
	waitCount(t, &h.newOrders, 1)
}

func TestRepeatedCyclesDoNotLeakTickers(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.notifier.Start(context.Background()))
	waitState(t, h.notifier, StateSubscribed)

	for i := 0; i < 3; i++ {
		h.channel.Fail(errors.New("flap"))
		waitState(t, h.notifier, StateDegraded)

		h.channel.Restore()
		fallbacks := h.tickers.byInterval(defaultFallbackInterval)
		fallbacks[len(fallbacks)-1].Tick()
		waitState(t, h.notifier, StateSubscribed)
	}

	h.notifier.Close()

	for _, ticker := range h.tickers.all() {
		require.True(t, ticker.Stopped(), "ticker %v must be stopped after close", ticker.interval)
	}
	require.Equal(t, 0, h.channel.ActiveSubscriptions())
}

func TestCloseSilencesCallbacks(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.notifier.Start(context.Background()))
	waitState(t, h.notifier, StateSubscribed)
	waitCount(t, &h.snapshots, 1)

	h.notifier.Close()
	require.Equal(t, StateClosed, h.notifier.State())
	require.Equal(t, 0, h.channel.ActiveSubscriptions())

	after := h.snapshots.Load()
	publish(t, h, domain.ChangeKindInsert, domain.ChangeTableOrders)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, after, h.snapshots.Load(), "no refetch may fire after close")
	require.Equal(t, int64(0), h.newOrders.Load())

	require.ErrorIs(t, h.notifier.Start(context.Background()), domain.ErrNotifierClosed)
}

func TestRepositoryWritesFlowToSubscriber(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.notifier.Start(context.Background()))
	waitState(t, h.notifier, StateSubscribed)
	waitCount(t, &h.snapshots, 1)

	order := domain.Order{
		ID:            "order-1",
		CustomerName:  "Ana Cruz",
		ContactNumber: "09170001122",
		ServiceType:   domain.ServiceTypeDineIn,
		PaymentMethod: "cash",
		Status:        domain.OrderStatusPending,
		Lines: []domain.OrderLine{
			{ID: "line-1", MenuItemID: "inasal", Name: "Chicken Inasal", Qty: 1, UnitPriceMinor: 14900, SubtotalMinor: 14900},
		},
		TotalMinor: 14900,
	}
	require.NoError(t, h.orders.Create(context.Background(), order))

	waitCount(t, &h.newOrders, 1)
	waitCount(t, &h.snapshots, 2)
}
