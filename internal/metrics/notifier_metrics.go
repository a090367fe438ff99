package metrics

import "github.com/prometheus/client_golang/prometheus"

// NotifierMetrics содержит метрики синхронизации витрины заказов.
type NotifierMetrics struct {
	// Текущее состояние нотификатора: 0 connecting, 1 subscribed, 2 degraded, 3 closed.
	state prometheus.Gauge

	// Счётчики событий и полных перечитываний.
	eventsReceived  *prometheus.CounterVec
	reconcileRuns   *prometheus.CounterVec
	degradedEntries prometheus.Counter
}

// NewNotifierMetrics создаёт метрики нотификатора в default registry.
func NewNotifierMetrics() *NotifierMetrics {
	return newNotifierMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newNotifierMetricsWithRegisterer(registerer prometheus.Registerer) *NotifierMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &NotifierMetrics{
		state: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "kinasal_notifier_state",
			Help: "Current change notifier state (0 connecting, 1 subscribed, 2 degraded, 3 closed)",
		}),
		eventsReceived: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "kinasal_notifier_events_total",
			Help: "Total number of received change events grouped by kind",
		}, []string{"kind"}),
		reconcileRuns: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "kinasal_notifier_reconcile_total",
			Help: "Total number of full reconciliation fetches grouped by trigger",
		}, []string{"trigger"}),
		degradedEntries: registerCounter(registerer, prometheus.CounterOpts{
			Name: "kinasal_notifier_degraded_total",
			Help: "Total number of transitions into the degraded polling state",
		}),
	}
}

// Триггеры перечитывания для лейбла trigger.
const (
	ReconcileTriggerEvent    = "event"
	ReconcileTriggerFallback = "fallback_poll"
	ReconcileTriggerBackup   = "backup_poll"
	ReconcileTriggerInitial  = "initial"
)

// SetState обновляет gauge состояния.
func (m *NotifierMetrics) SetState(state float64) {
	m.state.Set(state)
}

// RecordEvent увеличивает счётчик полученных событий.
func (m *NotifierMetrics) RecordEvent(kind string) {
	m.eventsReceived.WithLabelValues(kind).Inc()
}

// RecordReconcile увеличивает счётчик полных перечитываний.
func (m *NotifierMetrics) RecordReconcile(trigger string) {
	m.reconcileRuns.WithLabelValues(trigger).Inc()
}

// RecordDegraded увеличивает счётчик переходов в деградацию.
func (m *NotifierMetrics) RecordDegraded() {
	m.degradedEntries.Inc()
}
