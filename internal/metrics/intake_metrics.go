package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// IntakeMetrics содержит метрики приёма заказов.
type IntakeMetrics struct {
	// Счётчики исходов checkout по причинам.
	submitted prometheus.Counter
	accepted  prometheus.Counter
	rejected  *prometheus.CounterVec

	// Гистограмма времени обработки checkout.
	submitDuration prometheus.Histogram

	// Сбои финализации резерва: заказ сохранён, сток требует выверки.
	commitFailures prometheus.Counter

	// Backlog незафиксированных резервов (обновляется выверкой).
	pendingReservations prometheus.Gauge
	oldestPendingAge    prometheus.Gauge
}

// NewIntakeMetrics создаёт метрики приёма заказов в default registry.
func NewIntakeMetrics() *IntakeMetrics {
	return newIntakeMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newIntakeMetricsWithRegisterer(registerer prometheus.Registerer) *IntakeMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &IntakeMetrics{
		submitted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "kinasal_orders_submitted_total",
			Help: "Total number of checkout submissions received",
		}),
		accepted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "kinasal_orders_accepted_total",
			Help: "Total number of orders persisted successfully",
		}),
		rejected: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "kinasal_orders_rejected_total",
			Help: "Total number of rejected checkout submissions grouped by reason",
		}, []string{"reason"}),
		submitDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "kinasal_order_submit_duration_seconds",
			Help:    "Duration of checkout processing in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		commitFailures: registerCounter(registerer, prometheus.CounterOpts{
			Name: "kinasal_stock_commit_failures_total",
			Help: "Total number of swallowed stock commit failures",
		}),
		pendingReservations: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "kinasal_stock_pending_reservations",
			Help: "Current number of uncommitted stock reservations",
		}),
		oldestPendingAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "kinasal_stock_oldest_pending_age_seconds",
			Help: "Age in seconds of the oldest uncommitted stock reservation",
		}),
	}
}

// Причины отказа для лейбла reason.
const (
	RejectReasonValidation  = "validation"
	RejectReasonStock       = "stock"
	RejectReasonRateLimit   = "rate_limit"
	RejectReasonPersistence = "persistence"
)

// RecordSubmitted увеличивает счётчик полученных checkout-ов.
func (m *IntakeMetrics) RecordSubmitted() {
	m.submitted.Inc()
}

// RecordAccepted увеличивает счётчик сохранённых заказов.
func (m *IntakeMetrics) RecordAccepted() {
	m.accepted.Inc()
}

// RecordRejected увеличивает счётчик отказов по причине.
func (m *IntakeMetrics) RecordRejected(reason string) {
	m.rejected.WithLabelValues(reason).Inc()
}

// RecordSubmitDuration записывает время обработки checkout.
func (m *IntakeMetrics) RecordSubmitDuration(duration time.Duration) {
	m.submitDuration.Observe(duration.Seconds())
}

// RecordCommitFailure увеличивает счётчик проглоченных сбоев фиксации резерва.
func (m *IntakeMetrics) RecordCommitFailure() {
	m.commitFailures.Inc()
}

// SetPendingReservations обновляет gauge backlog-а резервов.
func (m *IntakeMetrics) SetPendingReservations(count int, oldestAge time.Duration) {
	m.pendingReservations.Set(float64(count))
	if oldestAge < 0 {
		oldestAge = 0
	}
	m.oldestPendingAge.Set(oldestAge.Seconds())
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}
