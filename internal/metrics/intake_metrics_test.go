package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewIntakeMetrics_Isolated(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newIntakeMetricsWithRegisterer(reg)

	if m.submitted == nil || m.accepted == nil || m.rejected == nil {
		t.Fatal("expected all counters to be initialized")
	}
	if m.submitDuration == nil || m.commitFailures == nil {
		t.Fatal("expected histogram and commit failure counter to be initialized")
	}
	if m.pendingReservations == nil || m.oldestPendingAge == nil {
		t.Fatal("expected backlog gauges to be initialized")
	}
}

func TestIntakeMetrics_DoubleRegistrationReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()

	first := newIntakeMetricsWithRegisterer(reg)
	second := newIntakeMetricsWithRegisterer(reg)

	first.RecordSubmitted()
	second.RecordSubmitted()

	metric := &dto.Metric{}
	if err := first.submitted.Write(metric); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if metric.Counter.GetValue() != 2.0 {
		t.Errorf("expected shared counter value 2.0, got %f", metric.Counter.GetValue())
	}
}

func TestIntakeMetrics_RecordRejected(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newIntakeMetricsWithRegisterer(reg)

	m.RecordRejected(RejectReasonStock)
	m.RecordRejected(RejectReasonStock)
	m.RecordRejected(RejectReasonRateLimit)

	metric := &dto.Metric{}
	if err := m.rejected.WithLabelValues(RejectReasonStock).Write(metric); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if metric.Counter.GetValue() != 2.0 {
		t.Errorf("expected 2 stock rejections, got %f", metric.Counter.GetValue())
	}
}

func TestIntakeMetrics_PendingGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newIntakeMetricsWithRegisterer(reg)

	m.SetPendingReservations(3, 90*time.Second)

	gauge := &dto.Metric{}
	if err := m.pendingReservations.Write(gauge); err != nil {
		t.Fatalf("write gauge: %v", err)
	}
	if gauge.Gauge.GetValue() != 3.0 {
		t.Errorf("expected pending 3, got %f", gauge.Gauge.GetValue())
	}

	age := &dto.Metric{}
	if err := m.oldestPendingAge.Write(age); err != nil {
		t.Fatalf("write gauge: %v", err)
	}
	if age.Gauge.GetValue() != 90.0 {
		t.Errorf("expected age 90s, got %f", age.Gauge.GetValue())
	}

	// Отрицательный возраст нормализуется в ноль.
	m.SetPendingReservations(0, -time.Second)
	age = &dto.Metric{}
	if err := m.oldestPendingAge.Write(age); err != nil {
		t.Fatalf("write gauge: %v", err)
	}
	if age.Gauge.GetValue() != 0.0 {
		t.Errorf("expected age clamped to 0, got %f", age.Gauge.GetValue())
	}
}

func TestNotifierMetrics_StateAndCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newNotifierMetricsWithRegisterer(reg)

	m.SetState(2)
	m.RecordDegraded()
	m.RecordEvent("insert")
	m.RecordReconcile(ReconcileTriggerEvent)
	m.RecordReconcile(ReconcileTriggerBackup)

	gauge := &dto.Metric{}
	if err := m.state.Write(gauge); err != nil {
		t.Fatalf("write gauge: %v", err)
	}
	if gauge.Gauge.GetValue() != 2.0 {
		t.Errorf("expected state 2, got %f", gauge.Gauge.GetValue())
	}

	metric := &dto.Metric{}
	if err := m.reconcileRuns.WithLabelValues(ReconcileTriggerEvent).Write(metric); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if metric.Counter.GetValue() != 1.0 {
		t.Errorf("expected 1 event reconcile, got %f", metric.Counter.GetValue())
	}
}
