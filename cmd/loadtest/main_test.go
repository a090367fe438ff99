package main

import (
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestPercentile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	cases := []struct {
		p    float64
		want float64
	}{
		{50, 5.5},
		{95, 9.55},
		{99, 9.91},
		{100, 10},
	}
	for _, tc := range cases {
		got := percentile(sorted, tc.p)
		if math.Abs(got-tc.want) > 0.0001 {
			t.Errorf("percentile(%v) = %v, want %v", tc.p, got, tc.want)
		}
	}
}

func TestPercentileSingleValue(t *testing.T) {
	if got := percentile([]float64{42}, 95); got != 42 {
		t.Errorf("percentile single = %v, want 42", got)
	}
	if got := percentile(nil, 95); got != 0 {
		t.Errorf("percentile empty = %v, want 0", got)
	}
}

func TestBuildLatencySummary(t *testing.T) {
	summary := buildLatencySummary([]float64{5, 1, 3})

	if summary.Min != 1 || summary.Max != 5 {
		t.Errorf("min/max = %v/%v, want 1/5", summary.Min, summary.Max)
	}
	if math.Abs(summary.Avg-3) > 0.0001 {
		t.Errorf("avg = %v, want 3", summary.Avg)
	}
	if summary.P50 != 3 {
		t.Errorf("p50 = %v, want 3", summary.P50)
	}
}

func TestDispatchJobsCountMode(t *testing.T) {
	jobs := make(chan int, 16)
	dispatchJobs(jobs, config{total: 5})

	var got []int
	for id := range jobs {
		got = append(got, id)
	}
	if len(got) != 5 {
		t.Fatalf("dispatched %d jobs, want 5", len(got))
	}
}

func TestDispatchJobsDurationWithCap(t *testing.T) {
	jobs := make(chan int, 16)
	dispatchJobs(jobs, config{duration: time.Minute, total: 3, totalSet: true})

	count := 0
	for range jobs {
		count++
	}
	if count != 3 {
		t.Fatalf("dispatched %d jobs, want 3 (explicit cap)", count)
	}
}

func TestBuildReportOversellVerdict(t *testing.T) {
	cfg := config{qty: 2, initialStock: 10}
	col := newCollector()
	for i := 0; i < 6; i++ {
		col.record(time.Millisecond, http.StatusCreated, nil)
	}

	result := col.buildReport(cfg, time.Now(), time.Second, 6, 0, 0, 0)

	if result.UnitsSold != 12 {
		t.Errorf("units sold = %d, want 12", result.UnitsSold)
	}
	if !result.Oversold {
		t.Error("12 units sold from stock 10 must report oversold")
	}
}

func TestBuildReportWithinStock(t *testing.T) {
	cfg := config{qty: 1, initialStock: 10}
	col := newCollector()
	col.record(time.Millisecond, http.StatusCreated, nil)
	col.record(time.Millisecond, http.StatusConflict, nil)

	result := col.buildReport(cfg, time.Now(), time.Second, 1, 1, 0, 0)

	if result.Oversold {
		t.Error("1 unit sold from stock 10 must not report oversold")
	}
	if result.SoldOut != 1 {
		t.Errorf("sold out = %d, want 1", result.SoldOut)
	}
	if result.Total != 2 {
		t.Errorf("total = %d, want 2", result.Total)
	}
}

func TestSendCheckoutRecordsStatus(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/orders" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		hits.Add(1)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	cfg := config{
		baseURL:    server.URL,
		menuItemID: "chicken-inasal",
		itemName:   "Chicken Inasal",
		qty:        1,
		priceMinor: 9500,
	}
	col := newCollector()

	status, err := sendCheckout(server.Client(), cfg, "run", 1, col)
	if err != nil {
		t.Fatalf("sendCheckout: %v", err)
	}
	if status != http.StatusCreated {
		t.Fatalf("status = %d, want 201", status)
	}
	if hits.Load() != 1 {
		t.Fatalf("server hits = %d, want 1", hits.Load())
	}
	if col.statuses["201"] != 1 {
		t.Fatalf("collector statuses = %v, want one 201", col.statuses)
	}
}

func TestWriteJSONReportRejectsEscapingPath(t *testing.T) {
	if err := writeJSONReport("../outside.json", report{}); err == nil {
		t.Fatal("expected error for path outside current directory")
	}
}
