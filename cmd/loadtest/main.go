// Команда loadtest обстреливает HTTP API чекаутов конкурентными заказами
// и проверяет, что сток не ушёл в минус: принятых заказов не может быть
// больше, чем позволял начальный остаток.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type config struct {
	baseURL      string
	total        int
	totalSet     bool
	duration     time.Duration
	concurrency  int
	timeout      time.Duration
	menuItemID   string
	itemName     string
	qty          int
	priceMinor   int64
	initialStock int64
	customerTag  string
	outputPath   string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type report struct {
	StartedAt       time.Time        `json:"started_at"`
	DurationSeconds float64          `json:"duration_seconds"`
	Total           int64            `json:"total"`
	Accepted        int64            `json:"accepted"`
	SoldOut         int64            `json:"sold_out"`
	RateLimited     int64            `json:"rate_limited"`
	Failed          int64            `json:"failed"`
	ErrorRate       float64          `json:"error_rate"`
	RPS             float64          `json:"rps"`
	Statuses        map[string]int64 `json:"statuses"`
	LatencyMs       latencySummary   `json:"latency_ms"`
	InitialStock    int64            `json:"initial_stock"`
	UnitsSold       int64            `json:"units_sold"`
	Oversold        bool             `json:"oversold"`
}

type collector struct {
	mu        sync.Mutex
	statuses  map[string]int64
	latencies []float64
}

func newCollector() *collector {
	return &collector{statuses: make(map[string]int64)}
}

func (c *collector) record(latency time.Duration, status int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := fmt.Sprintf("%d", status)
	if err != nil {
		key = "transport_error"
	}
	c.statuses[key]++
	c.latencies = append(c.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) buildReport(cfg config, startedAt time.Time, duration time.Duration, accepted, soldOut, rateLimited, failed int64) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	statuses := make(map[string]int64, len(c.statuses))
	var total int64
	for status, count := range c.statuses {
		statuses[status] = count
		total += count
	}

	unitsSold := accepted * int64(cfg.qty)
	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Total:           total,
		Accepted:        accepted,
		SoldOut:         soldOut,
		RateLimited:     rateLimited,
		Failed:          failed,
		ErrorRate:       ratio(failed, total),
		Statuses:        statuses,
		LatencyMs:       buildLatencySummary(c.latencies),
		InitialStock:    cfg.initialStock,
		UnitsSold:       unitsSold,
		Oversold:        cfg.initialStock >= 0 && unitsSold > cfg.initialStock,
	}
	if duration > 0 {
		result.RPS = float64(total) / duration.Seconds()
	}
	return result
}

func parseConfig() (config, error) {
	var cfg config
	var timeoutValue string
	var durationValue string

	flag.StringVar(&cfg.baseURL, "url", "http://localhost:8080", "order service base URL")
	flag.IntVar(&cfg.total, "total", 200, "total checkouts to send in count mode; in duration mode only used when explicitly set")
	flag.StringVar(&durationValue, "duration", "0s", "optional time-based run duration (e.g. 30s, 5m)")
	flag.IntVar(&cfg.concurrency, "concurrency", 20, "number of concurrent workers")
	flag.StringVar(&timeoutValue, "timeout", "5s", "per-request timeout")
	flag.StringVar(&cfg.menuItemID, "item", "chicken-inasal", "menu item id to order")
	flag.StringVar(&cfg.itemName, "item-name", "Chicken Inasal", "menu item display name")
	flag.IntVar(&cfg.qty, "qty", 1, "quantity per checkout")
	flag.Int64Var(&cfg.priceMinor, "price-minor", 9500, "unit price in centavos")
	flag.Int64Var(&cfg.initialStock, "initial-stock", -1, "initial stock of the item for the oversell check (-1 disables)")
	flag.StringVar(&cfg.customerTag, "customer-tag", "load", "customer name prefix")
	flag.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	flag.Parse()

	timeout, err := time.ParseDuration(strings.TrimSpace(timeoutValue))
	if err != nil {
		return cfg, fmt.Errorf("parse timeout: %w", err)
	}
	cfg.timeout = timeout

	duration, err := time.ParseDuration(strings.TrimSpace(durationValue))
	if err != nil {
		return cfg, fmt.Errorf("parse duration: %w", err)
	}
	cfg.duration = duration

	flag.CommandLine.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	if cfg.duration < 0 {
		return cfg, errors.New("duration must be >= 0")
	}
	if cfg.duration == 0 && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when duration is not set")
	}
	if cfg.concurrency <= 0 {
		return cfg, errors.New("concurrency must be > 0")
	}
	if cfg.timeout <= 0 {
		return cfg, errors.New("timeout must be > 0")
	}
	if cfg.qty <= 0 {
		return cfg, errors.New("qty must be > 0")
	}
	if cfg.priceMinor <= 0 {
		return cfg, errors.New("price-minor must be > 0")
	}
	if strings.TrimSpace(cfg.menuItemID) == "" {
		return cfg, errors.New("item is required")
	}
	if strings.TrimSpace(cfg.customerTag) == "" {
		return cfg, errors.New("customer-tag is required")
	}

	return cfg, nil
}

func main() {
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	client := &http.Client{Timeout: cfg.timeout}
	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	col := newCollector()

	jobs := make(chan int, cfg.concurrency*2)
	var accepted, soldOut, rateLimited, failed int64
	var wg sync.WaitGroup

	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				status, reqErr := sendCheckout(client, cfg, runID, id, col)
				switch {
				case reqErr != nil:
					atomic.AddInt64(&failed, 1)
				case status == http.StatusCreated:
					atomic.AddInt64(&accepted, 1)
				case status == http.StatusConflict:
					atomic.AddInt64(&soldOut, 1)
				case status == http.StatusTooManyRequests:
					atomic.AddInt64(&rateLimited, 1)
				default:
					atomic.AddInt64(&failed, 1)
				}
			}
		}()
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	duration := time.Since(startedAt)
	result := col.buildReport(cfg, startedAt, duration, accepted, soldOut, rateLimited, failed)

	printReport(result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.Oversold || result.Failed > 0 {
		os.Exit(1)
	}
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}

		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

func sendCheckout(client *http.Client, cfg config, runID string, index int, col *collector) (int, error) {
	payload := map[string]any{
		"customer_name": fmt.Sprintf("%s-%s-%d", cfg.customerTag, runID, index),
		// У каждого заказа свой контактный номер, иначе сработает
		// rate limiter и обстрел упрётся в 429.
		"contact_number": fmt.Sprintf("0917%07d", index%10000000),
		"service_type":   "pickup",
		"payment_method": "GCash",
		"total_minor":    cfg.priceMinor * int64(cfg.qty),
		"lines": []map[string]any{
			{
				"menu_item_id":     cfg.menuItemID,
				"name":             cfg.itemName,
				"unit_price_minor": cfg.priceMinor,
				"qty":              cfg.qty,
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	resp, err := client.Post(
		strings.TrimRight(cfg.baseURL, "/")+"/api/orders",
		"application/json",
		bytes.NewReader(body),
	)
	if err != nil {
		col.record(time.Since(start), 0, err)
		return 0, err
	}
	defer resp.Body.Close()

	col.record(time.Since(start), resp.StatusCode, nil)
	return resp.StatusCode, nil
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- path is an explicit CLI output parameter for local load-test reports.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(result report, cfg config) {
	fmt.Println("Checkout load test summary")
	fmt.Printf("item=%s qty=%d target=%s\n", cfg.menuItemID, cfg.qty, runTarget(cfg))
	fmt.Printf("total=%d accepted=%d sold_out=%d rate_limited=%d failed=%d error_rate=%.4f\n",
		result.Total,
		result.Accepted,
		result.SoldOut,
		result.RateLimited,
		result.Failed,
		result.ErrorRate,
	)
	fmt.Printf("duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	fmt.Printf("latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.LatencyMs.Min,
		result.LatencyMs.Avg,
		result.LatencyMs.P50,
		result.LatencyMs.P95,
		result.LatencyMs.P99,
		result.LatencyMs.Max,
	)

	if cfg.initialStock >= 0 {
		verdict := "OK"
		if result.Oversold {
			verdict = "OVERSOLD"
		}
		fmt.Printf("oversell check: initial_stock=%d units_sold=%d verdict=%s\n",
			result.InitialStock, result.UnitsSold, verdict)
	}

	statuses := make([]string, 0, len(result.Statuses))
	for status := range result.Statuses {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)
	for _, status := range statuses {
		fmt.Printf("status %s: %d\n", status, result.Statuses[status])
	}
}

func runTarget(cfg config) string {
	if cfg.duration <= 0 {
		return fmt.Sprintf("count:%d", cfg.total)
	}
	if cfg.totalSet {
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	}
	return fmt.Sprintf("duration:%s", cfg.duration)
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
