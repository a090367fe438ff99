package reconcile

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/kimcharlie25/K-inasal/internal/domain"
	"github.com/kimcharlie25/K-inasal/internal/metrics"
)

const (
	defaultSweepInterval  = 30 * time.Second
	defaultReservationTTL = 5 * time.Minute
	defaultBatchSize      = 100
)

// SweeperOptions задаёт параметры выверки резервов.
type SweeperOptions struct {
	Logger        *log.Entry
	Metrics       *metrics.IntakeMetrics
	SweepInterval time.Duration
	// ReservationTTL — возраст, после которого pending-резерв считается
	// зависшим и принудительно снимается. 0 отключает снятие, остаётся
	// только наблюдение.
	ReservationTTL time.Duration
	BatchSize      int
	Now            func() time.Time
}

// Option настраивает Sweeper.
type Option func(*SweeperOptions)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *SweeperOptions) {
		opts.Logger = logger
	}
}

// WithMetrics задаёт метрики intake для публикации backlog-а.
func WithMetrics(m *metrics.IntakeMetrics) Option {
	return func(opts *SweeperOptions) {
		opts.Metrics = m
	}
}

// WithSweepInterval задаёт частоту выверки.
func WithSweepInterval(interval time.Duration) Option {
	return func(opts *SweeperOptions) {
		opts.SweepInterval = interval
	}
}

// WithReservationTTL задаёт возраст снятия зависших резервов.
func WithReservationTTL(ttl time.Duration) Option {
	return func(opts *SweeperOptions) {
		opts.ReservationTTL = ttl
	}
}

// WithBatchSize ограничивает число снимаемых резервов за цикл.
func WithBatchSize(batchSize int) Option {
	return func(opts *SweeperOptions) {
		opts.BatchSize = batchSize
	}
}

// WithNow подменяет источник времени (для тестов).
func WithNow(now func() time.Time) Option {
	return func(opts *SweeperOptions) {
		opts.Now = now
	}
}

// Sweeper — фоновая выверка учёта стока. Commit резерва best-effort: его сбой
// не отменяет заказ, но оставляет резерв в pending. Sweeper делает этот
// деградированный режим видимым (gauge backlog-а) и снимает резервы,
// зависшие дольше TTL.
type Sweeper struct {
	stock          domain.StockRepository
	logger         *log.Entry
	metrics        *metrics.IntakeMetrics
	sweepInterval  time.Duration
	reservationTTL time.Duration
	batchSize      int
	now            func() time.Time
}

// NewSweeper создаёт воркер выверки резервов.
func NewSweeper(stock domain.StockRepository, options ...Option) *Sweeper {
	opts := SweeperOptions{
		SweepInterval:  defaultSweepInterval,
		ReservationTTL: defaultReservationTTL,
		BatchSize:      defaultBatchSize,
		Now:            func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "reservation-sweeper")
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewIntakeMetrics()
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaultSweepInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}

	return &Sweeper{
		stock:          stock,
		logger:         logger,
		metrics:        opts.Metrics,
		sweepInterval:  opts.SweepInterval,
		reservationTTL: opts.ReservationTTL,
		batchSize:      opts.BatchSize,
		now:            opts.Now,
	}
}

// Run запускает периодическую выверку до отмены ctx.
func (s *Sweeper) Run(ctx context.Context) {
	if s.stock == nil {
		s.logger.Warn("reservation sweeper is disabled: stock repository is nil")
		return
	}

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	s.SweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce выполняет один цикл выверки: публикует backlog pending-резервов
// и снимает зависшие.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	if s.reservationTTL > 0 {
		cutoff := s.now().Add(-s.reservationTTL)
		released, err := s.stock.ReleaseExpired(ctx, cutoff, s.batchSize)
		if err != nil {
			s.logger.WithError(err).Warn("failed to release expired reservations")
		} else if released > 0 {
			s.logger.WithField("released", released).Warn("Released expired stock reservations")
		}
	}

	s.refreshBacklogMetrics(ctx)
}

func (s *Sweeper) refreshBacklogMetrics(ctx context.Context) {
	stats, err := s.stock.PendingStats(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("failed to collect reservation backlog stats")
		return
	}

	age := time.Duration(0)
	if stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() {
		age = s.now().Sub(stats.OldestPendingAt)
		if age < 0 {
			age = 0
		}
	}
	s.metrics.SetPendingReservations(stats.PendingCount, age)
}
