package app

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/kimcharlie25/K-inasal/internal/domain"
	"github.com/kimcharlie25/K-inasal/internal/messaging/inproc"
	"github.com/kimcharlie25/K-inasal/internal/messaging/kafka"
	"github.com/kimcharlie25/K-inasal/internal/metrics"
	"github.com/kimcharlie25/K-inasal/internal/storage/memory"
	"github.com/kimcharlie25/K-inasal/internal/storage/postgres"
)

// stockStorage объединяет учёт стока и чтение каталога: обе реализации
// хранилища отдают один объект под оба интерфейса.
type stockStorage interface {
	domain.StockRepository
	domain.MenuCatalog
}

// Dependencies содержит собранные зависимости приложения.
type Dependencies struct {
	Orders domain.OrderRepository
	Stock  stockStorage
	Tables domain.TableRepository

	Publisher domain.ChangePublisher
	Push      domain.PushChannel

	IntakeMetrics   *metrics.IntakeMetrics
	NotifierMetrics *metrics.NotifierMetrics

	Store    *postgres.Store
	producer *kafka.Producer
	Logger   *log.Entry
}

// NewDependencies собирает зависимости согласно конфигурации: хранилище
// memory или postgres, шина изменений — Kafka при заданных брокерах, иначе
// внутрипроцессная.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps := &Dependencies{
		IntakeMetrics:   metrics.NewIntakeMetrics(),
		NotifierMetrics: metrics.NewNotifierMetrics(),
		Logger:          logger,
	}

	if err := deps.initMessaging(cfg, logger); err != nil {
		return nil, err
	}
	if err := deps.initStorage(ctx, cfg, logger); err != nil {
		deps.Close()
		return nil, err
	}

	return deps, nil
}

func (d *Dependencies) initMessaging(cfg Config, logger *log.Entry) error {
	if cfg.KafkaBrokers == "" {
		channel := inproc.NewPushChannel()
		d.Publisher = channel
		d.Push = channel
		logger.Info("using in-process change channel")
		return nil
	}

	brokers := strings.Split(cfg.KafkaBrokers, ",")
	producer, err := kafka.NewProducer(brokers)
	if err != nil {
		return fmt.Errorf("create kafka producer: %w", err)
	}
	d.producer = producer
	d.Publisher = producer
	d.Push = kafka.NewChannel(brokers, cfg.KafkaGroupID,
		kafka.WithDLQProducer(producer),
		kafka.WithLogger(logger.WithField("component", "kafka-channel")),
	)
	logger.WithField("brokers", brokers).Info("kafka change channel initialized")
	return nil
}

func (d *Dependencies) initStorage(ctx context.Context, cfg Config, logger *log.Entry) error {
	switch cfg.StorageDriver {
	case StorageDriverPostgres:
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return fmt.Errorf("apply migrations: %w", err)
			}
		}
		d.Store = store
		d.Orders = postgres.NewOrderRepository(store, postgres.WithChangePublisher(d.Publisher))
		d.Stock = postgres.NewStockRepository(store)
		d.Tables = postgres.NewTableRepository(store)
		logger.Info("postgres storage initialized")

	case StorageDriverMemory:
		d.Orders = memory.NewOrderRepository(
			memory.WithRateWindow(cfg.RateWindow),
			memory.WithChangePublisher(d.Publisher),
		)
		d.Stock = memory.NewStockRepository(nil)
		d.Tables = memory.NewTableRepository()
		logger.Info("in-memory storage initialized")

	default:
		return fmt.Errorf("unsupported storage driver: %s", cfg.StorageDriver)
	}

	return nil
}

// Close освобождает внешние ресурсы.
func (d *Dependencies) Close() {
	if d.producer != nil {
		if err := d.producer.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close kafka producer")
		}
	}
	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close postgres store")
		}
	}
}
