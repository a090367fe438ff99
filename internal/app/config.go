package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// StorageDriver выбирает реализацию хранилища.
type StorageDriver string

const (
	StorageDriverMemory   StorageDriver = "memory"
	StorageDriverPostgres StorageDriver = "postgres"
)

const envPrefix = "KINASAL_"

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	StorageDriver       StorageDriver
	PostgresDSN         string
	PostgresAutoMigrate bool

	KafkaBrokers string
	KafkaGroupID string

	// BaseURL — публичный адрес фронта, используется в QR-ссылках столов.
	BaseURL string

	// RateWindow — окно rate limiter-а чекаутов для memory-драйвера.
	// Для postgres окно фиксируется триггером в схеме.
	RateWindow time.Duration

	NotifierFallbackInterval time.Duration
	NotifierBackupInterval   time.Duration
	NotifierListLimit        int

	SweepInterval  time.Duration
	ReservationTTL time.Duration

	ClientIPLookup bool
	LogLevel       string
}

// DefaultConfig возвращает конфигурацию по умолчанию.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:                 ":8080",
		MetricsAddr:              ":9090",
		StorageDriver:            StorageDriverMemory,
		PostgresAutoMigrate:      true,
		KafkaGroupID:             "kinasal-notifier",
		BaseURL:                  "http://localhost:8080",
		RateWindow:               time.Minute,
		NotifierFallbackInterval: 5 * time.Second,
		NotifierBackupInterval:   10 * time.Second,
		NotifierListLimit:        100,
		SweepInterval:            30 * time.Second,
		ReservationTTL:           5 * time.Minute,
		ClientIPLookup:           false,
		LogLevel:                 "info",
	}
}

// LoadConfig читает конфигурацию из окружения поверх значений по умолчанию.
// Файл .env подхватывается, если присутствует.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	cfg.HTTPAddr = envString("HTTP_ADDR", cfg.HTTPAddr)
	cfg.MetricsAddr = envString("METRICS_ADDR", cfg.MetricsAddr)

	driver := StorageDriver(strings.ToLower(envString("STORAGE_DRIVER", string(cfg.StorageDriver))))
	switch driver {
	case StorageDriverMemory, StorageDriverPostgres:
		cfg.StorageDriver = driver
	default:
		return Config{}, fmt.Errorf("unsupported storage driver: %s", driver)
	}

	cfg.PostgresDSN = envString("POSTGRES_DSN", cfg.PostgresDSN)
	if cfg.StorageDriver == StorageDriverPostgres && cfg.PostgresDSN == "" {
		return Config{}, fmt.Errorf("postgres storage requires %sPOSTGRES_DSN", envPrefix)
	}
	cfg.PostgresAutoMigrate = envBool("POSTGRES_AUTO_MIGRATE", cfg.PostgresAutoMigrate)

	cfg.KafkaBrokers = envString("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaGroupID = envString("KAFKA_GROUP_ID", cfg.KafkaGroupID)

	cfg.BaseURL = envString("BASE_URL", cfg.BaseURL)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.ClientIPLookup = envBool("CLIENT_IP_LOOKUP", cfg.ClientIPLookup)

	var err error
	if cfg.RateWindow, err = envDuration("RATE_WINDOW", cfg.RateWindow); err != nil {
		return Config{}, err
	}
	if cfg.NotifierFallbackInterval, err = envDuration("NOTIFIER_FALLBACK_INTERVAL", cfg.NotifierFallbackInterval); err != nil {
		return Config{}, err
	}
	if cfg.NotifierBackupInterval, err = envDuration("NOTIFIER_BACKUP_INTERVAL", cfg.NotifierBackupInterval); err != nil {
		return Config{}, err
	}
	if cfg.SweepInterval, err = envDuration("SWEEP_INTERVAL", cfg.SweepInterval); err != nil {
		return Config{}, err
	}
	if cfg.ReservationTTL, err = envDuration("RESERVATION_TTL", cfg.ReservationTTL); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// ApplyLogLevel настраивает глобальный уровень логирования.
func (c Config) ApplyLogLevel() {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

func envString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(envPrefix + key)); value != "" {
		return value
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(envPrefix + key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(envPrefix + key))
	if raw == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s%s: %w", envPrefix, key, err)
	}
	return value, nil
}
