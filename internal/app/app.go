package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/kimcharlie25/K-inasal/internal/domain"
	"github.com/kimcharlie25/K-inasal/internal/health"
	"github.com/kimcharlie25/K-inasal/internal/httpapi"
	"github.com/kimcharlie25/K-inasal/internal/service/identity"
	"github.com/kimcharlie25/K-inasal/internal/service/intake"
	"github.com/kimcharlie25/K-inasal/internal/service/ledger"
	"github.com/kimcharlie25/K-inasal/internal/service/notifier"
	"github.com/kimcharlie25/K-inasal/internal/service/reconcile"
	"github.com/kimcharlie25/K-inasal/internal/version"
)

const shutdownTimeout = 5 * time.Second

// Run собирает приложение и обслуживает запросы до отмены контекста.
// Завершение изящное: сначала останавливаются HTTP-серверы, затем
// нотификатор и фоновые воркеры, последними закрываются внешние ресурсы.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	cfg.ApplyLogLevel()

	logger.WithField("version", version.String()).Info("starting order service")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	deps, err := NewDependencies(runCtx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build dependencies: %w", err)
	}
	defer deps.Close()

	stockLedger := ledger.NewLedger(deps.Stock, log.WithField("component", "ledger"))

	intakeOptions := []intake.Option{}
	if cfg.ClientIPLookup {
		resolver := identity.NewResolver(log.WithField("component", "identity"))
		intakeOptions = append(intakeOptions, intake.WithIdentityResolver(resolver))
	}
	orderIntake := intake.NewOrderIntake(
		deps.Orders, stockLedger, deps.IntakeMetrics,
		log.WithField("component", "intake"), intakeOptions...,
	)

	staffLogger := log.WithField("component", "staff-alert")
	changeNotifier := notifier.NewChangeNotifier(
		deps.Push, deps.Orders, deps.NotifierMetrics,
		log.WithField("component", "notifier"),
		notifier.WithFallbackInterval(cfg.NotifierFallbackInterval),
		notifier.WithBackupInterval(cfg.NotifierBackupInterval),
		notifier.WithListLimit(cfg.NotifierListLimit),
		notifier.WithOnNewOrder(func(event domain.ChangeEvent) {
			staffLogger.WithField("table", event.Table).Info("new order received")
		}),
	)
	if err := changeNotifier.Start(runCtx); err != nil {
		return fmt.Errorf("start change notifier: %w", err)
	}
	defer changeNotifier.Close()

	sweeper := reconcile.NewSweeper(deps.Stock,
		reconcile.WithLogger(log.WithField("component", "sweeper")),
		reconcile.WithMetrics(deps.IntakeMetrics),
		reconcile.WithSweepInterval(cfg.SweepInterval),
		reconcile.WithReservationTTL(cfg.ReservationTTL),
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(runCtx)
	}()

	apiHandler := httpapi.NewHandler(
		orderIntake, deps.Orders,
		log.WithField("component", "httpapi"),
		httpapi.WithTables(deps.Tables),
		httpapi.WithMenuCatalog(deps.Stock),
		httpapi.WithBaseURL(cfg.BaseURL),
	)
	apiServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           apiHandler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsServer := newMetricsServer(cfg, deps, changeNotifier)

	errCh := make(chan error, 2)
	startHTTP(&wg, logger, "api", apiServer, errCh)
	startHTTP(&wg, logger, "metrics", metricsServer, errCh)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-errCh:
		logger.WithError(runErr).Error("http server failed")
	}
	cancel()

	shutdownHTTP(logger, "api", apiServer)
	shutdownHTTP(logger, "metrics", metricsServer)
	changeNotifier.Close()
	wg.Wait()

	logger.Info("order service stopped")
	return runErr
}

func newMetricsServer(cfg Config, deps *Dependencies, changeNotifier *notifier.ChangeNotifier) *http.Server {
	healthHandler := health.NewHandler(version.GetVersion())
	if deps.Store != nil {
		healthHandler.RegisterChecker("postgres", health.NewStorageChecker("postgres", deps.Store))
	}
	healthHandler.RegisterChecker("notifier", health.NewNotifierChecker("notifier", func() string {
		return changeNotifier.State().String()
	}))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", health.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	return &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func startHTTP(wg *sync.WaitGroup, logger *log.Entry, name string, server *http.Server, errCh chan<- error) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.WithField("addr", server.Addr).Infof("%s server listening", name)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("%s server: %w", name, err)
		}
	}()
}

func shutdownHTTP(logger *log.Entry, name string, server *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Warnf("%s server shutdown failed", name)
	}
}
