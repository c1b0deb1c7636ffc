package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/willrp/willorders/internal/domain"
	healthcheck "github.com/willrp/willorders/internal/health"
	"github.com/willrp/willorders/internal/messaging/kafka"
	"github.com/willrp/willorders/internal/metrics"
	"github.com/willrp/willorders/internal/service/outbox"
	"github.com/willrp/willorders/internal/slug"
	"github.com/willrp/willorders/internal/version"
)

// Config описывает настройки запуска приложения.
type Config struct {
	// PostgresDSN — строка подключения; пустая означает in-memory хранилище.
	PostgresDSN string
	// KafkaBrokers — список брокеров через запятую; пустой отключает публикацию.
	KafkaBrokers string
	MetricsAddr  string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
}

// DefaultConfig возвращает базовые настройки.
func DefaultConfig() Config {
	return Config{
		MetricsAddr:        ":9090",
		OutboxPollInterval: 2 * time.Second,
		OutboxBatchSize:    50,
		OutboxMaxAttempts:  4,
	}
}

// Run собирает зависимости и держит приложение до отмены ctx: сервис заказов,
// outbox worker и HTTP-сервер метрик и health-проверок.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	var (
		deps *Dependencies
		err  error
	)
	if cfg.PostgresDSN != "" {
		deps, err = NewPostgresDependencies(ctx, cfg.PostgresDSN, logger)
		if err != nil {
			return err
		}
		logger.Info("postgres storage initialized")
	} else {
		deps = NewDependencies(logger)
		logger.Warn("postgres dsn is empty, using in-memory storage")
	}
	defer func() {
		if closeErr := deps.Close(); closeErr != nil {
			logger.WithError(closeErr).Warn("failed to close dependencies")
		}
	}()

	orderService := NewOrderService(deps, metrics.NewOrderMetrics())
	logger.Info("order service initialized")

	kafkaProducer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafka(kafkaProducer, logger)

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	workerDone := make(chan struct{})
	if kafkaProducer != nil {
		worker := outbox.NewWorker(
			deps.OutboxRepo,
			kafka.NewOutboxPublisher(kafkaProducer, kafka.TopicOrderEvents),
			outbox.WithDLQPublisher(kafka.NewOutboxPublisher(kafkaProducer, kafka.TopicDeadLetterQueue)),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		)
		go func() {
			defer close(workerDone)
			worker.Run(workerCtx)
		}()
	} else {
		close(workerDone)
		logger.Warn("kafka is not configured, outbox events stay pending")
	}

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	if deps.Store != nil {
		healthHandler.RegisterChecker("postgres", healthcheck.NewSimpleChecker("postgres", func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return deps.Store.Ping(pingCtx)
		}))
	}
	healthHandler.RegisterChecker("outbox", healthcheck.NewOutboxChecker(deps.OutboxRepo, 0, 0))

	// Синтетическая проверка: выборка по заведомо пустому пользователю
	// прогоняет весь путь сервис-хранилище; ErrNoContent здесь — норма.
	probeSlug := slug.Encode(uuid.New())
	healthHandler.RegisterChecker("order-service", healthcheck.NewSimpleChecker("order-service", func() error {
		_, err := orderService.SelectByUserSlug(probeSlug, 1, 1, nil)
		if err != nil && !errors.Is(err, domain.ErrNoContent) {
			return err
		}
		return nil
	}))

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	<-ctx.Done()
	logger.Info("shutdown signal received")

	stopWorker()
	select {
	case <-workerDone:
	case <-time.After(5 * time.Second):
		logger.Warn("outbox worker did not stop in time")
	}

	shutdownHTTP(metricsSrv, logger)
	return ctx.Err()
}

// startMetricsServer поднимает HTTP-обработчики /metrics и health-проверок.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}
