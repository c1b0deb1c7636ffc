package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/willrp/willorders/internal/app"
)

const (
	envPostgresDSN        = "WILLORDERS_POSTGRES_DSN"
	envKafkaBrokers       = "WILLORDERS_KAFKA_BROKERS"
	envMetricsAddr        = "WILLORDERS_METRICS_ADDR"
	envLogLevel           = "WILLORDERS_LOG_LEVEL"
	envOutboxPollInterval = "WILLORDERS_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize    = "WILLORDERS_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts  = "WILLORDERS_OUTBOX_MAX_ATTEMPTS"
)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)
	if v := os.Getenv(envLogLevel); v != "" {
		if level, err := log.ParseLevel(v); err == nil {
			log.SetLevel(level)
		}
	}
}

// readConfigFromEnv формирует конфигурацию приложения. lookup абстрагирует
// os.LookupEnv ради тестируемости; некорректные значения возвращаются
// предупреждениями, а не валят процесс.
func readConfigFromEnv(lookup func(string) (string, bool)) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string

	if v, ok := lookup(envPostgresDSN); ok && v != "" {
		cfg.PostgresDSN = v
	}
	if v, ok := lookup(envKafkaBrokers); ok && v != "" {
		cfg.KafkaBrokers = v
	}
	if v, ok := lookup(envMetricsAddr); ok && v != "" {
		cfg.MetricsAddr = v
	}
	if v, ok := lookup(envOutboxPollInterval); ok && v != "" {
		if interval, err := time.ParseDuration(v); err == nil && interval > 0 {
			cfg.OutboxPollInterval = interval
		} else {
			warnings = append(warnings, envOutboxPollInterval+": expected positive duration, got "+v)
		}
	}
	if v, ok := lookup(envOutboxBatchSize); ok && v != "" {
		if size, err := strconv.Atoi(v); err == nil && size > 0 {
			cfg.OutboxBatchSize = size
		} else {
			warnings = append(warnings, envOutboxBatchSize+": expected positive integer, got "+v)
		}
	}
	if v, ok := lookup(envOutboxMaxAttempts); ok && v != "" {
		if attempts, err := strconv.Atoi(v); err == nil && attempts > 0 {
			cfg.OutboxMaxAttempts = attempts
		} else {
			warnings = append(warnings, envOutboxMaxAttempts+": expected positive integer, got "+v)
		}
	}

	return cfg, warnings
}

func main() {
	setupLogger()

	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, warning := range warnings {
		log.Warn(warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"metrics_addr": cfg.MetricsAddr,
		"postgres":     cfg.PostgresDSN != "",
		"kafka":        cfg.KafkaBrokers != "",
	}).Info("запускаем willorders")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("willorders остановлен")
}
