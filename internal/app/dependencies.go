package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/willrp/willorders/internal/domain"
	"github.com/willrp/willorders/internal/service/catalog"
	"github.com/willrp/willorders/internal/storage/memory"
	"github.com/willrp/willorders/internal/storage/postgres"
)

// Dependencies содержит все зависимости приложения.
type Dependencies struct {
	Repo       domain.OrderRepository
	OutboxRepo domain.OutboxRepository
	Catalog    domain.CatalogGateway
	Store      *postgres.Store
	Logger     *log.Entry
}

// NewDependencies собирает in-memory зависимости для локального запуска и
// тестов. NOTE: каталожный шлюз здесь всегда mock, реальный клиент внешнего
// каталога подключается на уровне deployment.
func NewDependencies(logger *log.Entry) *Dependencies {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	return &Dependencies{
		Repo:       memory.NewOrderRepository(),
		OutboxRepo: memory.NewOutboxRepository(),
		Catalog:    catalog.NewMockGateway(nil),
		Logger:     logger,
	}
}

// NewPostgresDependencies открывает PostgreSQL, применяет миграции и собирает
// зависимости поверх него.
func NewPostgresDependencies(ctx context.Context, dsn string, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &Dependencies{
		Repo:       postgres.NewOrderRepository(store),
		OutboxRepo: postgres.NewOutboxRepository(store),
		Catalog:    catalog.NewMockGateway(nil),
		Store:      store,
		Logger:     logger,
	}, nil
}

// Close освобождает ресурсы зависимостей.
func (d *Dependencies) Close() error {
	if d == nil || d.Store == nil {
		return nil
	}
	return d.Store.Close()
}
