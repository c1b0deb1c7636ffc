package app

import (
	"github.com/willrp/willorders/internal/metrics"
	"github.com/willrp/willorders/internal/service/order"
)

// NewOrderService собирает сервис заказов поверх зависимостей приложения.
// Единая точка сборки для Run и встраивающего кода.
func NewOrderService(deps *Dependencies, m *metrics.OrderMetrics) *order.Service {
	logger := deps.Logger
	if logger != nil {
		logger = logger.WithField("layer", "service")
	}
	return order.NewServiceWithCatalog(deps.Repo, deps.OutboxRepo, deps.Catalog, logger, m)
}
