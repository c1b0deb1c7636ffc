package catalog

import (
	"fmt"

	"github.com/willrp/willorders/internal/domain"
)

// MockGateway — конфигурируемая заглушка CatalogGateway для тестов и
// локального запуска без внешнего каталога.
type MockGateway struct {
	// Prices задаёт цену за единицу по item_id. Отсутствующая позиция
	// считается ошибкой каталога.
	Prices map[string]int64

	PriceErr error
	TotalErr error

	PriceCalls int
	TotalCalls int
}

// NewMockGateway возвращает mock с успешным сценарием по умолчанию.
func NewMockGateway(prices map[string]int64) *MockGateway {
	if prices == nil {
		prices = make(map[string]int64)
	}
	return &MockGateway{Prices: prices}
}

// PriceItems возвращает цены по прайс-листу заглушки и считает вызовы.
func (m *MockGateway) PriceItems(itemIDs []string) ([]domain.ItemPrice, error) {
	m.PriceCalls++
	if m.PriceErr != nil {
		return nil, m.PriceErr
	}

	result := make([]domain.ItemPrice, 0, len(itemIDs))
	for _, itemID := range itemIDs {
		price, ok := m.Prices[itemID]
		if !ok {
			return nil, fmt.Errorf("catalog: unknown item %q", itemID)
		}
		result = append(result, domain.ItemPrice{ItemID: itemID, PriceMinor: price})
	}
	return result, nil
}

// Total суммирует цену позиций по прайс-листу заглушки и считает вызовы.
func (m *MockGateway) Total(items []domain.ItemInput) (int64, error) {
	m.TotalCalls++
	if m.TotalErr != nil {
		return 0, m.TotalErr
	}

	var total int64
	for _, item := range items {
		price, ok := m.Prices[item.ItemID]
		if !ok {
			return 0, fmt.Errorf("catalog: unknown item %q", item.ItemID)
		}
		total += price * int64(item.Amount)
	}
	return total, nil
}

var _ domain.CatalogGateway = (*MockGateway)(nil)
