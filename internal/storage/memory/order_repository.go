package memory

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/willrp/willorders/internal/domain"
)

// storedLine — связка заказа и товара по внутренним ключам, как в таблице
// order_product.
type storedLine struct {
	orderID   int64
	productID int64
	amount    int
}

// orderRepositoryInMemory — in-memory реализация OrderRepository для юнит-тестов
// и локального запуска. Повторяет семантику PostgreSQL-реализации: уникальность
// item_id, каскадное удаление позиций, CHECK (amount > 0), отказ на
// отрицательном смещении.
type orderRepositoryInMemory struct {
	mu sync.RWMutex

	orders   map[uuid.UUID]domain.Order
	products map[string]domain.Product
	lines    []storedLine

	nextOrderID   int64
	nextProductID int64
}

// NewOrderRepository возвращает in-memory репозиторий заказов.
func NewOrderRepository() *orderRepositoryInMemory {
	return &orderRepositoryInMemory{
		orders:   make(map[uuid.UUID]domain.Order),
		products: make(map[string]domain.Product),
	}
}

// GetByUser возвращает заказ по паре (владелец, идентификатор) вместе с позициями.
func (r *orderRepositoryInMemory) GetByUser(userUUID, orderUUID uuid.UUID) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[orderUUID]
	if !ok || order.UserUUID != userUUID {
		return domain.Order{}, domain.ErrOrderNotFound
	}

	order.Lines = r.loadLines(order.ID)
	return order, nil
}

// ListByUser возвращает окно заказов пользователя и общее число подходящих строк.
func (r *orderRepositoryInMemory) ListByUser(userUUID uuid.UUID, filter domain.ListFilter) ([]domain.Order, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]domain.Order, 0, len(r.orders))
	for _, order := range r.orders {
		if order.UserUUID != userUUID {
			continue
		}
		if filter.Span != nil {
			start, end := filter.Span.Bounds()
			if order.UpdatedAt.Before(start) || !order.UpdatedAt.Before(end) {
				continue
			}
		}
		matched = append(matched, order)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].UpdatedAt.Equal(matched[j].UpdatedAt) {
			return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)

	offset := filter.Offset()
	if offset < 0 {
		// Та же ошибка, что у PostgreSQL на OFFSET < 0: не клампим.
		return nil, 0, fmt.Errorf("list orders: OFFSET must not be negative")
	}
	if offset > total {
		offset = total
	}
	// LIMIT 0 отдаёт пустое окно, как и в SQL-варианте.
	end := offset + filter.PageSize
	if filter.PageSize <= 0 {
		end = offset
	}
	if end > total {
		end = total
	}

	window := make([]domain.Order, 0, end-offset)
	for _, order := range matched[offset:end] {
		order.Lines = r.loadLines(order.ID)
		window = append(window, order)
	}

	return window, total, nil
}

// Create сохраняет заказ, недостающие товары и позиции атомарно: сперва все
// проверки, затем мутации.
func (r *orderRepositoryInMemory) Create(order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.UUID]; exists {
		return fmt.Errorf(`insert order: duplicate key value violates unique constraint "orders_uuid_key"`)
	}

	seen := make(map[string]struct{}, len(order.Lines))
	for _, line := range order.Lines {
		if line.Amount <= 0 {
			return fmt.Errorf(`insert order line: new row violates check constraint "order_product_amount_check"`)
		}
		if _, dup := seen[line.ItemID]; dup {
			return fmt.Errorf(`insert order line: duplicate key value violates unique constraint "order_product_pkey"`)
		}
		seen[line.ItemID] = struct{}{}
	}

	r.nextOrderID++
	order.ID = r.nextOrderID
	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = now
	}

	for _, line := range order.Lines {
		product, ok := r.products[line.ItemID]
		if !ok {
			r.nextProductID++
			product = domain.Product{
				ID:        r.nextProductID,
				UUID:      uuid.New(),
				ItemID:    line.ItemID,
				CreatedAt: now,
				UpdatedAt: now,
			}
			r.products[line.ItemID] = product
		}
		r.lines = append(r.lines, storedLine{
			orderID:   order.ID,
			productID: product.ID,
			amount:    line.Amount,
		})
	}

	stored := order
	stored.Lines = nil
	r.orders[order.UUID] = stored
	return nil
}

// Delete удаляет заказ по паре (владелец, идентификатор); позиции снимаются
// каскадом, как при FK ON DELETE CASCADE.
func (r *orderRepositoryInMemory) Delete(userUUID, orderUUID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[orderUUID]
	if !ok || order.UserUUID != userUUID {
		return domain.ErrOrderNotFound
	}

	delete(r.orders, orderUUID)

	kept := r.lines[:0]
	for _, line := range r.lines {
		if line.orderID != order.ID {
			kept = append(kept, line)
		}
	}
	r.lines = kept
	return nil
}

// loadLines собирает позиции заказа; порядок — по item_id, как в SQL-выборке.
func (r *orderRepositoryInMemory) loadLines(orderID int64) []domain.OrderLine {
	byID := make(map[int64]string, len(r.products))
	for itemID, product := range r.products {
		byID[product.ID] = itemID
	}

	result := make([]domain.OrderLine, 0)
	for _, line := range r.lines {
		if line.orderID != orderID {
			continue
		}
		result = append(result, domain.OrderLine{
			ItemID: byID[line.productID],
			Amount: line.amount,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ItemID < result[j].ItemID
	})
	return result
}

// OrderCount возвращает число заказов (используется в тестах).
func (r *orderRepositoryInMemory) OrderCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.orders)
}

// ProductCount возвращает число товаров (используется в тестах).
func (r *orderRepositoryInMemory) ProductCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.products)
}

// LineCount возвращает число позиций (используется в тестах).
func (r *orderRepositoryInMemory) LineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.lines)
}

// TouchUpdatedAt выставляет заказу время последнего изменения (для тестов
// сортировки и фильтра по датам).
func (r *orderRepositoryInMemory) TouchUpdatedAt(orderUUID uuid.UUID, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if order, ok := r.orders[orderUUID]; ok {
		order.UpdatedAt = at
		r.orders[orderUUID] = order
	}
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
