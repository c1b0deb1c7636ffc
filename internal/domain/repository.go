package domain

import "github.com/google/uuid"

// ListFilter задаёт параметры постраничной выборки заказов пользователя.
type ListFilter struct {
	// Page начинается с 1. Отрицательное смещение не клампится:
	// хранилище возвращает собственную ошибку.
	Page     int
	PageSize int
	// Span — опциональный фильтр по updated_at, включительный по дням.
	Span *Datespan
}

// Offset возвращает смещение окна выборки. Значение может быть
// отрицательным при page < 1 — это намеренно отдаётся хранилищу как есть.
func (f ListFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// GetByUser возвращает единственный заказ с совпадающими владельцем и
	// идентификатором (вместе с позициями) или ErrOrderNotFound.
	GetByUser(userUUID, orderUUID uuid.UUID) (Order, error)
	// ListByUser возвращает окно заказов пользователя, отсортированных по
	// updated_at по убыванию (вторичный ключ — внутренний id), и общее
	// число подходящих строк без учёта окна.
	ListByUser(userUUID uuid.UUID, filter ListFilter) ([]Order, int, error)
	// Create сохраняет заказ, недостающие товары и все позиции одной
	// транзакцией. Частично созданный заказ не наблюдаем.
	Create(order Order) error
	// Delete удаляет заказ по паре (владелец, идентификатор); позиции
	// снимаются каскадом. Ноль удалённых строк — ErrOrderNotFound.
	Delete(userUUID, orderUUID uuid.UUID) error
}
