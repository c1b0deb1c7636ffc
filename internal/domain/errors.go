package domain

import "errors"

var (
	// ErrOrderNotFound возвращается, когда корректно закодированная пара
	// (владелец, заказ) не находит ни одной строки.
	ErrOrderNotFound = errors.New("order not found")
	// ErrNoContent возвращается, когда фильтр корректен, но выборка пуста
	// ещё до пагинации. Снаружи маппится в "пустой успех", не в not found.
	ErrNoContent = errors.New("no orders for the given filter")
	// ErrPageSizeInvalid — ошибка вызывающего кода: размер страницы <= 0.
	ErrPageSizeInvalid = errors.New("page size must be greater than zero")
	// ErrDuplicateOrderItem — список товаров содержит повторяющийся ItemID.
	ErrDuplicateOrderItem = errors.New("item list contains duplicate item ids")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)
