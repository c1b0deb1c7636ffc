package kafka

import "time"

// EventType определяет тип события заказа.
type EventType string

const (
	// EventTypeOrderPlaced — заказ создан вместе со своими позициями.
	EventTypeOrderPlaced EventType = "order.placed"
	// EventTypeOrderDeleted — заказ удалён владельцем.
	EventTypeOrderDeleted EventType = "order.deleted"
)

// Topics для Kafka.
const (
	TopicOrderEvents     = "willorders.order.events"
	TopicDeadLetterQueue = "willorders.dlq"
)

// AggregateTypeOrder — тип агрегата для outbox-записей заказов.
const AggregateTypeOrder = "order"

// OrderEvent — полезная нагрузка события заказа. Идентификаторы публичные
// (slug), внутренние ключи наружу не уходят.
type OrderEvent struct {
	EventType    EventType `json:"event_type"`
	OrderSlug    string    `json:"order_slug"`
	UserSlug     string    `json:"user_slug"`
	ProductTypes int       `json:"product_types,omitempty"`
	ItemsAmount  int       `json:"items_amount,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewOrderEvent создаёт событие заказа с текущим временем.
func NewOrderEvent(eventType EventType, orderSlug, userSlug string, productTypes, itemsAmount int) *OrderEvent {
	return &OrderEvent{
		EventType:    eventType,
		OrderSlug:    orderSlug,
		UserSlug:     userSlug,
		ProductTypes: productTypes,
		ItemsAmount:  itemsAmount,
		Timestamp:    time.Now().UTC(),
	}
}
