package domain

import "time"

// ItemPrice — ценовые метаданные одной позиции от внешнего каталога.
type ItemPrice struct {
	ItemID string
	// PriceMinor — цена за единицу в минимальных денежных единицах.
	PriceMinor int64
	Name       string
}

// CatalogGateway описывает внешний каталожно-ценовой сервис. Ядро никогда
// не вызывает его внутри транзакции: запрос выполняет вышестоящий слой и
// подмешивает результат в ответ. Отказ шлюза не затрагивает локальные данные.
type CatalogGateway interface {
	// PriceItems возвращает ценовые метаданные для набора каталожных
	// идентификаторов.
	PriceItems(itemIDs []string) ([]ItemPrice, error)
	// Total возвращает агрегированную стоимость по списку позиций.
	Total(items []ItemInput) (int64, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
