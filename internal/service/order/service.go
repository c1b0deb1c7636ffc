package order

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/willrp/willorders/internal/domain"
	"github.com/willrp/willorders/internal/messaging/kafka"
	"github.com/willrp/willorders/internal/metrics"
	"github.com/willrp/willorders/internal/slug"
)

const (
	// DefaultPage и DefaultPageSize применяются вышестоящим слоем, когда
	// клиент не передал параметры пагинации.
	DefaultPage     = 1
	DefaultPageSize = 10

	opSelectBySlug = "select_by_slug"
	opSelectByUser = "select_by_user"
	opInsert       = "insert"
	opDelete       = "delete"
)

// Service — сервис агрегации заказов: поиск по идентификатору, постраничная
// выборка по владельцу, транзакционные вставка и удаление. Каждая операция
// открывает собственную единицу работы в хранилище; транзакция никогда не
// держится открытой через внешний сетевой вызов.
type Service struct {
	repo    domain.OrderRepository
	outbox  domain.OutboxRepository
	catalog domain.CatalogGateway
	logger  *log.Entry
	metrics *metrics.OrderMetrics
}

// NewService конструирует сервис. Если metrics равен nil, используется
// default-регистратор Prometheus.
func NewService(repo domain.OrderRepository, outbox domain.OutboxRepository, logger *log.Entry, m *metrics.OrderMetrics) *Service {
	if logger == nil {
		logger = log.WithField("component", "order-service")
	}
	if m == nil {
		m = metrics.NewOrderMetrics()
	}
	return &Service{
		repo:    repo,
		outbox:  outbox,
		logger:  logger,
		metrics: m,
	}
}

// NewServiceWithCatalog дополнительно подключает внешний каталог цен.
// Каталог опрашивается строго вне транзакций хранилища.
func NewServiceWithCatalog(repo domain.OrderRepository, outbox domain.OutboxRepository, gateway domain.CatalogGateway, logger *log.Entry, m *metrics.OrderMetrics) *Service {
	s := NewService(repo, outbox, logger, m)
	s.catalog = gateway
	return s
}

// SelectBySlug возвращает единственный заказ с совпадающими владельцем и
// идентификатором. Некорректный slug — ошибка клиента (slug.ErrDecode),
// отсутствие строки — domain.ErrOrderNotFound.
func (s *Service) SelectBySlug(userSlug, orderSlug string) (domain.Order, error) {
	started := time.Now()
	defer s.metrics.RecordDuration(opSelectBySlug, time.Since(started))

	userUUID, err := slug.Decode(userSlug)
	if err != nil {
		s.metrics.RecordOperation(opSelectBySlug, metrics.ResultBadSlug)
		return domain.Order{}, err
	}
	orderUUID, err := slug.Decode(orderSlug)
	if err != nil {
		s.metrics.RecordOperation(opSelectBySlug, metrics.ResultBadSlug)
		return domain.Order{}, err
	}

	result, err := s.repo.GetByUser(userUUID, orderUUID)
	if err != nil {
		s.metrics.RecordOperation(opSelectBySlug, classify(err))
		if !errors.Is(err, domain.ErrOrderNotFound) {
			s.logger.WithError(err).WithField("order_slug", orderSlug).Error("select by slug failed")
		}
		return domain.Order{}, err
	}

	s.metrics.RecordOperation(opSelectBySlug, metrics.ResultOK)
	return result, nil
}

// SelectByUserSlug возвращает страницу заказов пользователя, отсортированных
// по updated_at по убыванию, общее число подходящих строк и число страниц.
// Пустая выборка до пагинации — domain.ErrNoContent; pageSize <= 0 —
// domain.ErrPageSizeInvalid; page < 1 отдаётся хранилищу как есть и
// возвращается его ошибкой.
func (s *Service) SelectByUserSlug(userSlug string, page, pageSize int, span *domain.Datespan) (domain.OrderPage, error) {
	started := time.Now()
	defer s.metrics.RecordDuration(opSelectByUser, time.Since(started))

	userUUID, err := slug.Decode(userSlug)
	if err != nil {
		s.metrics.RecordOperation(opSelectByUser, metrics.ResultBadSlug)
		return domain.OrderPage{}, err
	}

	if pageSize <= 0 {
		s.metrics.RecordOperation(opSelectByUser, metrics.ResultInvalid)
		return domain.OrderPage{}, domain.ErrPageSizeInvalid
	}

	orders, total, err := s.repo.ListByUser(userUUID, domain.ListFilter{
		Page:     page,
		PageSize: pageSize,
		Span:     span,
	})
	if err != nil {
		s.metrics.RecordOperation(opSelectByUser, metrics.ResultError)
		s.logger.WithError(err).WithField("user_slug", userSlug).Error("select by user failed")
		return domain.OrderPage{}, err
	}

	if total == 0 {
		s.metrics.RecordOperation(opSelectByUser, metrics.ResultNoContent)
		return domain.OrderPage{}, domain.ErrNoContent
	}

	s.metrics.RecordOperation(opSelectByUser, metrics.ResultOK)
	return domain.OrderPage{
		Orders: orders,
		Total:  total,
		Pages:  (total + pageSize - 1) / pageSize,
	}, nil
}

// Insert создаёт заказ с позициями одной транзакцией. Slug декодируется до
// любых записей; отсутствующие товары создаются лениво внутри той же
// транзакции. Ошибка хранилища пробрасывается без переосмысления: частично
// созданный заказ не наблюдаем. Повторяющиеся ItemID отклоняются явно.
func (s *Service) Insert(userSlug string, items []domain.ItemInput) error {
	started := time.Now()
	defer s.metrics.RecordDuration(opInsert, time.Since(started))

	userUUID, err := slug.Decode(userSlug)
	if err != nil {
		s.metrics.RecordOperation(opInsert, metrics.ResultBadSlug)
		return err
	}

	seen := make(map[string]struct{}, len(items))
	lines := make([]domain.OrderLine, 0, len(items))
	for _, item := range items {
		if _, dup := seen[item.ItemID]; dup {
			s.metrics.RecordOperation(opInsert, metrics.ResultInvalid)
			return domain.ErrDuplicateOrderItem
		}
		seen[item.ItemID] = struct{}{}
		lines = append(lines, domain.OrderLine{ItemID: item.ItemID, Amount: item.Amount})
	}

	now := time.Now().UTC()
	order := domain.Order{
		UUID:      uuid.New(),
		UserUUID:  userUUID,
		Lines:     lines,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(order); err != nil {
		s.metrics.RecordOperation(opInsert, metrics.ResultError)
		s.logger.WithError(err).WithField("user_slug", userSlug).Error("order insert failed")
		return err
	}

	s.metrics.RecordOperation(opInsert, metrics.ResultOK)
	s.logger.WithFields(log.Fields{
		"order_slug":    slug.Encode(order.UUID),
		"product_types": order.ProductTypes(),
		"items_amount":  order.ItemsAmount(),
	}).Info("order created")

	s.enqueueEvent(kafka.EventTypeOrderPlaced, &order, userSlug)
	return nil
}

// Delete удаляет заказ по паре (владелец, идентификатор); позиции снимаются
// каскадом хранилища. Ноль удалённых строк — domain.ErrOrderNotFound.
func (s *Service) Delete(userSlug, orderSlug string) error {
	started := time.Now()
	defer s.metrics.RecordDuration(opDelete, time.Since(started))

	userUUID, err := slug.Decode(userSlug)
	if err != nil {
		s.metrics.RecordOperation(opDelete, metrics.ResultBadSlug)
		return err
	}
	orderUUID, err := slug.Decode(orderSlug)
	if err != nil {
		s.metrics.RecordOperation(opDelete, metrics.ResultBadSlug)
		return err
	}

	if err := s.repo.Delete(userUUID, orderUUID); err != nil {
		s.metrics.RecordOperation(opDelete, classify(err))
		if !errors.Is(err, domain.ErrOrderNotFound) {
			s.logger.WithError(err).WithField("order_slug", orderSlug).Error("order delete failed")
		}
		return err
	}

	s.metrics.RecordOperation(opDelete, metrics.ResultOK)
	s.logger.WithField("order_slug", orderSlug).Info("order deleted")

	deleted := domain.Order{UUID: orderUUID, UserUUID: userUUID}
	s.enqueueEvent(kafka.EventTypeOrderDeleted, &deleted, userSlug)
	return nil
}

// TotalBySlug возвращает заказ вместе с его стоимостью по внешнему каталогу.
// Заказ читается первым; отказ каталога возвращается ошибкой, не скрывая
// локальные данные (заказ в ответе остаётся валидным).
func (s *Service) TotalBySlug(userSlug, orderSlug string) (domain.Order, int64, error) {
	result, err := s.SelectBySlug(userSlug, orderSlug)
	if err != nil {
		return domain.Order{}, 0, err
	}
	if s.catalog == nil {
		return result, 0, nil
	}

	items := make([]domain.ItemInput, 0, len(result.Lines))
	for _, line := range result.Lines {
		items = append(items, domain.ItemInput{ItemID: line.ItemID, Amount: line.Amount})
	}

	total, err := s.catalog.Total(items)
	if err != nil {
		s.logger.WithError(err).WithField("order_slug", orderSlug).Warn("catalog pricing failed")
		return result, 0, fmt.Errorf("price order: %w", err)
	}
	return result, total, nil
}

// enqueueEvent ставит событие заказа в outbox. Постановка выполняется после
// коммита и не связана с ним атомарно: сбой здесь не откатывает заказ,
// а только логируется.
func (s *Service) enqueueEvent(eventType kafka.EventType, order *domain.Order, userSlug string) {
	if s.outbox == nil {
		return
	}

	orderSlug := slug.Encode(order.UUID)
	payload, err := json.Marshal(kafka.NewOrderEvent(
		eventType, orderSlug, userSlug, order.ProductTypes(), order.ItemsAmount(),
	))
	if err != nil {
		s.logger.WithError(err).WithField("order_slug", orderSlug).Warn("failed to marshal order event")
		return
	}

	if _, err := s.outbox.Enqueue(domain.OutboxMessage{
		AggregateType: kafka.AggregateTypeOrder,
		AggregateID:   orderSlug,
		EventType:     string(eventType),
		Payload:       payload,
	}); err != nil {
		s.logger.WithError(err).WithField("order_slug", orderSlug).Warn("failed to enqueue order event")
		return
	}

	s.metrics.RecordOutboxEvent()
}

// classify сводит ошибку к лейблу result для метрик.
func classify(err error) string {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		return metrics.ResultNotFound
	case errors.Is(err, domain.ErrNoContent):
		return metrics.ResultNoContent
	default:
		return metrics.ResultError
	}
}
