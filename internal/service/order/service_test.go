package order

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/willrp/willorders/internal/domain"
	"github.com/willrp/willorders/internal/messaging/kafka"
	"github.com/willrp/willorders/internal/metrics"
	"github.com/willrp/willorders/internal/service/catalog"
	"github.com/willrp/willorders/internal/slug"
	"github.com/willrp/willorders/internal/storage/memory"
)

type serviceFixture struct {
	service *Service
	repo    interface {
		domain.OrderRepository
		OrderCount() int
		ProductCount() int
		LineCount() int
		TouchUpdatedAt(orderUUID uuid.UUID, at time.Time)
	}
	outbox interface {
		domain.OutboxRepository
		AllPending() []domain.OutboxMessage
	}
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	repo := memory.NewOrderRepository()
	outbox := memory.NewOutboxRepository()
	m := metrics.NewOrderMetricsWith(prometheus.NewRegistry())
	logger := log.WithField("component", "order-service-test")

	return &serviceFixture{
		service: NewService(repo, outbox, logger, m),
		repo:    repo,
		outbox:  outbox,
	}
}

func newUserSlug() string {
	return slug.Encode(uuid.New())
}

func (f *serviceFixture) mustInsert(t *testing.T, userSlug string, items []domain.ItemInput) string {
	t.Helper()

	require.NoError(t, f.service.Insert(userSlug, items))

	pending := f.outbox.AllPending()
	require.NotEmpty(t, pending)
	last := pending[len(pending)-1]
	require.Equal(t, string(kafka.EventTypeOrderPlaced), last.EventType)
	return last.AggregateID
}

func TestService_InsertAndSelectBySlug(t *testing.T) {
	f := newServiceFixture(t)
	userSlug := newUserSlug()

	orderSlug := f.mustInsert(t, userSlug, []domain.ItemInput{
		{ItemID: "espresso", Amount: 2},
		{ItemID: "churros", Amount: 3},
	})

	got, err := f.service.SelectBySlug(userSlug, orderSlug)
	require.NoError(t, err)
	require.Equal(t, 2, got.ProductTypes())
	require.Equal(t, 5, got.ItemsAmount())
	require.Len(t, got.Lines, 2)
	require.Equal(t, "churros", got.Lines[0].ItemID)
}

func TestService_SelectBySlug_BadSlug(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.service.SelectBySlug("not-a-slug", newUserSlug())
	require.ErrorIs(t, err, slug.ErrDecode)

	_, err = f.service.SelectBySlug(newUserSlug(), "short")
	require.ErrorIs(t, err, slug.ErrDecode)
}

func TestService_SelectBySlug_ForeignUser(t *testing.T) {
	f := newServiceFixture(t)
	userSlug := newUserSlug()

	orderSlug := f.mustInsert(t, userSlug, []domain.ItemInput{{ItemID: "espresso", Amount: 1}})

	_, err := f.service.SelectBySlug(newUserSlug(), orderSlug)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)

	_, err = f.service.SelectBySlug(userSlug, orderSlug)
	require.NoError(t, err)
}

func TestService_SelectByUserSlug_Pagination(t *testing.T) {
	f := newServiceFixture(t)
	userSlug := newUserSlug()

	base := time.Date(2024, time.May, 17, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		orderSlug := f.mustInsert(t, userSlug, []domain.ItemInput{{ItemID: "espresso", Amount: i + 1}})
		orderUUID, err := slug.Decode(orderSlug)
		require.NoError(t, err)
		f.repo.TouchUpdatedAt(orderUUID, base.Add(time.Duration(i)*time.Hour))
	}

	page, err := f.service.SelectByUserSlug(userSlug, 1, 2, nil)
	require.NoError(t, err)
	require.Equal(t, 5, page.Total)
	require.Equal(t, 3, page.Pages)
	require.Len(t, page.Orders, 2)
	// Свежие заказы идут первыми.
	require.True(t, page.Orders[0].UpdatedAt.After(page.Orders[1].UpdatedAt))

	last, err := f.service.SelectByUserSlug(userSlug, 3, 2, nil)
	require.NoError(t, err)
	require.Len(t, last.Orders, 1)
	require.Equal(t, 1, last.Orders[0].ItemsAmount())
}

func TestService_SelectByUserSlug_Datespan(t *testing.T) {
	f := newServiceFixture(t)
	userSlug := newUserSlug()

	days := []time.Time{
		time.Date(2024, time.May, 15, 10, 0, 0, 0, time.UTC),
		time.Date(2024, time.May, 16, 23, 59, 0, 0, time.UTC),
		time.Date(2024, time.May, 18, 0, 0, 0, 0, time.UTC),
	}
	for i, day := range days {
		orderSlug := f.mustInsert(t, userSlug, []domain.ItemInput{{ItemID: "espresso", Amount: i + 1}})
		orderUUID, err := slug.Decode(orderSlug)
		require.NoError(t, err)
		f.repo.TouchUpdatedAt(orderUUID, day)
	}

	// Конец диапазона включает весь день 16-го, но не 18-е.
	span := &domain.Datespan{
		Start: time.Date(2024, time.May, 15, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, time.May, 16, 0, 0, 0, 0, time.UTC),
	}
	page, err := f.service.SelectByUserSlug(userSlug, 1, 10, span)
	require.NoError(t, err)
	require.Equal(t, 2, page.Total)
	require.Equal(t, 1, page.Pages)
}

func TestService_SelectByUserSlug_NoContent(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.service.SelectByUserSlug(newUserSlug(), 1, 10, nil)
	require.ErrorIs(t, err, domain.ErrNoContent)
}

func TestService_SelectByUserSlug_PageSizeInvalid(t *testing.T) {
	f := newServiceFixture(t)
	userSlug := newUserSlug()
	f.mustInsert(t, userSlug, []domain.ItemInput{{ItemID: "espresso", Amount: 1}})

	_, err := f.service.SelectByUserSlug(userSlug, 1, 0, nil)
	require.ErrorIs(t, err, domain.ErrPageSizeInvalid)

	_, err = f.service.SelectByUserSlug(userSlug, 1, -3, nil)
	require.ErrorIs(t, err, domain.ErrPageSizeInvalid)
}

func TestService_SelectByUserSlug_NegativePageIsStorageFault(t *testing.T) {
	f := newServiceFixture(t)
	userSlug := newUserSlug()
	f.mustInsert(t, userSlug, []domain.ItemInput{{ItemID: "espresso", Amount: 1}})

	_, err := f.service.SelectByUserSlug(userSlug, 0, 10, nil)
	require.Error(t, err)
	require.NotErrorIs(t, err, domain.ErrNoContent)
	require.NotErrorIs(t, err, domain.ErrPageSizeInvalid)
	require.Contains(t, err.Error(), "OFFSET")
}

func TestService_Insert_DuplicateItems(t *testing.T) {
	f := newServiceFixture(t)
	userSlug := newUserSlug()

	err := f.service.Insert(userSlug, []domain.ItemInput{
		{ItemID: "espresso", Amount: 1},
		{ItemID: "espresso", Amount: 2},
	})
	require.ErrorIs(t, err, domain.ErrDuplicateOrderItem)
	require.Zero(t, f.repo.OrderCount())
	require.Empty(t, f.outbox.AllPending())
}

func TestService_Insert_StorageFaultSkipsEvent(t *testing.T) {
	f := newServiceFixture(t)

	err := f.service.Insert(newUserSlug(), []domain.ItemInput{{ItemID: "espresso", Amount: 0}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "check constraint")
	require.Zero(t, f.repo.OrderCount())
	require.Zero(t, f.repo.LineCount())
	require.Empty(t, f.outbox.AllPending())
}

func TestService_Insert_ReusesProducts(t *testing.T) {
	f := newServiceFixture(t)

	f.mustInsert(t, newUserSlug(), []domain.ItemInput{{ItemID: "espresso", Amount: 1}})
	f.mustInsert(t, newUserSlug(), []domain.ItemInput{
		{ItemID: "espresso", Amount: 2},
		{ItemID: "churros", Amount: 1},
	})

	require.Equal(t, 2, f.repo.OrderCount())
	require.Equal(t, 2, f.repo.ProductCount())
	require.Equal(t, 3, f.repo.LineCount())
}

func TestService_Insert_EventPayload(t *testing.T) {
	f := newServiceFixture(t)
	userSlug := newUserSlug()

	orderSlug := f.mustInsert(t, userSlug, []domain.ItemInput{
		{ItemID: "espresso", Amount: 2},
		{ItemID: "churros", Amount: 3},
	})

	pending := f.outbox.AllPending()
	require.Len(t, pending, 1)
	require.Equal(t, kafka.AggregateTypeOrder, pending[0].AggregateType)

	var event kafka.OrderEvent
	require.NoError(t, json.Unmarshal(pending[0].Payload, &event))
	require.Equal(t, kafka.EventTypeOrderPlaced, event.EventType)
	require.Equal(t, orderSlug, event.OrderSlug)
	require.Equal(t, userSlug, event.UserSlug)
	require.Equal(t, 2, event.ProductTypes)
	require.Equal(t, 5, event.ItemsAmount)
}

func TestService_Delete(t *testing.T) {
	f := newServiceFixture(t)
	userSlug := newUserSlug()

	orderSlug := f.mustInsert(t, userSlug, []domain.ItemInput{
		{ItemID: "espresso", Amount: 2},
		{ItemID: "churros", Amount: 3},
	})

	require.NoError(t, f.service.Delete(userSlug, orderSlug))
	require.Zero(t, f.repo.OrderCount())
	require.Zero(t, f.repo.LineCount())
	// Товары переживают удаление заказа.
	require.Equal(t, 2, f.repo.ProductCount())

	pending := f.outbox.AllPending()
	require.Len(t, pending, 2)
	require.Equal(t, string(kafka.EventTypeOrderDeleted), pending[1].EventType)

	// Повторное удаление сообщает об отсутствии и не рождает событий.
	require.ErrorIs(t, f.service.Delete(userSlug, orderSlug), domain.ErrOrderNotFound)
	require.Len(t, f.outbox.AllPending(), 2)
}

func TestService_Delete_ForeignUser(t *testing.T) {
	f := newServiceFixture(t)
	userSlug := newUserSlug()

	orderSlug := f.mustInsert(t, userSlug, []domain.ItemInput{{ItemID: "espresso", Amount: 1}})

	require.ErrorIs(t, f.service.Delete(newUserSlug(), orderSlug), domain.ErrOrderNotFound)
	require.Equal(t, 1, f.repo.OrderCount())
}

func TestService_Delete_BadSlug(t *testing.T) {
	f := newServiceFixture(t)

	require.ErrorIs(t, f.service.Delete("??", newUserSlug()), slug.ErrDecode)
	require.ErrorIs(t, f.service.Delete(newUserSlug(), "??"), slug.ErrDecode)
}

func TestService_TotalBySlug(t *testing.T) {
	repo := memory.NewOrderRepository()
	gateway := catalog.NewMockGateway(map[string]int64{
		"espresso": 350,
		"churros":  550,
	})
	m := metrics.NewOrderMetricsWith(prometheus.NewRegistry())
	svc := NewServiceWithCatalog(repo, memory.NewOutboxRepository(), gateway, nil, m)

	userSlug := newUserSlug()
	require.NoError(t, svc.Insert(userSlug, []domain.ItemInput{
		{ItemID: "espresso", Amount: 2},
		{ItemID: "churros", Amount: 3},
	}))

	got, err := svc.SelectByUserSlug(userSlug, 1, 1, nil)
	require.NoError(t, err)
	orderSlug := slug.Encode(got.Orders[0].UUID)

	order, total, err := svc.TotalBySlug(userSlug, orderSlug)
	require.NoError(t, err)
	require.Equal(t, int64(2*350+3*550), total)
	require.Equal(t, 5, order.ItemsAmount())

	// Отказ каталога не прячет заказ.
	gateway.TotalErr = errTotal
	order, total, err = svc.TotalBySlug(userSlug, orderSlug)
	require.ErrorIs(t, err, errTotal)
	require.Zero(t, total)
	require.Equal(t, 5, order.ItemsAmount())
}

var errTotal = errors.New("catalog unavailable")

func TestService_NilOutboxIsAllowed(t *testing.T) {
	repo := memory.NewOrderRepository()
	m := metrics.NewOrderMetricsWith(prometheus.NewRegistry())
	svc := NewService(repo, nil, nil, m)

	require.NoError(t, svc.Insert(newUserSlug(), []domain.ItemInput{{ItemID: "espresso", Amount: 1}}))
	require.Equal(t, 1, repo.OrderCount())
}
