package memory_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/willrp/willorders/internal/domain"
	"github.com/willrp/willorders/internal/storage/memory"
)

func newOrder(user uuid.UUID, lines ...domain.OrderLine) domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		UUID:      uuid.New(),
		UserUUID:  user,
		Lines:     lines,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestOrderRepository_CreateGet(t *testing.T) {
	repo := memory.NewOrderRepository()
	user := uuid.New()
	order := newOrder(user, domain.OrderLine{ItemID: "p1", Amount: 2}, domain.OrderLine{ItemID: "p2", Amount: 3})

	if err := repo.Create(order); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	stored, err := repo.GetByUser(user, order.UUID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.UUID != order.UUID || stored.UserUUID != user {
		t.Fatalf("unexpected order identity: %+v", stored)
	}
	if len(stored.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(stored.Lines))
	}
	if stored.ID == 0 {
		t.Fatal("expected assigned internal id")
	}
}

func TestOrderRepository_GetNotFound(t *testing.T) {
	repo := memory.NewOrderRepository()
	user := uuid.New()
	order := newOrder(user, domain.OrderLine{ItemID: "p1", Amount: 1})
	if err := repo.Create(order); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Чужой владелец не видит заказ, даже зная его идентификатор.
	if _, err := repo.GetByUser(uuid.New(), order.UUID); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound for foreign user, got %v", err)
	}
	if _, err := repo.GetByUser(user, uuid.New()); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound for unknown order, got %v", err)
	}
}

func TestOrderRepository_ProductReuse(t *testing.T) {
	repo := memory.NewOrderRepository()
	user := uuid.New()

	first := newOrder(user, domain.OrderLine{ItemID: "p1", Amount: 2}, domain.OrderLine{ItemID: "p2", Amount: 3})
	if err := repo.Create(first); err != nil {
		t.Fatalf("create first: %v", err)
	}
	if repo.OrderCount() != 1 || repo.ProductCount() != 2 || repo.LineCount() != 2 {
		t.Fatalf("unexpected counts after first insert: orders=%d products=%d lines=%d",
			repo.OrderCount(), repo.ProductCount(), repo.LineCount())
	}

	// Повторная ссылка на p1 не создаёт дубликат товара.
	second := newOrder(user, domain.OrderLine{ItemID: "p1", Amount: 1})
	if err := repo.Create(second); err != nil {
		t.Fatalf("create second: %v", err)
	}
	if repo.OrderCount() != 2 || repo.ProductCount() != 2 || repo.LineCount() != 3 {
		t.Fatalf("unexpected counts after second insert: orders=%d products=%d lines=%d",
			repo.OrderCount(), repo.ProductCount(), repo.LineCount())
	}
}

func TestOrderRepository_CreateConstraints(t *testing.T) {
	repo := memory.NewOrderRepository()
	user := uuid.New()

	bad := newOrder(user, domain.OrderLine{ItemID: "p1", Amount: 0})
	if err := repo.Create(bad); err == nil || !strings.Contains(err.Error(), "check constraint") {
		t.Fatalf("expected check constraint failure, got %v", err)
	}
	if repo.OrderCount() != 0 || repo.LineCount() != 0 {
		t.Fatal("failed insert must not leave partial state")
	}

	dup := newOrder(user,
		domain.OrderLine{ItemID: "p1", Amount: 1},
		domain.OrderLine{ItemID: "p1", Amount: 2},
	)
	if err := repo.Create(dup); err == nil || !strings.Contains(err.Error(), "unique constraint") {
		t.Fatalf("expected unique constraint failure, got %v", err)
	}
	if repo.OrderCount() != 0 || repo.ProductCount() != 0 {
		t.Fatal("failed insert must not leave partial state")
	}
}

func TestOrderRepository_ListByUserOrderingAndPaging(t *testing.T) {
	repo := memory.NewOrderRepository()
	user := uuid.New()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	uuids := make([]uuid.UUID, 0, 5)
	for i := 0; i < 5; i++ {
		order := newOrder(user, domain.OrderLine{ItemID: "p1", Amount: 1})
		if err := repo.Create(order); err != nil {
			t.Fatalf("create: %v", err)
		}
		repo.TouchUpdatedAt(order.UUID, base.Add(time.Duration(i)*time.Hour))
		uuids = append(uuids, order.UUID)
	}

	window, total, err := repo.ListByUser(user, domain.ListFilter{Page: 1, PageSize: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 5 {
		t.Fatalf("expected total 5, got %d", total)
	}
	if len(window) != 2 {
		t.Fatalf("expected window of 2, got %d", len(window))
	}
	// Самый свежий по updated_at — первым.
	if window[0].UUID != uuids[4] || window[1].UUID != uuids[3] {
		t.Fatalf("unexpected ordering: %v then %v", window[0].UUID, window[1].UUID)
	}

	last, _, err := repo.ListByUser(user, domain.ListFilter{Page: 3, PageSize: 2})
	if err != nil {
		t.Fatalf("list last page: %v", err)
	}
	if len(last) != 1 || last[0].UUID != uuids[0] {
		t.Fatalf("unexpected last page: %+v", last)
	}
}

func TestOrderRepository_ListByUserNegativeOffset(t *testing.T) {
	repo := memory.NewOrderRepository()
	user := uuid.New()
	if err := repo.Create(newOrder(user, domain.OrderLine{ItemID: "p1", Amount: 1})); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, _, err := repo.ListByUser(user, domain.ListFilter{Page: 0, PageSize: 10}); err == nil {
		t.Fatal("expected error for negative offset")
	}
}

func TestOrderRepository_ListByUserDatespan(t *testing.T) {
	repo := memory.NewOrderRepository()
	user := uuid.New()

	onEnd := newOrder(user, domain.OrderLine{ItemID: "p1", Amount: 1})
	afterEnd := newOrder(user, domain.OrderLine{ItemID: "p2", Amount: 1})
	if err := repo.Create(onEnd); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(afterEnd); err != nil {
		t.Fatalf("create: %v", err)
	}

	end := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	// Обновление в последнюю секунду дня End должно попасть в выборку.
	repo.TouchUpdatedAt(onEnd.UUID, end.Add(23*time.Hour+59*time.Minute+59*time.Second))
	repo.TouchUpdatedAt(afterEnd.UUID, end.AddDate(0, 0, 1))

	span := &domain.Datespan{Start: end.AddDate(0, 0, -5), End: end}
	window, total, err := repo.ListByUser(user, domain.ListFilter{Page: 1, PageSize: 10, Span: span})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || len(window) != 1 || window[0].UUID != onEnd.UUID {
		t.Fatalf("expected only the end-day order, got total=%d window=%+v", total, window)
	}
}

func TestOrderRepository_DeleteCascades(t *testing.T) {
	repo := memory.NewOrderRepository()
	user := uuid.New()
	order := newOrder(user, domain.OrderLine{ItemID: "p1", Amount: 2}, domain.OrderLine{ItemID: "p2", Amount: 3})
	if err := repo.Create(order); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := repo.Delete(user, order.UUID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if repo.OrderCount() != 0 || repo.LineCount() != 0 {
		t.Fatalf("expected cascade delete of lines, got orders=%d lines=%d", repo.OrderCount(), repo.LineCount())
	}
	// Товары переживают удаление заказа.
	if repo.ProductCount() != 2 {
		t.Fatalf("products must survive order deletion, got %d", repo.ProductCount())
	}

	if err := repo.Delete(user, order.UUID); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound on repeated delete, got %v", err)
	}
}
