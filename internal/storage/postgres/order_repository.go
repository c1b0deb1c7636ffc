package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/willrp/willorders/internal/domain"
)

const (
	opTimeout = 5 * time.Second
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

// GetByUser возвращает единственный заказ с совпадающими владельцем и
// идентификатором. Уникальность uuid гарантирует не больше одной строки.
func (r *orderRepository) GetByUser(userUUID, orderUUID uuid.UUID) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var order domain.Order
	err := r.db.QueryRowContext(ctx, `
		SELECT id, uuid, user_uuid, created_at, updated_at
		FROM orders
		WHERE user_uuid = $1 AND uuid = $2
	`, userUUID, orderUUID).Scan(
		&order.ID, &order.UUID, &order.UserUUID, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	lines, err := r.loadLines(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Lines = lines

	return order, nil
}

// ListByUser возвращает окно заказов пользователя (updated_at по убыванию,
// вторичный ключ id) и общее число строк без учёта окна. Отрицательное
// смещение не клампится: PostgreSQL отвечает собственной ошибкой.
func (r *orderRepository) ListByUser(userUUID uuid.UUID, filter domain.ListFilter) ([]domain.Order, int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	where := `WHERE user_uuid = $1`
	args := []any{userUUID}
	if filter.Span != nil {
		start, end := filter.Span.Bounds()
		where += ` AND updated_at >= $2 AND updated_at < $3`
		args = append(args, start, end)
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders `+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	pageArgs := append(args, filter.PageSize, filter.Offset())
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, uuid, user_uuid, created_at, updated_at
		FROM orders %s
		ORDER BY updated_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2), pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, filter.PageSize)
	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(
			&order.ID, &order.UUID, &order.UserUUID, &order.CreatedAt, &order.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate order rows: %w", err)
	}

	for i := range orders {
		lines, err := r.loadLines(ctx, orders[i].ID)
		if err != nil {
			return nil, 0, err
		}
		orders[i].Lines = lines
	}

	return orders, total, nil
}

// Create сохраняет заказ, недостающие товары и все позиции одной транзакцией.
// При любой ошибке хранилища транзакция откатывается целиком: частично
// созданный заказ не наблюдаем.
func (r *orderRepository) Create(order domain.Order) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var orderID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (uuid, user_uuid, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, order.UUID, order.UserUUID, order.CreatedAt, order.UpdatedAt).Scan(&orderID)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for _, line := range order.Lines {
		var productID int64
		productID, err = r.findOrCreateProduct(ctx, tx, line.ItemID)
		if err != nil {
			return err
		}

		if _, err = tx.ExecContext(ctx, `
			INSERT INTO order_product (order_id, product_id, amount)
			VALUES ($1, $2, $3)
		`, orderID, productID, line.Amount); err != nil {
			return fmt.Errorf("insert order line: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create order: %w", err)
	}

	return nil
}

// Delete удаляет заказ по паре (владелец, идентификатор). Позиции снимает
// FK ON DELETE CASCADE, без явного кода.
func (r *orderRepository) Delete(userUUID, orderUUID uuid.UUID) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		DELETE FROM orders
		WHERE user_uuid = $1 AND uuid = $2
	`, userUUID, orderUUID)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		err = domain.ErrOrderNotFound
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete order: %w", err)
	}

	return nil
}

// findOrCreateProduct реализует ленивый upsert товара внутри транзакции
// заказа. Гонка конкурентных вставок одного item_id разрешается через
// ON CONFLICT DO NOTHING: проигравший перечитывает уже существующую строку
// вместо отката всей транзакции.
func (r *orderRepository) findOrCreateProduct(ctx context.Context, tx *sql.Tx, itemID string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM products WHERE item_id = $1`, itemID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("select product: %w", err)
	}

	now := time.Now().UTC()
	err = tx.QueryRowContext(ctx, `
		INSERT INTO products (uuid, item_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (item_id) DO NOTHING
		RETURNING id
	`, uuid.New(), itemID, now, now).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("insert product: %w", err)
	}

	// Конкурентная транзакция успела первой — строка уже есть.
	if err := tx.QueryRowContext(ctx, `SELECT id FROM products WHERE item_id = $1`, itemID).Scan(&id); err != nil {
		return 0, fmt.Errorf("reread product after conflict: %w", err)
	}
	return id, nil
}

// loadLines собирает позиции заказа; порядок по item_id стабилен.
func (r *orderRepository) loadLines(ctx context.Context, orderID int64) ([]domain.OrderLine, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.item_id, op.amount
		FROM order_product op
		JOIN products p ON p.id = op.product_id
		WHERE op.order_id = $1
		ORDER BY p.item_id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order lines: %w", err)
	}
	defer rows.Close()

	lines := make([]domain.OrderLine, 0)
	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.ItemID, &line.Amount); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order lines: %w", err)
	}

	return lines, nil
}

// IsUniqueViolation сообщает, вызвана ли ошибка нарушением уникального
// ограничения (код 23505). Вызывающий слой вправе считать такую ошибку
// вставки повторяемой: при повторе товар уже существует и будет переиспользован.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.OrderRepository = (*orderRepository)(nil)
