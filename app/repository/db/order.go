package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"fulfillment-service/app/domain"
	"fulfillment-service/pkg"
	"log/slog"

	"github.com/gofrs/uuid/v5"
)

type orderRepository struct {
	conn *sql.DB
}

func NewOrderRepository(db *sql.DB) domain.OrderRepository {
	return &orderRepository{db}
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const orderColumns = `id, order_number, user_id, status, total_amount, created_at, updated_at`

func (r *orderRepository) Create(ctx context.Context, order *domain.Order, tx *sql.Tx) error {
	query := `INSERT INTO orders (id, order_number, user_id, status, total_amount, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $6)`

	_, err := tx.ExecContext(ctx, query, order.ID, order.OrderNumber, order.UserID, order.Status, order.TotalAmount, order.CreatedAt)
	if err != nil {
		slog.ErrorContext(ctx, "[orderRepository] Create", "insertOrder", err)
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: order %s", domain.ErrAlreadyExists, order.ID)
		}
		return err
	}

	itemQuery := `INSERT INTO order_items (order_id, position, product_id, quantity, unit_price) VALUES ($1, $2, $3, $4, $5)`
	for i, item := range order.Items {
		if _, err := tx.ExecContext(ctx, itemQuery, order.ID, i, item.ProductID, item.Quantity, item.UnitPrice); err != nil {
			slog.ErrorContext(ctx, "[orderRepository] Create", "insertItem", err)
			return err
		}
	}
	order.UpdatedAt = order.CreatedAt

	return nil
}

func (r *orderRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return r.get(ctx, r.conn, "GetByID", query, id)
}

func (r *orderRepository) LockForUpdate(ctx context.Context, id uuid.UUID, tx *sql.Tx) (domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`
	return r.get(ctx, tx, "LockForUpdate", query, id)
}

func (r *orderRepository) get(ctx context.Context, q queryer, method, query string, id uuid.UUID) (domain.Order, error) {
	var order domain.Order
	err := q.QueryRowContext(ctx, query, id).Scan(&order.ID, &order.OrderNumber, &order.UserID, &order.Status,
		&order.TotalAmount, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return order, domain.ErrNotFound
		}
		slog.ErrorContext(ctx, "[orderRepository] "+method, "queryRowContext", err)
		return order, err
	}

	rows, err := q.QueryContext(ctx, `SELECT product_id, quantity, unit_price FROM order_items WHERE order_id = $1 ORDER BY position`, id)
	if err != nil {
		slog.ErrorContext(ctx, "[orderRepository] "+method, "queryItems", err)
		return order, err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.UnitPrice); err != nil {
			slog.ErrorContext(ctx, "[orderRepository] "+method, "scanItem", err)
			return order, err
		}
		order.Items = append(order.Items, item)
	}

	if err := rows.Err(); err != nil {
		slog.ErrorContext(ctx, "[orderRepository] "+method, "rowError", err)
		return order, err
	}

	return order, nil
}

func (r *orderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus, tx *sql.Tx) error {
	query := `UPDATE orders SET status = $1, updated_at = now() WHERE id = $2`

	result, err := tx.ExecContext(ctx, query, status, id)
	if err != nil {
		slog.ErrorContext(ctx, "[orderRepository] UpdateStatus", "execContext", err)
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.ErrorContext(ctx, "[orderRepository] UpdateStatus", "rowsAffected", err)
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}

	return nil
}

func (r *orderRepository) AppendHistory(ctx context.Context, history *domain.OrderStatusHistory, tx *sql.Tx) error {
	query := `INSERT INTO order_status_history (order_id, status, notes) VALUES ($1, $2, $3) RETURNING id, created_at`

	err := tx.QueryRowContext(ctx, query, history.OrderID, history.Status, history.Notes).Scan(&history.ID, &history.CreatedAt)
	if err != nil {
		slog.ErrorContext(ctx, "[orderRepository] AppendHistory", "queryRowContext", err)
		return err
	}

	return nil
}

func (r *orderRepository) ListHistory(ctx context.Context, orderID uuid.UUID) ([]domain.OrderStatusHistory, error) {
	query := `SELECT id, order_id, status, notes, created_at FROM order_status_history WHERE order_id = $1 ORDER BY id`

	rows, err := r.conn.QueryContext(ctx, query, orderID)
	if err != nil {
		slog.ErrorContext(ctx, "[orderRepository] ListHistory", "queryContext", err)
		return nil, err
	}
	defer rows.Close()

	var history []domain.OrderStatusHistory
	for rows.Next() {
		var h domain.OrderStatusHistory
		if err := rows.Scan(&h.ID, &h.OrderID, &h.Status, &h.Notes, &h.CreatedAt); err != nil {
			slog.ErrorContext(ctx, "[orderRepository] ListHistory", "scan", err)
			return nil, err
		}
		history = append(history, h)
	}

	if err := rows.Err(); err != nil {
		slog.ErrorContext(ctx, "[orderRepository] ListHistory", "rowError", err)
		return nil, err
	}

	return history, nil
}

func (r *orderRepository) WithTransaction(ctx context.Context, fn func(context.Context, *sql.Tx) error) error {
	return pkg.WithTransaction(ctx, r.conn, "orderRepository", fn)
}
