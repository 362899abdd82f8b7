package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"fulfillment-service/app/domain"
	"log/slog"
	"time"

	"github.com/gofrs/uuid/v5"
)

type reservationRepository struct {
	conn *sql.DB
}

func NewReservationRepository(db *sql.DB) domain.ReservationRepository {
	return &reservationRepository{db}
}

const reservationColumns = `id, product_id, order_id, quantity, status, expires_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner, r *domain.Reservation) error {
	return row.Scan(&r.ID, &r.ProductID, &r.OrderID, &r.Quantity, &r.Status, &r.ExpiresAt, &r.CreatedAt, &r.UpdatedAt)
}

func (r *reservationRepository) Create(ctx context.Context, reservation *domain.Reservation, tx *sql.Tx) error {
	query := `INSERT INTO inventory_reservations (id, product_id, order_id, quantity, status, expires_at, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`

	_, err := tx.ExecContext(ctx, query, reservation.ID, reservation.ProductID, reservation.OrderID,
		reservation.Quantity, reservation.Status, reservation.ExpiresAt, reservation.CreatedAt)
	if err != nil {
		slog.ErrorContext(ctx, "[reservationRepository] Create", "execContext", err)
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: live reservation for order %s product %d", domain.ErrAlreadyExists, reservation.OrderID, reservation.ProductID)
		}
		return err
	}
	reservation.UpdatedAt = reservation.CreatedAt

	return nil
}

func (r *reservationRepository) GetByID(ctx context.Context, id uuid.UUID, tx *sql.Tx) (domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM inventory_reservations WHERE id = $1`

	var reservation domain.Reservation
	err := scanReservation(tx.QueryRowContext(ctx, query, id), &reservation)
	if err != nil {
		slog.ErrorContext(ctx, "[reservationRepository] GetByID", "queryRowContext", err)
		if errors.Is(err, sql.ErrNoRows) {
			return reservation, domain.ErrNotFound
		}
		return reservation, err
	}

	return reservation, nil
}

// GetByOrderAndProduct prefers a live reservation, then a confirmed one, then the latest released one.
func (r *reservationRepository) GetByOrderAndProduct(ctx context.Context, orderID uuid.UUID, productID int64, tx *sql.Tx) (domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM inventory_reservations
	WHERE order_id = $1 AND product_id = $2
	ORDER BY CASE status WHEN 'RESERVED' THEN 0 WHEN 'CONFIRMED' THEN 1 ELSE 2 END, created_at DESC
	LIMIT 1`

	var reservation domain.Reservation
	err := scanReservation(tx.QueryRowContext(ctx, query, orderID, productID), &reservation)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return reservation, domain.ErrNotFound
		}
		slog.ErrorContext(ctx, "[reservationRepository] GetByOrderAndProduct", "queryRowContext", err)
		return reservation, err
	}

	return reservation, nil
}

func (r *reservationRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ReservationStatus, tx *sql.Tx) error {
	query := `UPDATE inventory_reservations SET status = $1, updated_at = now() WHERE id = $2`

	result, err := tx.ExecContext(ctx, query, status, id)
	if err != nil {
		slog.ErrorContext(ctx, "[reservationRepository] UpdateStatus", "execContext", err)
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.ErrorContext(ctx, "[reservationRepository] UpdateStatus", "rowsAffected", err)
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}

	return nil
}

func (r *reservationRepository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM inventory_reservations WHERE order_id = $1 ORDER BY created_at`
	return r.list(ctx, "ListByOrderID", query, orderID)
}

func (r *reservationRepository) ListExpired(ctx context.Context, now time.Time, after domain.ExpiryCursor, limit int) ([]domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM inventory_reservations
	WHERE status = 'RESERVED' AND expires_at < $1 AND (expires_at, id) > ($2, $3)
	ORDER BY expires_at, id
	LIMIT $4`
	return r.list(ctx, "ListExpired", query, now, after.ExpiresAt, after.ID, limit)
}

func (r *reservationRepository) list(ctx context.Context, method, query string, args ...any) ([]domain.Reservation, error) {
	rows, err := r.conn.QueryContext(ctx, query, args...)
	if err != nil {
		slog.ErrorContext(ctx, "[reservationRepository] "+method, "queryContext", err)
		return nil, err
	}
	defer rows.Close()

	var reservations []domain.Reservation
	for rows.Next() {
		var reservation domain.Reservation
		if err := scanReservation(rows, &reservation); err != nil {
			slog.ErrorContext(ctx, "[reservationRepository] "+method, "scan", err)
			return nil, err
		}
		reservations = append(reservations, reservation)
	}

	if err := rows.Err(); err != nil {
		slog.ErrorContext(ctx, "[reservationRepository] "+method, "rowError", err)
		return nil, err
	}

	return reservations, nil
}

func (r *reservationRepository) SumReservedByProductID(ctx context.Context, productID int64) (int64, error) {
	query := `SELECT COALESCE(SUM(quantity), 0) FROM inventory_reservations WHERE product_id = $1 AND status = 'RESERVED'`

	var total int64
	if err := r.conn.QueryRowContext(ctx, query, productID).Scan(&total); err != nil {
		slog.ErrorContext(ctx, "[reservationRepository] SumReservedByProductID", "queryRowContext", err)
		return 0, err
	}

	return total, nil
}
