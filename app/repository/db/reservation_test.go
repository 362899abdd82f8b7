package db

import (
	"context"
	"fulfillment-service/app/domain"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reservationRowColumns = []string{"id", "product_id", "order_id", "quantity", "status", "expires_at", "created_at", "updated_at"}

func TestReservationRepository_GetByOrderAndProduct(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewReservationRepository(conn)
	tx := beginTx(t, conn, mock)
	orderID := uuid.Must(uuid.NewV4())
	id := uuid.Must(uuid.NewV4())
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE order_id = $1 AND product_id = $2")).
		WithArgs(orderID, int64(3)).
		WillReturnRows(sqlmock.NewRows(reservationRowColumns).
			AddRow(id.String(), 3, orderID.String(), 2, "RESERVED", now.Add(time.Minute), now, now))

	r, err := repo.GetByOrderAndProduct(context.Background(), orderID, 3, tx)
	require.NoError(t, err)
	assert.Equal(t, id, r.ID)
	assert.Equal(t, orderID, r.OrderID)
	assert.Equal(t, domain.ReservationStatusReserved, r.Status)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE order_id = $1 AND product_id = $2")).
		WithArgs(orderID, int64(4)).
		WillReturnRows(sqlmock.NewRows(reservationRowColumns))

	_, err = repo.GetByOrderAndProduct(context.Background(), orderID, 4, tx)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationRepository_ListExpired(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewReservationRepository(conn)
	now := time.Now()

	t.Run("first page", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("WHERE status = 'RESERVED' AND expires_at < $1 AND (expires_at, id) > ($2, $3)")).
			WithArgs(now, time.Time{}, uuid.Nil, 50).
			WillReturnRows(sqlmock.NewRows(reservationRowColumns).
				AddRow(uuid.Must(uuid.NewV4()).String(), 1, uuid.Must(uuid.NewV4()).String(), 1, "RESERVED", now.Add(-time.Minute), now, now).
				AddRow(uuid.Must(uuid.NewV4()).String(), 2, uuid.Must(uuid.NewV4()).String(), 4, "RESERVED", now.Add(-time.Second), now, now))

		expired, err := repo.ListExpired(context.Background(), now, domain.ExpiryCursor{}, 50)
		require.NoError(t, err)
		assert.Len(t, expired, 2)
		assert.Equal(t, int64(4), expired[1].Quantity)
	})

	t.Run("continues after the cursor", func(t *testing.T) {
		cursor := domain.ExpiryCursor{ExpiresAt: now.Add(-time.Second), ID: uuid.Must(uuid.NewV4())}
		mock.ExpectQuery(regexp.QuoteMeta("ORDER BY expires_at, id")).
			WithArgs(now, cursor.ExpiresAt, cursor.ID, 2).
			WillReturnRows(sqlmock.NewRows(reservationRowColumns))

		expired, err := repo.ListExpired(context.Background(), now, cursor, 2)
		require.NoError(t, err)
		assert.Empty(t, expired)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationRepository_UpdateStatusMissing(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewReservationRepository(conn)
	tx := beginTx(t, conn, mock)
	id := uuid.Must(uuid.NewV4())

	mock.ExpectExec(regexp.QuoteMeta("UPDATE inventory_reservations SET status = $1")).
		WithArgs(domain.ReservationStatusReleased, id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), id, domain.ReservationStatusReleased, tx)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
