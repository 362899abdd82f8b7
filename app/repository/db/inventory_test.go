package db

import (
	"context"
	"database/sql"
	"fulfillment-service/app/domain"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, mock
}

func beginTx(t *testing.T, conn *sql.DB, mock sqlmock.Sqlmock) *sql.Tx {
	t.Helper()
	mock.ExpectBegin()
	tx, err := conn.Begin()
	require.NoError(t, err)
	return tx
}

var inventoryRowColumns = []string{"id", "product_id", "available_stock", "reserved_stock", "version", "created_at", "updated_at"}

func TestInventoryRepository_LockForUpdate(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewInventoryRepository(conn)
	tx := beginTx(t, conn, mock)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM inventories WHERE product_id = $1 FOR UPDATE")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(inventoryRowColumns).AddRow(1, 7, 10, 2, 3, now, now))

	inv, err := repo.LockForUpdate(context.Background(), 7, tx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), inv.AvailableStock)
	assert.Equal(t, int64(2), inv.ReservedStock)
	assert.Equal(t, int64(3), inv.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInventoryRepository_GetByProductIDNotFound(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewInventoryRepository(conn)

	mock.ExpectQuery(regexp.QuoteMeta("FROM inventories WHERE product_id = $1")).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows(inventoryRowColumns))

	_, err := repo.GetByProductID(context.Background(), 99)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInventoryRepository_UpdateStock(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewInventoryRepository(conn)
	tx := beginTx(t, conn, mock)

	t.Run("bumps version", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("UPDATE inventories")).
			WithArgs(int64(8), int64(2), int64(1), int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"version", "updated_at"}).AddRow(4, time.Now()))

		inv := &domain.Inventory{ID: 1, AvailableStock: 8, ReservedStock: 2, Version: 3}
		require.NoError(t, repo.UpdateStock(context.Background(), inv, tx))
		assert.Equal(t, int64(4), inv.Version)
	})

	t.Run("stale version", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("UPDATE inventories")).
			WithArgs(int64(8), int64(2), int64(1), int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"version", "updated_at"}))

		inv := &domain.Inventory{ID: 1, AvailableStock: 8, ReservedStock: 2, Version: 3}
		err := repo.UpdateStock(context.Background(), inv, tx)
		assert.ErrorIs(t, err, domain.ErrVersionMismatch)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInventoryRepository_CreateDuplicate(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewInventoryRepository(conn)
	tx := beginTx(t, conn, mock)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO inventories")).
		WithArgs(int64(5), int64(10), int64(0)).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Create(context.Background(), &domain.Inventory{ProductID: 5, AvailableStock: 10}, tx)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestInventoryTransactionRepository_SumByType(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewInventoryTransactionRepository(conn)

	mock.ExpectQuery(regexp.QuoteMeta("FROM inventory_transactions")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"type", "sum"}).
			AddRow("IMPORT", 10).
			AddRow("RESERVE", -3))

	sums, err := repo.SumByType(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), sums[domain.TransactionTypeImport])
	assert.Equal(t, int64(-3), sums[domain.TransactionTypeReserve])
	assert.Zero(t, sums[domain.TransactionTypeConfirm])
}
