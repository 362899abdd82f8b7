package db

import (
	"context"
	"database/sql"
	"fulfillment-service/app/domain"
	"log/slog"
)

type inventoryTransactionRepository struct {
	conn *sql.DB
}

func NewInventoryTransactionRepository(db *sql.DB) domain.InventoryTransactionRepository {
	return &inventoryTransactionRepository{db}
}

func (r *inventoryTransactionRepository) Append(ctx context.Context, txn *domain.InventoryTransaction, tx *sql.Tx) error {
	query := `INSERT INTO inventory_transactions (inventory_id, type, quantity, reference_id, actor)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id, created_at`

	err := tx.QueryRowContext(ctx, query, txn.InventoryID, txn.Type, txn.Quantity, txn.ReferenceID, txn.Actor).
		Scan(&txn.ID, &txn.CreatedAt)
	if err != nil {
		slog.ErrorContext(ctx, "[inventoryTransactionRepository] Append", "queryRowContext", err)
		return err
	}

	return nil
}

func (r *inventoryTransactionRepository) SumByType(ctx context.Context, inventoryID int64) (map[domain.TransactionType]int64, error) {
	query := `SELECT type, COALESCE(SUM(quantity), 0) FROM inventory_transactions
	WHERE inventory_id = $1 GROUP BY type`

	rows, err := r.conn.QueryContext(ctx, query, inventoryID)
	if err != nil {
		slog.ErrorContext(ctx, "[inventoryTransactionRepository] SumByType", "queryContext", err)
		return nil, err
	}
	defer rows.Close()

	sums := make(map[domain.TransactionType]int64)
	for rows.Next() {
		var txnType domain.TransactionType
		var total int64
		if err := rows.Scan(&txnType, &total); err != nil {
			slog.ErrorContext(ctx, "[inventoryTransactionRepository] SumByType", "scan", err)
			return nil, err
		}
		sums[txnType] = total
	}

	if err := rows.Err(); err != nil {
		slog.ErrorContext(ctx, "[inventoryTransactionRepository] SumByType", "rowError", err)
		return nil, err
	}

	return sums, nil
}
