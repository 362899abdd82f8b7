package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"fulfillment-service/app/domain"
	"fulfillment-service/pkg"
	"log/slog"
)

type inventoryRepository struct {
	conn *sql.DB
}

func NewInventoryRepository(db *sql.DB) domain.InventoryRepository {
	return &inventoryRepository{db}
}

const inventoryColumns = `id, product_id, available_stock, reserved_stock, version, created_at, updated_at`

func scanInventory(row rowScanner, inv *domain.Inventory) error {
	return row.Scan(&inv.ID, &inv.ProductID, &inv.AvailableStock, &inv.ReservedStock,
		&inv.Version, &inv.CreatedAt, &inv.UpdatedAt)
}

func (r *inventoryRepository) Create(ctx context.Context, inventory *domain.Inventory, tx *sql.Tx) error {
	query := `INSERT INTO inventories (product_id, available_stock, reserved_stock)
	VALUES ($1, $2, $3)
	RETURNING id, version, created_at, updated_at`

	err := tx.QueryRowContext(ctx, query, inventory.ProductID, inventory.AvailableStock, inventory.ReservedStock).
		Scan(&inventory.ID, &inventory.Version, &inventory.CreatedAt, &inventory.UpdatedAt)
	if err != nil {
		slog.ErrorContext(ctx, "[inventoryRepository] Create", "queryRowContext", err)
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: inventory for product %d", domain.ErrAlreadyExists, inventory.ProductID)
		}
		return err
	}

	return nil
}

func (r *inventoryRepository) GetByProductID(ctx context.Context, productID int64) (domain.Inventory, error) {
	query := `SELECT ` + inventoryColumns + ` FROM inventories WHERE product_id = $1`

	var inventory domain.Inventory
	err := scanInventory(r.conn.QueryRowContext(ctx, query, productID), &inventory)
	if err != nil {
		slog.ErrorContext(ctx, "[inventoryRepository] GetByProductID", "queryRowContext", err)
		if errors.Is(err, sql.ErrNoRows) {
			return inventory, domain.ErrNotFound
		}
		return inventory, err
	}

	return inventory, nil
}

// LockForUpdate takes the row lock that serializes every stock mutation of one product.
func (r *inventoryRepository) LockForUpdate(ctx context.Context, productID int64, tx *sql.Tx) (domain.Inventory, error) {
	query := `SELECT ` + inventoryColumns + ` FROM inventories WHERE product_id = $1 FOR UPDATE`

	var inventory domain.Inventory
	err := scanInventory(tx.QueryRowContext(ctx, query, productID), &inventory)
	if err != nil {
		slog.ErrorContext(ctx, "[inventoryRepository] LockForUpdate", "queryRowContext", err)
		if errors.Is(err, sql.ErrNoRows) {
			return inventory, domain.ErrNotFound
		}
		return inventory, err
	}

	return inventory, nil
}

// UpdateStock writes both counters guarded by the version token and bumps it.
func (r *inventoryRepository) UpdateStock(ctx context.Context, inventory *domain.Inventory, tx *sql.Tx) error {
	query := `UPDATE inventories
	SET available_stock = $1, reserved_stock = $2, version = version + 1, updated_at = now()
	WHERE id = $3 AND version = $4
	RETURNING version, updated_at`

	err := tx.QueryRowContext(ctx, query, inventory.AvailableStock, inventory.ReservedStock, inventory.ID, inventory.Version).
		Scan(&inventory.Version, &inventory.UpdatedAt)
	if err != nil {
		slog.ErrorContext(ctx, "[inventoryRepository] UpdateStock", "queryRowContext", err)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: inventory %d", domain.ErrVersionMismatch, inventory.ID)
		}
		return err
	}

	return nil
}

func (r *inventoryRepository) WithTransaction(ctx context.Context, fn func(context.Context, *sql.Tx) error) error {
	return pkg.WithTransaction(ctx, r.conn, "inventoryRepository", fn)
}
