package domain

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
)

type Inventory struct {
	ID             int64     `json:"id"`
	ProductID      int64     `json:"product_id"`
	AvailableStock int64     `json:"available_stock"`
	ReservedStock  int64     `json:"reserved_stock"`
	Version        int64     `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type TransactionType string

const (
	TransactionTypeReserve TransactionType = "RESERVE"
	TransactionTypeRelease TransactionType = "RELEASE"
	TransactionTypeConfirm TransactionType = "CONFIRM"
	TransactionTypeAdjust  TransactionType = "ADJUST"
	TransactionTypeImport  TransactionType = "IMPORT"
)

// InventoryTransaction is one append-only ledger row. Quantity is a signed delta:
// RESERVE and CONFIRM are negative, RELEASE and IMPORT positive, ADJUST either.
type InventoryTransaction struct {
	ID          int64           `json:"id"`
	InventoryID int64           `json:"inventory_id"`
	Type        TransactionType `json:"type"`
	Quantity    int64           `json:"quantity"`
	ReferenceID string          `json:"reference_id"`
	Actor       string          `json:"actor"`
	CreatedAt   time.Time       `json:"created_at"`
}

type InventoryCreateRequest struct {
	ProductID    int64 `json:"product_id" validate:"required,gt=0"`
	InitialStock int64 `json:"initial_stock" validate:"gte=0"`
}

type ReserveRequest struct {
	ProductID int64     `json:"product_id" validate:"required,gt=0"`
	OrderID   uuid.UUID `json:"order_id" validate:"required"`
	Quantity  int64     `json:"quantity" validate:"required,gt=0"`
}

type ReserveResult struct {
	Reserved      bool      `json:"reserved"`
	ReservationID uuid.UUID `json:"reservation_id,omitempty"`
	ExpiresAt     time.Time `json:"expires_at,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	Replayed      bool      `json:"-"`
}

// IsReservationRejection reports whether err is a business answer to a reserve call rather than a fault.
// Each of these commits an inventory.reservation.failed event.
func IsReservationRejection(err error) bool {
	return errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrReservationClosed) ||
		errors.Is(err, ErrNotFound)
}

type RestockRequest struct {
	Quantity int64  `json:"quantity" validate:"required,gt=0"`
	Actor    string `json:"actor" validate:"required"`
}

type AdjustRequest struct {
	Delta  int64  `json:"delta" validate:"required"`
	Actor  string `json:"actor" validate:"required"`
	Reason string `json:"reason" validate:"required"`
}

// ReconcileReport compares the live counters against the transaction log and the reservation table.
type ReconcileReport struct {
	ProductID              int64 `json:"product_id"`
	AvailableStock         int64 `json:"available_stock"`
	ReservedStock          int64 `json:"reserved_stock"`
	LedgerAvailable        int64 `json:"ledger_available"`
	LedgerReserved         int64 `json:"ledger_reserved"`
	ReservedByReservations int64 `json:"reserved_by_reservations"`
	Consistent             bool  `json:"consistent"`
}

type InventoryRepository interface {
	Create(ctx context.Context, inventory *Inventory, tx *sql.Tx) error
	GetByProductID(ctx context.Context, productID int64) (Inventory, error)
	LockForUpdate(ctx context.Context, productID int64, tx *sql.Tx) (Inventory, error)
	UpdateStock(ctx context.Context, inventory *Inventory, tx *sql.Tx) error

	WithTransaction(ctx context.Context, fn func(context.Context, *sql.Tx) error) error
}

type InventoryTransactionRepository interface {
	Append(ctx context.Context, txn *InventoryTransaction, tx *sql.Tx) error
	SumByType(ctx context.Context, inventoryID int64) (map[TransactionType]int64, error)
}

type InventoryUsecase interface {
	InitInventory(ctx context.Context, req InventoryCreateRequest) (Inventory, error)
	GetByProductID(ctx context.Context, productID int64) (Inventory, error)
	Reserve(ctx context.Context, req ReserveRequest) (ReserveResult, error)
	ReserveOrder(ctx context.Context, orderID uuid.UUID, items []OrderItem) error
	Confirm(ctx context.Context, orderID uuid.UUID) (int, error)
	Release(ctx context.Context, orderID uuid.UUID) (int, error)
	ReleaseReservation(ctx context.Context, reservationID uuid.UUID) (bool, error)
	Restock(ctx context.Context, productID int64, req RestockRequest) (Inventory, error)
	Adjust(ctx context.Context, productID int64, req AdjustRequest) (Inventory, error)
	Reconcile(ctx context.Context, productID int64) (ReconcileReport, error)
	ListReservationsByOrderID(ctx context.Context, orderID uuid.UUID) ([]Reservation, error)
}
