package domain

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofrs/uuid/v5"
)

type ReservationStatus string

const (
	ReservationStatusReserved  ReservationStatus = "RESERVED"
	ReservationStatusConfirmed ReservationStatus = "CONFIRMED"
	ReservationStatusReleased  ReservationStatus = "RELEASED"
)

type Reservation struct {
	ID        uuid.UUID         `json:"id"`
	ProductID int64             `json:"product_id"`
	OrderID   uuid.UUID         `json:"order_id"`
	Quantity  int64             `json:"quantity"`
	Status    ReservationStatus `json:"status"`
	ExpiresAt time.Time         `json:"expires_at"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// IsTerminal reports whether the reservation can no longer change.
func (r Reservation) IsTerminal() bool {
	return r.Status == ReservationStatusConfirmed || r.Status == ReservationStatusReleased
}

// ExpiryCursor is a keyset position in the expiry scan. The zero value starts from the beginning.
type ExpiryCursor struct {
	ExpiresAt time.Time
	ID        uuid.UUID
}

// After returns the cursor positioned on r.
func (r Reservation) After() ExpiryCursor {
	return ExpiryCursor{ExpiresAt: r.ExpiresAt, ID: r.ID}
}

type ReservationRepository interface {
	Create(ctx context.Context, reservation *Reservation, tx *sql.Tx) error
	// GetByID does not lock; reservation rows are only mutated under their product's inventory lock.
	GetByID(ctx context.Context, id uuid.UUID, tx *sql.Tx) (Reservation, error)
	// GetByOrderAndProduct returns the live (or most recent) reservation for the pair, ErrNotFound if none.
	GetByOrderAndProduct(ctx context.Context, orderID uuid.UUID, productID int64, tx *sql.Tx) (Reservation, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status ReservationStatus, tx *sql.Tx) error
	ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]Reservation, error)
	// ListExpired pages through expired live reservations in (expires_at, id) order, strictly after the cursor.
	ListExpired(ctx context.Context, now time.Time, after ExpiryCursor, limit int) ([]Reservation, error)
	SumReservedByProductID(ctx context.Context, productID int64) (int64, error)
}

type SweepResult struct {
	Scanned  int `json:"scanned"`
	Released int `json:"released"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

type SweeperUsecase interface {
	Sweep(ctx context.Context) (SweepResult, error)
	// Start sweeps on every tick until ctx is done.
	Start(ctx context.Context)
}
