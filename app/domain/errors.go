package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrBadRequest      = errors.New("bad request")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrValidation      = errors.New("validation error")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrVersionMismatch = errors.New("version mismatch")
	ErrInternal        = errors.New("internal server error")
	ErrAlreadyExists   = errors.New("already exists")

	// ErrInsufficientStock is a business rejection, never retried.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrReservationClosed is returned when the (order, product) reservation was already released.
	ErrReservationClosed = errors.New("reservation already closed")
	// ErrInvariantViolation aborts the operation and needs manual reconciliation.
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrTransient marks infrastructure failures that are safe to redeliver.
	ErrTransient = errors.New("transient infrastructure error")
	// ErrSagaNotReady means the event arrived before the order reached a state that accepts it.
	ErrSagaNotReady = errors.New("order not ready for event")
)
