package domain

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofrs/uuid/v5"
)

type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "PENDING"
	OrderStatusReserved       OrderStatus = "RESERVED"
	OrderStatusPaymentPending OrderStatus = "PAYMENT_PENDING"
	OrderStatusPaid           OrderStatus = "PAID"
	OrderStatusConfirmed      OrderStatus = "CONFIRMED"
	OrderStatusCancelled      OrderStatus = "CANCELLED"
	OrderStatusFailed         OrderStatus = "FAILED"
	OrderStatusDelivered      OrderStatus = "DELIVERED"
)

// IsTerminal reports whether no further transition may be applied.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusConfirmed, OrderStatusCancelled, OrderStatusDelivered:
		return true
	}
	return false
}

// orderTransitions lists, per target status, the statuses it may be entered from.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusReserved:       {OrderStatusPending},
	OrderStatusPaymentPending: {OrderStatusReserved},
	OrderStatusPaid:           {OrderStatusReserved, OrderStatusPaymentPending},
	OrderStatusConfirmed:      {OrderStatusPaid},
	OrderStatusFailed:         {OrderStatusPending, OrderStatusReserved, OrderStatusPaymentPending, OrderStatusPaid},
	OrderStatusCancelled:      {OrderStatusPending, OrderStatusReserved, OrderStatusPaymentPending, OrderStatusPaid, OrderStatusFailed},
}

// CanTransition reports whether from -> to is a legal saga step.
func CanTransition(from, to OrderStatus) bool {
	if from.IsTerminal() {
		return false
	}
	for _, allowed := range orderTransitions[to] {
		if allowed == from {
			return true
		}
	}
	return false
}

type OrderItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
	UnitPrice int64 `json:"unit_price"`
}

// ReservationLines folds the order lines into one line per product, in first-seen order.
// Reservations are keyed by (order, product), so a product listed twice must be reserved once for the total.
func ReservationLines(items []OrderItem) []OrderItem {
	lines := make([]OrderItem, 0, len(items))
	index := make(map[int64]int, len(items))
	for _, item := range items {
		if i, ok := index[item.ProductID]; ok {
			lines[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(lines)
		lines = append(lines, OrderItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return lines
}

type Order struct {
	ID          uuid.UUID   `json:"id"`
	OrderNumber string      `json:"order_number"`
	UserID      string      `json:"user_id"`
	Status      OrderStatus `json:"status"`
	TotalAmount int64       `json:"total_amount"`
	Items       []OrderItem `json:"items"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

type OrderStatusHistory struct {
	ID        int64       `json:"id"`
	OrderID   uuid.UUID   `json:"order_id"`
	Status    OrderStatus `json:"status"`
	Notes     string      `json:"notes"`
	CreatedAt time.Time   `json:"created_at"`
}

type OrderDetail struct {
	Order
	History []OrderStatusHistory `json:"history"`
}

type OrderItemRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"required,gt=0"`
	UnitPrice int64 `json:"unit_price" validate:"gte=0"`
}

type OrderCreateRequest struct {
	UserID string             `json:"user_id" validate:"required"`
	Items  []OrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

type OrderRepository interface {
	// Create inserts the order and its items; returns ErrAlreadyExists when the id is taken.
	Create(ctx context.Context, order *Order, tx *sql.Tx) error
	GetByID(ctx context.Context, id uuid.UUID) (Order, error)
	LockForUpdate(ctx context.Context, id uuid.UUID, tx *sql.Tx) (Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status OrderStatus, tx *sql.Tx) error
	AppendHistory(ctx context.Context, history *OrderStatusHistory, tx *sql.Tx) error
	ListHistory(ctx context.Context, orderID uuid.UUID) ([]OrderStatusHistory, error)

	WithTransaction(ctx context.Context, fn func(context.Context, *sql.Tx) error) error
}

type OrderUsecase interface {
	CreateOrder(ctx context.Context, req OrderCreateRequest) (Order, error)
	HandleOrderCreated(ctx context.Context, evt OrderCreatedEvent) error
	GetOrder(ctx context.Context, id uuid.UUID) (OrderDetail, error)
	RequestCancel(ctx context.Context, id uuid.UUID) error

	HandleInventoryReserved(ctx context.Context, evt InventoryReservedEvent) error
	HandleReservationFailed(ctx context.Context, evt InventoryReservationFailedEvent) error
	HandlePaymentCompleted(ctx context.Context, evt PaymentCompletedEvent) error
	HandlePaymentFailed(ctx context.Context, evt PaymentFailedEvent) error
	HandleOrderCancelled(ctx context.Context, evt OrderCancelledEvent) error
}
