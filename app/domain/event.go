package domain

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
)

const (
	TopicOrderCreated   = "order.created"
	TopicOrderCancelled = "order.cancelled"
	TopicOrderReserved  = "order.reserved"
	TopicOrderPaid      = "order.paid"
	TopicOrderConfirmed = "order.confirmed"
	TopicOrderFailed    = "order.failed"

	TopicPaymentCompleted = "payment.completed"
	TopicPaymentFailed    = "payment.failed"

	TopicInventoryReserved          = "inventory.reserved"
	TopicInventoryReservationFailed = "inventory.reservation.failed"
	TopicStockUpdated               = "stock.updated"
)

type OrderItemPayload struct {
	ProductID int64 `json:"productId" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"required,gt=0"`
	UnitPrice int64 `json:"unitPrice,omitempty" validate:"gte=0"`
}

type OrderCreatedEvent struct {
	OrderID     uuid.UUID          `json:"orderId" validate:"required"`
	UserID      string             `json:"userId,omitempty"`
	TotalAmount int64              `json:"totalAmount,omitempty"`
	Items       []OrderItemPayload `json:"items" validate:"required,min=1,dive"`
}

type PaymentCompletedEvent struct {
	OrderID       uuid.UUID `json:"orderId" validate:"required"`
	TransactionID string    `json:"transactionId"`
}

type PaymentFailedEvent struct {
	OrderID uuid.UUID `json:"orderId" validate:"required"`
	Reason  string    `json:"reason"`
}

type OrderCancelledEvent struct {
	OrderID uuid.UUID `json:"orderId" validate:"required"`
}

type InventoryReservedEvent struct {
	OrderID   uuid.UUID `json:"orderId" validate:"required"`
	ProductID int64     `json:"productId"`
	Quantity  int64     `json:"quantity"`
}

type InventoryReservationFailedEvent struct {
	OrderID   uuid.UUID `json:"orderId" validate:"required"`
	ProductID int64     `json:"productId,omitempty"`
	Reason    string    `json:"reason"`
}

type StockUpdatedEvent struct {
	ProductID         int64 `json:"productId"`
	NewAvailableStock int64 `json:"newAvailableStock"`
}

// OrderStatusEvent is the payload of every order.* event the saga emits.
type OrderStatusEvent struct {
	OrderID     uuid.UUID          `json:"orderId"`
	OrderNumber string             `json:"orderNumber"`
	UserID      string             `json:"userId"`
	TotalAmount int64              `json:"totalAmount"`
	Items       []OrderItemPayload `json:"items"`
	Status      OrderStatus        `json:"status"`
}

// Envelope wraps every message on the bus. ID is stable across redeliveries and re-publishes.
type Envelope struct {
	ID          uuid.UUID       `json:"id"`
	Topic       string          `json:"topic"`
	AggregateID string          `json:"aggregate_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Data        json.RawMessage `json:"data"`
}

func NewEnvelope(topic, aggregateID string, payload any) (Envelope, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Envelope{}, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		ID:          id,
		Topic:       topic,
		AggregateID: aggregateID,
		OccurredAt:  time.Now().UTC(),
		Data:        data,
	}, nil
}

// DecodeEnvelope parses a raw message body. Malformed bodies are validation errors.
func DecodeEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return env, fmt.Errorf("%w: malformed envelope: %v", ErrValidation, err)
	}
	if env.ID.IsNil() || env.Topic == "" {
		return env, fmt.Errorf("%w: envelope missing id or topic", ErrValidation)
	}
	return env, nil
}

// Decode unmarshals the envelope data into v.
func (e Envelope) Decode(v any) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%w: malformed %s payload: %v", ErrValidation, e.Topic, err)
	}
	return nil
}

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "PENDING"
	OutboxStatusPublished OutboxStatus = "PUBLISHED"
	// OutboxStatusParked rows ran out of publish attempts and wait for an operator.
	OutboxStatusParked    OutboxStatus = "PARKED"
)

type OutboxEvent struct {
	ID          uuid.UUID       `json:"id"`
	AggregateID string          `json:"aggregate_id"`
	Topic       string          `json:"topic"`
	Payload     json.RawMessage `json:"payload"`
	Status      OutboxStatus    `json:"status"`
	Attempts    int             `json:"attempts"`
	CreatedAt   time.Time       `json:"created_at"`
	PublishedAt *time.Time      `json:"published_at"`
}

func NewOutboxEvent(topic, aggregateID string, payload any) (*OutboxEvent, error) {
	env, err := NewEnvelope(topic, aggregateID, payload)
	if err != nil {
		return nil, err
	}
	return &OutboxEvent{
		ID:          env.ID,
		AggregateID: aggregateID,
		Topic:       topic,
		Payload:     env.Data,
		Status:      OutboxStatusPending,
		CreatedAt:   env.OccurredAt,
	}, nil
}

func (o OutboxEvent) Envelope() Envelope {
	return Envelope{
		ID:          o.ID,
		Topic:       o.Topic,
		AggregateID: o.AggregateID,
		OccurredAt:  o.CreatedAt,
		Data:        o.Payload,
	}
}

type OutboxRepository interface {
	Create(ctx context.Context, event *OutboxEvent, tx *sql.Tx) error
	ListPending(ctx context.Context, limit int) ([]OutboxEvent, error)
	MarkPublished(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
	MarkParked(ctx context.Context, id uuid.UUID) error
}

type BrokerPublisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// EventHandler processes one delivery. A nil error acknowledges the message.
type EventHandler func(ctx context.Context, env Envelope) error

type BrokerSubscriber interface {
	Subscribe(ctx context.Context, topic string, handler EventHandler) error
	Close() error
}

// Locker grants short-lived cross-instance leases.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(context.Context) error, acquired bool, err error)
}
