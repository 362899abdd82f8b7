package event

import (
	"context"
	"fmt"
	"fulfillment-service/app/domain"
	"log/slog"

	"github.com/go-playground/validator/v10"
)

// EventHandler consumes the saga's inbound topics and drives the order usecase.
type EventHandler struct {
	orderUsecase domain.OrderUsecase
	validator    *validator.Validate
}

func NewEventHandler(orderUsecase domain.OrderUsecase, validator *validator.Validate) *EventHandler {
	return &EventHandler{orderUsecase, validator}
}

// Routes lists the handled topics. Each one gets its own consumer.
func (h *EventHandler) Routes() map[string]domain.EventHandler {
	return map[string]domain.EventHandler{
		domain.TopicOrderCreated:               h.OrderCreated,
		domain.TopicOrderCancelled:             h.OrderCancelled,
		domain.TopicPaymentCompleted:           h.PaymentCompleted,
		domain.TopicPaymentFailed:              h.PaymentFailed,
		domain.TopicInventoryReserved:          h.InventoryReserved,
		domain.TopicInventoryReservationFailed: h.ReservationFailed,
	}
}

func (h *EventHandler) Register(ctx context.Context, subscriber domain.BrokerSubscriber) error {
	for topic, handle := range h.Routes() {
		if err := subscriber.Subscribe(ctx, topic, handle); err != nil {
			slog.ErrorContext(ctx, "[eventHandler] Register", "topic", topic, "subscribe", err)
			return err
		}
	}
	return nil
}

func (h *EventHandler) decode(env domain.Envelope, v any) error {
	if err := env.Decode(v); err != nil {
		return err
	}
	if err := h.validator.Struct(v); err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrValidation, env.Topic, err)
	}
	return nil
}

// OrderCreated makes sure the order exists and reserves its items while it is still PENDING.
func (h *EventHandler) OrderCreated(ctx context.Context, env domain.Envelope) error {
	var evt domain.OrderCreatedEvent
	if err := h.decode(env, &evt); err != nil {
		slog.ErrorContext(ctx, "[eventHandler] OrderCreated", "decode", err)
		return err
	}
	return h.orderUsecase.HandleOrderCreated(ctx, evt)
}

func (h *EventHandler) OrderCancelled(ctx context.Context, env domain.Envelope) error {
	var evt domain.OrderCancelledEvent
	if err := h.decode(env, &evt); err != nil {
		slog.ErrorContext(ctx, "[eventHandler] OrderCancelled", "decode", err)
		return err
	}
	return h.orderUsecase.HandleOrderCancelled(ctx, evt)
}

func (h *EventHandler) PaymentCompleted(ctx context.Context, env domain.Envelope) error {
	var evt domain.PaymentCompletedEvent
	if err := h.decode(env, &evt); err != nil {
		slog.ErrorContext(ctx, "[eventHandler] PaymentCompleted", "decode", err)
		return err
	}
	return h.orderUsecase.HandlePaymentCompleted(ctx, evt)
}

func (h *EventHandler) PaymentFailed(ctx context.Context, env domain.Envelope) error {
	var evt domain.PaymentFailedEvent
	if err := h.decode(env, &evt); err != nil {
		slog.ErrorContext(ctx, "[eventHandler] PaymentFailed", "decode", err)
		return err
	}
	return h.orderUsecase.HandlePaymentFailed(ctx, evt)
}

func (h *EventHandler) InventoryReserved(ctx context.Context, env domain.Envelope) error {
	var evt domain.InventoryReservedEvent
	if err := h.decode(env, &evt); err != nil {
		slog.ErrorContext(ctx, "[eventHandler] InventoryReserved", "decode", err)
		return err
	}
	return h.orderUsecase.HandleInventoryReserved(ctx, evt)
}

func (h *EventHandler) ReservationFailed(ctx context.Context, env domain.Envelope) error {
	var evt domain.InventoryReservationFailedEvent
	if err := h.decode(env, &evt); err != nil {
		slog.ErrorContext(ctx, "[eventHandler] ReservationFailed", "decode", err)
		return err
	}
	return h.orderUsecase.HandleReservationFailed(ctx, evt)
}
