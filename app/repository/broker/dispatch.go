package broker

import (
	"context"
	"errors"
	"fulfillment-service/app/domain"
	"fulfillment-service/pkg/ctxutil"
	"fulfillment-service/pkg/metrics"
	"log/slog"
)

// Decision is what the consumer tells the broker after a delivery was handled.
type Decision string

const (
	DecisionAck  Decision = "ack"
	DecisionNak  Decision = "nak"
	DecisionTerm Decision = "term"
)

// Decide maps a handler result onto an ack decision.
// Business rejections are acked, poison messages terminated, everything else redelivered.
func Decide(err error) Decision {
	switch {
	case err == nil:
		return DecisionAck
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrBadRequest),
		errors.Is(err, domain.ErrInvalidRequest),
		errors.Is(err, domain.ErrInvariantViolation):
		return DecisionTerm
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrReservationClosed):
		return DecisionAck
	default:
		return DecisionNak
	}
}

// dispatch decodes one message body, runs the handler and returns the ack decision.
func dispatch(ctx context.Context, topic string, body []byte, handler domain.EventHandler) Decision {
	env, err := domain.DecodeEnvelope(body)
	if err != nil {
		slog.ErrorContext(ctx, "[broker] dispatch", "topic", topic, "decodeEnvelope", err)
		metrics.InboundEvents.WithLabelValues(topic, string(DecisionTerm)).Inc()
		return DecisionTerm
	}

	ctx = ctxutil.WithRequestID(ctx, env.ID.String())
	err = handler(ctx, env)
	decision := Decide(err)

	switch {
	case err == nil:
		slog.DebugContext(ctx, "[broker] dispatch", "topic", topic, "decision", decision)
	case errors.Is(err, domain.ErrInvariantViolation):
		slog.ErrorContext(ctx, "[broker] dispatch", "topic", topic, "decision", decision, "reconcile", "manual", "error", err)
	case decision == DecisionNak:
		slog.WarnContext(ctx, "[broker] dispatch", "topic", topic, "decision", decision, "error", err)
	default:
		slog.InfoContext(ctx, "[broker] dispatch", "topic", topic, "decision", decision, "error", err)
	}

	metrics.InboundEvents.WithLabelValues(topic, string(decision)).Inc()
	return decision
}
