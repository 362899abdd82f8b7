package usecase

import (
	"context"
	"database/sql"
	"fulfillment-service/app/domain"
	"log/slog"
)

// enqueue stores an outbound event in the same transaction as the state change that produced it.
func enqueue(ctx context.Context, repo domain.OutboxRepository, tx *sql.Tx, topic, aggregateID string, payload any) error {
	event, err := domain.NewOutboxEvent(topic, aggregateID, payload)
	if err != nil {
		slog.ErrorContext(ctx, "[outbox] enqueue", "newOutboxEvent", err)
		return err
	}

	if err := repo.Create(ctx, event, tx); err != nil {
		slog.ErrorContext(ctx, "[outbox] enqueue", "topic", topic, "create", err)
		return err
	}

	return nil
}
