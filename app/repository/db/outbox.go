package db

import (
	"context"
	"database/sql"
	"fulfillment-service/app/domain"
	"log/slog"

	"github.com/gofrs/uuid/v5"
)

type outboxRepository struct {
	conn *sql.DB
}

func NewOutboxRepository(db *sql.DB) domain.OutboxRepository {
	return &outboxRepository{db}
}

func (r *outboxRepository) Create(ctx context.Context, event *domain.OutboxEvent, tx *sql.Tx) error {
	query := `INSERT INTO outbox_events (id, aggregate_id, topic, payload, status, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := tx.ExecContext(ctx, query, event.ID, event.AggregateID, event.Topic, []byte(event.Payload), event.Status, event.CreatedAt)
	if err != nil {
		slog.ErrorContext(ctx, "[outboxRepository] Create", "execContext", err)
		return err
	}

	return nil
}

// ListPending returns unpublished rows oldest first.
func (r *outboxRepository) ListPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	query := `SELECT id, aggregate_id, topic, payload, status, attempts, created_at, published_at
	FROM outbox_events
	WHERE status = 'PENDING'
	ORDER BY created_at, id
	LIMIT $1`

	rows, err := r.conn.QueryContext(ctx, query, limit)
	if err != nil {
		slog.ErrorContext(ctx, "[outboxRepository] ListPending", "queryContext", err)
		return nil, err
	}
	defer rows.Close()

	var events []domain.OutboxEvent
	for rows.Next() {
		var event domain.OutboxEvent
		var payload []byte
		if err := rows.Scan(&event.ID, &event.AggregateID, &event.Topic, &payload, &event.Status,
			&event.Attempts, &event.CreatedAt, &event.PublishedAt); err != nil {
			slog.ErrorContext(ctx, "[outboxRepository] ListPending", "scan", err)
			return nil, err
		}
		event.Payload = payload
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		slog.ErrorContext(ctx, "[outboxRepository] ListPending", "rowError", err)
		return nil, err
	}

	return events, nil
}

func (r *outboxRepository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE outbox_events SET status = 'PUBLISHED', attempts = attempts + 1, published_at = now() WHERE id = $1`

	if _, err := r.conn.ExecContext(ctx, query, id); err != nil {
		slog.ErrorContext(ctx, "[outboxRepository] MarkPublished", "execContext", err)
		return err
	}

	return nil
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE outbox_events SET attempts = attempts + 1 WHERE id = $1`

	if _, err := r.conn.ExecContext(ctx, query, id); err != nil {
		slog.ErrorContext(ctx, "[outboxRepository] MarkFailed", "execContext", err)
		return err
	}

	return nil
}

func (r *outboxRepository) MarkParked(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE outbox_events SET status = 'PARKED', attempts = attempts + 1 WHERE id = $1`

	if _, err := r.conn.ExecContext(ctx, query, id); err != nil {
		slog.ErrorContext(ctx, "[outboxRepository] MarkParked", "execContext", err)
		return err
	}

	return nil
}
