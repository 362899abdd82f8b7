package db

import (
	"context"
	"encoding/json"
	"fulfillment-service/app/domain"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxRepository_ListPending(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewOutboxRepository(conn)
	id := uuid.Must(uuid.NewV7())

	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = 'PENDING'")).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "aggregate_id", "topic", "payload", "status", "attempts", "created_at", "published_at"}).
			AddRow(id.String(), "agg", domain.TopicStockUpdated, []byte(`{"productId":1,"newAvailableStock":4}`), "PENDING", 2, time.Now(), nil))

	events, err := repo.ListPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, id, events[0].ID)
	assert.Equal(t, 2, events[0].Attempts)
	assert.Nil(t, events[0].PublishedAt)

	var payload domain.StockUpdatedEvent
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Equal(t, int64(4), payload.NewAvailableStock)
}

func TestOutboxRepository_CreateAndMark(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewOutboxRepository(conn)
	tx := beginTx(t, conn, mock)

	event, err := domain.NewOutboxEvent(domain.TopicOrderCancelled, "agg", domain.OrderCancelledEvent{OrderID: uuid.Must(uuid.NewV4())})
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO outbox_events")).
		WithArgs(event.ID, "agg", domain.TopicOrderCancelled, []byte(event.Payload), domain.OutboxStatusPending, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Create(context.Background(), event, tx))

	mock.ExpectExec(regexp.QuoteMeta("SET status = 'PUBLISHED'")).
		WithArgs(event.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkPublished(context.Background(), event.ID))

	mock.ExpectExec(regexp.QuoteMeta("SET attempts = attempts + 1")).
		WithArgs(event.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkFailed(context.Background(), event.ID))

	mock.ExpectExec(regexp.QuoteMeta("SET status = 'PARKED', attempts = attempts + 1")).
		WithArgs(event.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkParked(context.Background(), event.ID))

	assert.NoError(t, mock.ExpectationsWereMet())
}
