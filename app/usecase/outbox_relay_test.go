package usecase

import (
	"context"
	"errors"
	"fulfillment-service/app/domain"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	published     []domain.Envelope
	failOn        int
	failAggregate string
	attempts      int
}

func (p *recordingPublisher) Publish(ctx context.Context, env domain.Envelope) error {
	p.attempts++
	if p.failOn > 0 && p.attempts == p.failOn {
		return errors.New("broker unavailable")
	}
	if p.failAggregate != "" && env.AggregateID == p.failAggregate {
		return errors.New("topic rejected")
	}
	p.published = append(p.published, env)
	return nil
}

func decodeProducts(t *testing.T, envs []domain.Envelope) []int64 {
	t.Helper()
	var ids []int64
	for _, env := range envs {
		assert.Equal(t, domain.TopicStockUpdated, env.Topic)
		var evt domain.StockUpdatedEvent
		require.NoError(t, env.Decode(&evt))
		ids = append(ids, evt.ProductID)
	}
	return ids
}

func TestOutboxRelay_Flush(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.stock(t, 1, 1)
	f.stock(t, 2, 2)
	f.stock(t, 3, 3)

	publisher := &recordingPublisher{failOn: 2}
	relay := NewOutboxRelay(memOutbox{f.store}, publisher, f.cfg)

	// the failure only holds back product 2
	n, err := relay.Flush(ctx)
	assert.Error(t, err)
	assert.Equal(t, 2, n)

	pending, err := memOutbox{f.store}.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "2", pending[0].AggregateID)
	assert.Equal(t, 1, pending[0].Attempts)

	n, err = relay.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{1, 3, 2}, decodeProducts(t, publisher.published))

	n, err = relay.Flush(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOutboxRelay_FailureHoldsBackSameAggregate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.stock(t, 1, 1)
	f.stock(t, 2, 2)
	_, err := f.inventory.Restock(ctx, 1, domain.RestockRequest{Quantity: 4, Actor: "ops"})
	require.NoError(t, err)

	publisher := &recordingPublisher{failAggregate: "1"}
	relay := NewOutboxRelay(memOutbox{f.store}, publisher, f.cfg)

	n, err := relay.Flush(ctx)
	assert.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{2}, decodeProducts(t, publisher.published))

	pending, err := memOutbox{f.store}.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, 0, pending[1].Attempts, "later row of the failed aggregate is not attempted")

	publisher.failAggregate = ""
	n, err = relay.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var available []int64
	for _, env := range publisher.published[1:] {
		var evt domain.StockUpdatedEvent
		require.NoError(t, env.Decode(&evt))
		assert.Equal(t, int64(1), evt.ProductID)
		available = append(available, evt.NewAvailableStock)
	}
	assert.Equal(t, []int64{1, 5}, available)
}

func TestOutboxRelay_ParksAfterMaxAttempts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.cfg.Saga.OutboxMaxAttempts = 2
	f.stock(t, 1, 1)
	f.stock(t, 2, 2)

	publisher := &recordingPublisher{failAggregate: "1"}
	relay := NewOutboxRelay(memOutbox{f.store}, publisher, f.cfg)

	_, err := relay.Flush(ctx)
	assert.Error(t, err)
	_, err = relay.Flush(ctx)
	assert.Error(t, err)

	rows := f.store.outboxFor(domain.TopicStockUpdated, "1")
	require.Len(t, rows, 1)
	assert.Equal(t, domain.OutboxStatusParked, rows[0].Status)
	assert.Equal(t, 2, rows[0].Attempts)

	// parked rows are no longer retried
	attempts := publisher.attempts
	n, err := relay.Flush(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, attempts, publisher.attempts)
	assert.Equal(t, []int64{2}, decodeProducts(t, publisher.published))
}
