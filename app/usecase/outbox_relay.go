package usecase

import (
	"context"
	"fulfillment-service/app/domain"
	"fulfillment-service/config"
	"fulfillment-service/pkg/metrics"
	"log/slog"
	"time"
)

// OutboxRelay publishes committed outbox rows to the broker.
type OutboxRelay struct {
	outboxRepo  domain.OutboxRepository
	publisher   domain.BrokerPublisher
	interval    time.Duration
	batchSize   int
	maxAttempts int
}

func NewOutboxRelay(outboxRepo domain.OutboxRepository, publisher domain.BrokerPublisher, cfg *config.Config) *OutboxRelay {
	return &OutboxRelay{
		outboxRepo:  outboxRepo,
		publisher:   publisher,
		interval:    cfg.Saga.OutboxInterval,
		batchSize:   cfg.Saga.OutboxBatchSize,
		maxAttempts: cfg.Saga.OutboxMaxAttempts,
	}
}

func (r *OutboxRelay) Start(ctx context.Context) {
	slog.InfoContext(ctx, "[OutboxRelay] Start", "interval", r.interval)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
				slog.WarnContext(ctx, "[OutboxRelay] Start", "flush", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Flush publishes pending rows oldest first. A failed row holds back the later rows of its
// aggregate until the next flush, so per-aggregate order is kept while other aggregates carry on.
// A row that fails maxAttempts times is parked and stops blocking. The first publish error is returned.
func (r *OutboxRelay) Flush(ctx context.Context) (int, error) {
	events, err := r.outboxRepo.ListPending(ctx, r.batchSize)
	if err != nil {
		slog.ErrorContext(ctx, "[OutboxRelay] Flush", "listPending", err)
		return 0, err
	}

	published := 0
	blocked := map[string]bool{}
	var firstErr error
	for _, event := range events {
		if blocked[event.AggregateID] {
			continue
		}

		if err := r.publisher.Publish(ctx, event.Envelope()); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			if r.park(ctx, event, err) {
				continue
			}
			blocked[event.AggregateID] = true
			continue
		}

		if err := r.outboxRepo.MarkPublished(ctx, event.ID); err != nil {
			slog.ErrorContext(ctx, "[OutboxRelay] Flush", "markPublished", err)
			return published, err
		}
		metrics.OutboxEvents.WithLabelValues("published").Inc()
		published++
	}

	return published, firstErr
}

// park records a failed attempt and reports whether the row was parked for good.
func (r *OutboxRelay) park(ctx context.Context, event domain.OutboxEvent, publishErr error) bool {
	if r.maxAttempts > 0 && event.Attempts+1 >= r.maxAttempts {
		if err := r.outboxRepo.MarkParked(ctx, event.ID); err != nil {
			slog.ErrorContext(ctx, "[OutboxRelay] Flush", "markParked", err)
			return false
		}
		metrics.OutboxEvents.WithLabelValues("parked").Inc()
		slog.ErrorContext(ctx, "[OutboxRelay] Flush", "eventID", event.ID, "topic", event.Topic,
			"aggregateID", event.AggregateID, "attempts", event.Attempts+1, "parked", publishErr)
		return true
	}

	metrics.OutboxEvents.WithLabelValues("failed").Inc()
	if err := r.outboxRepo.MarkFailed(ctx, event.ID); err != nil {
		slog.ErrorContext(ctx, "[OutboxRelay] Flush", "markFailed", err)
	}
	slog.WarnContext(ctx, "[OutboxRelay] Flush", "eventID", event.ID, "aggregateID", event.AggregateID, "publish", publishErr)
	return false
}
