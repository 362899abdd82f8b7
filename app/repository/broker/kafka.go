package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fulfillment-service/app/domain"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

const messageIDHeader = "message-id"

type KafkaOptions struct {
	Brokers    []string
	GroupID    string
	MaxDeliver int
	RetryDelay time.Duration
}

type KafkaBroker struct {
	writer *kafka.Writer
	opts   KafkaOptions

	mu      sync.Mutex
	readers []*kafka.Reader
	wg      sync.WaitGroup
}

func NewKafkaBroker(opts KafkaOptions) *KafkaBroker {
	return &KafkaBroker{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(opts.Brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
		opts: opts,
	}
}

// Publish keys messages by aggregate so events of one order stay on one partition.
func (b *KafkaBroker) Publish(ctx context.Context, env domain.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		slog.ErrorContext(ctx, "[kafkaBroker] Publish", "json.Marshal", err)
		return err
	}

	err = b.writer.WriteMessages(ctx, kafka.Message{
		Topic:   env.Topic,
		Key:     []byte(env.AggregateID),
		Value:   data,
		Headers: []kafka.Header{{Key: messageIDHeader, Value: []byte(env.ID.String())}},
	})
	if err != nil {
		slog.ErrorContext(ctx, "[kafkaBroker] Publish", "topic", env.Topic, "writeMessages", err)
		return err
	}

	return nil
}

// Subscribe starts a consumer-group reader for topic. Offsets are committed only once a
// message is acked, terminated, or out of retries.
func (b *KafkaBroker) Subscribe(ctx context.Context, topic string, handler domain.EventHandler) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  b.opts.Brokers,
		GroupID:  b.opts.GroupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})

	b.mu.Lock()
	b.readers = append(b.readers, reader)
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.consume(ctx, topic, reader, handler)
	}()

	slog.InfoContext(ctx, "[kafkaBroker] Subscribe", "topic", topic)
	return nil
}

func (b *KafkaBroker) consume(ctx context.Context, topic string, reader *kafka.Reader, handler domain.EventHandler) {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			slog.ErrorContext(ctx, "[kafkaBroker] consume", "topic", topic, "fetchMessage", err)
			continue
		}

		for attempt := 1; ; attempt++ {
			decision := dispatch(ctx, topic, msg.Value, handler)
			if decision != DecisionNak {
				break
			}
			if attempt >= b.opts.MaxDeliver {
				slog.ErrorContext(ctx, "[kafkaBroker] consume", "topic", topic, "offset", msg.Offset, "maxDeliver", "exhausted")
				break
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(b.opts.RetryDelay):
			}
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			slog.ErrorContext(ctx, "[kafkaBroker] consume", "topic", topic, "commitMessages", err)
		}
	}
}

func (b *KafkaBroker) Close() error {
	b.mu.Lock()
	var errs []error
	for _, r := range b.readers {
		errs = append(errs, r.Close())
	}
	b.readers = nil
	b.mu.Unlock()

	b.wg.Wait()
	errs = append(errs, b.writer.Close())
	return errors.Join(errs...)
}
