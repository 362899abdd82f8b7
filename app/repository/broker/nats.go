package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fulfillment-service/app/domain"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// StreamSubjects are the subject families carried by the service stream.
var StreamSubjects = []string{"order.>", "payment.>", "inventory.>", "stock.>"}

type NatsOptions struct {
	StreamName  string
	DurableName string
	MaxDeliver  int
	RetryDelay  time.Duration
}

type NatsBroker struct {
	js   jetstream.JetStream
	opts NatsOptions

	mu       sync.Mutex
	consumes []jetstream.ConsumeContext
}

func NewNatsBroker(js jetstream.JetStream, opts NatsOptions) *NatsBroker {
	return &NatsBroker{js: js, opts: opts}
}

// EnsureStream creates the stream if it does not exist yet.
func (b *NatsBroker) EnsureStream(ctx context.Context) error {
	_, err := b.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:       strings.ToUpper(b.opts.StreamName),
		Subjects:   StreamSubjects,
		Storage:    jetstream.FileStorage,
		Duplicates: 2 * time.Minute,
	})
	if err != nil && !errors.Is(err, jetstream.ErrStreamNameAlreadyInUse) {
		slog.ErrorContext(ctx, "[natsBroker] EnsureStream", "createStream", err)
		return err
	}
	return nil
}

// Publish sends the envelope with its id as the JetStream message id so re-publishes are deduplicated.
func (b *NatsBroker) Publish(ctx context.Context, env domain.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		slog.ErrorContext(ctx, "[natsBroker] Publish", "json.Marshal", err)
		return err
	}

	if _, err = b.js.Publish(ctx, env.Topic, data, jetstream.WithMsgID(env.ID.String())); err != nil {
		slog.ErrorContext(ctx, "[natsBroker] Publish", "topic", env.Topic, "publish", err)
		return err
	}

	slog.DebugContext(ctx, "[natsBroker] Publish", "topic", env.Topic, "id", env.ID)
	return nil
}

func durableFor(prefix, topic string) string {
	return prefix + "-" + strings.ReplaceAll(topic, ".", "_")
}

func (b *NatsBroker) Subscribe(ctx context.Context, topic string, handler domain.EventHandler) error {
	consumer, err := b.js.CreateOrUpdateConsumer(ctx, strings.ToUpper(b.opts.StreamName), jetstream.ConsumerConfig{
		Durable:       durableFor(b.opts.DurableName, topic),
		FilterSubject: topic,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    b.opts.MaxDeliver,
		AckWait:       30 * time.Second,
	})
	if err != nil {
		slog.ErrorContext(ctx, "[natsBroker] Subscribe", "topic", topic, "createConsumer", err)
		return err
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		b.settle(ctx, msg, dispatch(ctx, topic, msg.Data(), handler))
	})
	if err != nil {
		slog.ErrorContext(ctx, "[natsBroker] Subscribe", "topic", topic, "consume", err)
		return err
	}

	b.mu.Lock()
	b.consumes = append(b.consumes, cc)
	b.mu.Unlock()

	slog.InfoContext(ctx, "[natsBroker] Subscribe", "topic", topic)
	return nil
}

func (b *NatsBroker) settle(ctx context.Context, msg jetstream.Msg, decision Decision) {
	var err error
	switch decision {
	case DecisionAck:
		err = msg.Ack()
	case DecisionTerm:
		err = msg.Term()
	default:
		err = msg.NakWithDelay(b.opts.RetryDelay)
	}
	if err != nil {
		slog.ErrorContext(ctx, "[natsBroker] settle", "decision", decision, "error", err)
	}
}

func (b *NatsBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, cc := range b.consumes {
		cc.Stop()
	}
	b.consumes = nil
	return nil
}
