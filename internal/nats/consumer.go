package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

const (
	fetchBatch = 10
	ackWait    = 30 * time.Second

	fetchBackoff = time.Second
)

// Handler processes one message and is responsible for acking it.
type Handler func(ctx context.Context, msg jetstream.Msg)

// ConsumerManager owns the durable pull consumers of the events stream.
type ConsumerManager struct {
	js jetstream.JetStream
}

func NewConsumerManager(js jetstream.JetStream) *ConsumerManager {
	return &ConsumerManager{js: js}
}

// EnsureConsumer creates or updates a durable consumer filtered to one
// subject. A Nak'd message comes back after ackWait, at most MaxDeliver times.
func (cm *ConsumerManager) EnsureConsumer(ctx context.Context, stream, name, filterSubject string) (jetstream.Consumer, error) {
	consumer, err := cm.js.CreateOrUpdateConsumer(ctx, stream, jetstream.ConsumerConfig{
		Durable:       name,
		FilterSubject: filterSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       ackWait,
		MaxDeliver:    MaxDeliver,
	})
	if err != nil {
		return nil, fmt.Errorf("ensuring consumer %s on %s: %w", name, stream, err)
	}
	return consumer, nil
}

// Run attaches the durable consumer name to subject and feeds batches to
// handle until ctx is cancelled. Fetch errors are retried.
func (cm *ConsumerManager) Run(ctx context.Context, name, subject string, handle Handler) error {
	consumer, err := cm.EnsureConsumer(ctx, StreamEvents, name, subject)
	if err != nil {
		return err
	}
	slog.Info("nats consumer started", "consumer", name, "subject", subject)

	for ctx.Err() == nil {
		batch, err := consumer.Fetch(fetchBatch, jetstream.FetchMaxWait(FetchTimeout))
		if err != nil {
			slog.Debug("nats consumer: fetch", "consumer", name, "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(fetchBackoff):
			}
			continue
		}
		for msg := range batch.Messages() {
			handle(ctx, msg)
		}
		if err := batch.Error(); err != nil && ctx.Err() == nil {
			slog.Debug("nats consumer: batch", "consumer", name, "error", err)
		}
	}
	slog.Info("nats consumer stopped", "consumer", name)
	return nil
}
