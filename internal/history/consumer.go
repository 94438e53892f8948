package history

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/visionfy/visionfy/internal/metrics"
	inats "github.com/visionfy/visionfy/internal/nats"
)

const consumerName = "generation-persister"

// Consumer drains generation events from JetStream into postgres.
type Consumer struct {
	store       EventStore
	consumerMgr *inats.ConsumerManager
}

func NewConsumer(store EventStore, consumerMgr *inats.ConsumerManager) *Consumer {
	return &Consumer{
		store:       store,
		consumerMgr: consumerMgr,
	}
}

// Start drains generation events until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	return c.consumerMgr.Run(ctx, consumerName, inats.SubjectGenerationEvent, c.handleEvent)
}

func (c *Consumer) handleEvent(ctx context.Context, msg jetstream.Msg) {
	var event inats.GenerationEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		// A payload that cannot be decoded will never succeed; drop it.
		slog.Error("history consumer: unmarshaling event", "error", err)
		_ = msg.Term()
		return
	}

	row := toRow(event)
	if err := c.store.Insert(ctx, row); err != nil {
		slog.Error("history consumer: persisting event", "error", err, "user_id", event.UserID)
		_ = msg.Nak()
		return
	}

	_ = msg.Ack()
	metrics.GenerationEventsPersisted.Inc()

	slog.Debug("history consumer: persisted event",
		"operation", event.Operation,
		"user_id", event.UserID,
		"images", event.ImageCount,
	)
}

func toRow(event inats.GenerationEvent) *GenerationEvent {
	row := &GenerationEvent{
		UserID:     event.UserID,
		Operation:  event.Operation,
		Model:      event.Model,
		Prompt:     event.Prompt,
		ImageCount: event.ImageCount,
		CreatedAt:  event.Timestamp,
	}
	if parsed, err := uuid.Parse(event.ID); err == nil {
		row.ID = parsed
	}
	return row
}
