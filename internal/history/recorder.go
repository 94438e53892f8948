package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	inats "github.com/visionfy/visionfy/internal/nats"
)

const analyticsKey = "analytics:generations"

// ImageRecord is what gets stored per generated image.
type ImageRecord struct {
	ID        string `json:"id"`
	Prompt    string `json:"prompt"`
	URL       string `json:"url"`
	CreatedAt int64  `json:"createdAt"`
	Model     string `json:"model"`
	Options   any    `json:"options,omitempty"`
}

// analyticsEvent is the JSON shape pushed onto the analytics list.
type analyticsEvent struct {
	UserID    string `json:"userId"`
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	Timestamp int64  `json:"timestamp"`
}

// EventPublisher fans generation events out beyond Redis.
type EventPublisher interface {
	PublishGenerationEvent(ctx context.Context, event inats.GenerationEvent) error
}

// Recorder appends image records and analytics events. It is write-only.
type Recorder struct {
	rdb       redis.Cmdable
	publisher EventPublisher
	now       func() time.Time
}

// NewRecorder creates a Recorder. publisher may be nil.
func NewRecorder(rdb redis.Cmdable, publisher EventPublisher) *Recorder {
	return &Recorder{rdb: rdb, publisher: publisher, now: time.Now}
}

func imageKey(userID, imageID string) string {
	return fmt.Sprintf("images:%s:%s", userID, imageID)
}

func userImagesKey(userID string) string {
	return fmt.Sprintf("user:%s:images", userID)
}

// Record stores rec under images:{user}:{id} and prepends its id to the user's list.
func (r *Recorder) Record(ctx context.Context, userID string, rec ImageRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling image record: %w", err)
	}

	pipe := r.rdb.Pipeline()
	pipe.Set(ctx, imageKey(userID, rec.ID), data, 0)
	pipe.LPush(ctx, userImagesKey(userID), rec.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("recording image %s: %w", rec.ID, err)
	}
	return nil
}

// Track pushes an analytics event and, if a publisher is configured,
// publishes a GenerationEvent. Publish failures are logged only.
func (r *Recorder) Track(ctx context.Context, userID, operation, model, prompt string, imageCount int) error {
	now := r.now()
	data, err := json.Marshal(analyticsEvent{
		UserID:    userID,
		Model:     model,
		Prompt:    prompt,
		Timestamp: now.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("marshaling analytics event: %w", err)
	}

	if err := r.rdb.LPush(ctx, analyticsKey, data).Err(); err != nil {
		return fmt.Errorf("tracking generation: %w", err)
	}

	if r.publisher != nil {
		event := inats.GenerationEvent{
			ID:         uuid.NewString(),
			UserID:     userID,
			Operation:  operation,
			Model:      model,
			Prompt:     prompt,
			ImageCount: imageCount,
			Timestamp:  now.UTC(),
		}
		if err := r.publisher.PublishGenerationEvent(ctx, event); err != nil {
			slog.Warn("history: publishing generation event", "error", err, "user_id", userID)
		}
	}
	return nil
}
