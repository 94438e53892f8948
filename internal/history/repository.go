package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// GenerationEvent matches the generation_events table schema.
type GenerationEvent struct {
	ID         uuid.UUID
	UserID     string
	Operation  string
	Model      string
	Prompt     string
	ImageCount int
	CreatedAt  time.Time
}

// EventStore persists generation events.
type EventStore interface {
	Insert(ctx context.Context, event *GenerationEvent) error
}

// Repository handles generation_events PostgreSQL operations.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores one event. Redelivered events with a known id are ignored.
func (r *Repository) Insert(ctx context.Context, event *GenerationEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO generation_events (id, user_id, operation, model, prompt, image_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		event.ID, event.UserID, event.Operation, event.Model, event.Prompt, event.ImageCount, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting generation event: %w", err)
	}
	return nil
}
