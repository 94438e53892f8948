package nats

import "time"

const (
	// FetchTimeout bounds one pull-consumer batch fetch.
	FetchTimeout = 2 * time.Second

	// MaxDeliver caps redeliveries of a Nak'd message.
	MaxDeliver = 5

	StreamEvents = "VISIONFY_EVENTS"
	StreamMaxAge = 7 * 24 * time.Hour
)

// Subject constants.
const (
	SubjectEventsWildcard  = "visionfy.events.>"
	SubjectGenerationEvent = "visionfy.events.generation"
)

// GenerationEvent is published after every successful generation call.
type GenerationEvent struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Operation  string    `json:"operation"` // generate, edit, variation
	Model      string    `json:"model"`
	Prompt     string    `json:"prompt"`
	ImageCount int       `json:"image_count"`
	Timestamp  time.Time `json:"timestamp"`
}
