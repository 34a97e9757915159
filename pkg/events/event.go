package events

import (
	"context"
	"time"
)

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "TURN_COMPLETED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

type BaseEvent struct {
	Type       string                 `json:"type"`
	Data       map[string]interface{} `json:"data"`
	OccurredAt time.Time              `json:"occurred_at"`
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

func New(eventType string, data map[string]interface{}) BaseEvent {
	return BaseEvent{Type: eventType, Data: data, OccurredAt: time.Now()}
}

// Publisher delivers events somewhere. Implementations must not block on slow consumers.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Chat event types.
const (
	TimelineChanged  = "TIMELINE_CHANGED"
	TurnStarted      = "TURN_STARTED"
	TurnCompleted    = "TURN_COMPLETED"
	TurnFailed       = "TURN_FAILED"
	SuggestionsReady = "SUGGESTIONS_READY"
	SessionCreated   = "SESSION_CREATED"
	SessionSelected  = "SESSION_SELECTED"
	SessionDeleted   = "SESSION_DELETED"
)
