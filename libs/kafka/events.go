package kafka

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEventTypeRequired = errors.New("event_type is required")
	ErrEventVersion      = errors.New("event_version must be positive")
)

// Envelope is the metadata shared by every event the platform publishes.
type Envelope struct {
	EventID       string    `json:"event_id"`
	EventType     string    `json:"event_type"`
	EventVersion  int       `json:"event_version"`
	Timestamp     time.Time `json:"timestamp"`
	Source        string    `json:"source,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// Event serialises as the envelope fields plus a "payload" object.
type Event[T any] struct {
	Envelope
	Payload T `json:"payload"`
}

type EventOption func(*Envelope)

func WithCorrelationID(id string) EventOption {
	return func(e *Envelope) { e.CorrelationID = id }
}

func WithTimestamp(at time.Time) EventOption {
	return func(e *Envelope) { e.Timestamp = at.UTC() }
}

func NewEvent[T any](eventType string, version int, source string, payload T, opts ...EventOption) (Event[T], error) {
	switch {
	case eventType == "":
		return Event[T]{}, ErrEventTypeRequired
	case version <= 0:
		return Event[T]{}, ErrEventVersion
	}

	env := Envelope{
		EventID:      uuid.NewString(),
		EventType:    eventType,
		EventVersion: version,
		Timestamp:    time.Now().UTC(),
		Source:       source,
	}
	for _, opt := range opts {
		opt(&env)
	}
	return Event[T]{Envelope: env, Payload: payload}, nil
}
