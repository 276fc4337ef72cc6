package kafka

import (
	"encoding/json"
	"time"
)

const ReasonPublishFailed = "publish_failed"

// DeadLetter is published to the DLQ topic in place of an undeliverable
// message. Value is the original JSON; values that cannot be encoded keep
// only their error.
type DeadLetter struct {
	Topic    string          `json:"topic"`
	Key      string          `json:"key,omitempty"`
	Reason   string          `json:"reason"`
	Error    string          `json:"error,omitempty"`
	Value    json.RawMessage `json:"value,omitempty"`
	FailedAt time.Time       `json:"failed_at"`
}

func NewDeadLetter(topic string, msg Message, cause error, reason string, at time.Time) DeadLetter {
	dl := DeadLetter{
		Topic:    topic,
		Key:      msg.Key,
		Reason:   reason,
		FailedAt: at.UTC(),
	}
	if cause != nil {
		dl.Error = cause.Error()
	}
	if msg.Value != nil {
		if raw, err := json.Marshal(msg.Value); err == nil {
			dl.Value = raw
		}
	}
	return dl
}
