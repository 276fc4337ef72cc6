package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AfshinJalili/sentinel/libs/kafka"
	"github.com/AfshinJalili/sentinel/services/platform/internal/storage"
	"github.com/google/uuid"
)

const (
	EventUsageLogged        = "usage.logged"
	EventUsageLoggedVersion = 1
)

// Sink persists or forwards a batch of usage entries. The batch slice is
// reused by the caller after Write returns.
type Sink interface {
	Write(ctx context.Context, logs []storage.UsageLog) error
}

type UsageStore interface {
	InsertUsageLogs(ctx context.Context, logs []storage.UsageLog) error
}

type StorageSink struct {
	store UsageStore
}

func NewStorageSink(store UsageStore) *StorageSink {
	return &StorageSink{store: store}
}

func (s *StorageSink) Write(ctx context.Context, logs []storage.UsageLog) error {
	return s.store.InsertUsageLogs(ctx, logs)
}

type UsageLogged struct {
	TenantID   uuid.UUID `json:"tenant_id"`
	Endpoint   string    `json:"endpoint"`
	StatusCode int       `json:"status_code"`
	ResponseMS int       `json:"response_ms"`
	LoggedAt   time.Time `json:"logged_at"`
}

// KafkaSink publishes each entry as a usage.logged event keyed by tenant.
type KafkaSink struct {
	publisher kafka.Publisher
	topic     string
	source    string
}

func NewKafkaSink(publisher kafka.Publisher, topic, source string) *KafkaSink {
	return &KafkaSink{publisher: publisher, topic: topic, source: source}
}

func (s *KafkaSink) Write(ctx context.Context, logs []storage.UsageLog) error {
	msgs := make([]kafka.Message, 0, len(logs))
	for _, l := range logs {
		event, err := kafka.NewEvent(EventUsageLogged, EventUsageLoggedVersion, s.source, UsageLogged{
			TenantID:   l.TenantID,
			Endpoint:   l.Endpoint,
			StatusCode: l.StatusCode,
			ResponseMS: l.ResponseMS,
			LoggedAt:   l.LoggedAt,
		}, kafka.WithTimestamp(l.LoggedAt))
		if err != nil {
			return fmt.Errorf("build usage event: %w", err)
		}
		msgs = append(msgs, kafka.Message{Key: l.TenantID.String(), Value: event})
	}
	return s.publisher.Publish(ctx, s.topic, msgs)
}

// MultiSink writes every batch to all sinks, even when one of them fails.
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, logs []storage.UsageLog) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, logs); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
