package kafka

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type stubPublisher struct {
	mu    sync.Mutex
	calls []publishCall
	err   error
}

type publishCall struct {
	topic string
	msgs  []Message
}

func (s *stubPublisher) Publish(_ context.Context, topic string, msgs []Message) error {
	s.mu.Lock()
	s.calls = append(s.calls, publishCall{topic: topic, msgs: msgs})
	s.mu.Unlock()
	return s.err
}

func (s *stubPublisher) Close() error { return nil }

func TestDLQPublisherPublishesOnError(t *testing.T) {
	primary := &stubPublisher{err: errors.New("publish failed")}
	dlq := &stubPublisher{}
	publisher := NewDLQPublisher(primary, dlq, "usage.dlq", slog.Default())

	msgs := []Message{{Key: "t1", Value: map[string]string{"id": "1"}}, {Key: "t2", Value: map[string]string{"id": "2"}}}
	if err := publisher.Publish(context.Background(), "usage.logged", msgs); err == nil {
		t.Fatalf("expected publish error")
	}
	if len(dlq.calls) != 1 || len(dlq.calls[0].msgs) != 2 {
		t.Fatalf("expected one dlq batch of 2, got %+v", dlq.calls)
	}
	if dlq.calls[0].topic != "usage.dlq" {
		t.Fatalf("expected dlq topic, got %s", dlq.calls[0].topic)
	}
	dead, ok := dlq.calls[0].msgs[0].Value.(DeadLetter)
	if !ok {
		t.Fatalf("expected DeadLetter, got %T", dlq.calls[0].msgs[0].Value)
	}
	if dead.Topic != "usage.logged" || dead.Error == "" || dead.Reason != ReasonPublishFailed {
		t.Fatalf("unexpected dead letter %+v", dead)
	}
	if string(dead.Value) != `{"id":"1"}` {
		t.Fatalf("expected original value, got %s", dead.Value)
	}
}

func TestDLQPublisherOnlyForwardsFailedMessages(t *testing.T) {
	primary := &stubPublisher{err: &PublishError{Failed: []FailedMessage{{Message: Message{Key: "t2"}, Err: errors.New("leader not available")}}}}
	dlq := &stubPublisher{}
	publisher := NewDLQPublisher(primary, dlq, "usage.dlq", nil)

	_ = publisher.Publish(context.Background(), "usage.logged", []Message{{Key: "t1"}, {Key: "t2"}})
	if len(dlq.calls) != 1 || len(dlq.calls[0].msgs) != 1 || dlq.calls[0].msgs[0].Key != "t2" {
		t.Fatalf("expected only the failed message in dlq, got %+v", dlq.calls)
	}
}

func TestDLQPublisherSkipsOnSuccess(t *testing.T) {
	primary := &stubPublisher{}
	dlq := &stubPublisher{}
	publisher := NewDLQPublisher(primary, dlq, "usage.dlq", slog.Default())

	if err := publisher.Publish(context.Background(), "usage.logged", []Message{{Key: "t1"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dlq.calls) != 0 {
		t.Fatalf("expected no dlq publish, got %d", len(dlq.calls))
	}
}

func TestSyncProducerPublishesBatch(t *testing.T) {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	mock := mocks.NewSyncProducer(t, cfg)
	mock.ExpectSendMessageAndSucceed()
	mock.ExpectSendMessageAndSucceed()

	metrics := NewProducerMetrics(prometheus.NewRegistry())
	producer := newSyncProducer(mock, nil, metrics)
	defer producer.Close()

	err := producer.Publish(context.Background(), "usage.logged", []Message{
		{Key: "t1", Value: map[string]int{"n": 1}},
		{Key: "t2", Value: map[string]int{"n": 2}},
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := testutil.ToFloat64(metrics.PublishTotal.WithLabelValues("usage.logged", "success")); got != 2 {
		t.Fatalf("expected 2 successes, got %v", got)
	}
}

func TestSyncProducerReportsFailures(t *testing.T) {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	mock := mocks.NewSyncProducer(t, cfg)
	mock.ExpectSendMessageAndFail(sarama.ErrNotLeaderForPartition)

	producer := newSyncProducer(mock, nil, nil)
	defer producer.Close()

	err := producer.Publish(context.Background(), "usage.logged", []Message{{Key: "t1", Value: "x"}})
	var pubErr *PublishError
	if !errors.As(err, &pubErr) || len(pubErr.Failed) != 1 || pubErr.Failed[0].Message.Key != "t1" {
		t.Fatalf("expected PublishError for t1, got %v", err)
	}
}

func TestNewEvent(t *testing.T) {
	ev, err := NewEvent("usage.logged", 1, "platform-api", map[string]int{"status": 200})
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	if ev.EventID == "" || ev.Timestamp.IsZero() || ev.Source != "platform-api" {
		t.Fatalf("unexpected envelope %+v", ev.Envelope)
	}

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	ev, err = NewEvent("usage.logged", 1, "", map[string]int{}, WithTimestamp(at), WithCorrelationID("req-1"))
	if err != nil || !ev.Timestamp.Equal(at) || ev.Timestamp.Location() != time.UTC || ev.CorrelationID != "req-1" {
		t.Fatalf("options not applied: %+v, %v", ev.Envelope, err)
	}
	if _, err := NewEvent("", 1, "", 0); !errors.Is(err, ErrEventTypeRequired) {
		t.Fatalf("expected ErrEventTypeRequired, got %v", err)
	}
	if _, err := NewEvent("usage.logged", 0, "", 0); !errors.Is(err, ErrEventVersion) {
		t.Fatalf("expected ErrEventVersion, got %v", err)
	}
}
