package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"
)

type ProducerMetrics struct {
	PublishTotal   *prometheus.CounterVec
	PublishLatency prometheus.Histogram
}

func NewProducerMetrics(registry prometheus.Registerer) *ProducerMetrics {
	m := &ProducerMetrics{
		PublishTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_publish_messages_total",
				Help: "Kafka messages published, by topic and status.",
			},
			[]string{"topic", "status"},
		),
		PublishLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "kafka_publish_latency_seconds",
				Help:    "Kafka batch publish latency in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	registry.MustRegister(m.PublishTotal, m.PublishLatency)
	return m
}

// Message is one JSON-encoded record. Value is marshalled at publish time.
type Message struct {
	Key   string
	Value any
}

// PublishError reports the messages of a batch that were not delivered.
type PublishError struct {
	Failed []FailedMessage
}

type FailedMessage struct {
	Message Message
	Err     error
}

func (e *PublishError) Error() string {
	if len(e.Failed) == 0 {
		return "kafka publish failed"
	}
	return fmt.Sprintf("kafka publish failed for %d message(s): %v", len(e.Failed), e.Failed[0].Err)
}

type Publisher interface {
	Publish(ctx context.Context, topic string, msgs []Message) error
	Close() error
}

// DLQPublisher forwards undelivered messages to a dead-letter topic. The
// primary error is still returned so callers can count the failure.
type DLQPublisher struct {
	primary  Publisher
	dlq      Publisher
	dlqTopic string
	logger   *slog.Logger
}

func NewDLQPublisher(primary Publisher, dlq Publisher, dlqTopic string, logger *slog.Logger) *DLQPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &DLQPublisher{
		primary:  primary,
		dlq:      dlq,
		dlqTopic: dlqTopic,
		logger:   logger,
	}
}

func (p *DLQPublisher) Publish(ctx context.Context, topic string, msgs []Message) error {
	if p == nil || p.primary == nil {
		return errors.New("kafka producer not configured")
	}
	err := p.primary.Publish(ctx, topic, msgs)
	if err == nil || p.dlq == nil || p.dlqTopic == "" {
		return err
	}

	var failed []FailedMessage
	var pubErr *PublishError
	if errors.As(err, &pubErr) {
		failed = pubErr.Failed
	} else {
		for _, msg := range msgs {
			failed = append(failed, FailedMessage{Message: msg, Err: err})
		}
	}

	dead := make([]Message, 0, len(failed))
	for _, f := range failed {
		dead = append(dead, Message{Key: f.Message.Key, Value: NewDeadLetter(topic, f.Message, f.Err, ReasonPublishFailed, time.Now())})
	}
	if dlqErr := p.dlq.Publish(ctx, p.dlqTopic, dead); dlqErr != nil {
		p.logger.Error("publish dlq failed", "topic", p.dlqTopic, "count", len(dead), "error", dlqErr)
	}
	return err
}

func (p *DLQPublisher) Close() error {
	if p == nil || p.primary == nil {
		return nil
	}
	return p.primary.Close()
}

type ProducerConfig struct {
	Brokers  []string
	ClientID string
	Timeout  time.Duration
}

type SyncProducer struct {
	producer sarama.SyncProducer
	logger   *slog.Logger
	metrics  *ProducerMetrics
}

func NewSyncProducer(cfg ProducerConfig, logger *slog.Logger, metrics *ProducerMetrics) (*SyncProducer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	sc := sarama.NewConfig()
	sc.Version = sarama.V3_7_0_0
	if cfg.ClientID != "" {
		sc.ClientID = cfg.ClientID
	}
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.Idempotent = true
	sc.Net.MaxOpenRequests = 1
	sc.Producer.Retry.Max = 5
	sc.Producer.Retry.Backoff = 250 * time.Millisecond
	if cfg.Timeout > 0 {
		sc.Producer.Timeout = cfg.Timeout
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return newSyncProducer(producer, logger, metrics), nil
}

func newSyncProducer(producer sarama.SyncProducer, logger *slog.Logger, metrics *ProducerMetrics) *SyncProducer {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncProducer{producer: producer, logger: logger, metrics: metrics}
}

func (p *SyncProducer) Publish(ctx context.Context, topic string, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	batch := make([]*sarama.ProducerMessage, 0, len(msgs))
	index := make(map[*sarama.ProducerMessage]Message, len(msgs))
	var failed []FailedMessage
	for _, msg := range msgs {
		payload, err := json.Marshal(msg.Value)
		if err != nil {
			failed = append(failed, FailedMessage{Message: msg, Err: fmt.Errorf("marshal kafka payload: %w", err)})
			continue
		}
		pm := &sarama.ProducerMessage{
			Topic: topic,
			Key:   sarama.StringEncoder(msg.Key),
			Value: sarama.ByteEncoder(payload),
		}
		batch = append(batch, pm)
		index[pm] = msg
	}

	start := time.Now()
	var sendErr error
	if len(batch) > 0 {
		sendErr = p.producer.SendMessages(batch)
	}
	if p.metrics != nil {
		p.metrics.PublishLatency.Observe(time.Since(start).Seconds())
	}

	if sendErr != nil {
		var perrs sarama.ProducerErrors
		if errors.As(sendErr, &perrs) {
			for _, pe := range perrs {
				failed = append(failed, FailedMessage{Message: index[pe.Msg], Err: pe.Err})
			}
		} else {
			for _, pm := range batch {
				failed = append(failed, FailedMessage{Message: index[pm], Err: sendErr})
			}
		}
	}

	if p.metrics != nil {
		p.metrics.PublishTotal.WithLabelValues(topic, "success").Add(float64(len(msgs) - len(failed)))
		if len(failed) > 0 {
			p.metrics.PublishTotal.WithLabelValues(topic, "error").Add(float64(len(failed)))
		}
	}
	if len(failed) > 0 {
		p.logger.Error("kafka publish failed", "topic", topic, "failed", len(failed), "error", failed[0].Err)
		return &PublishError{Failed: failed}
	}
	return nil
}

func (p *SyncProducer) Close() error {
	if p.producer == nil {
		return nil
	}
	return p.producer.Close()
}
