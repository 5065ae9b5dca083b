package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"exchange-core/internal/engine"
	"exchange-core/internal/events"
)

type ProducerMetrics struct {
	PublishTotal   *prometheus.CounterVec
	PublishLatency prometheus.Histogram
}

func NewProducerMetrics(registry *prometheus.Registry) *ProducerMetrics {
	m := &ProducerMetrics{
		PublishTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_publish_total",
				Help: "Total Kafka publish attempts.",
			},
			[]string{"topic", "status"},
		),
		PublishLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "kafka_publish_latency_seconds",
				Help:    "Kafka publish latency in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	registry.MustRegister(m.PublishTotal, m.PublishLatency)
	return m
}

// Envelope is the JSON value of every published message.
type Envelope struct {
	EventID    string          `json:"event_id"`
	Kind       events.Kind     `json:"kind"`
	Sequence   int64           `json:"sequence"`
	Index      int             `json:"index"`
	SymbolID   int32           `json:"symbol_id,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// NewEnvelope wraps ev with its header fields.
func NewEnvelope(ev events.Event) (Envelope, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s event: %w", ev.Kind(), err)
	}
	return Envelope{
		EventID:    ev.EventID(),
		Kind:       ev.Kind(),
		Sequence:   ev.Sequence(),
		Index:      ev.Index(),
		SymbolID:   ev.SymbolID(),
		OccurredAt: ev.OccurredAt(),
		Payload:    payload,
	}, nil
}

// MessageKey routes events of one symbol to one partition. Balance events have
// no symbol and are keyed by account.
func MessageKey(ev events.Event) string {
	if b, ok := ev.(*events.BalanceAdjustedEvent); ok {
		return "account-" + strconv.FormatInt(b.UID, 10)
	}
	return "symbol-" + strconv.FormatInt(int64(ev.SymbolID()), 10)
}

// NewSyncProducer connects an idempotent, all-acks producer.
func NewSyncProducer(brokers []string, clientID string) (sarama.SyncProducer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}
	producer, err := sarama.NewSyncProducer(brokers, ProducerConfig(clientID))
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return producer, nil
}

// ProducerConfig is the sarama config used by NewSyncProducer.
func ProducerConfig(clientID string) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = clientID
	cfg.Version = sarama.V3_6_0_0
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Retry.Backoff = 250 * time.Millisecond
	return cfg
}

// Bridge is an engine subscriber that forwards every event to a topic.
// Publish failures are logged and counted; they never stall the engine
// beyond the producer's own retries.
type Bridge struct {
	producer sarama.SyncProducer
	topic    string
	log      *zap.Logger
	metrics  *ProducerMetrics
}

func NewBridge(producer sarama.SyncProducer, topic string, log *zap.Logger, metrics *ProducerMetrics) *Bridge {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bridge{
		producer: producer,
		topic:    topic,
		log:      log,
		metrics:  metrics,
	}
}

// Consume implements engine.Subscriber.
func (b *Bridge) Consume(out *engine.Output) {
	if len(out.Events) == 0 {
		return
	}
	if err := b.Publish(out.Events); err != nil {
		b.log.Error("kafka publish failed",
			zap.String("topic", b.topic),
			zap.Int64("sequence", out.Sequence),
			zap.Error(err),
		)
	}
}

// Publish sends evs as one batch, preserving their order per key.
func (b *Bridge) Publish(evs []events.Event) error {
	msgs := make([]*sarama.ProducerMessage, 0, len(evs))
	for _, ev := range evs {
		env, err := NewEnvelope(ev)
		if err != nil {
			return err
		}
		value, err := json.Marshal(env)
		if err != nil {
			return fmt.Errorf("marshal envelope: %w", err)
		}
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic: b.topic,
			Key:   sarama.StringEncoder(MessageKey(ev)),
			Value: sarama.ByteEncoder(value),
			Headers: []sarama.RecordHeader{
				{Key: []byte("kind"), Value: []byte(ev.Kind())},
				{Key: []byte("event_id"), Value: []byte(ev.EventID())},
			},
		})
	}

	start := time.Now()
	err := b.producer.SendMessages(msgs)
	if b.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		b.metrics.PublishTotal.WithLabelValues(b.topic, status).Add(float64(len(msgs)))
		b.metrics.PublishLatency.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		var perr sarama.ProducerErrors
		if errors.As(err, &perr) {
			return fmt.Errorf("kafka publish failed for %d of %d messages: %w", len(perr), len(msgs), err)
		}
		return fmt.Errorf("kafka publish failed: %w", err)
	}
	return nil
}

func (b *Bridge) Close() error {
	if b.producer == nil {
		return nil
	}
	return b.producer.Close()
}

var _ engine.Subscriber = (*Bridge)(nil)
