// Package notify announces accepted index values on Kafka.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/StrathCole/gpu-index/pkg/aggregator"
	"github.com/StrathCole/gpu-index/pkg/feeder"
	"github.com/StrathCole/gpu-index/pkg/metrics"
	"github.com/StrathCole/gpu-index/pkg/version"
)

const sinkName = "notify"

// EventType identifies IndexPublished events.
const EventType = "IndexPublished"

// ErrNoBrokers indicates a publisher configured without brokers.
var ErrNoBrokers = errors.New("brokers are required")

// IndexPublished is the event emitted after an index is stored.
type IndexPublished struct {
	Type                 string  `json:"type"`
	RunID                string  `json:"run_id"`
	IndexID              int64   `json:"index_id"`
	Timestamp            string  `json:"timestamp"`
	IndexPrice           float64 `json:"index_price"`
	HyperscalerComponent float64 `json:"hyperscaler_component"`
	NeocloudComponent    float64 `json:"neocloud_component"`
	ProviderCount        int     `json:"provider_count"`
	Client               string  `json:"client"`
}

// NewIndexPublished builds the event for a stored snapshot.
func NewIndexPublished(runID string, indexID int64, snap *aggregator.Snapshot) IndexPublished {
	return IndexPublished{
		Type:                 EventType,
		RunID:                runID,
		IndexID:              indexID,
		Timestamp:            snap.Timestamp.UTC().Format(time.RFC3339),
		IndexPrice:           snap.FinalPrice,
		HyperscalerComponent: snap.HyperscalerComponent,
		NeocloudComponent:    snap.NeocloudComponent,
		ProviderCount:        snap.ProviderCount(),
		Client:               version.AgentString(),
	}
}

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config configures the publisher.
type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// Publisher writes IndexPublished events to one topic.
type Publisher struct {
	writer MessageWriter
	topic  string
	logger zerolog.Logger
}

// NewPublisher creates a synchronous Kafka publisher.
func NewPublisher(cfg Config, logger zerolog.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            3,
		WriteTimeout:           cfg.WriteTimeout,
		ReadTimeout:            cfg.WriteTimeout,
		BatchSize:              1,
		AllowAutoTopicCreation: true,
	}
	return NewPublisherWithWriter(writer, cfg.Topic, logger), nil
}

// NewPublisherWithWriter wraps an existing writer. The writer must already
// target topic.
func NewPublisherWithWriter(w MessageWriter, topic string, logger zerolog.Logger) *Publisher {
	return &Publisher{
		writer: w,
		topic:  topic,
		logger: logger.With().Str("component", "notify").Str("topic", topic).Logger(),
	}
}

// Publish sends event keyed by its run id.
func (p *Publisher) Publish(ctx context.Context, event IndexPublished) (err error) {
	defer func() { metrics.RecordSinkWrite(sinkName, err) }()

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.RunID),
		Value: value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type)},
			{Key: "client", Value: []byte(event.Client)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return feeder.Connectivity(sinkName, "write", fmt.Errorf("failed to publish event: %w", err))
	}

	p.logger.Info().
		Str("run_id", event.RunID).
		Int64("index_id", event.IndexID).
		Float64("index_price", event.IndexPrice).
		Msg("Index event published")
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
