package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/reviewlens/reviewlens/models"
)

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers      []string
	Topic        string
	Source       string // service name stamped into each envelope
	BatchSize    int
	BatchTimeout time.Duration
}

// DefaultConfig returns sensible defaults for the Kafka publisher.
func DefaultConfig(brokers []string) Config {
	return Config{
		Brokers:      brokers,
		Topic:        TopicAnalyses,
		Source:       "reviewlens-api",
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// Publisher emits analysis events to Kafka.
type Publisher struct {
	writer *kafka.Writer
	topic  string
	source string
	logger *slog.Logger
}

// NewPublisher creates a Kafka-backed publisher. The writer connects lazily,
// so construction succeeds even when no broker is reachable yet.
func NewPublisher(cfg Config, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequireAll,
	}

	return &Publisher{
		writer: w,
		topic:  cfg.Topic,
		source: cfg.Source,
		logger: logger.With("component", "events"),
	}
}

// AnalysisCompleted publishes a summary of a finished scoring run, keyed by
// ASIN so per-product ordering is preserved across partitions.
func (p *Publisher) AnalysisCompleted(ctx context.Context, entry *models.ProductAnalysis) error {
	event, err := NewEvent(TypeAnalysisCompleted, entry.ASIN, p.source, AnalysisCompletedData{
		ASIN:             entry.ASIN,
		ProductTitle:     entry.ProductTitle,
		TotalReviews:     entry.TotalReviews,
		OverallScore:     entry.Analysis.OverallAuthenticityScore,
		Verdict:          entry.Analysis.Verdict,
		VerificationRate: entry.Analysis.VerificationRate,
		ScrapedAt:        entry.ScrapedAt,
	})
	if err != nil {
		return fmt.Errorf("build event: %w", err)
	}
	return p.publish(ctx, event)
}

func (p *Publisher) publish(ctx context.Context, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.AggregateID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "source", Value: []byte(event.Source)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish event to %s: %w", p.topic, err)
	}

	p.logger.DebugContext(ctx, "event published",
		slog.String("topic", p.topic),
		slog.String("event_type", event.EventType),
		slog.String("asin", event.AggregateID),
	)
	return nil
}

// Close closes the publisher and flushes pending messages.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
