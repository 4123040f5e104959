// Package publisher streams vote results to Kafka for downstream consumers.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/okian/trailvote/internal/domain/model"
	"github.com/okian/trailvote/pkg/metrics"
)

const (
	sinkName            = "kafka"
	defaultBatchTimeout = 10 * time.Millisecond
)

// ErrNoBrokers is returned when no broker address is configured.
var ErrNoBrokers = errors.New("kafka brokers are required")

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Option applies a configuration option to the ResultPublisher.
type Option func(*ResultPublisher)

// WithWriter replaces the Kafka writer.
func WithWriter(w MessageWriter) Option {
	return func(p *ResultPublisher) {
		if w != nil {
			p.writer = w
		}
	}
}

// ResultPublisher publishes VoteResults as JSON, keyed by trail so results of
// one trail stay ordered within a partition.
type ResultPublisher struct {
	writer MessageWriter
	Topic  string
}

// NewResultPublisher creates a publisher for topic.
func NewResultPublisher(brokers []string, topic string, opts ...Option) (*ResultPublisher, error) {
	p := &ResultPublisher{Topic: topic}
	for _, opt := range opts {
		opt(p)
	}
	if p.writer == nil {
		if len(brokers) == 0 {
			return nil, ErrNoBrokers
		}
		p.writer = &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			RequiredAcks:           kafka.RequireAll,
			Balancer:               &kafka.Hash{},
			BatchTimeout:           defaultBatchTimeout,
			AllowAutoTopicCreation: true,
		}
	}
	return p, nil
}

// Record sends res to the topic.
func (p *ResultPublisher) Record(ctx context.Context, res model.VoteResult) error { //nolint:gocritic // hugeParam
	value, err := json.Marshal(res)
	if err != nil {
		metrics.RecordResultPublished(sinkName, "error")
		return fmt.Errorf("marshal vote result: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(res.Trail),
		Value: value,
		Headers: []kafka.Header{
			{Key: "status", Value: []byte(res.Status)},
			{Key: "voter", Value: []byte(res.Voter)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		metrics.RecordResultPublished(sinkName, "error")
		return fmt.Errorf("kafka write: %w", err)
	}
	metrics.RecordResultPublished(sinkName, "ok")
	return nil
}

// Close closes the underlying Kafka writer.
func (p *ResultPublisher) Close() error {
	return p.writer.Close()
}
