package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/ternarybob/arbor"

	"github.com/trogers1052/twstock-service/internal/common"
	"github.com/trogers1052/twstock-service/internal/models"
)

// messageWriter is the part of kafka.Writer the producer uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes pipeline events to Kafka
type Producer struct {
	writer messageWriter
	topic  string
	logger arbor.ILogger
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string, logger arbor.ILogger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{
		writer: writer,
		topic:  topic,
		logger: common.OrSilent(logger),
	}
}

// PublishPricesUpdated publishes a PRICES_UPDATED event keyed by symbol
func (p *Producer) PublishPricesUpdated(ctx context.Context, event models.PricesUpdatedEvent) error {
	event.EventType = models.EventPricesUpdated
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := p.publish(ctx, event.Symbol, event); err != nil {
		return err
	}
	p.logger.Debug().
		Str("topic", p.topic).
		Str("symbol", event.Symbol).
		Str("run_id", event.RunID).
		Msg("Published prices updated event")
	return nil
}

func (p *Producer) publish(ctx context.Context, key string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	return nil
}

// Close closes the Kafka producer
func (p *Producer) Close() error {
	return p.writer.Close()
}
