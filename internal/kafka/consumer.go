package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/ternarybob/arbor"

	"github.com/trogers1052/twstock-service/internal/calendar"
	"github.com/trogers1052/twstock-service/internal/common"
	"github.com/trogers1052/twstock-service/internal/models"
)

// UpdateRunner runs an update batch
type UpdateRunner interface {
	Update(ctx context.Context, req models.UpdateRequest) models.UpdateResponse
}

// Consumer turns UPDATE_REQUESTED commands into update batches
type Consumer struct {
	reader *kafka.Reader
	runner UpdateRunner
	logger arbor.ILogger
}

// NewConsumer creates a new Kafka consumer for update requests
func NewConsumer(brokers []string, topic, groupID string, runner UpdateRunner, logger arbor.ILogger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})

	return &Consumer{
		reader: reader,
		runner: runner,
		logger: common.OrSilent(logger),
	}
}

// Start consumes messages until ctx is cancelled
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info().Str("topic", c.reader.Config().Topic).Msg("Starting Kafka consumer")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("Kafka consumer shutting down")
			return c.reader.Close()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				c.logger.Warn().Err(err).Msg("Error reading message")
				continue
			}

			if err := c.processMessage(ctx, msg); err != nil {
				c.logger.Error().
					Int("partition", msg.Partition).
					Str("key", string(msg.Key)).
					Err(err).
					Msg("Error processing message")
			}
		}
	}
}

// processMessage handles a single Kafka message
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var event models.UpdateRequestedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal update event: %w", err)
	}

	if event.EventType != models.EventUpdateRequested {
		c.logger.Debug().Str("event_type", event.EventType).Msg("Ignoring event")
		return nil
	}

	req, err := requestFromEvent(event)
	if err != nil {
		return err
	}

	resp := c.runner.Update(ctx, req)
	c.logger.Info().
		Str("run_id", resp.RunID).
		Int("total", resp.Summary.Total).
		Int("success", resp.Summary.Success).
		Int("failed", resp.Summary.Failed).
		Msg("Update requested via Kafka finished")
	return nil
}

// requestFromEvent maps the event onto an update request; flags default to true
func requestFromEvent(event models.UpdateRequestedEvent) (models.UpdateRequest, error) {
	req := models.UpdateRequest{
		Symbols:       event.Symbols,
		UpdatePrices:  true,
		UpdateReturns: true,
	}
	if event.UpdatePrices != nil {
		req.UpdatePrices = *event.UpdatePrices
	}
	if event.UpdateReturns != nil {
		req.UpdateReturns = *event.UpdateReturns
	}

	if event.StartDate != "" {
		start, err := calendar.ParseDate(event.StartDate)
		if err != nil {
			return req, fmt.Errorf("invalid start_date: %w", err)
		}
		req.StartDate = &start
	}
	if event.EndDate != "" {
		end, err := calendar.ParseDate(event.EndDate)
		if err != nil {
			return req, fmt.Errorf("invalid end_date: %w", err)
		}
		req.EndDate = &end
	}
	return req, nil
}

// Close closes the Kafka consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}
