package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"ticket-bazaar/internal/logger"
	"ticket-bazaar/internal/notify"
)

// MessageReader is satisfied by *kafka.Reader.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader MessageReader
	log    *logger.Logger
}

// NewConsumer creates a consumer for the given topic and group
func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader, log: log}
}

// Run hands each claim notice to handler until ctx is done. A message is
// committed once handled; a malformed one is logged and committed so it
// cannot wedge the partition, while a handler failure leaves it uncommitted.
func (c *Consumer) Run(ctx context.Context, handler notify.Notifier) error {
	c.log.Info("KAFKA", "Claim consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		var n notify.ClaimNotice
		if err := json.Unmarshal(msg.Value, &n); err != nil {
			c.log.Warn("KAFKA", fmt.Sprintf("Skipping malformed message at offset %d: %v", msg.Offset, err))
		} else if err := handler.ClaimReceived(ctx, n); err != nil {
			c.log.Error("KAFKA", fmt.Sprintf("Handling claim %d failed: %v", n.CheckoutID, err))
			continue
		} else {
			c.log.LogKafka("CONSUME", msg.Topic, fmt.Sprintf("claim.received checkout=%d delivered", n.CheckoutID))
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
		}
	}
}

// Close gracefully shuts down the reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}
