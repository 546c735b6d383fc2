package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"

	"ticket-bazaar/internal/logger"
	"ticket-bazaar/internal/notify"
)

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes claim notices; it is a notify.Notifier.
type Producer struct {
	Writer MessageWriter
	Topic  string
	log    *logger.Logger
}

func NewProducer(brokers []string, topic string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &Producer{Writer: writer, Topic: topic, log: log}
}

// ClaimReceived streams the notice keyed by listing, so every event for one
// listing lands on the same partition.
func (p *Producer) ClaimReceived(ctx context.Context, n notify.ClaimNotice) error {
	msgBytes, err := json.Marshal(n)
	if err != nil {
		return err
	}

	p.log.LogKafka("PUBLISH", p.Topic, fmt.Sprintf("claim.received checkout=%d listing=%d", n.CheckoutID, n.ListingID))

	err = p.Writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(strconv.FormatInt(n.ListingID, 10)),
		Value:   msgBytes,
		Headers: []kafka.Header{{Key: "type", Value: []byte("claim.received")}},
	})
	if err != nil {
		return fmt.Errorf("publish claim %d: %w", n.CheckoutID, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
