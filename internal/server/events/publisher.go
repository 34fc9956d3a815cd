// Package events publishes domain events about accounts.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// AccountDeleted is emitted after an account record has been removed.
type AccountDeleted struct {
	UserID     string    `json:"user_id"`
	UserName   string    `json:"username"`
	Namespace  string    `json:"namespace"`
	Purged     bool      `json:"purged"`
	DeletedAt  time.Time `json:"deleted_at"`
	DeletionID string    `json:"deletion_id,omitempty"`
}

type Publisher interface {
	PublishAccountDeleted(ctx context.Context, e AccountDeleted) error
	Close() error
}

// Writer is the part of *kafka.Writer used by KafkaPublisher.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer Writer
}

// NewKafkaPublisher writes to topic on brokers. Messages are keyed by user
// ID so all events for one user land on one partition.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return NewKafkaPublisherWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	})
}

func NewKafkaPublisherWithWriter(w Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) PublishAccountDeleted(ctx context.Context, e AccountDeleted) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(e.UserID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte("account.deleted")},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher drops every event. It is used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) PublishAccountDeleted(context.Context, AccountDeleted) error { return nil }
func (NopPublisher) Close() error                                                { return nil }
