package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/dejobratic/shopdash/internal/orders/domain"
	"github.com/dejobratic/shopdash/internal/orders/ports"
)

const (
	TopicOrderCreated       = "order.created"
	TopicOrderStatusChanged = "order.status_changed"
	TopicPaymentConfirmed   = "payment.confirmed"
)

// MessageWriter is the subset of *kafkago.Writer used by the publisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher writes order events as JSON, keyed by order id so a single
// order's events stay on one partition.
type Publisher struct {
	writer MessageWriter
}

// NewPublisher builds a publisher with one writer routing by message topic.
func NewPublisher(brokers []string) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	writer := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}
	return NewPublisherWithWriter(writer), nil
}

// NewPublisherWithWriter wraps an existing writer. The writer must not have a fixed Topic.
func NewPublisherWithWriter(writer MessageWriter) *Publisher {
	return &Publisher{writer: writer}
}

func (p *Publisher) PublishOrderCreated(ctx context.Context, order domain.Order) error {
	return p.publish(ctx, TopicOrderCreated, order.ID, map[string]any{
		"order_id":   order.ID,
		"shop_id":    order.ShopID,
		"reference":  order.Reference,
		"amount":     order.Amount,
		"created_at": order.CreatedAt,
	})
}

func (p *Publisher) PublishStatusChanged(ctx context.Context, event ports.StatusChangedEvent) error {
	return p.publish(ctx, TopicOrderStatusChanged, event.OrderID, event)
}

func (p *Publisher) PublishPaymentConfirmed(ctx context.Context, event ports.PaymentConfirmedEvent) error {
	return p.publish(ctx, TopicPaymentConfirmed, event.OrderID, event)
}

// Close flushes pending messages.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func (p *Publisher) publish(ctx context.Context, topic, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}

	if err := p.writer.WriteMessages(ctx, kafkago.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: payload,
	}); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	return nil
}
