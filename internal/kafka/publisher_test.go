package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/dejobratic/shopdash/internal/orders/domain"
	"github.com/dejobratic/shopdash/internal/orders/ports"
)

type recordingWriter struct {
	messages []kafkago.Message
	err      error
	closed   bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublisherPublishStatusChanged(t *testing.T) {
	t.Run("writes JSON keyed by order id to the status topic", func(t *testing.T) {
		writer := &recordingWriter{}
		publisher := NewPublisherWithWriter(writer)

		event := ports.StatusChangedEvent{
			OrderID: "order-1",
			ShopID:  "shop-1",
			From:    domain.StatusPending,
			To:      domain.StatusCompleted,
			Source:  domain.SourcePayment,
			At:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		}

		if err := publisher.PublishStatusChanged(context.Background(), event); err != nil {
			t.Fatalf("PublishStatusChanged() failed: %v", err)
		}

		if len(writer.messages) != 1 {
			t.Fatalf("expected 1 message, got %d", len(writer.messages))
		}

		msg := writer.messages[0]
		if msg.Topic != TopicOrderStatusChanged {
			t.Errorf("expected topic %s, got %s", TopicOrderStatusChanged, msg.Topic)
		}
		if string(msg.Key) != "order-1" {
			t.Errorf("expected key order-1, got %s", msg.Key)
		}

		var decoded ports.StatusChangedEvent
		if err := json.Unmarshal(msg.Value, &decoded); err != nil {
			t.Fatalf("failed to decode payload: %v", err)
		}
		if decoded.To != domain.StatusCompleted {
			t.Errorf("expected to=completed, got %s", decoded.To)
		}
	})

	t.Run("wraps writer errors", func(t *testing.T) {
		writeErr := errors.New("broker down")
		publisher := NewPublisherWithWriter(&recordingWriter{err: writeErr})

		err := publisher.PublishPaymentConfirmed(context.Background(), ports.PaymentConfirmedEvent{OrderID: "order-1"})
		if !errors.Is(err, writeErr) {
			t.Errorf("expected wrapped writer error, got %v", err)
		}
	})
}

func TestNewPublisherRequiresBrokers(t *testing.T) {
	if _, err := NewPublisher(nil); err == nil {
		t.Error("expected error without brokers")
	}
}

func TestPublisherClose(t *testing.T) {
	writer := &recordingWriter{}
	if err := NewPublisherWithWriter(writer).Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if !writer.closed {
		t.Error("expected writer to be closed")
	}
}
