package kafka

import (
	"encoding/json"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/newmedica/storefront/internal/domain"
)

func TestOutboxPublisher_Publish(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, _ := msg.Key.Encode()
		if string(key) != "order-123" {
			t.Errorf("expected aggregate id as key, got %s", key)
		}
		value, _ := msg.Value.Encode()
		envelope, err := DecodeEnvelope(value)
		if err != nil {
			return err
		}
		if envelope.EventType != "order.completed" || string(envelope.Payload) != `{"order_id":"order-123"}` {
			t.Errorf("unexpected envelope %+v", envelope)
		}
		return nil
	})

	publisher := NewOutboxPublisher(NewProducerFrom(mockProducer, nil), "")
	if publisher.Topic() != TopicStorefrontEvents {
		t.Fatalf("unexpected default topic %s", publisher.Topic())
	}

	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: "order",
		AggregateID:   "order-123",
		EventType:     "order.completed",
		Payload:       []byte(`{"order_id":"order-123"}`),
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishProducerError(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewDLQPublisher(NewProducerFrom(mockProducer, nil), "")
	if publisher.Topic() != TopicDeadLetterQueue {
		t.Fatalf("unexpected dlq topic %s", publisher.Topic())
	}

	if err := publisher.Publish(domain.OutboxMessage{ID: "outbox-2", EventType: "cart.item_added"}); err == nil {
		t.Fatal("expected publish error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishNilProducer(t *testing.T) {
	t.Parallel()

	publisher := NewOutboxPublisher(nil, TopicStorefrontEvents)
	if err := publisher.Publish(domain.OutboxMessage{ID: "outbox-3"}); err == nil {
		t.Fatal("expected error for nil producer")
	}
}

func TestEnvelope_KeyAndEmptyPayload(t *testing.T) {
	t.Parallel()

	envelope := NewEnvelope(domain.OutboxMessage{ID: "outbox-4", EventType: "quotation.requested"}, testTime)
	if envelope.Key() != "outbox-4" {
		t.Fatalf("expected id fallback key, got %s", envelope.Key())
	}

	raw, err := json.Marshal(envelope)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := DecodeEnvelope(raw)
	if err != nil {
		t.Fatal(err)
	}
	if string(decoded.Payload) != `{}` {
		t.Fatalf("empty payload must become an object, got %s", decoded.Payload)
	}

	if _, err := DecodeEnvelope([]byte(`{"id":"x"}`)); err == nil {
		t.Fatal("envelope without event_type must be rejected")
	}
}
