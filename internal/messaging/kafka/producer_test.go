package kafka

import (
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
)

func TestProducer_Send(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicStorefrontEvents {
			t.Errorf("unexpected topic %s", msg.Topic)
		}
		if len(msg.Headers) != 1 || string(msg.Headers[0].Key) != HeaderEventType {
			t.Errorf("unexpected headers %v", msg.Headers)
		}
		return nil
	})

	producer := NewProducerFrom(mockProducer, log.WithField("component", "kafka-producer-test"))
	err := producer.Send(Message{
		Topic:   TopicStorefrontEvents,
		Key:     "user-1",
		Value:   []byte(`{}`),
		Headers: map[string]string{HeaderEventType: "cart.item_added"},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_Send_Error(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	producer := NewProducerFrom(mockProducer, nil)
	if err := producer.Send(Message{Topic: TopicStorefrontEvents, Key: "k"}); err == nil {
		t.Fatal("expected error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_NilSafe(t *testing.T) {
	var producer *Producer
	if err := producer.Send(Message{}); err == nil {
		t.Fatal("expected error for nil producer")
	}
	if err := producer.Close(); err != nil {
		t.Fatalf("close of nil producer: %v", err)
	}
}

func TestNewSyncConfig(t *testing.T) {
	config := NewSyncConfig("storefront")

	if config.ClientID != "storefront" {
		t.Fatalf("unexpected client id %s", config.ClientID)
	}
	if !config.Producer.Idempotent || config.Net.MaxOpenRequests != 1 {
		t.Fatal("producer must be idempotent with a single in-flight request")
	}
	if err := config.Validate(); err != nil {
		t.Fatalf("config must be valid: %v", err)
	}
}
