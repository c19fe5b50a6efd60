package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/newmedica/storefront/internal/domain"
)

// OutboxPublisher публикует события витрины из outbox в topic.
type OutboxPublisher struct {
	producer *Producer
	topic    string
	now      func() time.Time
}

// NewOutboxPublisher создаёт publisher основного потока событий.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxPublisher {
	if topic == "" {
		topic = TopicStorefrontEvents
	}
	return &OutboxPublisher{producer: producer, topic: topic, now: time.Now}
}

// NewDLQPublisher создаёт publisher для событий, исчерпавших попытки публикации.
func NewDLQPublisher(producer *Producer, topic string) *OutboxPublisher {
	if topic == "" {
		topic = TopicDeadLetterQueue
	}
	return NewOutboxPublisher(producer, topic)
}

// Topic возвращает целевой topic.
func (p *OutboxPublisher) Topic() string {
	return p.topic
}

// Publish отправляет событие в конверте Envelope.
func (p *OutboxPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	envelope := NewEnvelope(event, p.now())
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	return p.producer.Send(Message{
		Topic: p.topic,
		Key:   envelope.Key(),
		Value: body,
		Headers: map[string]string{
			HeaderEventType:     event.EventType,
			HeaderAggregateType: event.AggregateType,
		},
	})
}

var _ domain.OutboxPublisher = (*OutboxPublisher)(nil)
