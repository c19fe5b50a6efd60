package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/newmedica/storefront/internal/domain"
)

// Topics витрины.
const (
	TopicStorefrontEvents = "storefront.events"
	TopicDeadLetterQueue  = "storefront.dlq"
)

// Заголовки сообщений.
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderReplayed      = "x-replayed"
)

// Envelope — формат события витрины в Kafka.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope оборачивает outbox-сообщение.
func NewEnvelope(event domain.OutboxMessage, publishedAt time.Time) Envelope {
	payload := json.RawMessage(event.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	return Envelope{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       payload,
		PublishedAt:   publishedAt.UTC(),
	}
}

// Key — ключ партиционирования: события одного агрегата попадают в одну партицию.
func (e Envelope) Key() string {
	if e.AggregateID != "" {
		return e.AggregateID
	}
	return e.ID
}

// DecodeEnvelope разбирает событие витрины.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if envelope.EventType == "" {
		return Envelope{}, fmt.Errorf("decode envelope: event_type is empty")
	}
	return envelope, nil
}
