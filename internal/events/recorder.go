package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/newmedica/storefront/internal/domain"
)

// Type определяет тип события витрины.
type Type string

const (
	// События корзины
	TypeCartItemAdded   Type = "cart.item_added"
	TypeCartItemUpdated Type = "cart.item_updated"
	TypeCartItemRemoved Type = "cart.item_removed"

	// События оформления
	TypeOrderCreated          Type = "checkout.order_created"
	TypePaymentSessionCreated Type = "checkout.payment_session_created"

	// События страницы завершения заказа
	TypeOrderCompleted        Type = "order.completed"
	TypeOrderCompletionFailed Type = "order.completion_failed"

	TypeQuotationRequested Type = "quotation.requested"
)

// Агрегаты, к которым привязаны события.
const (
	AggregateCart      = "cart"
	AggregateOrder     = "order"
	AggregateQuotation = "quotation"
)

// Types возвращает все известные типы событий.
func Types() []Type {
	return []Type{
		TypeCartItemAdded,
		TypeCartItemUpdated,
		TypeCartItemRemoved,
		TypeOrderCreated,
		TypePaymentSessionCreated,
		TypeOrderCompleted,
		TypeOrderCompletionFailed,
		TypeQuotationRequested,
	}
}

// Recorder записывает события в outbox; публикацией занимается outbox worker.
// nil Recorder допустим и ничего не делает.
type Recorder struct {
	outbox domain.OutboxRepository
	logger *log.Entry
	now    func() time.Time
}

// NewRecorder создаёт Recorder. При nil outbox возвращает nil (события отключены).
func NewRecorder(outbox domain.OutboxRepository, logger *log.Entry) *Recorder {
	if outbox == nil {
		return nil
	}
	if logger == nil {
		logger = log.WithField("component", "events")
	}
	return &Recorder{outbox: outbox, logger: logger, now: time.Now}
}

// Record сериализует payload и ставит событие в outbox.
// Ошибка логируется и возвращается, но вызывающий код не обязан её обрабатывать.
func (r *Recorder) Record(ctx context.Context, eventType Type, aggregateType, aggregateID string, payload map[string]any) error {
	if r == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if payload == nil {
		payload = make(map[string]any)
	}
	payload["occurred_at"] = r.now().UTC().Format(time.RFC3339Nano)

	data, err := json.Marshal(payload)
	if err != nil {
		r.logger.WithError(err).WithField("event", eventType).Error("marshal event failed")
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	msg := domain.OutboxMessage{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     string(eventType),
		Payload:       data,
	}
	if _, err := r.outbox.Enqueue(msg); err != nil {
		r.logger.WithError(err).WithFields(log.Fields{
			"aggregate_id": aggregateID,
			"event":        eventType,
		}).Error("enqueue event failed")
		return fmt.Errorf("enqueue %s event: %w", eventType, err)
	}
	return nil
}
