package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"

	"github.com/newmedica/storefront/internal/domain"
	"github.com/newmedica/storefront/internal/messaging/kafka"
)

const (
	// EventsExchange — topic exchange событий витрины.
	EventsExchange = "storefront.events"

	routingKeyVersion     = ".v1"
	defaultPublishTimeout = 3 * time.Second
)

// Channel — часть amqp.Channel, которой пользуется Publisher.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RoutingKey строит ключ маршрутизации: cart.item_added -> cart.item_added.v1.
func RoutingKey(eventType string) string {
	return eventType + routingKeyVersion
}

// Publisher публикует события outbox в topic exchange.
// Тело сообщения совпадает с конвертом Kafka, чтобы потребители не зависели от брокера.
type Publisher struct {
	ch       Channel
	exchange string
	timeout  time.Duration
	logger   *log.Entry
	now      func() time.Time
}

// Dial подключается к RabbitMQ и открывает канал публикации.
func Dial(url, exchange string) (*Publisher, *amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}

	publisher, err := NewPublisher(ch, exchange, nil)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return publisher, conn, nil
}

// NewPublisher объявляет exchange и возвращает publisher.
func NewPublisher(ch Channel, exchange string, logger *log.Entry) (*Publisher, error) {
	if ch == nil {
		return nil, fmt.Errorf("rabbitmq channel is nil")
	}
	if exchange == "" {
		exchange = EventsExchange
	}
	if logger == nil {
		logger = log.WithField("component", "rabbitmq-publisher")
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return &Publisher{
		ch:       ch,
		exchange: exchange,
		timeout:  defaultPublishTimeout,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Publish отправляет событие с persistent delivery mode.
func (p *Publisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.ch == nil {
		return fmt.Errorf("rabbitmq publisher is not initialized")
	}

	envelope := kafka.NewEnvelope(event, p.now())
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	key := RoutingKey(event.EventType)
	err = p.ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Timestamp:    envelope.PublishedAt,
		Type:         event.EventType,
		Headers: amqp.Table{
			kafka.HeaderAggregateType: event.AggregateType,
		},
		Body: body,
	})
	if err != nil {
		p.logger.WithError(err).WithFields(log.Fields{
			"exchange":    p.exchange,
			"routing_key": key,
		}).Error("failed to publish event to rabbitmq")
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}

// Close закрывает канал.
func (p *Publisher) Close() error {
	if p == nil || p.ch == nil {
		return nil
	}
	return p.ch.Close()
}

var _ domain.OutboxPublisher = (*Publisher)(nil)
