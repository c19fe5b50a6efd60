package app

import (
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"

	"github.com/newmedica/storefront/internal/domain"
	"github.com/newmedica/storefront/internal/messaging/kafka"
	"github.com/newmedica/storefront/internal/messaging/rabbitmq"
	"github.com/newmedica/storefront/internal/version"
)

// EventSink — выбранный транспорт событий outbox.
type EventSink struct {
	Publisher domain.OutboxPublisher
	// DLQ задан только для Kafka.
	DLQ domain.OutboxPublisher

	closers []io.Closer
}

// Enabled сообщает, публикуются ли события наружу.
func (s *EventSink) Enabled() bool {
	return s != nil && s.Publisher != nil
}

var (
	newKafkaProducer = func(brokers []string) (*kafka.Producer, error) {
		return kafka.NewProducer(brokers, version.Service)
	}
	dialRabbitMQ = func(url, exchange string) (*rabbitmq.Publisher, io.Closer, error) {
		publisher, conn, err := rabbitmq.Dial(url, exchange)
		if err != nil {
			return nil, nil, err
		}
		return publisher, conn, nil
	}
)

// OpenEvents подключает транспорт cfg.EventTransport. Для none возвращает пустой sink.
func OpenEvents(cfg Config, logger *log.Entry) (*EventSink, error) {
	if logger == nil {
		logger = log.WithField("component", "events")
	}

	sink := &EventSink{}
	switch cfg.EventTransport {
	case "", EventTransportNone:
		logger.Info("event publishing disabled")
	case EventTransportKafka:
		producer, err := newKafkaProducer(cfg.KafkaBrokers)
		if err != nil {
			return nil, err
		}
		sink.Publisher = kafka.NewOutboxPublisher(producer, cfg.KafkaTopic)
		sink.DLQ = kafka.NewDLQPublisher(producer, cfg.KafkaDLQTopic)
		sink.closers = append(sink.closers, producer)
		logger.WithFields(log.Fields{
			"brokers": cfg.KafkaBrokers,
			"topic":   cfg.KafkaTopic,
		}).Info("kafka producer initialized")
	case EventTransportRabbitMQ:
		publisher, conn, err := dialRabbitMQ(cfg.RabbitMQURL, cfg.RabbitMQExchange)
		if err != nil {
			return nil, err
		}
		sink.Publisher = publisher
		sink.closers = append(sink.closers, conn, publisher)
		logger.WithField("exchange", cfg.RabbitMQExchange).Info("rabbitmq publisher initialized")
	default:
		return nil, fmt.Errorf("unknown event transport %q", cfg.EventTransport)
	}
	return sink, nil
}

// Close закрывает транспорт в обратном порядке.
func (s *EventSink) Close() error {
	if s == nil {
		return nil
	}
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}
