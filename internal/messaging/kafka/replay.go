package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/newmedica/storefront/internal/outbox"
)

// OffsetClient — часть sarama.Client, нужная для чтения границ партиций.
type OffsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
}

// PartitionConsumer — часть sarama.PartitionConsumer, нужная для чтения.
type PartitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

// PartitionSource открывает чтение партиции.
type PartitionSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (PartitionConsumer, error)
}

// SaramaSource адаптирует sarama.Consumer к PartitionSource.
type SaramaSource struct {
	Consumer sarama.Consumer
}

// ConsumePartition открывает партицию через sarama.
func (s SaramaSource) ConsumePartition(topic string, partition int32, offset int64) (PartitionConsumer, error) {
	pc, err := s.Consumer.ConsumePartition(topic, partition, offset)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

// ReplayConfig задаёт параметры переотправки из DLQ.
type ReplayConfig struct {
	SourceTopic string
	TargetTopic string
	Limit       int
	Execute     bool
	FromNewest  bool
	IdleTimeout time.Duration
}

// ReplayStats — итог переотправки.
type ReplayStats struct {
	Processed int
	Replayed  int
	Skipped   int
}

func (s *ReplayStats) add(other ReplayStats) {
	s.Processed += other.Processed
	s.Replayed += other.Replayed
	s.Skipped += other.Skipped
}

// ErrNotReplayable — сообщение DLQ не содержит исходного события.
var ErrNotReplayable = errors.New("dlq message is not replayable")

// Replayer читает DLQ и возвращает события в основной topic.
// Без Execute только перечисляет кандидатов.
type Replayer struct {
	client   OffsetClient
	source   PartitionSource
	producer *Producer
	logger   *log.Entry
	now      func() time.Time
}

// NewReplayer создаёт Replayer. producer обязателен только для Execute.
func NewReplayer(client OffsetClient, source PartitionSource, producer *Producer, logger *log.Entry) *Replayer {
	if logger == nil {
		logger = log.WithField("component", "dlq-replay")
	}
	return &Replayer{client: client, source: source, producer: producer, logger: logger, now: time.Now}
}

// Run обходит партиции по возрастанию номера, пока не наберётся Limit сообщений.
func (r *Replayer) Run(ctx context.Context, cfg ReplayConfig) (ReplayStats, error) {
	var total ReplayStats
	if r.client == nil || r.source == nil {
		return total, fmt.Errorf("kafka client and consumer are required")
	}
	if cfg.Execute && r.producer == nil {
		return total, fmt.Errorf("producer is required in execute mode")
	}
	if cfg.Limit <= 0 {
		return total, fmt.Errorf("limit must be > 0")
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 2 * time.Second
	}

	partitions, err := r.client.Partitions(cfg.SourceTopic)
	if err != nil {
		return total, fmt.Errorf("get partitions for topic %s: %w", cfg.SourceTopic, err)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		if total.Processed >= cfg.Limit {
			break
		}
		stats, err := r.partition(ctx, cfg, partition, cfg.Limit-total.Processed)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}

	r.logger.WithFields(log.Fields{
		"execute":   cfg.Execute,
		"processed": total.Processed,
		"replayed":  total.Replayed,
		"skipped":   total.Skipped,
	}).Info("dlq replay finished")
	return total, nil
}

func (r *Replayer) partition(ctx context.Context, cfg ReplayConfig, partition int32, limit int) (ReplayStats, error) {
	var stats ReplayStats

	oldest, err := r.client.GetOffset(cfg.SourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := r.client.GetOffset(cfg.SourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	start := oldest
	if cfg.FromNewest && newest-int64(limit) > oldest {
		start = newest - int64(limit)
	}

	pc, err := r.source.ConsumePartition(cfg.SourceTopic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(cfg.IdleTimeout)
	defer idle.Stop()

	for stats.Processed < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-idle.C:
			return stats, nil
		case consumeErr := <-pc.Errors():
			if consumeErr != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, consumeErr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= newest {
				return stats, nil
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(cfg.IdleTimeout)

			stats.Processed++
			replay, err := r.extract(msg.Value, cfg.TargetTopic)
			if err != nil {
				stats.Skipped++
				r.logger.WithError(err).WithFields(log.Fields{
					"partition": msg.Partition,
					"offset":    msg.Offset,
				}).Warn("skip unsupported dlq message")
			} else {
				if cfg.Execute {
					if err := r.producer.Send(replay); err != nil {
						return stats, fmt.Errorf("publish replay message: %w", err)
					}
				} else {
					r.logger.WithFields(log.Fields{
						"partition":    msg.Partition,
						"offset":       msg.Offset,
						"target_topic": replay.Topic,
						"key":          replay.Key,
					}).Info("dlq replay candidate")
				}
				stats.Replayed++
			}

			if msg.Offset+1 >= newest {
				return stats, nil
			}
		}
	}
	return stats, nil
}

// extract восстанавливает исходное событие из сообщения DLQ.
// Сообщение DLQ — Envelope, в Payload которого лежит outbox.DLQEnvelope.
func (r *Replayer) extract(raw []byte, targetTopic string) (Message, error) {
	wrapper, err := DecodeEnvelope(raw)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrNotReplayable, err)
	}

	var dead outbox.DLQEnvelope
	if err := json.Unmarshal(wrapper.Payload, &dead); err != nil {
		return Message{}, fmt.Errorf("%w: decode dlq payload: %v", ErrNotReplayable, err)
	}
	if len(dead.Payload) == 0 {
		return Message{}, fmt.Errorf("%w: original payload is empty", ErrNotReplayable)
	}

	envelope := Envelope{
		ID:            firstNonEmpty(dead.OutboxID, wrapper.ID),
		AggregateType: firstNonEmpty(dead.AggregateType, wrapper.AggregateType),
		AggregateID:   firstNonEmpty(dead.AggregateID, wrapper.AggregateID),
		EventType:     firstNonEmpty(dead.EventType, wrapper.EventType),
		Payload:       dead.Payload,
		PublishedAt:   r.now().UTC(),
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return Message{}, fmt.Errorf("encode replay envelope: %w", err)
	}

	return Message{
		Topic: targetTopic,
		Key:   envelope.Key(),
		Value: body,
		Headers: map[string]string{
			HeaderEventType:     envelope.EventType,
			HeaderAggregateType: envelope.AggregateType,
			HeaderReplayed:      "true",
		},
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
