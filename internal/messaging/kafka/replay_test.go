package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/newmedica/storefront/internal/domain"
	"github.com/newmedica/storefront/internal/outbox"
)

var testTime = time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC)

type stubOffsets struct {
	partitions []int32
	oldest     map[int32]int64
	newest     map[int32]int64
}

func (s stubOffsets) Partitions(string) ([]int32, error) { return s.partitions, nil }

func (s stubOffsets) GetOffset(_ string, partition int32, at int64) (int64, error) {
	if at == sarama.OffsetOldest {
		return s.oldest[partition], nil
	}
	return s.newest[partition], nil
}

type stubPartition struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
	closed   bool
}

func (s *stubPartition) Messages() <-chan *sarama.ConsumerMessage { return s.messages }
func (s *stubPartition) Errors() <-chan *sarama.ConsumerError     { return s.errors }
func (s *stubPartition) Close() error {
	s.closed = true
	return nil
}

type stubSource struct {
	partitions map[int32]*stubPartition
	offsets    map[int32]int64
}

func (s *stubSource) ConsumePartition(_ string, partition int32, offset int64) (PartitionConsumer, error) {
	if s.offsets == nil {
		s.offsets = make(map[int32]int64)
	}
	s.offsets[partition] = offset
	return s.partitions[partition], nil
}

func newStubPartition(values ...[]byte) *stubPartition {
	pc := &stubPartition{
		messages: make(chan *sarama.ConsumerMessage, len(values)),
		errors:   make(chan *sarama.ConsumerError),
	}
	for i, value := range values {
		pc.messages <- &sarama.ConsumerMessage{Offset: int64(i), Value: value}
	}
	return pc
}

// dlqMessage собирает сообщение DLQ так, как его публикует outbox worker через DLQ publisher.
func dlqMessage(t *testing.T, event domain.OutboxMessage) []byte {
	t.Helper()

	dead, err := json.Marshal(outbox.DLQEnvelope{
		OutboxID:       event.ID,
		AggregateType:  event.AggregateType,
		AggregateID:    event.AggregateID,
		EventType:      event.EventType,
		Payload:        event.Payload,
		PublishError:   "broker unavailable",
		DLQPublishedAt: testTime.Format(time.RFC3339Nano),
	})
	if err != nil {
		t.Fatal(err)
	}

	wrapper := event
	wrapper.Payload = dead
	raw, err := json.Marshal(NewEnvelope(wrapper, testTime))
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestReplayer_DryRun(t *testing.T) {
	t.Parallel()

	event := domain.OutboxMessage{
		ID: "outbox-1", AggregateType: "order", AggregateID: "order-1",
		EventType: "order.completed", Payload: []byte(`{"order_id":"order-1"}`),
	}
	partition := newStubPartition(dlqMessage(t, event), []byte(`not json`))
	source := &stubSource{partitions: map[int32]*stubPartition{0: partition}}
	offsets := stubOffsets{partitions: []int32{0}, oldest: map[int32]int64{0: 0}, newest: map[int32]int64{0: 2}}

	stats, err := NewReplayer(offsets, source, nil, nil).Run(context.Background(), ReplayConfig{
		SourceTopic: TopicDeadLetterQueue,
		TargetTopic: TopicStorefrontEvents,
		Limit:       10,
		IdleTimeout: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if stats != (ReplayStats{Processed: 2, Replayed: 1, Skipped: 1}) {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if !partition.closed {
		t.Fatal("partition consumer must be closed")
	}
}

func TestReplayer_Execute(t *testing.T) {
	t.Parallel()

	event := domain.OutboxMessage{
		ID: "outbox-2", AggregateType: "cart", AggregateID: "user-7",
		EventType: "cart.item_added", Payload: []byte(`{"product_id":"p-1"}`),
	}

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicStorefrontEvents {
			t.Errorf("unexpected topic %s", msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "user-7" {
			t.Errorf("unexpected key %s", key)
		}
		value, _ := msg.Value.Encode()
		envelope, err := DecodeEnvelope(value)
		if err != nil {
			return err
		}
		if envelope.ID != "outbox-2" || string(envelope.Payload) != `{"product_id":"p-1"}` {
			t.Errorf("original event must be restored, got %+v", envelope)
		}
		return nil
	})

	source := &stubSource{partitions: map[int32]*stubPartition{
		0: newStubPartition(),
		1: newStubPartition(dlqMessage(t, event)),
	}}
	offsets := stubOffsets{
		partitions: []int32{1, 0},
		oldest:     map[int32]int64{0: 0, 1: 0},
		newest:     map[int32]int64{0: 0, 1: 1},
	}

	stats, err := NewReplayer(offsets, source, NewProducerFrom(mockProducer, nil), nil).Run(context.Background(), ReplayConfig{
		SourceTopic: TopicDeadLetterQueue,
		TargetTopic: TopicStorefrontEvents,
		Limit:       5,
		Execute:     true,
		IdleTimeout: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if stats.Replayed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestReplayer_FromNewestStartOffset(t *testing.T) {
	t.Parallel()

	source := &stubSource{partitions: map[int32]*stubPartition{0: newStubPartition()}}
	offsets := stubOffsets{partitions: []int32{0}, oldest: map[int32]int64{0: 10}, newest: map[int32]int64{0: 50}}

	_, err := NewReplayer(offsets, source, nil, nil).Run(context.Background(), ReplayConfig{
		SourceTopic: TopicDeadLetterQueue,
		Limit:       5,
		FromNewest:  true,
		IdleTimeout: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if got := source.offsets[0]; got != 45 {
		t.Fatalf("expected start offset 45, got %d", got)
	}
}

func TestReplayer_Validation(t *testing.T) {
	t.Parallel()

	offsets := stubOffsets{}
	source := &stubSource{}

	if _, err := NewReplayer(offsets, source, nil, nil).Run(context.Background(), ReplayConfig{Limit: 1, Execute: true}); err == nil {
		t.Fatal("execute without producer must fail")
	}
	if _, err := NewReplayer(offsets, source, nil, nil).Run(context.Background(), ReplayConfig{}); err == nil {
		t.Fatal("zero limit must fail")
	}
	if _, err := NewReplayer(nil, nil, nil, nil).Run(context.Background(), ReplayConfig{Limit: 1}); err == nil {
		t.Fatal("missing client must fail")
	}
}
