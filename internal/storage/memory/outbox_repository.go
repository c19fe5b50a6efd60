package memory

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/newmedica/storefront/internal/domain"
)

type deliveryState uint8

const (
	statePending deliveryState = iota
	stateSent
	stateFailed
)

const defaultPullLimit = 100

type queuedEvent struct {
	msg        domain.OutboxMessage
	state      deliveryState
	enqueuedAt time.Time
}

// OutboxRepository — очередь событий витрины до публикации, в памяти процесса.
// Порядок выдачи совпадает с порядком постановки.
type OutboxRepository struct {
	mu    sync.Mutex
	queue []*queuedEvent
	byID  map[string]*queuedEvent
	now   func() time.Time
}

// NewOutboxRepository создаёт пустую очередь.
func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{byID: map[string]*queuedEvent{}, now: time.Now}
}

// Enqueue ставит событие в очередь; пустой ID заменяется UUID.
func (r *OutboxRepository) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg = copyMessage(msg)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[msg.ID]; exists {
		return domain.OutboxMessage{}, fmt.Errorf("outbox message %s already queued", msg.ID)
	}
	event := &queuedEvent{msg: msg, enqueuedAt: r.now().UTC()}
	r.queue = append(r.queue, event)
	r.byID[msg.ID] = event
	return copyMessage(msg), nil
}

// PullPending возвращает до limit неопубликованных событий.
func (r *OutboxRepository) PullPending(limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = defaultPullLimit
	}
	return r.collect(limit), nil
}

// AllPending возвращает все неопубликованные события.
func (r *OutboxRepository) AllPending() []domain.OutboxMessage {
	return r.collect(0)
}

// Stats — размер backlog и время постановки самого старого события.
func (r *OutboxRepository) Stats() (domain.OutboxStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stats domain.OutboxStats
	for _, event := range r.queue {
		if event.state != statePending {
			continue
		}
		if stats.PendingCount == 0 {
			stats.OldestPendingAt = event.enqueuedAt
		}
		stats.PendingCount++
	}
	return stats, nil
}

// MarkSent отмечает событие опубликованным.
func (r *OutboxRepository) MarkSent(id string) error {
	return r.settle(id, stateSent)
}

// MarkFailed отмечает событие окончательно неопубликованным.
func (r *OutboxRepository) MarkFailed(id string) error {
	return r.settle(id, stateFailed)
}

func (r *OutboxRepository) settle(id string, state deliveryState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	event, ok := r.byID[id]
	if !ok || event.state != statePending {
		return fmt.Errorf("%w: outbox message %s is not pending", domain.ErrOutboxPublish, id)
	}
	event.state = state
	return nil
}

func (r *OutboxRepository) collect(limit int) []domain.OutboxMessage {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.OutboxMessage, 0)
	for _, event := range r.queue {
		if event.state != statePending {
			continue
		}
		out = append(out, copyMessage(event.msg))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func copyMessage(msg domain.OutboxMessage) domain.OutboxMessage {
	msg.Payload = append([]byte(nil), msg.Payload...)
	return msg
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
