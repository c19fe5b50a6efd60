package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/newmedica/storefront/internal/domain"
	"github.com/newmedica/storefront/internal/metrics"
)

const (
	defaultPollInterval   = 2 * time.Second
	defaultBatchSize      = 50
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 100 * time.Millisecond
	maxBackoff            = 30 * time.Second
)

// Результаты публикации для метрик.
const (
	resultSent      = "sent"
	resultRetry     = "retry_error"
	resultFailed    = "failed"
	resultDLQFailed = "dlq_failed"
)

// Option настраивает Worker.
type Option func(*Worker)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithMetrics задаёт метрики воркеров.
func WithMetrics(m *metrics.WorkerMetrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// WithDLQPublisher задаёт publisher для событий, исчерпавших попытки.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(w *Worker) { w.dlq = publisher }
}

// WithPollInterval задаёт паузу между опросами.
func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.poll = interval
		}
	}
}

// WithBatchSize задаёт размер батча.
func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batch = n
		}
	}
}

// WithMaxAttempts задаёт число попыток публикации одного события.
func WithMaxAttempts(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.attempts = n
		}
	}
}

// WithRetryBaseDelay задаёт первую задержку между попытками; дальше она удваивается.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(w *Worker) { w.baseDelay = max(delay, 0) }
}

// WithClock подменяет часы.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

// Worker публикует события витрины (корзина, оформление, завершение заказа) из outbox в брокер.
type Worker struct {
	repo      domain.OutboxRepository
	publisher domain.OutboxPublisher
	dlq       domain.OutboxPublisher
	logger    *log.Entry
	metrics   *metrics.WorkerMetrics
	now       func() time.Time

	poll      time.Duration
	batch     int
	attempts  int
	baseDelay time.Duration
}

// Report — итог одного цикла.
type Report struct {
	Sent   int
	Failed int
}

// NewWorker создаёт outbox worker.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	w := &Worker{
		repo:      repo,
		publisher: publisher,
		logger:    log.WithField("component", "outbox-worker"),
		now:       time.Now,
		poll:      defaultPollInterval,
		batch:     defaultBatchSize,
		attempts:  defaultMaxAttempts,
		baseDelay: defaultRetryBaseDelay,
	}
	for _, option := range options {
		option(w)
	}
	return w
}

// Run опрашивает outbox до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox repository or publisher is not configured, worker disabled")
		return
	}

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		if report := w.ProcessOnce(ctx); report.Sent+report.Failed > 0 {
			w.logger.WithFields(log.Fields{"sent": report.Sent, "failed": report.Failed}).Debug("outbox batch processed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Drain публикует батчи, пока outbox не опустеет или все оставшиеся события не уйдут в failed.
// Используется CLI перед выходом.
func (w *Worker) Drain(ctx context.Context) Report {
	var total Report
	for ctx.Err() == nil {
		report := w.ProcessOnce(ctx)
		total.Sent += report.Sent
		total.Failed += report.Failed
		if report.Sent+report.Failed < w.batch {
			break
		}
	}
	return total
}

// ProcessOnce выполняет один цикл: забирает батч и публикует каждое событие.
func (w *Worker) ProcessOnce(ctx context.Context) Report {
	var report Report
	if ctx.Err() != nil {
		return report
	}

	w.refreshBacklog()
	defer w.refreshBacklog()

	batch, err := w.repo.PullPending(w.batch)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending outbox messages")
		return report
	}

	for _, event := range batch {
		if ctx.Err() != nil {
			return report
		}
		switch w.deliver(ctx, event) {
		case outcomeSent:
			report.Sent++
		case outcomeFailed:
			report.Failed++
		case outcomeDeferred:
			return report
		}
	}
	return report
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeFailed
	// outcomeDeferred: публикацию прервала отмена ctx, событие остаётся pending.
	outcomeDeferred
)

func (w *Worker) deliver(ctx context.Context, event domain.OutboxMessage) outcome {
	fields := log.Fields{
		"outbox_id":    event.ID,
		"event_type":   event.EventType,
		"aggregate_id": event.AggregateID,
	}

	err := w.publishWithRetry(ctx, event)
	if err == nil {
		if markErr := w.repo.MarkSent(event.ID); markErr != nil {
			w.logger.WithError(markErr).WithFields(fields).Warn("failed to mark outbox message as sent")
		}
		return outcomeSent
	}
	if ctx.Err() != nil {
		return outcomeDeferred
	}

	w.logger.WithError(err).WithFields(fields).Error("outbox publish failed after retries")
	w.metrics.RecordOutboxPublish(event.EventType, resultFailed)

	if dlqErr := w.publishToDLQ(event, err); dlqErr != nil {
		w.logger.WithError(dlqErr).WithFields(fields).Warn("failed to publish to DLQ")
		w.metrics.RecordOutboxPublish(event.EventType, resultDLQFailed)
	}
	if markErr := w.repo.MarkFailed(event.ID); markErr != nil {
		w.logger.WithError(markErr).WithFields(fields).Warn("failed to mark outbox message as failed")
	}
	return outcomeFailed
}

func (w *Worker) publishWithRetry(ctx context.Context, event domain.OutboxMessage) error {
	var lastErr error

	for attempt := 1; attempt <= w.attempts; attempt++ {
		if lastErr = w.publisher.Publish(event); lastErr == nil {
			w.metrics.RecordOutboxPublish(event.EventType, resultSent)
			return nil
		}
		w.metrics.RecordOutboxPublish(event.EventType, resultRetry)

		if attempt == w.attempts {
			break
		}
		if delay := w.backoff(attempt); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	return fmt.Errorf("%w after %d attempts: %v", domain.ErrOutboxPublish, w.attempts, lastErr)
}

// backoff — baseDelay * 2^(attempt-1), не больше maxBackoff.
func (w *Worker) backoff(attempt int) time.Duration {
	if w.baseDelay <= 0 {
		return 0
	}
	delay := w.baseDelay
	for i := 1; i < attempt && delay < maxBackoff; i++ {
		delay *= 2
	}
	return min(delay, maxBackoff)
}

func (w *Worker) refreshBacklog() {
	stats, err := w.repo.Stats()
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}

	var age time.Duration
	if stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() {
		age = w.now().Sub(stats.OldestPendingAt)
	}
	w.metrics.SetOutboxBacklog(stats.PendingCount, age)
}

// DLQEnvelope — содержимое сообщения в DLQ.
type DLQEnvelope struct {
	OutboxID       string          `json:"outbox_id"`
	AggregateType  string          `json:"aggregate_type"`
	AggregateID    string          `json:"aggregate_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	PublishError   string          `json:"publish_error"`
	DLQPublishedAt string          `json:"dlq_published_at"`
}

func (w *Worker) publishToDLQ(event domain.OutboxMessage, publishErr error) error {
	if w.dlq == nil {
		return nil
	}

	payload := json.RawMessage(event.Payload)
	if !json.Valid(payload) {
		raw, _ := json.Marshal(string(event.Payload))
		payload = raw
	}

	body, err := json.Marshal(DLQEnvelope{
		OutboxID:       event.ID,
		AggregateType:  event.AggregateType,
		AggregateID:    event.AggregateID,
		EventType:      event.EventType,
		Payload:        payload,
		PublishError:   publishErr.Error(),
		DLQPublishedAt: w.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal dlq payload: %w", err)
	}

	dlqEvent := event
	dlqEvent.Payload = body
	if err := w.dlq.Publish(dlqEvent); err != nil {
		return fmt.Errorf("publish to dlq: %w", err)
	}
	return nil
}
