package idempotency

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/newmedica/storefront/internal/domain"
	"github.com/newmedica/storefront/internal/metrics"
)

const (
	defaultSweepInterval = 15 * time.Minute
	defaultSweepBatch    = 200
)

// Option настраивает CleanupWorker.
type Option func(*CleanupWorker)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(w *CleanupWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithMetrics задаёт метрики воркеров.
func WithMetrics(m *metrics.WorkerMetrics) Option {
	return func(w *CleanupWorker) { w.metrics = m }
}

// WithInterval задаёт паузу между проходами.
func WithInterval(interval time.Duration) Option {
	return func(w *CleanupWorker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// WithBatchSize ограничивает число ключей в одном удалении.
func WithBatchSize(n int) Option {
	return func(w *CleanupWorker) {
		if n > 0 {
			w.batch = n
		}
	}
}

// WithClock подменяет часы.
func WithClock(now func() time.Time) Option {
	return func(w *CleanupWorker) {
		if now != nil {
			w.now = now
		}
	}
}

// SweepReport — итог одного прохода.
type SweepReport struct {
	Deleted int
	Batches int
}

// CleanupWorker удаляет ключи отправок формы оформления с истёкшим TTL.
// Живой ключ продолжает возвращать сохранённый заказ повторной отправке.
type CleanupWorker struct {
	repo     domain.IdempotencyRepository
	logger   *log.Entry
	metrics  *metrics.WorkerMetrics
	interval time.Duration
	batch    int
	now      func() time.Time
}

// NewCleanupWorker создаёт воркер очистки.
func NewCleanupWorker(repo domain.IdempotencyRepository, options ...Option) *CleanupWorker {
	w := &CleanupWorker{
		repo:     repo,
		logger:   log.WithField("component", "idempotency-cleanup"),
		interval: defaultSweepInterval,
		batch:    defaultSweepBatch,
		now:      time.Now,
	}
	for _, option := range options {
		option(w)
	}
	return w
}

// Run делает проход сразу и затем по интервалу до отмены ctx.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.repo == nil {
		w.logger.Warn("idempotency repository is not configured, cleanup disabled")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.RunOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce выполняет проход и пишет результат в метрики и лог.
func (w *CleanupWorker) RunOnce(ctx context.Context) SweepReport {
	report, err := w.Sweep(ctx, w.now().UTC())
	if errors.Is(err, context.Canceled) {
		return report
	}
	if err != nil {
		w.metrics.RecordCleanupRun(metrics.ResultError, report.Deleted)
		w.logger.WithError(err).WithField("deleted", report.Deleted).Warn("idempotency cleanup failed")
		return report
	}

	w.metrics.RecordCleanupRun(metrics.ResultOK, report.Deleted)
	if report.Deleted > 0 {
		w.logger.WithFields(log.Fields{
			"deleted": report.Deleted,
			"batches": report.Batches,
		}).Info("expired submission keys removed")
	}
	return report
}

// Sweep удаляет ключи с expires_at <= before, пока очередная порция не окажется неполной.
func (w *CleanupWorker) Sweep(ctx context.Context, before time.Time) (SweepReport, error) {
	var report SweepReport
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		n, err := w.repo.DeleteExpired(before, w.batch)
		if err != nil {
			return report, err
		}
		report.Deleted += n
		report.Batches++
		if n < w.batch {
			return report, nil
		}
	}
}
