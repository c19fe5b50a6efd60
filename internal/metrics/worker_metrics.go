package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WorkerMetrics — метрики фоновых воркеров: публикация outbox и очистка ключей идемпотентности.
type WorkerMetrics struct {
	outboxPublishes   *prometheus.CounterVec
	outboxPending     prometheus.Gauge
	outboxOldestAge   prometheus.Gauge
	cleanupRuns       *prometheus.CounterVec
	cleanupDeleted    prometheus.Counter
	cleanupLastDelete prometheus.Gauge
}

// NewWorkerMetrics регистрирует метрики воркеров.
func NewWorkerMetrics(registerer prometheus.Registerer) *WorkerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &WorkerMetrics{
		outboxPublishes: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_outbox_publish_attempts_total",
			Help: "Total number of outbox publish attempts grouped by event type and result.",
		}, []string{"event_type", "result"}),
		outboxPending: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_outbox_pending_records",
			Help: "Current number of pending records in the event outbox.",
		}),
		outboxOldestAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_outbox_oldest_pending_age_seconds",
			Help: "Age in seconds of the oldest pending outbox record.",
		}),
		cleanupRuns: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_idempotency_cleanup_runs_total",
			Help: "Total number of idempotency cleanup runs grouped by result.",
		}, []string{"result"}),
		cleanupDeleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_idempotency_cleanup_deleted_total",
			Help: "Total number of deleted expired checkout submission keys.",
		}),
		cleanupLastDelete: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_idempotency_cleanup_last_deleted",
			Help: "Number of deleted keys during the last cleanup run.",
		}),
	}
}

// RecordOutboxPublish учитывает попытку публикации события.
func (m *WorkerMetrics) RecordOutboxPublish(eventType, result string) {
	if m == nil {
		return
	}
	m.outboxPublishes.WithLabelValues(eventType, result).Inc()
}

// SetOutboxBacklog обновляет размер и возраст backlog outbox.
func (m *WorkerMetrics) SetOutboxBacklog(pending int, oldestAge time.Duration) {
	if m == nil {
		return
	}
	if oldestAge < 0 {
		oldestAge = 0
	}
	m.outboxPending.Set(float64(pending))
	m.outboxOldestAge.Set(oldestAge.Seconds())
}

// RecordCleanupRun учитывает цикл очистки и число удалённых ключей.
func (m *WorkerMetrics) RecordCleanupRun(result string, deleted int) {
	if m == nil {
		return
	}
	m.cleanupRuns.WithLabelValues(result).Inc()
	if result != ResultOK {
		return
	}
	m.cleanupLastDelete.Set(float64(deleted))
	if deleted > 0 {
		m.cleanupDeleted.Add(float64(deleted))
	}
}
