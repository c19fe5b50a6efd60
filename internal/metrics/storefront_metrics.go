package metrics

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты операций для label "result".
const (
	ResultOK       = "ok"
	ResultError    = "error"
	ResultSkipped  = "skipped"
	ResultReplayed = "replayed"
	ResultRejected = "rejected"
)

// Стороны запроса hosted-сессии для label "source": клиентское оформление и прокси.
const (
	SourceCheckout = "checkout"
	SourceProxy    = "proxy"
)

// StorefrontMetrics содержит метрики клиентского ядра витрины.
type StorefrontMetrics struct {
	cartOperations     *prometheus.CounterVec
	debounceCoalesced  prometheus.Counter
	checkoutSubmits    *prometheus.CounterVec
	checkoutDuration   *prometheus.HistogramVec
	checkoutsInFlight  prometheus.Gauge
	orderCompletions   *prometheus.CounterVec
	backendRequests    *prometheus.HistogramVec
	paymentSessions    *prometheus.CounterVec
	snapshotOperations *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *StorefrontMetrics
)

// Default возвращает метрики, зарегистрированные в prometheus.DefaultRegisterer.
func Default() *StorefrontMetrics {
	defaultOnce.Do(func() {
		defaultMetrics = NewStorefrontMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// NewStorefrontMetrics регистрирует метрики в переданном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewStorefrontMetrics(registerer prometheus.Registerer) *StorefrontMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &StorefrontMetrics{
		cartOperations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_cart_operations_total",
			Help: "Total number of cart store operations grouped by operation and result.",
		}, []string{"op", "result"}),
		debounceCoalesced: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_cart_debounce_coalesced_total",
			Help: "Total number of quantity edits superseded by a newer edit before dispatch.",
		}),
		checkoutSubmits: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_submissions_total",
			Help: "Total number of checkout submissions grouped by payment method and result.",
		}, []string{"method", "result"}),
		checkoutDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "storefront_checkout_duration_seconds",
			Help:    "Duration of checkout submissions in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method"}),
		checkoutsInFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_checkouts_in_flight",
			Help: "Number of checkout submissions currently in progress.",
		}),
		orderCompletions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_order_completions_total",
			Help: "Total number of order completion runs grouped by path and result.",
		}, []string{"path", "result"}),
		backendRequests: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "storefront_backend_request_duration_seconds",
			Help:    "Duration of backend REST calls in seconds.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"op", "code"}),
		paymentSessions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_payment_sessions_total",
			Help: "Total number of hosted checkout sessions requested grouped by source and result.",
		}, []string{"source", "result"}),
		snapshotOperations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_snapshot_operations_total",
			Help: "Total number of client snapshot store operations grouped by operation and result.",
		}, []string{"op", "result"}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordCartOperation учитывает операцию корзины (fetch/add/update/remove/clear).
func (m *StorefrontMetrics) RecordCartOperation(op, result string) {
	if m == nil {
		return
	}
	m.cartOperations.WithLabelValues(op, result).Inc()
}

// RecordDebounceCoalesced учитывает правку количества, вытесненную более новой.
func (m *StorefrontMetrics) RecordDebounceCoalesced() {
	if m == nil {
		return
	}
	m.debounceCoalesced.Inc()
}

// RecordCheckoutStarted увеличивает число оформлений в процессе.
func (m *StorefrontMetrics) RecordCheckoutStarted() {
	if m == nil {
		return
	}
	m.checkoutsInFlight.Inc()
}

// RecordCheckoutFinished фиксирует результат и длительность оформления.
func (m *StorefrontMetrics) RecordCheckoutFinished(method, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.checkoutsInFlight.Dec()
	m.checkoutSubmits.WithLabelValues(method, result).Inc()
	m.checkoutDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordCheckoutRejected учитывает отправку, отклонённую до обращения к backend.
func (m *StorefrontMetrics) RecordCheckoutRejected(method, result string) {
	if m == nil {
		return
	}
	m.checkoutSubmits.WithLabelValues(method, result).Inc()
}

// RecordOrderCompletion учитывает завершение страницы успеха (path: order_id|session|none).
func (m *StorefrontMetrics) RecordOrderCompletion(path, result string) {
	if m == nil {
		return
	}
	m.orderCompletions.WithLabelValues(path, result).Inc()
}

// RecordBackendRequest записывает длительность запроса к backend; code=0 — сетевая ошибка.
func (m *StorefrontMetrics) RecordBackendRequest(op string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	m.backendRequests.WithLabelValues(op, strconv.Itoa(code)).Observe(duration.Seconds())
}

// RecordPaymentSession учитывает запрос hosted-сессии оплаты со стороны source.
// В демоне клиент и прокси пишут в один реестр, поэтому серии разведены по source.
func (m *StorefrontMetrics) RecordPaymentSession(source, result string) {
	if m == nil {
		return
	}
	m.paymentSessions.WithLabelValues(source, result).Inc()
}

// RecordSnapshotOperation учитывает чтение/запись снимка состояния.
func (m *StorefrontMetrics) RecordSnapshotOperation(op, result string) {
	if m == nil {
		return
	}
	m.snapshotOperations.WithLabelValues(op, result).Inc()
}
