package cart

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/newmedica/storefront/internal/metrics"
)

// DefaultDebounceWindow — окно ожидания перед отправкой изменённого количества.
const DefaultDebounceWindow = 500 * time.Millisecond

// QuantityUpdater — получатель итогового количества позиции.
type QuantityUpdater interface {
	UpdateItemQuantity(ctx context.Context, itemID string, quantity int)
}

// EditorOptions задаёт параметры QuantityEditor.
type EditorOptions struct {
	Window  time.Duration
	Logger  *log.Entry
	Metrics *metrics.StorefrontMetrics
}

// EditorOption настраивает QuantityEditor.
type EditorOption func(*EditorOptions)

// WithWindow задаёт окно debounce.
func WithWindow(window time.Duration) EditorOption {
	return func(opts *EditorOptions) {
		opts.Window = window
	}
}

// WithEditorLogger задаёт logger.
func WithEditorLogger(logger *log.Entry) EditorOption {
	return func(opts *EditorOptions) {
		opts.Logger = logger
	}
}

// WithEditorMetrics задаёт метрики.
func WithEditorMetrics(m *metrics.StorefrontMetrics) EditorOption {
	return func(opts *EditorOptions) {
		opts.Metrics = m
	}
}

type pendingEdit struct {
	timer    *time.Timer
	quantity int
	seq      uint64
}

type inFlightEdit struct {
	cancel context.CancelFunc
	seq    uint64
}

// QuantityEditor склеивает быстрые изменения количества одной позиции (trailing-edge debounce).
//
// Каждое новое значение перезапускает таймер позиции; по истечении окна отправляется
// только последнее значение. Если к этому моменту по позиции ещё идёт прежний запрос,
// он отменяется через context. Разные позиции не влияют друг на друга.
type QuantityEditor struct {
	updater QuantityUpdater
	window  time.Duration
	logger  *log.Entry
	metrics *metrics.StorefrontMetrics

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	seq      uint64
	pending  map[string]*pendingEdit
	inFlight map[string]inFlightEdit
	stopped  bool
	// active — число выполняющихся запросов; idle сигналит, когда оно падает до нуля.
	active int
	idle   *sync.Cond
}

// NewQuantityEditor создаёт editor поверх updater (обычно *Store).
func NewQuantityEditor(updater QuantityUpdater, options ...EditorOption) *QuantityEditor {
	opts := EditorOptions{Window: DefaultDebounceWindow}
	for _, option := range options {
		option(&opts)
	}
	if opts.Window < 0 {
		opts.Window = 0
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "quantity-editor")
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &QuantityEditor{
		updater:  updater,
		window:   opts.Window,
		logger:   logger,
		metrics:  opts.Metrics,
		ctx:      ctx,
		cancel:   cancel,
		pending:  make(map[string]*pendingEdit),
		inFlight: make(map[string]inFlightEdit),
	}
	e.idle = sync.NewCond(&e.mu)
	return e
}

// Set принимает новое значение количества. Значения < 1 игнорируются.
func (e *QuantityEditor) Set(itemID string, quantity int) {
	if quantity < 1 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return
	}

	if prev, ok := e.pending[itemID]; ok {
		prev.timer.Stop()
		e.metrics.RecordDebounceCoalesced()
	}

	e.seq++
	seq := e.seq
	edit := &pendingEdit{quantity: quantity, seq: seq}
	edit.timer = time.AfterFunc(e.window, func() {
		e.fire(itemID, seq)
	})
	e.pending[itemID] = edit
}

// Pending возвращает число позиций, ожидающих отправки.
func (e *QuantityEditor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Flush немедленно отправляет все ожидающие значения и дожидается завершения запросов.
// Безопасен при параллельных Set: значения, пришедшие во время Flush, уходят по своим таймерам.
func (e *QuantityEditor) Flush() {
	e.mu.Lock()
	due := make(map[string]uint64, len(e.pending))
	for itemID, edit := range e.pending {
		edit.timer.Stop()
		due[itemID] = edit.seq
	}
	e.mu.Unlock()

	for itemID, seq := range due {
		e.fire(itemID, seq)
	}
	e.waitIdle()
}

// Discard сбрасывает ожидающие значения и отменяет выполняющиеся запросы; editor остаётся рабочим.
func (e *QuantityEditor) Discard() {
	e.mu.Lock()
	for itemID, edit := range e.pending {
		edit.timer.Stop()
		delete(e.pending, itemID)
	}
	for _, flight := range e.inFlight {
		flight.cancel()
	}
	e.mu.Unlock()
}

// Stop отменяет ожидающие и выполняющиеся запросы. После Stop новые значения не принимаются.
func (e *QuantityEditor) Stop() {
	e.mu.Lock()
	e.stopped = true
	for itemID, edit := range e.pending {
		edit.timer.Stop()
		delete(e.pending, itemID)
	}
	e.mu.Unlock()

	e.cancel()
	e.waitIdle()
}

func (e *QuantityEditor) waitIdle() {
	e.mu.Lock()
	for e.active > 0 {
		e.idle.Wait()
	}
	e.mu.Unlock()
}

func (e *QuantityEditor) fire(itemID string, seq uint64) {
	e.mu.Lock()
	edit, ok := e.pending[itemID]
	if !ok || edit.seq != seq || e.stopped {
		e.mu.Unlock()
		return
	}
	delete(e.pending, itemID)

	if prev, ok := e.inFlight[itemID]; ok {
		prev.cancel()
		e.logger.WithField("item_id", itemID).Debug("superseding in-flight quantity update")
	}

	ctx, cancel := context.WithCancel(e.ctx)
	e.inFlight[itemID] = inFlightEdit{cancel: cancel, seq: seq}
	e.active++
	e.mu.Unlock()

	defer cancel()

	e.updater.UpdateItemQuantity(ctx, itemID, edit.quantity)

	e.mu.Lock()
	if current, ok := e.inFlight[itemID]; ok && current.seq == seq {
		delete(e.inFlight, itemID)
	}
	e.active--
	if e.active == 0 {
		e.idle.Broadcast()
	}
	e.mu.Unlock()
}
