package checkout

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/newmedica/storefront/internal/backend"
	"github.com/newmedica/storefront/internal/domain"
	"github.com/newmedica/storefront/internal/events"
	"github.com/newmedica/storefront/internal/metrics"
)

const (
	// SuccessPath — страница завершения для методов без внешнего редиректа.
	SuccessPath = "/orders/success"

	defaultIdempotencyTTL = 24 * time.Hour

	msgOrderCreateFailed    = "Failed to create order"
	msgPaymentSessionFailed = "Failed to create payment session"
)

// CartSource отдаёт текущую корзину (обычно *cart.Store).
type CartSource interface {
	Cart() domain.Cart
}

// Dependencies — обязательные зависимости Workflow.
type Dependencies struct {
	Orders    domain.OrderAPI
	Sessions  domain.PaymentSessionClient
	Navigator domain.Navigator
	Cart      CartSource
	// Addresses нужен только для Prefill.
	Addresses domain.AddressAPI
}

// Options задаёт параметры Workflow.
type Options struct {
	Logger         *log.Entry
	Metrics        *metrics.StorefrontMetrics
	Events         *events.Recorder
	Idempotency    domain.IdempotencyRepository
	IdempotencyTTL time.Duration
	Now            func() time.Time
}

// Option настраивает Workflow.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMetrics задаёт метрики оформления.
func WithMetrics(m *metrics.StorefrontMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithEvents включает запись событий оформления в outbox.
func WithEvents(recorder *events.Recorder) Option {
	return func(opts *Options) {
		opts.Events = recorder
	}
}

// WithIdempotency включает защиту от повторной отправки по Submission.Key.
func WithIdempotency(repo domain.IdempotencyRepository, ttl time.Duration) Option {
	return func(opts *Options) {
		opts.Idempotency = repo
		opts.IdempotencyTTL = ttl
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(opts *Options) {
		if now != nil {
			opts.Now = now
		}
	}
}

// Submission — одна отправка формы оформления.
type Submission struct {
	Form         AddressForm
	Method       domain.PaymentMethod
	ContactEmail string
	// Key — необязательный ключ идемпотентности отправки.
	Key string
}

// Result — итог успешной отправки.
type Result struct {
	Order domain.Order `json:"order"`
	// SessionID заполнен для hosted-оплаты.
	SessionID string `json:"session_id,omitempty"`
	// RedirectPath заполнен для методов без внешнего редиректа.
	RedirectPath string `json:"redirect_path,omitempty"`
	// Replayed — результат взят из хранилища идемпотентности без повторного создания заказа.
	Replayed bool `json:"-"`
}

// Workflow оформляет заказ из текущей корзины.
//
// Для hosted-оплаты: создать заказ (clear_cart=false), взять итоги с сервера, запросить
// платёжную сессию у прокси и увести пользователя к провайдеру. Для прочих методов:
// создать заказ и перейти на страницу завершения с order_id.
type Workflow struct {
	deps        Dependencies
	logger      *log.Entry
	metrics     *metrics.StorefrontMetrics
	events      *events.Recorder
	idempotency domain.IdempotencyRepository
	ttl         time.Duration
	now         func() time.Time

	submitting atomic.Bool

	mu      sync.RWMutex
	summary *domain.OrderSummary
	err     string
}

// NewWorkflow создаёт Workflow.
func NewWorkflow(deps Dependencies, options ...Option) *Workflow {
	opts := Options{
		IdempotencyTTL: defaultIdempotencyTTL,
		Now:            time.Now,
	}
	for _, option := range options {
		option(&opts)
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = defaultIdempotencyTTL
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "checkout")
	}

	return &Workflow{
		deps:        deps,
		logger:      logger,
		metrics:     opts.Metrics,
		events:      opts.Events,
		idempotency: opts.Idempotency,
		ttl:         opts.IdempotencyTTL,
		now:         opts.Now,
	}
}

// Summary возвращает итоги: из созданного заказа, а до него из корзины.
func (w *Workflow) Summary() domain.OrderSummary {
	w.mu.RLock()
	summary := w.summary
	w.mu.RUnlock()

	if summary != nil {
		return *summary
	}
	if w.deps.Cart == nil {
		return domain.SummaryFromCart(domain.EmptyCart())
	}
	return domain.SummaryFromCart(w.deps.Cart.Cart())
}

// Loading сообщает, что отправка выполняется.
func (w *Workflow) Loading() bool {
	return w.submitting.Load()
}

// Err возвращает текст ошибки последней отправки.
func (w *Workflow) Err() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.err
}

// Prefill заполняет форму основным адресом пользователя. Ошибки не фатальны:
// без адресов возвращается форма по умолчанию.
func (w *Workflow) Prefill(ctx context.Context) (AddressForm, []domain.Address) {
	if w.deps.Addresses == nil {
		return DefaultForm(), nil
	}

	addresses, err := w.deps.Addresses.ListAddresses(ctx)
	if err != nil {
		w.logger.WithError(err).Debug("address book unavailable, using empty form")
		return DefaultForm(), nil
	}
	for _, addr := range addresses {
		if addr.IsPrimary {
			return FormFromAddress(addr), addresses
		}
	}
	return DefaultForm(), addresses
}

// Submit оформляет заказ. Повторный вызов во время выполнения возвращает ErrSubmissionInProgress.
// Ошибка проверки формы возвращается до любых сетевых вызовов.
func (w *Workflow) Submit(ctx context.Context, sub Submission) (Result, error) {
	method := string(sub.Method)
	if !sub.Method.Valid() {
		w.metrics.RecordCheckoutRejected(method, "invalid_method")
		return Result{}, domain.ErrUnsupportedPaymentMethod
	}
	if err := sub.Form.Validate(); err != nil {
		w.metrics.RecordCheckoutRejected(method, "invalid_form")
		return Result{}, err
	}

	if !w.submitting.CompareAndSwap(false, true) {
		w.metrics.RecordCheckoutRejected(method, "in_progress")
		return Result{}, domain.ErrSubmissionInProgress
	}
	defer w.submitting.Store(false)

	w.setErr("")
	w.metrics.RecordCheckoutStarted()
	started := w.now()

	req := sub.Form.OrderRequest(sub.Method, sub.ContactEmail)

	result, err := w.guarded(ctx, sub.Key, req, func(ctx context.Context) (Result, error) {
		if sub.Method.IsHostedRedirect() {
			return w.submitHosted(ctx, req)
		}
		return w.submitDirect(ctx, req)
	})

	outcome := metrics.ResultOK
	switch {
	case err != nil:
		outcome = metrics.ResultError
	case result.Replayed:
		outcome = metrics.ResultReplayed
	}
	w.metrics.RecordCheckoutFinished(method, outcome, w.now().Sub(started))

	if err != nil {
		w.logger.WithError(err).WithField("payment_method", method).Warn("checkout failed")
		return Result{}, err
	}
	return result, nil
}

func (w *Workflow) submitHosted(ctx context.Context, req domain.OrderRequest) (Result, error) {
	// Позиции фиксируются до создания заказа: сессия оплаты строится по той же корзине.
	var items []domain.CartItem
	if w.deps.Cart != nil {
		items = w.deps.Cart.Cart().Items
	}

	order, err := w.createOrder(ctx, req)
	if err != nil {
		return Result{}, err
	}

	sessionID, err := w.deps.Sessions.CreateCheckoutSession(ctx, items, order.ID)
	if err != nil {
		w.metrics.RecordPaymentSession(metrics.SourceCheckout, metrics.ResultError)
		w.setErr(msgPaymentSessionFailed)
		if !errors.Is(err, domain.ErrPaymentSessionFailed) {
			err = fmt.Errorf("%w: %w", domain.ErrPaymentSessionFailed, err)
		}
		return Result{}, err
	}
	w.metrics.RecordPaymentSession(metrics.SourceCheckout, metrics.ResultOK)

	_ = w.events.Record(ctx, events.TypePaymentSessionCreated, events.AggregateOrder, order.ID, map[string]any{
		"order_id":   order.ID,
		"session_id": sessionID,
	})

	if err := w.deps.Navigator.RedirectToCheckout(ctx, sessionID); err != nil {
		w.setErr(err.Error())
		return Result{}, fmt.Errorf("redirect to checkout: %w", err)
	}

	return Result{Order: order, SessionID: sessionID}, nil
}

func (w *Workflow) submitDirect(ctx context.Context, req domain.OrderRequest) (Result, error) {
	order, err := w.createOrder(ctx, req)
	if err != nil {
		return Result{}, err
	}

	path := SuccessPath + "?order_id=" + url.QueryEscape(order.ID)
	if err := w.deps.Navigator.Navigate(ctx, path); err != nil {
		w.setErr(err.Error())
		return Result{}, fmt.Errorf("navigate to success page: %w", err)
	}

	return Result{Order: order, RedirectPath: path}, nil
}

func (w *Workflow) createOrder(ctx context.Context, req domain.OrderRequest) (domain.Order, error) {
	order, err := w.deps.Orders.CreateOrder(ctx, req)
	if err != nil {
		w.setErr(msgOrderCreateFailed)
		if !errors.Is(err, domain.ErrOrderCreateFailed) {
			err = fmt.Errorf("%w: %w", domain.ErrOrderCreateFailed, err)
		}
		return domain.Order{}, err
	}

	summary := domain.SummaryFromOrder(order)
	w.mu.Lock()
	w.summary = &summary
	w.mu.Unlock()

	_ = w.events.Record(ctx, events.TypeOrderCreated, events.AggregateOrder, order.ID, map[string]any{
		"order_id":       order.ID,
		"payment_method": req.PaymentMethod,
		"total_amount":   order.TotalAmount.String(),
	})

	w.logger.WithFields(log.Fields{
		"order_id":       order.ID,
		"payment_method": req.PaymentMethod,
	}).Info("order created")
	return order, nil
}

// guarded выполняет submit под защитой ключа идемпотентности.
// Без ключа или без хранилища submit выполняется как есть.
func (w *Workflow) guarded(ctx context.Context, key string, req domain.OrderRequest, submit func(context.Context) (Result, error)) (Result, error) {
	if key == "" || w.idempotency == nil {
		return submit(ctx)
	}

	hash, err := requestHash(req)
	if err != nil {
		return Result{}, err
	}

	record, err := w.idempotency.CreateProcessing(key, hash, w.now().Add(w.ttl))
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return Result{}, err
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
		switch record.Status {
		case domain.IdempotencyStatusDone:
			var stored Result
			if err := json.Unmarshal(record.Result, &stored); err != nil {
				return Result{}, fmt.Errorf("decode stored checkout result: %w", err)
			}
			stored.Replayed = true
			if stored.Order.ID != "" {
				summary := domain.SummaryFromOrder(stored.Order)
				w.mu.Lock()
				w.summary = &summary
				w.mu.Unlock()
			}
			w.logger.WithField("order_id", stored.Order.ID).Info("checkout replayed from idempotency store")
			return stored, nil
		case domain.IdempotencyStatusProcessing:
			return Result{}, domain.ErrSubmissionInProgress
		}
		// failed: разрешаем повтор под тем же ключом.
	default:
		return Result{}, fmt.Errorf("register checkout key: %w", err)
	}

	result, submitErr := submit(backend.WithIdempotencyKey(ctx, key))
	if submitErr != nil {
		payload, _ := json.Marshal(map[string]string{"error": submitErr.Error()})
		status := backend.StatusCode(submitErr)
		if status == 0 {
			status = http.StatusInternalServerError
		}
		if err := w.idempotency.MarkFailed(key, payload, status); err != nil {
			w.logger.WithError(err).Warn("failed to mark checkout key as failed")
		}
		return Result{}, submitErr
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return result, nil
	}
	if err := w.idempotency.MarkDone(key, payload, http.StatusCreated); err != nil {
		w.logger.WithError(err).Warn("failed to mark checkout key as done")
	}
	return result, nil
}

func requestHash(req domain.OrderRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("hash checkout request: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

func (w *Workflow) setErr(msg string) {
	w.mu.Lock()
	w.err = msg
	w.mu.Unlock()
}
