package reconcile

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/newmedica/storefront/internal/backend"
	"github.com/newmedica/storefront/internal/domain"
	"github.com/newmedica/storefront/internal/events"
	"github.com/newmedica/storefront/internal/metrics"
)

// Status — состояние страницы завершения заказа.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusVerifying Status = "verifying"
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
)

// RetryPath — куда вернуть пользователя после ошибки.
const RetryPath = "/cart"

// Тексты ошибок страницы завершения.
const (
	MsgLoginRequired   = "You must be logged in to confirm the order."
	MsgNoSession       = "No payment session ID found in URL."
	MsgVerifyFailed    = "Failed to verify payment."
	MsgCouldNotConfirm = "We could not confirm your order payment. Please contact support if you were charged."
)

// Метки пути для метрик.
const (
	pathOrderID = "order_id"
	pathSession = "session"
	pathNone    = "none"
)

// Params — параметры адреса страницы завершения.
type Params struct {
	OrderID   string
	SessionID string
}

// ParseParams читает order_id и session_id из query.
func ParseParams(query url.Values) Params {
	return Params{
		OrderID:   strings.TrimSpace(query.Get("order_id")),
		SessionID: strings.TrimSpace(query.Get("session_id")),
	}
}

// View — то, что показывает страница.
type View struct {
	Status  Status
	Message string
	OrderID string
	Order   *domain.Order
	// RetryPath заполнен только в состоянии error.
	RetryPath string
}

// CartClearer очищает локальную корзину (обычно *cart.Store).
type CartClearer interface {
	Clear(ctx context.Context)
}

// Dependencies — зависимости Completion.
type Dependencies struct {
	Orders domain.OrderAPI
	Tokens domain.TokenSource
	Cart   CartClearer
}

// Options задаёт параметры Completion.
type Options struct {
	Logger  *log.Entry
	Metrics *metrics.StorefrontMetrics
	Events  *events.Recorder
}

// Option настраивает Completion.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMetrics задаёт метрики.
func WithMetrics(m *metrics.StorefrontMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithEvents включает запись событий завершения в outbox.
func WithEvents(recorder *events.Recorder) Option {
	return func(opts *Options) {
		opts.Events = recorder
	}
}

// Completion — одноразовая сверка заказа при открытии страницы успеха.
// Экземпляр создаётся на каждое открытие страницы; повторный Run не делает сетевых вызовов
// и возвращает текущее состояние. Автоматических повторов нет.
type Completion struct {
	deps    Dependencies
	logger  *log.Entry
	metrics *metrics.StorefrontMetrics
	events  *events.Recorder

	mu        sync.RWMutex
	attempted bool
	view      View
}

// NewCompletion создаёт Completion в состоянии idle.
func NewCompletion(deps Dependencies, options ...Option) *Completion {
	opts := Options{}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "order-completion")
	}

	return &Completion{
		deps:    deps,
		logger:  logger,
		metrics: opts.Metrics,
		events:  opts.Events,
		view:    View{Status: StatusIdle},
	}
}

// View возвращает текущее состояние.
func (c *Completion) View() View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view
}

// Run выполняет сверку один раз.
//
// order_id: заказ создан напрямую, считается успешным без проверки; корзина очищается.
// session_id: нужен токен; оплата подтверждается backend, при успехе корзина очищается.
// Без параметров: ошибка.
func (c *Completion) Run(ctx context.Context, params Params) View {
	c.mu.Lock()
	if c.attempted {
		view := c.view
		c.mu.Unlock()
		return view
	}
	c.attempted = true
	c.view = View{Status: StatusVerifying}
	c.mu.Unlock()

	switch {
	case params.OrderID != "":
		c.clearCart(ctx)
		c.metrics.RecordOrderCompletion(pathOrderID, metrics.ResultOK)
		c.record(ctx, events.TypeOrderCompleted, params.OrderID, map[string]any{
			"order_id": params.OrderID,
			"path":     pathOrderID,
		})
		return c.finish(View{Status: StatusSuccess, OrderID: params.OrderID})

	case params.SessionID != "":
		return c.verify(ctx, params.SessionID)

	default:
		c.metrics.RecordOrderCompletion(pathNone, metrics.ResultError)
		return c.finish(errorView(MsgNoSession))
	}
}

func (c *Completion) verify(ctx context.Context, sessionID string) View {
	if _, err := c.token(ctx); err != nil {
		c.metrics.RecordOrderCompletion(pathSession, metrics.ResultError)
		c.record(ctx, events.TypeOrderCompletionFailed, sessionID, map[string]any{
			"session_id": sessionID,
			"reason":     "login_required",
		})
		return c.finish(errorView(MsgLoginRequired))
	}

	order, err := c.deps.Orders.VerifyPayment(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrAuthTokenMissing) {
			c.metrics.RecordOrderCompletion(pathSession, metrics.ResultError)
			return c.finish(errorView(MsgLoginRequired))
		}

		msg := MsgCouldNotConfirm
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) {
			msg = backend.DetailMessage(err, MsgVerifyFailed)
		}

		c.logger.WithError(err).WithField("session_id", sessionID).Warn("payment verification failed")
		c.metrics.RecordOrderCompletion(pathSession, metrics.ResultError)
		c.record(ctx, events.TypeOrderCompletionFailed, sessionID, map[string]any{
			"session_id": sessionID,
			"reason":     msg,
		})
		return c.finish(errorView(msg))
	}

	c.clearCart(ctx)
	c.metrics.RecordOrderCompletion(pathSession, metrics.ResultOK)
	c.record(ctx, events.TypeOrderCompleted, order.ID, map[string]any{
		"order_id":       order.ID,
		"session_id":     sessionID,
		"payment_status": order.PaymentStatus,
		"path":           pathSession,
	})

	c.logger.WithFields(log.Fields{
		"order_id":   order.ID,
		"session_id": sessionID,
	}).Info("payment verified")
	return c.finish(View{Status: StatusSuccess, OrderID: order.ID, Order: &order})
}

func (c *Completion) token(ctx context.Context) (string, error) {
	if c.deps.Tokens == nil {
		return "", domain.ErrAuthTokenMissing
	}
	token, err := c.deps.Tokens.Token(ctx)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(token) == "" {
		return "", domain.ErrAuthTokenMissing
	}
	return token, nil
}

func (c *Completion) clearCart(ctx context.Context) {
	if c.deps.Cart != nil {
		c.deps.Cart.Clear(ctx)
	}
}

func (c *Completion) record(ctx context.Context, eventType events.Type, aggregateID string, payload map[string]any) {
	_ = c.events.Record(ctx, eventType, events.AggregateOrder, aggregateID, payload)
}

func (c *Completion) finish(view View) View {
	c.mu.Lock()
	c.view = view
	c.mu.Unlock()
	return view
}

func errorView(msg string) View {
	return View{Status: StatusError, Message: msg, RetryPath: RetryPath}
}
