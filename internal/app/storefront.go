package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/newmedica/storefront/internal/account"
	"github.com/newmedica/storefront/internal/backend"
	"github.com/newmedica/storefront/internal/cart"
	"github.com/newmedica/storefront/internal/checkout"
	"github.com/newmedica/storefront/internal/domain"
	"github.com/newmedica/storefront/internal/events"
	"github.com/newmedica/storefront/internal/metrics"
	"github.com/newmedica/storefront/internal/paymentproxy"
	"github.com/newmedica/storefront/internal/reconcile"
	"github.com/newmedica/storefront/internal/session"
)

// StorefrontDeps — внешние зависимости клиентского ядра.
type StorefrontDeps struct {
	Navigator domain.Navigator
	Snapshots domain.SnapshotStore
	// Outbox и Idempotency необязательны: без них события не пишутся, а ключи отправок не проверяются.
	Outbox      domain.OutboxRepository
	Idempotency domain.IdempotencyRepository
	Registerer  prometheus.Registerer
	HTTPClient  *http.Client
	Logger      *log.Entry
}

// Storefront — собранное клиентское ядро витрины: сессия, корзина, оформление и кабинет.
type Storefront struct {
	Backend  *backend.Client
	Session  *session.Store
	Cart     *cart.Store
	Editor   *cart.QuantityEditor
	Checkout *checkout.Workflow
	Account  *account.Service
	Payments *paymentproxy.Client
	Events   *events.Recorder
	Metrics  *metrics.StorefrontMetrics

	logger    *log.Entry
	closeOnce sync.Once
}

// sessionTokens разрывает цикл backend -> session -> backend: клиент создаётся раньше сессии.
type sessionTokens struct {
	store *session.Store
}

func (t *sessionTokens) Token(ctx context.Context) (string, error) {
	if t.store == nil {
		return "", domain.ErrAuthTokenMissing
	}
	return t.store.Token(ctx)
}

// NewStorefront собирает ядро по конфигурации.
func NewStorefront(cfg Config, deps StorefrontDeps) (*Storefront, error) {
	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "storefront")
	}
	if deps.Navigator == nil {
		return nil, fmt.Errorf("navigator is required")
	}

	m := metrics.NewStorefrontMetrics(deps.Registerer)
	recorder := events.NewRecorder(deps.Outbox, logger.WithField("layer", "events"))

	retry := backend.DefaultRetryConfig()
	retry.MaxAttempts = cfg.BackendRetries

	backendOpts := []backend.Option{
		backend.WithTimeout(cfg.BackendTimeout),
		backend.WithLogger(logger.WithField("layer", "backend")),
		backend.WithMetrics(m),
		backend.WithRetry(retry),
	}
	if deps.HTTPClient != nil {
		backendOpts = append(backendOpts, backend.WithHTTPClient(deps.HTTPClient))
	}

	tokens := &sessionTokens{}
	api, err := backend.NewClient(cfg.BackendURL, tokens, backendOpts...)
	if err != nil {
		return nil, fmt.Errorf("backend client: %w", err)
	}

	proxyOpts := []paymentproxy.ClientOption{
		paymentproxy.WithOrigin(cfg.PublicOrigin),
		paymentproxy.WithClientLogger(logger.WithField("layer", "payment-proxy")),
	}
	if deps.HTTPClient != nil {
		proxyOpts = append(proxyOpts, paymentproxy.WithHTTPClient(deps.HTTPClient))
	}
	payments, err := paymentproxy.NewClient(cfg.PaymentProxyURL, proxyOpts...)
	if err != nil {
		return nil, fmt.Errorf("payment proxy client: %w", err)
	}

	sessions := session.NewStore(api, deps.Snapshots,
		session.WithLogger(logger.WithField("layer", "session")),
		session.WithMetrics(m),
	)
	tokens.store = sessions

	cartStore := cart.NewStore(api,
		cart.WithLogger(logger.WithField("layer", "cart")),
		cart.WithMetrics(m),
		cart.WithSnapshots(deps.Snapshots),
		cart.WithEvents(recorder),
	)
	editor := cart.NewQuantityEditor(cartStore,
		cart.WithWindow(cfg.QuantityDebounce),
		cart.WithEditorLogger(logger.WithField("layer", "quantity-editor")),
		cart.WithEditorMetrics(m),
	)

	sessions.OnLogin(cartStore.Fetch)
	sessions.OnLogout(func(ctx context.Context) {
		editor.Discard()
		cartStore.Clear(ctx)
	})

	checkoutOpts := []checkout.Option{
		checkout.WithLogger(logger.WithField("layer", "checkout")),
		checkout.WithMetrics(m),
		checkout.WithEvents(recorder),
	}
	if deps.Idempotency != nil {
		checkoutOpts = append(checkoutOpts, checkout.WithIdempotency(deps.Idempotency, cfg.IdempotencyTTL))
	}
	workflow := checkout.NewWorkflow(checkout.Dependencies{
		Orders:    api,
		Sessions:  payments,
		Navigator: deps.Navigator,
		Cart:      cartStore,
		Addresses: api,
	}, checkoutOpts...)

	accountSvc := account.NewService(account.Dependencies{
		Users:     api,
		Addresses: api,
		Orders:    api,
		Session:   sessions,
	},
		account.WithLogger(logger.WithField("layer", "account")),
		account.WithEvents(recorder),
	)

	return &Storefront{
		Backend:  api,
		Session:  sessions,
		Cart:     cartStore,
		Editor:   editor,
		Checkout: workflow,
		Account:  accountSvc,
		Payments: payments,
		Events:   recorder,
		Metrics:  m,
		logger:   logger,
	}, nil
}

// Completion создаёт сверку заказа для одного открытия страницы успеха.
func (s *Storefront) Completion() *reconcile.Completion {
	return reconcile.NewCompletion(reconcile.Dependencies{
		Orders: s.Backend,
		Tokens: s.Session,
		Cart:   s.Cart,
	},
		reconcile.WithLogger(s.logger.WithField("layer", "order-completion")),
		reconcile.WithMetrics(s.Metrics),
		reconcile.WithEvents(s.Events),
	)
}

// Restore поднимает корзину и сессию из снимков. Корзина идёт первой:
// успешное восстановление сессии сразу перечитывает её с backend.
func (s *Storefront) Restore(ctx context.Context) error {
	if err := s.Cart.Restore(ctx); err != nil {
		s.logger.WithError(err).Warn("cart snapshot restore failed")
	}
	return s.Session.Restore(ctx)
}

// Close отправляет отложенные изменения количества и останавливает editor.
func (s *Storefront) Close() {
	s.closeOnce.Do(func() {
		s.Editor.Flush()
		s.Editor.Stop()
	})
}
