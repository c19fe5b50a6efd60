package paymentproxy

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/newmedica/storefront/internal/domain"
	"github.com/newmedica/storefront/internal/metrics"
)

// SessionsPath — маршрут создания hosted-сессии.
const SessionsPath = "/api/checkout_sessions"

// ServiceName — имя сервиса прокси в gRPC health.
const ServiceName = "storefront.PaymentProxy"

const maxBodyBytes = 1 << 20

// SessionRequest — тело POST /api/checkout_sessions.
type SessionRequest struct {
	Items   []domain.CartItem `json:"items"`
	OrderID string            `json:"orderId,omitempty"`
}

// SessionResponse — ответ с идентификатором hosted-сессии.
type SessionResponse struct {
	SessionID string `json:"sessionId"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HandlerOptions задаёт параметры Handler.
type HandlerOptions struct {
	Logger  *log.Entry
	Metrics *metrics.StorefrontMetrics
	// DefaultOrigin используется, если в запросе нет заголовка Origin.
	DefaultOrigin string
	// RateLimit — запросов в секунду; 0 отключает ограничение.
	RateLimit float64
	Burst     int
}

// HandlerOption настраивает Handler.
type HandlerOption func(*HandlerOptions)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) HandlerOption {
	return func(opts *HandlerOptions) {
		opts.Logger = logger
	}
}

// WithMetrics задаёт метрики.
func WithMetrics(m *metrics.StorefrontMetrics) HandlerOption {
	return func(opts *HandlerOptions) {
		opts.Metrics = m
	}
}

// WithDefaultOrigin задаёт адрес витрины по умолчанию.
func WithDefaultOrigin(origin string) HandlerOption {
	return func(opts *HandlerOptions) {
		opts.DefaultOrigin = origin
	}
}

// WithRateLimit ограничивает частоту запросов сессий.
func WithRateLimit(perSecond float64, burst int) HandlerOption {
	return func(opts *HandlerOptions) {
		opts.RateLimit = perSecond
		opts.Burst = burst
	}
}

// Handler — HTTP-прокси создания hosted-сессий оплаты.
type Handler struct {
	provider Provider
	logger   *log.Entry
	metrics  *metrics.StorefrontMetrics
	origin   string
	limiter  *rate.Limiter
}

// NewHandler создаёт Handler поверх провайдера.
func NewHandler(provider Provider, options ...HandlerOption) *Handler {
	opts := HandlerOptions{}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "payment-proxy")
	}

	h := &Handler{
		provider: provider,
		logger:   logger,
		metrics:  opts.Metrics,
		origin:   strings.TrimRight(opts.DefaultOrigin, "/"),
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return h
}

// Router возвращает chi-маршрутизатор прокси.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.With(h.limit).Post(SessionsPath, h.CreateSession)
	return r
}

// CreateSession обрабатывает POST /api/checkout_sessions.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.WithField("request_id", middleware.GetReqID(r.Context()))

	var req SessionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.metrics.RecordPaymentSession(metrics.SourceProxy, metrics.ResultRejected)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}

	origin := strings.TrimRight(r.Header.Get("Origin"), "/")
	if origin == "" {
		origin = h.origin
	}

	params, err := BuildSessionParams(req.Items, req.OrderID, origin)
	if err != nil {
		h.metrics.RecordPaymentSession(metrics.SourceProxy, metrics.ResultRejected)
		msg := "Invalid cart items"
		if errors.Is(err, domain.ErrEmptyCheckoutItems) {
			msg = "No items in cart"
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
		return
	}

	sessionID, err := h.provider.CreateSession(r.Context(), params)
	if err != nil || sessionID == "" {
		h.metrics.RecordPaymentSession(metrics.SourceProxy, metrics.ResultError)
		logger.WithError(err).WithField("order_id", req.OrderID).Error("create payment session failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal Server Error"})
		return
	}

	h.metrics.RecordPaymentSession(metrics.SourceProxy, metrics.ResultOK)
	logger.WithFields(log.Fields{
		"order_id":   req.OrderID,
		"session_id": sessionID,
		"items":      len(params.LineItems),
	}).Info("payment session created")
	writeJSON(w, http.StatusOK, SessionResponse{SessionID: sessionID})
}

func (h *Handler) limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.limiter != nil && !h.limiter.Allow() {
			h.metrics.RecordPaymentSession(metrics.SourceProxy, metrics.ResultRejected)
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "Too many requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
