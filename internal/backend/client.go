package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/newmedica/storefront/internal/domain"
	"github.com/newmedica/storefront/internal/metrics"
	"github.com/newmedica/storefront/internal/version"
)

const (
	defaultTimeout  = 15 * time.Second
	maxErrorBody    = 64 << 10
	headerRequestID = "X-Request-ID"
	// HeaderIdempotencyKey передаёт ключ отправки формы оформления в backend.
	HeaderIdempotencyKey = "Idempotency-Key"
)

// Options задаёт параметры клиента backend.
type Options struct {
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *log.Entry
	Metrics    *metrics.StorefrontMetrics
	Retry      RetryConfig
}

// Option настраивает Client.
type Option func(*Options)

// WithHTTPClient задаёт http.Client (например, из httptest).
func WithHTTPClient(client *http.Client) Option {
	return func(opts *Options) {
		opts.HTTPClient = client
	}
}

// WithTimeout задаёт таймаут одного HTTP-запроса.
func WithTimeout(timeout time.Duration) Option {
	return func(opts *Options) {
		opts.Timeout = timeout
	}
}

// WithLogger задаёт logger клиента.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMetrics задаёт метрики клиента.
func WithMetrics(m *metrics.StorefrontMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithRetry задаёт политику повторов безопасных чтений.
func WithRetry(cfg RetryConfig) Option {
	return func(opts *Options) {
		opts.Retry = cfg
	}
}

// Client — REST-клиент backend витрины (/api/v1/...).
// Все защищённые вызовы идут с заголовком Authorization: Bearer <token>.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	tokens  domain.TokenSource
	logger  *log.Entry
	metrics *metrics.StorefrontMetrics
	retry   RetryConfig
}

// NewClient создаёт клиент. tokens может быть nil, тогда доступны только публичные вызовы.
func NewClient(baseURL string, tokens domain.TokenSource, options ...Option) (*Client, error) {
	opts := Options{
		Timeout: defaultTimeout,
		Retry:   DefaultRetryConfig(),
	}
	for _, option := range options {
		option(&opts)
	}

	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("invalid backend base url %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend base url %q: scheme and host are required", baseURL)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		if opts.Timeout <= 0 {
			opts.Timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "backend-client")
	}

	return &Client{
		baseURL: u,
		http:    httpClient,
		tokens:  tokens,
		logger:  logger,
		metrics: opts.Metrics,
		retry:   opts.Retry.normalized(),
	}, nil
}

// APIError — ответ backend вне диапазона 2xx.
type APIError struct {
	Op         string
	StatusCode int
	// Detail — текст из поля `detail` ответа backend.
	Detail string
	kind   error
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("backend %s: status %d: %s", e.Op, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("backend %s: status %d", e.Op, e.StatusCode)
}

// Unwrap позволяет сравнивать ошибку с доменными sentinel через errors.Is.
func (e *APIError) Unwrap() error {
	return e.kind
}

// DetailMessage возвращает текст `detail` из ответа backend или fallback.
func DetailMessage(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && strings.TrimSpace(apiErr.Detail) != "" {
		return apiErr.Detail
	}
	return fallback
}

// StatusCode возвращает HTTP-код из APIError или 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

type idempotencyKeyCtx struct{}

// WithIdempotencyKey кладёт ключ отправки в ctx; клиент передаст его заголовком.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	if strings.TrimSpace(key) == "" {
		return ctx
	}
	return context.WithValue(ctx, idempotencyKeyCtx{}, key)
}

// IdempotencyKeyFrom возвращает ключ, положенный WithIdempotencyKey.
func IdempotencyKeyFrom(ctx context.Context) string {
	key, _ := ctx.Value(idempotencyKeyCtx{}).(string)
	return key
}

// call описывает один вызов backend.
type call struct {
	op     string
	method string
	path   string
	query  url.Values
	body   any
	form   url.Values
	// auth: вызов требует bearer-токен.
	auth bool
	// token задан явно и имеет приоритет над TokenSource.
	token string
	// retry: вызов безопасно повторять.
	retry bool
	// denied/notFound/failure: sentinel для 401/403, 404 и прочих не-2xx.
	denied   error
	notFound error
	failure  error
}

func (c *Client) do(ctx context.Context, req call, out any) error {
	token := req.token
	if req.auth && token == "" {
		if c.tokens == nil {
			return domain.ErrAuthTokenMissing
		}
		t, err := c.tokens.Token(ctx)
		if err != nil {
			return err
		}
		if strings.TrimSpace(t) == "" {
			return domain.ErrAuthTokenMissing
		}
		token = t
	}

	attempts := 1
	if req.retry {
		attempts = c.retry.MaxAttempts
	}
	delay := c.retry.InitialDelay

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = c.once(ctx, req, token, out)
		if lastErr == nil || attempt >= attempts || !shouldRetry(lastErr) {
			break
		}

		c.logger.WithError(lastErr).WithFields(log.Fields{
			"op":      req.op,
			"attempt": attempt,
			"delay":   delay,
		}).Warn("backend call failed, retrying")

		if err := sleepContext(ctx, delay); err != nil {
			return err
		}
		delay = c.retry.next(delay)
	}

	return lastErr
}

func (c *Client) once(ctx context.Context, req call, token string, out any) error {
	httpReq, err := c.newRequest(ctx, req, token)
	if err != nil {
		return err
	}

	started := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.metrics.RecordBackendRequest(req.op, 0, time.Since(started))
		return fmt.Errorf("backend %s: %w", req.op, err)
	}
	defer resp.Body.Close()
	c.metrics.RecordBackendRequest(req.op, resp.StatusCode, time.Since(started))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := c.readError(req, resp)
		c.logger.WithFields(log.Fields{
			"op":     req.op,
			"status": resp.StatusCode,
			"detail": apiErr.Detail,
		}).Debug("backend returned error status")
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("backend %s: decode response: %w", req.op, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, req call, token string) (*http.Request, error) {
	// req.path уже экранирован (url.PathEscape для id), поэтому задаём и RawPath.
	rawPath := strings.TrimRight(c.baseURL.EscapedPath(), "/") + req.path
	decoded, err := url.PathUnescape(rawPath)
	if err != nil {
		return nil, fmt.Errorf("backend %s: bad path: %w", req.op, err)
	}
	rel := &url.URL{Path: decoded, RawPath: rawPath}
	if len(req.query) > 0 {
		rel.RawQuery = req.query.Encode()
	}
	u := c.baseURL.ResolveReference(rel)

	var (
		body        io.Reader
		contentType string
	)
	switch {
	case req.form != nil:
		body = strings.NewReader(req.form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case req.body != nil:
		payload, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("backend %s: encode request: %w", req.op, err)
		}
		body = bytes.NewReader(payload)
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("backend %s: build request: %w", req.op, err)
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", version.UserAgent())
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	httpReq.Header.Set(headerRequestID, uuid.NewString())
	if key := IdempotencyKeyFrom(ctx); key != "" && req.method == http.MethodPost {
		httpReq.Header.Set(HeaderIdempotencyKey, key)
	}

	return httpReq, nil
}

// readError разбирает тело ошибки backend: {"detail": "..."} или список ошибок валидации.
func (c *Client) readError(req call, resp *http.Response) *APIError {
	apiErr := &APIError{Op: req.op, StatusCode: resp.StatusCode}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		apiErr.kind = domain.ErrUnauthorized
		if req.denied != nil {
			apiErr.kind = req.denied
		}
	case resp.StatusCode == http.StatusNotFound && req.notFound != nil:
		apiErr.kind = req.notFound
	default:
		apiErr.kind = req.failure
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return apiErr
	}

	var payload struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return apiErr
	}
	apiErr.Detail = parseDetail(payload.Detail)
	if apiErr.Detail == "" {
		apiErr.Detail = payload.Error
	}
	return apiErr
}

func parseDetail(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}

	var items []struct {
		Loc []any  `json:"loc"`
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &items); err == nil {
		messages := make([]string, 0, len(items))
		for _, item := range items {
			if item.Msg == "" {
				continue
			}
			if len(item.Loc) > 0 {
				messages = append(messages, fmt.Sprintf("%v: %s", item.Loc[len(item.Loc)-1], item.Msg))
				continue
			}
			messages = append(messages, item.Msg)
		}
		return strings.Join(messages, "; ")
	}

	return ""
}
