package paymentproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/newmedica/storefront/internal/domain"
	"github.com/newmedica/storefront/internal/version"
)

const defaultClientTimeout = 15 * time.Second

// ClientOptions задаёт параметры Client.
type ClientOptions struct {
	HTTPClient *http.Client
	Origin     string
	Logger     *log.Entry
}

// ClientOption настраивает Client.
type ClientOption func(*ClientOptions)

// WithHTTPClient задаёт http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(opts *ClientOptions) {
		if client != nil {
			opts.HTTPClient = client
		}
	}
}

// WithOrigin задаёт заголовок Origin (адрес витрины для возврата с оплаты).
func WithOrigin(origin string) ClientOption {
	return func(opts *ClientOptions) {
		opts.Origin = origin
	}
}

// WithClientLogger задаёт logger.
func WithClientLogger(logger *log.Entry) ClientOption {
	return func(opts *ClientOptions) {
		opts.Logger = logger
	}
}

// Client вызывает прокси hosted-сессий.
type Client struct {
	endpoint string
	http     *http.Client
	origin   string
	logger   *log.Entry
}

// NewClient создаёт клиент прокси по базовому адресу.
func NewClient(baseURL string, options ...ClientOption) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid payment proxy url %q", baseURL)
	}

	opts := ClientOptions{HTTPClient: &http.Client{Timeout: defaultClientTimeout}}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "payment-proxy-client")
	}

	return &Client{
		endpoint: strings.TrimRight(u.String(), "/") + SessionsPath,
		http:     opts.HTTPClient,
		origin:   opts.Origin,
		logger:   logger,
	}, nil
}

// CreateCheckoutSession запрашивает hosted-сессию и возвращает её идентификатор.
func (c *Client) CreateCheckoutSession(ctx context.Context, items []domain.CartItem, orderID string) (string, error) {
	if len(items) == 0 {
		return "", domain.ErrEmptyCheckoutItems
	}

	body, err := json.Marshal(SessionRequest{Items: items, OrderID: orderID})
	if err != nil {
		return "", fmt.Errorf("marshal session request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if c.origin != "" {
		req.Header.Set("Origin", c.origin)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrPaymentSessionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errBody errorResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if json.Unmarshal(raw, &errBody) != nil || errBody.Error == "" {
			errBody.Error = strings.TrimSpace(string(raw))
		}
		c.logger.WithFields(log.Fields{
			"status":   resp.StatusCode,
			"order_id": orderID,
		}).Warn("payment proxy rejected session request")
		return "", fmt.Errorf("%w: status %d: %s", domain.ErrPaymentSessionFailed, resp.StatusCode, errBody.Error)
	}

	var out SessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", domain.ErrPaymentSessionFailed, err)
	}
	if out.SessionID == "" {
		return "", fmt.Errorf("%w: empty session id", domain.ErrPaymentSessionFailed)
	}
	return out.SessionID, nil
}

var _ domain.PaymentSessionClient = (*Client)(nil)
