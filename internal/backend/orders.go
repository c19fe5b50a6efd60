package backend

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/newmedica/storefront/internal/domain"
)

const ordersPath = "/api/v1/orders"

// CreateOrder создаёт заказ. Не-2xx ответ оборачивает domain.ErrOrderCreateFailed.
// Ключ идемпотентности из ctx (WithIdempotencyKey) уходит заголовком Idempotency-Key.
func (c *Client) CreateOrder(ctx context.Context, req domain.OrderRequest) (domain.Order, error) {
	if !req.PaymentMethod.Valid() {
		return domain.Order{}, domain.ErrUnsupportedPaymentMethod
	}

	var order domain.Order
	err := c.do(ctx, call{
		op:      "orders.create",
		method:  http.MethodPost,
		path:    ordersPath,
		body:    req,
		auth:    true,
		failure: domain.ErrOrderCreateFailed,
	}, &order)
	if err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// ListOrders возвращает историю заказов пользователя.
func (c *Client) ListOrders(ctx context.Context) ([]domain.Order, error) {
	var orders []domain.Order
	if err := c.do(ctx, call{
		op:     "orders.list",
		method: http.MethodGet,
		path:   ordersPath,
		auth:   true,
		retry:  true,
	}, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// GetOrder возвращает заказ по идентификатору.
func (c *Client) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return domain.Order{}, domain.ErrOrderIDRequired
	}

	var order domain.Order
	if err := c.do(ctx, call{
		op:       "orders.get",
		method:   http.MethodGet,
		path:     ordersPath + "/" + url.PathEscape(orderID),
		auth:     true,
		retry:    true,
		notFound: domain.ErrOrderNotFound,
	}, &order); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// RetryPayment запрашивает новую ссылку на оплату.
func (c *Client) RetryPayment(ctx context.Context, orderID string) (domain.RetryPayment, error) {
	if strings.TrimSpace(orderID) == "" {
		return domain.RetryPayment{}, domain.ErrOrderIDRequired
	}

	var resp domain.RetryPayment
	if err := c.do(ctx, call{
		op:       "orders.retry_payment",
		method:   http.MethodPost,
		path:     ordersPath + "/" + url.PathEscape(orderID) + "/retry-payment",
		auth:     true,
		notFound: domain.ErrOrderNotFound,
		failure:  domain.ErrPaymentSessionFailed,
	}, &resp); err != nil {
		return domain.RetryPayment{}, err
	}
	return resp, nil
}

// VerifyPayment подтверждает оплату по hosted-сессии. Вызов меняет состояние на backend,
// поэтому не повторяется автоматически.
func (c *Client) VerifyPayment(ctx context.Context, sessionID string) (domain.Order, error) {
	if strings.TrimSpace(sessionID) == "" {
		return domain.Order{}, domain.ErrPaymentVerifyFailed
	}

	var order domain.Order
	if err := c.do(ctx, call{
		op:      "orders.verify_payment",
		method:  http.MethodGet,
		path:    ordersPath + "/verify-payment/" + url.PathEscape(sessionID),
		auth:    true,
		failure: domain.ErrPaymentVerifyFailed,
		// 404 по сессии считается неуспешной проверкой.
		notFound: domain.ErrPaymentVerifyFailed,
	}, &order); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

var _ domain.OrderAPI = (*Client)(nil)
