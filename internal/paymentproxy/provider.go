package paymentproxy

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/newmedica/storefront/internal/domain"
)

// Параметры hosted-сессии.
const (
	Currency     = "myr"
	ModePayment  = "payment"
	successPath  = "/orders/success?session_id={CHECKOUT_SESSION_ID}"
	cancelPath   = "/cart"
	metaOrderID  = "order_id"
	minorPerUnit = 100
)

// PaymentMethodTypes — способы оплаты на странице провайдера.
var PaymentMethodTypes = []string{"card", "fpx"}

// LineItem — позиция hosted-сессии.
type LineItem struct {
	Name       string
	Images     []string
	Currency   string
	UnitAmount int64 // в минимальных единицах валюты
	Quantity   int
}

// SessionParams — запрос на создание hosted-сессии у провайдера.
type SessionParams struct {
	LineItems          []LineItem
	PaymentMethodTypes []string
	Mode               string
	SuccessURL         string
	CancelURL          string
	Metadata           map[string]string
}

// Provider создаёт hosted-сессии оплаты.
type Provider interface {
	CreateSession(ctx context.Context, params SessionParams) (string, error)
}

// BuildSessionParams переводит позиции корзины в параметры сессии.
// origin — адрес витрины, на который провайдер вернёт пользователя.
func BuildSessionParams(items []domain.CartItem, orderID, origin string) (SessionParams, error) {
	if len(items) == 0 {
		return SessionParams{}, domain.ErrEmptyCheckoutItems
	}

	lineItems := make([]LineItem, 0, len(items))
	for _, item := range items {
		if item.Quantity < 1 {
			return SessionParams{}, fmt.Errorf("item %s: %w", item.ProductID, domain.ErrInvalidQuantity)
		}
		images := make([]string, 0, len(item.Product.Media))
		for _, media := range item.Product.Media {
			if media.URL != "" {
				images = append(images, media.URL)
			}
		}
		lineItems = append(lineItems, LineItem{
			Name:       item.Product.Name,
			Images:     images,
			Currency:   Currency,
			UnitAmount: MinorUnits(item.Product.Price),
			Quantity:   item.Quantity,
		})
	}

	origin = strings.TrimRight(origin, "/")
	params := SessionParams{
		LineItems:          lineItems,
		PaymentMethodTypes: append([]string(nil), PaymentMethodTypes...),
		Mode:               ModePayment,
		SuccessURL:         origin + successPath,
		CancelURL:          origin + cancelPath,
	}
	if orderID != "" {
		params.Metadata = map[string]string{metaOrderID: orderID}
	}
	return params, nil
}

// MinorUnits переводит цену в сены с округлением до целого.
func MinorUnits(price decimal.Decimal) int64 {
	return price.Mul(decimal.NewFromInt(minorPerUnit)).Round(0).IntPart()
}

// MockProvider — детерминированная заглушка Provider для локального запуска и тестов.
type MockProvider struct {
	mu sync.Mutex

	Prefix string
	Err    error

	Calls int
	Last  SessionParams
}

// NewMockProvider возвращает mock, выдающий идентификаторы cs_test_<n>.
func NewMockProvider() *MockProvider {
	return &MockProvider{Prefix: "cs_test_"}
}

// CreateSession запоминает параметры и возвращает следующий идентификатор или Err.
func (m *MockProvider) CreateSession(_ context.Context, params SessionParams) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls++
	m.Last = params
	if m.Err != nil {
		return "", m.Err
	}
	return fmt.Sprintf("%s%d", m.Prefix, m.Calls), nil
}

// LastParams возвращает параметры последнего вызова.
func (m *MockProvider) LastParams() SessionParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Last
}

var _ Provider = (*MockProvider)(nil)
