package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus описывает состояние оплаты заказа. Переходами владеет backend.
type PaymentStatus string

const (
	// PaymentStatusPending — заказ создан, оплата ещё не подтверждена.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusPaid — оплата подтверждена.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusFailed — провайдер отклонил платёж.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusCancelled — заказ отменён до оплаты.
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// IsSettled сообщает, что оплата завершена успешно.
func (s PaymentStatus) IsSettled() bool {
	return s == PaymentStatusPaid
}

// CanRetry сообщает, что для заказа можно запросить повторную оплату.
func (s PaymentStatus) CanRetry() bool {
	return s == PaymentStatusPending || s == PaymentStatusFailed
}

// OrderAddress — снимок адреса в заказе (формат, который принимает backend).
type OrderAddress struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone,omitempty"`
	Address1  string `json:"address1"`
	Address2  string `json:"address2,omitempty"`
	City      string `json:"city"`
	State     string `json:"state"`
	Postcode  string `json:"postcode"`
	Country   string `json:"country"`
}

// OrderItem — позиция заказа с ценой на момент покупки.
type OrderItem struct {
	ID        string          `json:"id"`
	Product   Product         `json:"product"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Order — заказ, созданный backend. Клиент его не изменяет.
type Order struct {
	ID                 string          `json:"id"`
	PaymentStatus      PaymentStatus   `json:"payment_status"`
	PaymentMethod      PaymentMethod   `json:"payment_method,omitempty"`
	SubtotalAmount     decimal.Decimal `json:"subtotal_amount"`
	DiscountAmount     decimal.Decimal `json:"discount_amount"`
	ShippingAmount     decimal.Decimal `json:"shipping_amount"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	AppliedVoucherCode *string         `json:"applied_voucher_code,omitempty"`
	Items              []OrderItem     `json:"items"`
	ShippingAddress    *OrderAddress   `json:"shipping_address,omitempty"`
	BillingAddress     *OrderAddress   `json:"billing_address,omitempty"`
	ContactEmail       string          `json:"contact_email,omitempty"`
	Remark             string          `json:"remark,omitempty"`
	CreatedAt          *time.Time      `json:"created_at,omitempty"`
}

// OrderRequest — тело POST /api/v1/orders.
type OrderRequest struct {
	ContactEmail    string        `json:"contact_email,omitempty"`
	PaymentMethod   PaymentMethod `json:"payment_method"`
	Remark          string        `json:"remark,omitempty"`
	ShippingAddress OrderAddress  `json:"shipping_address"`
	BillingAddress  OrderAddress  `json:"billing_address"`
	// ClearCart = false оставляет корзину до внешнего подтверждения оплаты.
	ClearCart *bool `json:"clear_cart,omitempty"`
}

// RetryPayment — ответ на запрос повторной оплаты.
type RetryPayment struct {
	PaymentURL string `json:"payment_url"`
}

// OrderSummary — итоги, показываемые на странице оформления.
type OrderSummary struct {
	Subtotal           decimal.Decimal `json:"subtotal"`
	Discount           decimal.Decimal `json:"discount"`
	Shipping           decimal.Decimal `json:"shipping"`
	Total              decimal.Decimal `json:"total"`
	AppliedVoucherCode *string         `json:"applied_voucher_code,omitempty"`
}

// SummaryFromCart строит предварительные итоги по корзине.
func SummaryFromCart(cart Cart) OrderSummary {
	return OrderSummary{
		Subtotal:           cart.Subtotal,
		Discount:           cart.Discount,
		Shipping:           cart.Shipping,
		Total:              cart.Total,
		AppliedVoucherCode: cart.AppliedVoucherCode,
	}
}

// SummaryFromOrder берёт итоги из созданного заказа; серверные суммы всегда приоритетнее.
func SummaryFromOrder(order Order) OrderSummary {
	return OrderSummary{
		Subtotal:           order.SubtotalAmount,
		Discount:           order.DiscountAmount,
		Shipping:           order.ShippingAmount,
		Total:              order.TotalAmount,
		AppliedVoucherCode: order.AppliedVoucherCode,
	}
}
