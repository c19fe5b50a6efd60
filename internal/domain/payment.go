package domain

import "strings"

// PaymentMethod — способ оплаты на странице оформления.
type PaymentMethod string

const (
	// PaymentMethodStripe — оплата картой на странице провайдера (hosted redirect).
	PaymentMethodStripe PaymentMethod = "stripe"
	// PaymentMethodBankTransfer — прямой банковский перевод.
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	// PaymentMethodFPX — онлайн-банкинг FPX.
	PaymentMethodFPX PaymentMethod = "fpx"
	// PaymentMethodDuitNowQR — оплата по QR-коду DuitNow.
	PaymentMethodDuitNowQR PaymentMethod = "duitnow_qr"
)

// PaymentMethods перечисляет поддерживаемые способы в порядке показа.
func PaymentMethods() []PaymentMethod {
	return []PaymentMethod{
		PaymentMethodStripe,
		PaymentMethodFPX,
		PaymentMethodDuitNowQR,
		PaymentMethodBankTransfer,
	}
}

// ParsePaymentMethod нормализует строку и проверяет принадлежность перечню.
func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	method := PaymentMethod(strings.ToLower(strings.TrimSpace(raw)))
	if !method.Valid() {
		return "", ErrUnsupportedPaymentMethod
	}
	return method, nil
}

// Valid проверяет, что способ оплаты поддерживается.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodStripe, PaymentMethodBankTransfer, PaymentMethodFPX, PaymentMethodDuitNowQR:
		return true
	default:
		return false
	}
}

// IsHostedRedirect сообщает, что оплата проходит на внешней странице провайдера.
func (m PaymentMethod) IsHostedRedirect() bool {
	return m == PaymentMethodStripe
}
