package checkout

import (
	"strings"

	"github.com/newmedica/storefront/internal/domain"
	"github.com/newmedica/storefront/internal/validation"
)

// Значения формы по умолчанию.
const (
	DefaultCountry = "Malaysia"
	DefaultState   = "Kuala Lumpur"
)

// AddressForm — форма адресов на странице оформления.
// Поля оплаты (Billing*) обязательны только при DifferentBilling.
type AddressForm struct {
	Phone     string `json:"phone" validate:"required"`
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
	Address1  string `json:"address1" validate:"required"`
	Address2  string `json:"address2"`
	City      string `json:"city" validate:"required"`
	State     string `json:"state" validate:"required"`
	Postcode  string `json:"postcode" validate:"required"`
	Country   string `json:"country" validate:"required"`
	Remark    string `json:"remark"`

	DifferentBilling bool   `json:"differentBilling"`
	BillingFirstName string `json:"billingFirstName" validate:"required_if=DifferentBilling true"`
	BillingLastName  string `json:"billingLastName" validate:"required_if=DifferentBilling true"`
	BillingAddress1  string `json:"billingAddress1" validate:"required_if=DifferentBilling true"`
	BillingAddress2  string `json:"billingAddress2"`
	BillingCity      string `json:"billingCity" validate:"required_if=DifferentBilling true"`
	BillingState     string `json:"billingState" validate:"required_if=DifferentBilling true"`
	BillingPostcode  string `json:"billingPostcode" validate:"required_if=DifferentBilling true"`
	BillingCountry   string `json:"billingCountry" validate:"required_if=DifferentBilling true"`
}

var formMessages = map[string]string{
	"phone":     "Phone number is required",
	"firstName": "First name is required",
	"lastName":  "Last name is required",
	"address1":  "Address is required",
	"city":      "City is required",
	"state":     "State is required",
	"postcode":  "Postcode is required",
	"country":   "Country is required",

	"billingFirstName": "Billing first name is required",
	"billingLastName":  "Billing last name is required",
	"billingAddress1":  "Billing address is required",
	"billingCity":      "Billing city is required",
	"billingState":     "Billing state is required",
	"billingPostcode":  "Billing postcode is required",
	"billingCountry":   "Billing country is required",
}

// DefaultForm возвращает пустую форму со страной и штатом по умолчанию.
func DefaultForm() AddressForm {
	return AddressForm{
		Country: DefaultCountry,
		State:   DefaultState,
	}
}

// FormFromAddress заполняет форму адресом из адресной книги.
// Пустые штат и страна заменяются значениями по умолчанию.
func FormFromAddress(addr domain.Address) AddressForm {
	form := DefaultForm()
	form.Phone = addr.Phone
	form.FirstName = addr.FirstName
	form.LastName = addr.LastName
	form.Address1 = addr.Address1
	form.Address2 = addr.Address2
	form.City = addr.City
	form.Postcode = addr.Postcode
	if addr.State != "" {
		form.State = addr.State
	}
	if addr.Country != "" {
		form.Country = addr.Country
	}
	return form
}

// Normalize обрезает пробелы во всех текстовых полях.
func (f AddressForm) Normalize() AddressForm {
	for _, field := range []*string{
		&f.Phone, &f.FirstName, &f.LastName, &f.Address1, &f.Address2,
		&f.City, &f.State, &f.Postcode, &f.Country, &f.Remark,
		&f.BillingFirstName, &f.BillingLastName, &f.BillingAddress1, &f.BillingAddress2,
		&f.BillingCity, &f.BillingState, &f.BillingPostcode, &f.BillingCountry,
	} {
		*field = strings.TrimSpace(*field)
	}
	return f
}

// Validate проверяет форму и возвращает *validation.Error с сообщениями по полям.
func (f AddressForm) Validate() error {
	return validation.Struct(f.Normalize(), formMessages)
}

// ShippingAddress возвращает адрес доставки для заказа.
func (f AddressForm) ShippingAddress() domain.OrderAddress {
	return domain.OrderAddress{
		FirstName: f.FirstName,
		LastName:  f.LastName,
		Phone:     f.Phone,
		Address1:  f.Address1,
		Address2:  f.Address2,
		City:      f.City,
		State:     f.State,
		Postcode:  f.Postcode,
		Country:   f.Country,
	}
}

// BillingAddress возвращает платёжный адрес: отдельный, если он указан, иначе копию адреса
// доставки без телефона.
func (f AddressForm) BillingAddress() domain.OrderAddress {
	if f.DifferentBilling {
		return domain.OrderAddress{
			FirstName: f.BillingFirstName,
			LastName:  f.BillingLastName,
			Address1:  f.BillingAddress1,
			Address2:  f.BillingAddress2,
			City:      f.BillingCity,
			State:     f.BillingState,
			Postcode:  f.BillingPostcode,
			Country:   f.BillingCountry,
		}
	}

	billing := f.ShippingAddress()
	billing.Phone = ""
	return billing
}

// OrderRequest собирает тело POST /api/v1/orders.
func (f AddressForm) OrderRequest(method domain.PaymentMethod, contactEmail string) domain.OrderRequest {
	f = f.Normalize()
	req := domain.OrderRequest{
		ContactEmail:    strings.TrimSpace(contactEmail),
		PaymentMethod:   method,
		Remark:          f.Remark,
		ShippingAddress: f.ShippingAddress(),
		BillingAddress:  f.BillingAddress(),
	}
	if method.IsHostedRedirect() {
		// Корзина очищается только после подтверждения оплаты на странице завершения.
		clearCart := false
		req.ClearCart = &clearCart
	}
	return req
}
