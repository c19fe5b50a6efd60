package backend

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/newmedica/storefront/internal/domain"
)

const (
	loginPath     = "/api/v1/auth/login"
	mePath        = "/api/v1/users/me"
	addressesPath = mePath + "/addresses"
	vouchersPath  = mePath + "/vouchers"
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Login выполняет вход (form-encoded username/password) и возвращает access token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	form := url.Values{}
	form.Set("username", strings.TrimSpace(email))
	form.Set("password", password)

	var resp tokenResponse
	err := c.do(ctx, call{
		op:       "auth.login",
		method:   http.MethodPost,
		path:     loginPath,
		form:     form,
		denied:   domain.ErrInvalidCredentials,
		failure:  domain.ErrInvalidCredentials,
		notFound: domain.ErrInvalidCredentials,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", domain.ErrInvalidCredentials
	}
	return resp.AccessToken, nil
}

// Me загружает профиль по явно переданному токену.
func (c *Client) Me(ctx context.Context, token string) (domain.User, error) {
	if strings.TrimSpace(token) == "" {
		return domain.User{}, domain.ErrAuthTokenMissing
	}

	var user domain.User
	if err := c.do(ctx, call{
		op:     "users.me",
		method: http.MethodGet,
		path:   mePath,
		auth:   true,
		token:  token,
		retry:  true,
	}, &user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// UpdateProfile частично обновляет профиль; пустые значения не отправляются.
func (c *Client) UpdateProfile(ctx context.Context, update domain.ProfileUpdate) (domain.User, error) {
	body := make(map[string]string, len(update))
	for field, value := range update {
		if strings.TrimSpace(value) == "" {
			continue
		}
		body[field] = value
	}

	var user domain.User
	if err := c.do(ctx, call{
		op:     "users.update_profile",
		method: http.MethodPatch,
		path:   mePath,
		body:   body,
		auth:   true,
	}, &user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// ListVouchers возвращает ваучеры пользователя.
func (c *Client) ListVouchers(ctx context.Context) ([]domain.Voucher, error) {
	var vouchers []domain.Voucher
	if err := c.do(ctx, call{
		op:     "users.vouchers",
		method: http.MethodGet,
		path:   vouchersPath,
		auth:   true,
		retry:  true,
	}, &vouchers); err != nil {
		return nil, err
	}
	return vouchers, nil
}

// ListAddresses возвращает адресную книгу.
func (c *Client) ListAddresses(ctx context.Context) ([]domain.Address, error) {
	var addresses []domain.Address
	if err := c.do(ctx, call{
		op:     "addresses.list",
		method: http.MethodGet,
		path:   addressesPath,
		auth:   true,
		retry:  true,
	}, &addresses); err != nil {
		return nil, err
	}
	return addresses, nil
}

// GetAddress возвращает адрес по идентификатору.
func (c *Client) GetAddress(ctx context.Context, addressID string) (domain.Address, error) {
	var address domain.Address
	if err := c.do(ctx, call{
		op:       "addresses.get",
		method:   http.MethodGet,
		path:     addressesPath + "/" + url.PathEscape(addressID),
		auth:     true,
		retry:    true,
		notFound: domain.ErrAddressNotFound,
	}, &address); err != nil {
		return domain.Address{}, err
	}
	return address, nil
}

// CreateAddress добавляет адрес.
func (c *Client) CreateAddress(ctx context.Context, input domain.AddressInput) (domain.Address, error) {
	var address domain.Address
	if err := c.do(ctx, call{
		op:     "addresses.create",
		method: http.MethodPost,
		path:   addressesPath,
		body:   input,
		auth:   true,
	}, &address); err != nil {
		return domain.Address{}, err
	}
	return address, nil
}

// UpdateAddress заменяет поля адреса.
func (c *Client) UpdateAddress(ctx context.Context, addressID string, input domain.AddressInput) (domain.Address, error) {
	var address domain.Address
	if err := c.do(ctx, call{
		op:       "addresses.update",
		method:   http.MethodPut,
		path:     addressesPath + "/" + url.PathEscape(addressID),
		body:     input,
		auth:     true,
		notFound: domain.ErrAddressNotFound,
	}, &address); err != nil {
		return domain.Address{}, err
	}
	return address, nil
}

// DeleteAddress удаляет адрес.
func (c *Client) DeleteAddress(ctx context.Context, addressID string) error {
	return c.do(ctx, call{
		op:       "addresses.delete",
		method:   http.MethodDelete,
		path:     addressesPath + "/" + url.PathEscape(addressID),
		auth:     true,
		notFound: domain.ErrAddressNotFound,
	}, nil)
}

// SetPrimaryAddress делает адрес основным. Единственность основного адреса обеспечивает backend.
func (c *Client) SetPrimaryAddress(ctx context.Context, addressID string) (domain.Address, error) {
	var address domain.Address
	if err := c.do(ctx, call{
		op:       "addresses.set_primary",
		method:   http.MethodPost,
		path:     addressesPath + "/" + url.PathEscape(addressID) + "/set-primary",
		auth:     true,
		notFound: domain.ErrAddressNotFound,
	}, &address); err != nil {
		return domain.Address{}, err
	}
	return address, nil
}

var (
	_ domain.UserAPI    = (*Client)(nil)
	_ domain.AddressAPI = (*Client)(nil)
)
