package backend

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/newmedica/storefront/internal/domain"
)

const cartPath = "/api/v1/cart"

// GetCart загружает корзину. 404 возвращается как domain.ErrCartNotFound.
func (c *Client) GetCart(ctx context.Context) (domain.Cart, error) {
	var cart domain.Cart
	err := c.do(ctx, call{
		op:       "cart.get",
		method:   http.MethodGet,
		path:     cartPath,
		auth:     true,
		retry:    true,
		notFound: domain.ErrCartNotFound,
	}, &cart)
	if err != nil {
		return domain.Cart{}, err
	}
	if cart.Items == nil {
		cart.Items = []domain.CartItem{}
	}
	return cart, nil
}

// AddCartItem добавляет товар в корзину (корзина создаётся неявно).
func (c *Client) AddCartItem(ctx context.Context, productID string, quantity int) error {
	if strings.TrimSpace(productID) == "" {
		return domain.ErrProductIDRequired
	}
	if err := domain.ValidateQuantity(quantity); err != nil {
		return err
	}

	return c.do(ctx, call{
		op:     "cart.add_item",
		method: http.MethodPost,
		path:   cartPath + "/items",
		body: map[string]any{
			"product_id": productID,
			"quantity":   quantity,
		},
		auth: true,
	}, nil)
}

// UpdateCartItem задаёт количество позиции.
func (c *Client) UpdateCartItem(ctx context.Context, itemID string, quantity int) error {
	if strings.TrimSpace(itemID) == "" {
		return domain.ErrCartItemIDRequired
	}
	if err := domain.ValidateQuantity(quantity); err != nil {
		return err
	}

	return c.do(ctx, call{
		op:       "cart.update_item",
		method:   http.MethodPut,
		path:     cartPath + "/items/" + url.PathEscape(itemID),
		body:     map[string]int{"quantity": quantity},
		auth:     true,
		notFound: domain.ErrCartNotFound,
	}, nil)
}

// RemoveCartItem удаляет позицию.
func (c *Client) RemoveCartItem(ctx context.Context, itemID string) error {
	if strings.TrimSpace(itemID) == "" {
		return domain.ErrCartItemIDRequired
	}

	return c.do(ctx, call{
		op:       "cart.remove_item",
		method:   http.MethodDelete,
		path:     cartPath + "/items/" + url.PathEscape(itemID),
		auth:     true,
		notFound: domain.ErrCartNotFound,
	}, nil)
}

var _ domain.CartAPI = (*Client)(nil)
