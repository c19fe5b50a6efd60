package backend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/newmedica/storefront/internal/domain"
)

// ListCategories возвращает разделы каталога.
func (c *Client) ListCategories(ctx context.Context) ([]domain.Category, error) {
	var categories []domain.Category
	if err := c.do(ctx, call{
		op:     "catalog.categories",
		method: http.MethodGet,
		path:   "/api/v1/categories",
		retry:  true,
	}, &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

// ListProducts возвращает товары с фильтрами category/search/sort_by.
func (c *Client) ListProducts(ctx context.Context, query domain.ProductQuery) ([]domain.Product, error) {
	params := url.Values{}
	if query.Category != "" {
		params.Set("category", query.Category)
	}
	if query.Search != "" {
		params.Set("search", query.Search)
	}
	if query.SortBy != "" {
		params.Set("sort_by", query.SortBy)
	}

	var products []domain.Product
	if err := c.do(ctx, call{
		op:     "catalog.products",
		method: http.MethodGet,
		path:   "/api/v1/products",
		query:  params,
		retry:  true,
	}, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// GetProduct возвращает карточку товара.
func (c *Client) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	var product domain.Product
	if err := c.do(ctx, call{
		op:     "catalog.product",
		method: http.MethodGet,
		path:   "/api/v1/products/" + url.PathEscape(productID),
		retry:  true,
	}, &product); err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

var _ domain.CatalogAPI = (*Client)(nil)
