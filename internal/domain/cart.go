package domain

import "github.com/shopspring/decimal"

// ProductMedia — изображение или видео товара.
type ProductMedia struct {
	ID           string `json:"id"`
	MediaType    string `json:"media_type"`
	URL          string `json:"url"`
	DisplayOrder int    `json:"display_order"`
}

// Category — раздел каталога.
type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ProductQuery — фильтры списка товаров.
type ProductQuery struct {
	Category string
	Search   string
	SortBy   string
}

// Product — снимок товара на момент добавления в корзину или заказ.
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock,omitempty"`
	CategoryID  string          `json:"category_id,omitempty"`
	Category    *Category       `json:"category,omitempty"`
	Media       []ProductMedia  `json:"media,omitempty"`
}

// CartItem представляет одну позицию корзины.
type CartItem struct {
	ID        string  `json:"id"`
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	Product   Product `json:"product"`
}

// Cart — зеркало серверной корзины.
// Агрегаты (Subtotal, Discount, Shipping, Total) всегда берутся из ответа backend
// и никогда не пересчитываются на клиенте.
type Cart struct {
	ID                 string          `json:"id"`
	UserID             string          `json:"user_id"`
	Items              []CartItem      `json:"items"`
	Subtotal           decimal.Decimal `json:"subtotal"`
	Discount           decimal.Decimal `json:"discount"`
	Shipping           decimal.Decimal `json:"shipping"`
	Total              decimal.Decimal `json:"total"`
	AppliedVoucherCode *string         `json:"applied_voucher_code,omitempty"`
}

// EmptyCart возвращает нормализованную пустую корзину с нулевыми агрегатами.
func EmptyCart() Cart {
	return Cart{
		Items:    []CartItem{},
		Subtotal: decimal.Zero,
		Discount: decimal.Zero,
		Shipping: decimal.Zero,
		Total:    decimal.Zero,
	}
}

// IsEmpty сообщает, что в корзине нет позиций.
func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// ItemCount возвращает суммарное количество единиц товара.
func (c Cart) ItemCount() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

// FindItem ищет позицию по идентификатору.
func (c Cart) FindItem(itemID string) (CartItem, bool) {
	for _, item := range c.Items {
		if item.ID == itemID {
			return item, true
		}
	}
	return CartItem{}, false
}

// Clone возвращает глубокую копию корзины.
func (c Cart) Clone() Cart {
	dst := c
	dst.Items = make([]CartItem, len(c.Items))
	for i, item := range c.Items {
		dst.Items[i] = item
		dst.Items[i].Product.Media = append([]ProductMedia(nil), item.Product.Media...)
	}
	if c.AppliedVoucherCode != nil {
		code := *c.AppliedVoucherCode
		dst.AppliedVoucherCode = &code
	}
	return dst
}

// ValidateQuantity проверяет, что количество — положительное целое.
func ValidateQuantity(quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	return nil
}
