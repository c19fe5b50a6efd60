package domain

import (
	"context"
	"time"
)

// TokenSource отдаёт bearer-токен текущей сессии.
type TokenSource interface {
	// Token возвращает токен или ErrAuthTokenMissing, если пользователь не вошёл.
	Token(ctx context.Context) (string, error)
}

// CatalogAPI — публичный каталог, токен не нужен.
type CatalogAPI interface {
	ListCategories(ctx context.Context) ([]Category, error)
	ListProducts(ctx context.Context, query ProductQuery) ([]Product, error)
	GetProduct(ctx context.Context, productID string) (Product, error)
}

// CartAPI — операции с корзиной на стороне backend.
type CartAPI interface {
	// GetCart возвращает корзину или ErrCartNotFound, если её ещё нет.
	GetCart(ctx context.Context) (Cart, error)
	AddCartItem(ctx context.Context, productID string, quantity int) error
	UpdateCartItem(ctx context.Context, itemID string, quantity int) error
	RemoveCartItem(ctx context.Context, itemID string) error
}

// OrderAPI — операции с заказами на стороне backend.
type OrderAPI interface {
	CreateOrder(ctx context.Context, req OrderRequest) (Order, error)
	ListOrders(ctx context.Context) ([]Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	// RetryPayment запрашивает новую ссылку на оплату для неоплаченного заказа.
	RetryPayment(ctx context.Context, orderID string) (RetryPayment, error)
	// VerifyPayment подтверждает оплату по идентификатору hosted-сессии.
	VerifyPayment(ctx context.Context, sessionID string) (Order, error)
}

// AddressAPI — адресная книга пользователя.
type AddressAPI interface {
	ListAddresses(ctx context.Context) ([]Address, error)
	GetAddress(ctx context.Context, addressID string) (Address, error)
	CreateAddress(ctx context.Context, input AddressInput) (Address, error)
	UpdateAddress(ctx context.Context, addressID string, input AddressInput) (Address, error)
	DeleteAddress(ctx context.Context, addressID string) error
	SetPrimaryAddress(ctx context.Context, addressID string) (Address, error)
}

// UserAPI — вход, профиль и ваучеры пользователя.
type UserAPI interface {
	// Login обменивает email и пароль на bearer-токен.
	Login(ctx context.Context, email, password string) (string, error)
	// Me загружает профиль. Токен передаётся явно: при входе он ещё не сохранён в сессии.
	Me(ctx context.Context, token string) (User, error)
	UpdateProfile(ctx context.Context, update ProfileUpdate) (User, error)
	ListVouchers(ctx context.Context) ([]Voucher, error)
}

// PaymentSessionClient запрашивает hosted-сессию оплаты у прокси.
type PaymentSessionClient interface {
	CreateCheckoutSession(ctx context.Context, items []CartItem, orderID string) (string, error)
}

// Navigator уводит пользователя на другую страницу.
type Navigator interface {
	// RedirectToCheckout отправляет пользователя на страницу провайдера по идентификатору сессии.
	RedirectToCheckout(ctx context.Context, sessionID string) error
	// Navigate переходит на внутреннюю страницу витрины (путь с query).
	Navigate(ctx context.Context, path string) error
}

// SnapshotStore хранит снимки клиентского состояния (токен, профиль, корзина) между запусками.
type SnapshotStore interface {
	// Load возвращает снимок или ErrSnapshotNotFound.
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Ключи снимков.
const (
	SnapshotKeyToken = "token"
	SnapshotKeyAuth  = "auth-storage"
	SnapshotKeyCart  = "cart-storage"
)

// OutboxPublisher публикует события из outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// IdempotencyRepository хранит состояние отправок формы оформления по ключу.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, result []byte, statusCode int) error
	MarkFailed(key string, result []byte, statusCode int) error
	DeleteExpired(before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
