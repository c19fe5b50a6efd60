package domain

import "errors"

var (
	// ErrAuthTokenMissing — в сессии нет bearer-токена, запрос к backend не выполняется.
	ErrAuthTokenMissing = errors.New("authentication token not found")
	// ErrUnauthorized — backend отклонил токен (401/403).
	ErrUnauthorized = errors.New("unauthorized")
	// ErrCartNotFound — у пользователя ещё нет корзины (404 от backend).
	ErrCartNotFound = errors.New("cart not found")
	// Ошибка при некорректном количестве товара (< 1).
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
	// Ошибка отсутствующего идентификатора товара.
	ErrProductIDRequired = errors.New("product_id is required")
	// Ошибка отсутствующего идентификатора позиции корзины.
	ErrCartItemIDRequired = errors.New("cart item id is required")
	// Ошибка отсутствующего идентификатора заказа.
	ErrOrderIDRequired = errors.New("order_id is required")
	// ErrOrderNotFound возвращается, если backend не нашёл заказ.
	ErrOrderNotFound = errors.New("order not found")
	// ErrAddressNotFound возвращается, если адрес не найден или у пользователя нет основного адреса.
	ErrAddressNotFound = errors.New("address not found")
	// ErrUnsupportedPaymentMethod — способ оплаты вне закрытого перечня.
	ErrUnsupportedPaymentMethod = errors.New("unsupported payment method")
	// ErrOrderCreateFailed — backend не создал заказ (ответ не 2xx).
	ErrOrderCreateFailed = errors.New("order creation failed")
	// ErrPaymentSessionFailed — прокси не вернул идентификатор платёжной сессии.
	ErrPaymentSessionFailed = errors.New("payment session creation failed")
	// ErrPaymentVerifyFailed — backend не подтвердил оплату по сессии.
	ErrPaymentVerifyFailed = errors.New("payment verification failed")
	// ErrEmptyCheckoutItems — в запросе платёжной сессии нет позиций.
	ErrEmptyCheckoutItems = errors.New("no items in cart")
	// ErrSubmissionInProgress — оформление заказа уже выполняется.
	ErrSubmissionInProgress = errors.New("checkout submission already in progress")
	// ErrInvalidCredentials — логин или пароль не приняты backend.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSnapshotNotFound — в хранилище нет снимка по ключу.
	ErrSnapshotNotFound = errors.New("snapshot not found")
	// ErrSnapshotKeyRequired — пустой ключ снимка.
	ErrSnapshotKeyRequired = errors.New("snapshot key is required")
	// ErrIdempotencyKeyRequired — пустой ключ идемпотентности.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — пустой hash запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists — ключ уже зарегистрирован с тем же запросом.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — ключ переиспользован для другого запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
	// ErrIdempotencyKeyNotFound — ключ отсутствует в хранилище.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsIdempotencyConflict проверяет, что ключ уже занят (тем же или другим запросом).
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}

// IsAuthError проверяет, что ошибка связана с отсутствием или отказом авторизации.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthTokenMissing) || errors.Is(err, ErrUnauthorized)
}
