package domain

import "time"

// IdempotencyStatus описывает жизненный цикл ключа оформления заказа.
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing — оформление по ключу начато и ещё не завершено.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone — заказ создан, результат сохранён.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// IdempotencyStatusFailed — оформление завершилось ошибкой, ошибка сохранена.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// IdempotencyRecord хранит состояние одной отправки формы оформления.
// Result — JSON результата (или описания ошибки), StatusCode — HTTP-код ответа backend.
type IdempotencyRecord struct {
	Key         string
	RequestHash string
	Result      []byte
	StatusCode  int
	Status      IdempotencyStatus
	TTLAt       time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}

// Expired сообщает, что запись пора удалить.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.TTLAt.After(now)
}
