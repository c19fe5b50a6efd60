package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/newmedica/storefront/internal/domain"
)

// Срок жизни ключа, если вызывающий его не задал.
const defaultKeyTTL = 24 * time.Hour

// SubmissionKeys — ключи отправок формы оформления в памяти процесса.
type SubmissionKeys struct {
	mu      sync.Mutex
	records map[string]domain.IdempotencyRecord
	now     func() time.Time
}

// NewIdempotencyRepository создаёт in-memory IdempotencyRepository.
func NewIdempotencyRepository() domain.IdempotencyRepository {
	return NewIdempotencyRepositoryWithClock(nil)
}

// NewIdempotencyRepositoryWithClock — то же с подменяемыми часами.
func NewIdempotencyRepositoryWithClock(now func() time.Time) domain.IdempotencyRepository {
	if now == nil {
		now = time.Now
	}
	return &SubmissionKeys{records: map[string]domain.IdempotencyRecord{}, now: now}
}

func (s *SubmissionKeys) CreateProcessing(key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	key, requestHash = strings.TrimSpace(key), strings.TrimSpace(requestHash)
	switch {
	case key == "":
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	case requestHash == "":
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	now := s.now().UTC()
	if ttlAt.IsZero() {
		ttlAt = now.Add(defaultKeyTTL)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[key]; ok && !existing.Expired(now) {
		if existing.RequestHash != requestHash {
			return copyRecord(existing), domain.ErrIdempotencyHashMismatch
		}
		return copyRecord(existing), domain.ErrIdempotencyKeyAlreadyExists
	}

	// Просроченный ключ перезаписывается сразу, без ожидания очистки.
	record := domain.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      domain.IdempotencyStatusProcessing,
		TTLAt:       ttlAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.records[key] = record
	return copyRecord(record), nil
}

func (s *SubmissionKeys) Get(key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[key]
	if !ok {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	return copyRecord(record), nil
}

// MarkDone сохраняет созданный заказ для повторного ответа.
func (s *SubmissionKeys) MarkDone(key string, result []byte, statusCode int) error {
	return s.finish(key, domain.IdempotencyStatusDone, result, statusCode)
}

// MarkFailed фиксирует неуспешную отправку.
func (s *SubmissionKeys) MarkFailed(key string, result []byte, statusCode int) error {
	return s.finish(key, domain.IdempotencyStatusFailed, result, statusCode)
}

// DeleteExpired удаляет не больше limit ключей с TTL <= before, начиная с самых старых.
func (s *SubmissionKeys) DeleteExpired(before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	expired := make([]domain.IdempotencyRecord, 0)
	for _, record := range s.records {
		if !record.TTLAt.After(before) {
			expired = append(expired, record)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].TTLAt.Before(expired[j].TTLAt) })
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	for _, record := range expired {
		delete(s.records, record.Key)
	}
	return len(expired), nil
}

func (s *SubmissionKeys) finish(key string, status domain.IdempotencyStatus, result []byte, statusCode int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[key]
	if !ok {
		return domain.ErrIdempotencyKeyNotFound
	}
	record.Status = status
	record.Result = append([]byte(nil), result...)
	record.StatusCode = statusCode
	record.UpdatedAt = s.now().UTC()
	s.records[key] = record
	return nil
}

func copyRecord(record domain.IdempotencyRecord) domain.IdempotencyRecord {
	record.Result = append([]byte(nil), record.Result...)
	return record
}

var _ domain.IdempotencyRepository = (*SubmissionKeys)(nil)
