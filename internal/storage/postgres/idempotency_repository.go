package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/newmedica/storefront/internal/domain"
)

const defaultSubmissionTTL = 24 * time.Hour

type idempotencyRepository struct {
	store *Store
}

// NewIdempotencyRepository создаёт PostgreSQL-реализацию IdempotencyRepository
// для ключей отправки формы оформления.
func NewIdempotencyRepository(store *Store) domain.IdempotencyRepository {
	return &idempotencyRepository{store: store}
}

// CreateProcessing занимает ключ одним upsert: живой ключ не трогается,
// просроченный перезаписывается новой отправкой.
func (r *idempotencyRepository) CreateProcessing(key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	key, requestHash = strings.TrimSpace(key), strings.TrimSpace(requestHash)
	switch {
	case key == "":
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	case requestHash == "":
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	now := r.store.clock()
	if ttlAt.IsZero() {
		ttlAt = now.Add(defaultSubmissionTTL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var claimed string
	err := r.store.DB().QueryRowContext(ctx, `
		INSERT INTO idempotency_keys AS k (key, request_hash, status, ttl_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (key) DO UPDATE
		SET request_hash = EXCLUDED.request_hash,
		    result = NULL,
		    status_code = NULL,
		    status = EXCLUDED.status,
		    ttl_at = EXCLUDED.ttl_at,
		    created_at = EXCLUDED.created_at,
		    updated_at = EXCLUDED.updated_at
		WHERE k.ttl_at <= EXCLUDED.created_at
		RETURNING key
	`, key, requestHash, string(domain.IdempotencyStatusProcessing), ttlAt, now).Scan(&claimed)
	switch {
	case err == nil:
		return domain.IdempotencyRecord{
			Key:         key,
			RequestHash: requestHash,
			Status:      domain.IdempotencyStatusProcessing,
			TTLAt:       ttlAt,
			CreatedAt:   now,
			UpdatedAt:   now,
		}, nil
	case !errors.Is(err, sql.ErrNoRows):
		return domain.IdempotencyRecord{}, fmt.Errorf("claim submission key: %w", err)
	}

	// Ключ занят живой отправкой.
	existing, err := r.Get(key)
	if err != nil {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyAlreadyExists
	}
	if existing.RequestHash != requestHash {
		return existing, domain.ErrIdempotencyHashMismatch
	}
	return existing, domain.ErrIdempotencyKeyAlreadyExists
}

func (r *idempotencyRepository) Get(key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := r.store.DB().QueryRowContext(ctx, `
		SELECT key, request_hash, result, status_code, status, ttl_at, created_at, updated_at
		FROM idempotency_keys
		WHERE key = $1
	`, key)
	record, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("get submission key %s: %w", key, err)
	}
	return record, nil
}

func scanSubmission(row *sql.Row) (domain.IdempotencyRecord, error) {
	var (
		record     domain.IdempotencyRecord
		status     string
		statusCode sql.NullInt64
	)
	if err := row.Scan(&record.Key, &record.RequestHash, &record.Result, &statusCode, &status,
		&record.TTLAt, &record.CreatedAt, &record.UpdatedAt); err != nil {
		return domain.IdempotencyRecord{}, err
	}

	record.Status = domain.IdempotencyStatus(status)
	if !record.Status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("unknown submission status %q", status)
	}
	record.StatusCode = int(statusCode.Int64)
	return record, nil
}

func (r *idempotencyRepository) MarkDone(key string, result []byte, statusCode int) error {
	return r.finish(key, domain.IdempotencyStatusDone, result, statusCode)
}

func (r *idempotencyRepository) MarkFailed(key string, result []byte, statusCode int) error {
	return r.finish(key, domain.IdempotencyStatusFailed, result, statusCode)
}

func (r *idempotencyRepository) DeleteExpired(before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = r.store.clock()
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		res sql.Result
		err error
	)
	if limit > 0 {
		res, err = r.store.DB().ExecContext(ctx, `
			DELETE FROM idempotency_keys
			WHERE key IN (
				SELECT key
				FROM idempotency_keys
				WHERE ttl_at <= $1
				ORDER BY ttl_at
				LIMIT $2
			)
		`, before, limit)
	} else {
		res, err = r.store.DB().ExecContext(ctx, `DELETE FROM idempotency_keys WHERE ttl_at <= $1`, before)
	}
	if err != nil {
		return 0, fmt.Errorf("delete expired submission keys: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("submission keys rows affected: %w", err)
	}
	return int(affected), nil
}

// finish фиксирует итог отправки; повторная отправка с тем же ключом получит его без запроса к backend.
func (r *idempotencyRepository) finish(key string, status domain.IdempotencyStatus, result []byte, statusCode int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.store.DB().ExecContext(ctx, `
		UPDATE idempotency_keys
		SET result = $1,
		    status_code = $2,
		    status = $3,
		    updated_at = $4
		WHERE key = $5
	`, result, statusCode, string(status), r.store.clock(), key)
	if err != nil {
		return fmt.Errorf("mark submission key %s: %w", status, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("submission keys rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}

var _ domain.IdempotencyRepository = (*idempotencyRepository)(nil)
