package memory_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/newmedica/storefront/internal/domain"
	"github.com/newmedica/storefront/internal/storage/memory"
)

func TestSubmissionKeys_CreateValidation(t *testing.T) {
	repo := memory.NewIdempotencyRepository()

	_, err := repo.CreateProcessing("  ", "hash", time.Time{})
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyRequired)
	_, err = repo.CreateProcessing("checkout-1", " ", time.Time{})
	require.ErrorIs(t, err, domain.ErrIdempotencyRequestHashRequired)

	record, err := repo.CreateProcessing(" checkout-1 ", "hash", time.Time{})
	require.NoError(t, err)
	require.Equal(t, "checkout-1", record.Key)
	require.Equal(t, domain.IdempotencyStatusProcessing, record.Status)
	require.WithinDuration(t, time.Now().Add(24*time.Hour), record.TTLAt, time.Minute)
}

func TestSubmissionKeys_SecondSubmission(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	repo := memory.NewIdempotencyRepositoryWithClock(func() time.Time { return now })

	_, err := repo.CreateProcessing("checkout-2", "hash-a", now.Add(time.Minute))
	require.NoError(t, err)

	_, err = repo.CreateProcessing("checkout-2", "hash-a", now.Add(time.Minute))
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyAlreadyExists)
	_, err = repo.CreateProcessing("checkout-2", "hash-b", now.Add(time.Minute))
	require.ErrorIs(t, err, domain.ErrIdempotencyHashMismatch)

	now = now.Add(2 * time.Minute)
	record, err := repo.CreateProcessing("checkout-2", "hash-b", now.Add(time.Minute))
	require.NoError(t, err, "expired key must be reusable")
	require.Equal(t, "hash-b", record.RequestHash)
}

func TestSubmissionKeys_MarkDoneStoresOrder(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	_, err := repo.CreateProcessing("checkout-3", "hash", time.Now().Add(time.Hour))
	require.NoError(t, err)

	payload := []byte(`{"id":"order-1"}`)
	require.NoError(t, repo.MarkDone("checkout-3", payload, 201))
	payload[2] = 'X'

	record, err := repo.Get("checkout-3")
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusDone, record.Status)
	require.Equal(t, 201, record.StatusCode)
	require.JSONEq(t, `{"id":"order-1"}`, string(record.Result))

	require.ErrorIs(t, repo.MarkFailed("missing", nil, 500), domain.ErrIdempotencyKeyNotFound)
}

func TestSubmissionKeys_DeleteExpiredOldestFirst(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	repo := memory.NewIdempotencyRepositoryWithClock(func() time.Time { return now })

	for key, ttl := range map[string]time.Duration{
		"oldest": -3 * time.Hour,
		"older":  -2 * time.Hour,
		"old":    -time.Hour,
		"live":   time.Hour,
	} {
		_, err := repo.CreateProcessing(key, "hash-"+key, now.Add(ttl))
		require.NoError(t, err)
	}

	removed, err := repo.DeleteExpired(now, 2)
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	_, err = repo.Get("oldest")
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)
	_, err = repo.Get("older")
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)
	_, err = repo.Get("old")
	require.NoError(t, err)

	removed, err = repo.DeleteExpired(time.Time{}, 10)
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	_, err = repo.Get("live")
	require.NoError(t, err)
}
