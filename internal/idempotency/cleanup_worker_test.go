package idempotency

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/newmedica/storefront/internal/domain"
	"github.com/newmedica/storefront/internal/storage/memory"
)

// batchRepo отдаёт заранее заданные размеры порций; остальные методы не нужны.
type batchRepo struct {
	domain.IdempotencyRepository

	batches []int
	err     error
	calls   atomic.Int32
}

func (r *batchRepo) DeleteExpired(time.Time, int) (int, error) {
	i := int(r.calls.Add(1)) - 1
	if r.err != nil {
		return 0, r.err
	}
	if i >= len(r.batches) {
		return 0, nil
	}
	return r.batches[i], nil
}

func TestSweep_StopsOnShortBatch(t *testing.T) {
	repo := &batchRepo{batches: []int{3, 3, 1}}
	worker := NewCleanupWorker(repo, WithBatchSize(3))

	report, err := worker.Sweep(context.Background(), time.Now())
	require.NoError(t, err)
	require.Equal(t, SweepReport{Deleted: 7, Batches: 3}, report)
}

func TestSweep_RepositoryError(t *testing.T) {
	worker := NewCleanupWorker(&batchRepo{err: errors.New("deadlock detected")})

	report, err := worker.Sweep(context.Background(), time.Now())
	require.EqualError(t, err, "deadlock detected")
	require.Zero(t, report.Deleted)
}

func TestSweep_CancelledContext(t *testing.T) {
	repo := &batchRepo{batches: []int{5}}
	worker := NewCleanupWorker(repo)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := worker.Sweep(ctx, time.Now())
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, repo.calls.Load())
}

func TestRunOnce_RemovesOnlyExpiredSubmissionKeys(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	repo := memory.NewIdempotencyRepositoryWithClock(clock)

	_, err := repo.CreateProcessing("checkout-stale", "h1", now.Add(-time.Second))
	require.NoError(t, err)
	_, err = repo.CreateProcessing("checkout-fresh", "h2", now.Add(time.Hour))
	require.NoError(t, err)

	report := NewCleanupWorker(repo, WithClock(clock)).RunOnce(context.Background())
	require.Equal(t, 1, report.Deleted)

	_, err = repo.Get("checkout-stale")
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)
	_, err = repo.Get("checkout-fresh")
	require.NoError(t, err)
}

func TestRun_ReturnsOnCancel(t *testing.T) {
	repo := &batchRepo{}
	worker := NewCleanupWorker(repo, WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return repo.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestRun_NilRepository(t *testing.T) {
	NewCleanupWorker(nil).Run(context.Background())
}
