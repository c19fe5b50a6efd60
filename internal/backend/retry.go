package backend

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/newmedica/storefront/internal/domain"
)

// RetryConfig — повторы безопасных чтений (GET без побочных эффектов).
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 2.0,
	}
}

// NoRetry отключает повторы.
func NoRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 1}
}

func (c RetryConfig) normalized() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay < 0 {
		c.InitialDelay = 0
	}
	if c.MaxDelay < c.InitialDelay {
		c.MaxDelay = c.InitialDelay
	}
	if c.BackoffFactor < 1 {
		c.BackoffFactor = 1
	}
	return c
}

// next возвращает задержку после текущей с экспоненциальным ростом и ограничением.
func (c RetryConfig) next(delay time.Duration) time.Duration {
	delay = time.Duration(float64(delay) * c.BackoffFactor)
	if delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	return delay
}

// shouldRetry: повторяем сетевые сбои и 5xx/429; бизнес-ответы и отсутствие токена не повторяем.
func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, domain.ErrAuthTokenMissing) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusInternalServerError || apiErr.StatusCode == http.StatusTooManyRequests
	}
	return true
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
