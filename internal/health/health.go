package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/newmedica/storefront/internal/domain"
)

const defaultCheckTimeout = 2 * time.Second

// Status — состояние компонента или сервиса целиком.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// severity упорядочивает статусы: общий статус равен худшему из компонентов.
func (s Status) severity() int {
	switch s {
	case StatusUnhealthy:
		return 2
	case StatusDegraded:
		return 1
	}
	return 0
}

// Check — результат проверки одного компонента.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Report — тело /healthz.
type Report struct {
	Status        Status    `json:"status"`
	Version       string    `json:"version,omitempty"`
	CheckedAt     time.Time `json:"checked_at"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	Components    []Check   `json:"components,omitempty"`
}

// Component ищет проверку по имени.
func (r Report) Component(name string) (Check, bool) {
	for _, check := range r.Components {
		if check.Name == name {
			return check, true
		}
	}
	return Check{}, false
}

// Checker проверяет один компонент в пределах ctx.
type Checker interface {
	Check(ctx context.Context) Check
}

// Handler собирает проверки хранилища, брокера и outbox и отдаёт их по HTTP.
type Handler struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	version  string
	started  time.Time
	timeout  time.Duration
}

// NewHandler создаёт handler без проверок: пустой набор считается healthy.
func NewHandler(version string) *Handler {
	return &Handler{
		checkers: map[string]Checker{},
		version:  version,
		started:  time.Now(),
		timeout:  defaultCheckTimeout,
	}
}

// RegisterChecker добавляет или заменяет проверку name.
func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.mu.Lock()
	h.checkers[name] = checker
	h.mu.Unlock()
}

// Evaluate запускает проверки параллельно с общим таймаутом.
func (h *Handler) Evaluate(ctx context.Context) Report {
	h.mu.RLock()
	checkers := make([]Checker, 0, len(h.checkers))
	names := make([]string, 0, len(h.checkers))
	for name, checker := range h.checkers {
		names = append(names, name)
		checkers = append(checkers, checker)
	}
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	results := make([]Check, len(checkers))
	var wg sync.WaitGroup
	for i, checker := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = checker.Check(ctx)
			if results[i].Name == "" {
				results[i].Name = names[i]
			}
		}()
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	report := Report{
		Status:        StatusHealthy,
		Version:       h.version,
		CheckedAt:     time.Now().UTC(),
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Components:    results,
	}
	for _, check := range results {
		if check.Status.severity() > report.Status.severity() {
			report.Status = check.Status
		}
	}
	return report
}

// ServeHTTP отдаёт отчёт в JSON; unhealthy -> 503.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report := h.Evaluate(r.Context())

	code := http.StatusOK
	if report.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report)
}

// LivenessHandler отвечает 200, пока процесс жив.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ReadinessHandler отвечает 503, пока хотя бы одна проверка unhealthy; degraded остаётся ready.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if h.Evaluate(r.Context()).Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// PingChecker проверяет зависимость через ping-функцию.
// Некритичная зависимость при ошибке даёт degraded, а не unhealthy.
type PingChecker struct {
	name     string
	ping     func(ctx context.Context) error
	critical bool
}

// NewPingChecker создаёт критичную проверку.
func NewPingChecker(name string, ping func(ctx context.Context) error) *PingChecker {
	return &PingChecker{name: name, ping: ping, critical: true}
}

// NewOptionalChecker создаёт некритичную проверку.
func NewOptionalChecker(name string, ping func(ctx context.Context) error) *PingChecker {
	return &PingChecker{name: name, ping: ping}
}

// Check выполняет ping.
func (c *PingChecker) Check(ctx context.Context) Check {
	start := time.Now()
	err := c.ping(ctx)
	check := Check{Name: c.name, Status: StatusHealthy, DurationMs: time.Since(start).Milliseconds()}
	if err != nil {
		check.Status = StatusDegraded
		if c.critical {
			check.Status = StatusUnhealthy
		}
		check.Message = err.Error()
	}
	return check
}

// OutboxBacklogChecker помечает сервис degraded, когда старейшее
// неопубликованное событие ждёт дольше maxAge.
type OutboxBacklogChecker struct {
	repo   domain.OutboxRepository
	maxAge time.Duration
	now    func() time.Time
}

// NewOutboxBacklogChecker создаёт проверку backlog outbox.
func NewOutboxBacklogChecker(repo domain.OutboxRepository, maxAge time.Duration) *OutboxBacklogChecker {
	return &OutboxBacklogChecker{repo: repo, maxAge: maxAge, now: time.Now}
}

// Check читает статистику outbox.
func (c *OutboxBacklogChecker) Check(_ context.Context) Check {
	start := time.Now()
	check := Check{Name: "outbox", Status: StatusHealthy}

	stats, err := c.repo.Stats()
	check.DurationMs = time.Since(start).Milliseconds()
	switch {
	case err != nil:
		check.Status = StatusUnhealthy
		check.Message = err.Error()
	case stats.PendingCount > 0 && c.maxAge > 0 && c.now().Sub(stats.OldestPendingAt) > c.maxAge:
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("%d pending events, oldest since %s", stats.PendingCount, stats.OldestPendingAt.Format(time.RFC3339))
	}
	return check
}
