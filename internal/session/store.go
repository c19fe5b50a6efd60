package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"

	"github.com/newmedica/storefront/internal/domain"
	"github.com/newmedica/storefront/internal/metrics"
)

// Hook вызывается после входа или выхода пользователя.
type Hook func(ctx context.Context)

// Options задаёт параметры Store.
type Options struct {
	Logger  *log.Entry
	Metrics *metrics.StorefrontMetrics
	Now     func() time.Time
}

// Option настраивает Store.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMetrics задаёт метрики операций со снимками.
func WithMetrics(m *metrics.StorefrontMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithClock подменяет источник времени (для проверки срока действия токена).
func WithClock(now func() time.Time) Option {
	return func(opts *Options) {
		if now != nil {
			opts.Now = now
		}
	}
}

// Store хранит текущего пользователя и bearer-токен.
// Состояние переживает перезапуск через domain.SnapshotStore.
type Store struct {
	api       domain.UserAPI
	snapshots domain.SnapshotStore
	logger    *log.Entry
	metrics   *metrics.StorefrontMetrics
	now       func() time.Time

	mu    sync.RWMutex
	user  *domain.User
	token string

	hooksMu  sync.Mutex
	onLogin  []Hook
	onLogout []Hook
}

// NewStore создаёт хранилище сессии. snapshots может быть nil: тогда сессия живёт только в памяти.
func NewStore(api domain.UserAPI, snapshots domain.SnapshotStore, options ...Option) *Store {
	opts := Options{Now: time.Now}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "session")
	}

	return &Store{
		api:       api,
		snapshots: snapshots,
		logger:    logger,
		metrics:   opts.Metrics,
		now:       opts.Now,
	}
}

// OnLogin регистрирует hook после успешного входа.
func (s *Store) OnLogin(hook Hook) {
	if hook == nil {
		return
	}
	s.hooksMu.Lock()
	s.onLogin = append(s.onLogin, hook)
	s.hooksMu.Unlock()
}

// OnLogout регистрирует hook после выхода.
func (s *Store) OnLogout(hook Hook) {
	if hook == nil {
		return
	}
	s.hooksMu.Lock()
	s.onLogout = append(s.onLogout, hook)
	s.hooksMu.Unlock()
}

// Token возвращает bearer-токен или domain.ErrAuthTokenMissing.
func (s *Store) Token(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.token == "" {
		return "", domain.ErrAuthTokenMissing
	}
	return s.token, nil
}

// User возвращает копию профиля текущего пользователя.
func (s *Store) User() (domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.user == nil {
		return domain.User{}, false
	}
	return *s.user, true
}

// IsAuthenticated сообщает, что есть и токен, и профиль.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != "" && s.user != nil
}

// Login выполняет вход, загружает профиль, сохраняет снимки и вызывает login hooks.
func (s *Store) Login(ctx context.Context, email, password string) (domain.User, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return domain.User{}, domain.ErrInvalidCredentials
	}

	token, err := s.api.Login(ctx, email, password)
	if err != nil {
		return domain.User{}, fmt.Errorf("login: %w", err)
	}

	user, err := s.api.Me(ctx, token)
	if err != nil {
		return domain.User{}, fmt.Errorf("load profile: %w", err)
	}

	s.set(token, &user)
	s.persist(ctx, token, &user)

	s.logger.WithField("user_id", user.ID).Info("user logged in")
	s.fire(ctx, s.loginHooks())
	return user, nil
}

// Restore поднимает сессию из снимков. Просроченный JWT удаляется без обращения к backend;
// если профиль загрузить не удалось, токен тоже удаляется.
func (s *Store) Restore(ctx context.Context) error {
	if s.snapshots == nil {
		return nil
	}

	raw, err := s.snapshots.Load(ctx, domain.SnapshotKeyToken)
	if errors.Is(err, domain.ErrSnapshotNotFound) {
		s.metrics.RecordSnapshotOperation("session.restore", metrics.ResultSkipped)
		return nil
	}
	if err != nil {
		s.metrics.RecordSnapshotOperation("session.restore", metrics.ResultError)
		return fmt.Errorf("load token snapshot: %w", err)
	}

	token := strings.TrimSpace(string(raw))
	if token == "" || Expired(token, s.now()) {
		s.logger.Info("stored token expired, dropping session")
		s.clear(ctx)
		s.metrics.RecordSnapshotOperation("session.restore", metrics.ResultSkipped)
		return nil
	}

	// Профиль из снимка показываем сразу, пока идёт запрос к backend.
	if cached, ok := s.loadUserSnapshot(ctx); ok {
		s.set(token, &cached)
	} else {
		s.set(token, nil)
	}

	user, err := s.api.Me(ctx, token)
	if err != nil {
		s.logger.WithError(err).Warn("profile refresh failed, dropping stored token")
		s.clear(ctx)
		s.metrics.RecordSnapshotOperation("session.restore", metrics.ResultError)
		return fmt.Errorf("restore session: %w", err)
	}

	s.set(token, &user)
	s.persist(ctx, token, &user)
	s.metrics.RecordSnapshotOperation("session.restore", metrics.ResultOK)
	s.fire(ctx, s.loginHooks())
	return nil
}

// RefreshProfile перечитывает профиль текущего пользователя.
func (s *Store) RefreshProfile(ctx context.Context) (domain.User, error) {
	token, err := s.Token(ctx)
	if err != nil {
		return domain.User{}, err
	}

	user, err := s.api.Me(ctx, token)
	if err != nil {
		return domain.User{}, err
	}

	s.SetUser(ctx, user)
	return user, nil
}

// SetUser заменяет профиль (например, после PATCH /users/me) и обновляет снимок.
func (s *Store) SetUser(ctx context.Context, user domain.User) {
	s.mu.Lock()
	if s.token == "" {
		s.mu.Unlock()
		return
	}
	s.user = &user
	token := s.token
	s.mu.Unlock()

	s.persist(ctx, token, &user)
}

// Logout очищает пользователя и токен (в памяти и в снимках) и вызывает logout hooks.
func (s *Store) Logout(ctx context.Context) {
	s.clear(ctx)
	s.logger.Info("user logged out")
	s.fire(ctx, s.logoutHooks())
}

// Expired сообщает, что у JWT истёк срок действия (claim exp).
// Подпись не проверяется: это делает backend. Непрозрачные токены считаются действительными.
func Expired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !now.Before(exp.Time)
}

func (s *Store) set(token string, user *domain.User) {
	s.mu.Lock()
	s.token = token
	s.user = user
	s.mu.Unlock()
}

func (s *Store) clear(ctx context.Context) {
	s.set("", nil)

	if s.snapshots == nil {
		return
	}
	for _, key := range []string{domain.SnapshotKeyToken, domain.SnapshotKeyAuth} {
		if err := s.snapshots.Delete(ctx, key); err != nil && !errors.Is(err, domain.ErrSnapshotNotFound) {
			s.logger.WithError(err).WithField("key", key).Warn("failed to delete session snapshot")
			s.metrics.RecordSnapshotOperation("session.delete", metrics.ResultError)
		}
	}
}

func (s *Store) persist(ctx context.Context, token string, user *domain.User) {
	if s.snapshots == nil {
		return
	}

	if err := s.snapshots.Save(ctx, domain.SnapshotKeyToken, []byte(token)); err != nil {
		s.logger.WithError(err).Warn("failed to persist token snapshot")
		s.metrics.RecordSnapshotOperation("session.save", metrics.ResultError)
		return
	}

	if user != nil {
		payload, err := json.Marshal(authSnapshot{User: user, IsAuthenticated: true})
		if err == nil {
			err = s.snapshots.Save(ctx, domain.SnapshotKeyAuth, payload)
		}
		if err != nil {
			s.logger.WithError(err).Warn("failed to persist auth snapshot")
			s.metrics.RecordSnapshotOperation("session.save", metrics.ResultError)
			return
		}
	}
	s.metrics.RecordSnapshotOperation("session.save", metrics.ResultOK)
}

// authSnapshot — формат снимка auth-storage.
type authSnapshot struct {
	User            *domain.User `json:"user"`
	IsAuthenticated bool         `json:"isAuthenticated"`
}

func (s *Store) loadUserSnapshot(ctx context.Context) (domain.User, bool) {
	raw, err := s.snapshots.Load(ctx, domain.SnapshotKeyAuth)
	if err != nil {
		return domain.User{}, false
	}

	var snap authSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil || snap.User == nil {
		return domain.User{}, false
	}
	return *snap.User, true
}

func (s *Store) loginHooks() []Hook {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	return append([]Hook(nil), s.onLogin...)
}

func (s *Store) logoutHooks() []Hook {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	return append([]Hook(nil), s.onLogout...)
}

func (s *Store) fire(ctx context.Context, hooks []Hook) {
	for _, hook := range hooks {
		hook(ctx)
	}
}

var _ domain.TokenSource = (*Store)(nil)
