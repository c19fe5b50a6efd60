package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/newmedica/storefront/internal/domain"
)

// DefaultKeyPrefix — префикс ключей снимков.
const DefaultKeyPrefix = "storefront:snapshot:"

// Config — параметры подключения к Redis.
type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	// TTL снимка; 0 — хранить бессрочно.
	TTL time.Duration
}

// SnapshotStore хранит снимки клиентского состояния в Redis,
// чтобы несколько процессов витрины видели одну сессию.
type SnapshotStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// Open подключается к Redis и проверяет доступность.
func Open(ctx context.Context, cfg Config) (*SnapshotStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", cfg.Addr, err)
	}

	return NewSnapshotStore(client, cfg.KeyPrefix, cfg.TTL), nil
}

// NewSnapshotStore оборачивает готовый клиент.
func NewSnapshotStore(client *redis.Client, keyPrefix string, ttl time.Duration) *SnapshotStore {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	if ttl < 0 {
		ttl = 0
	}
	return &SnapshotStore{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

func (s *SnapshotStore) key(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", domain.ErrSnapshotKeyRequired
	}
	return s.keyPrefix + name, nil
}

// Load возвращает снимок или ErrSnapshotNotFound.
func (s *SnapshotStore) Load(ctx context.Context, name string) ([]byte, error) {
	key, err := s.key(name)
	if err != nil {
		return nil, err
	}

	value, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("load snapshot %s: %w", name, err)
	}
	return value, nil
}

// Save перезаписывает снимок.
func (s *SnapshotStore) Save(ctx context.Context, name string, value []byte) error {
	key, err := s.key(name)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, key, value, s.ttl).Err(); err != nil {
		return fmt.Errorf("save snapshot %s: %w", name, err)
	}
	return nil
}

// Delete удаляет снимок; отсутствие ключа не ошибка.
func (s *SnapshotStore) Delete(ctx context.Context, name string) error {
	key, err := s.key(name)
	if err != nil {
		return err
	}
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", name, err)
	}
	return nil
}

// Ping проверяет доступность Redis (используется health-проверкой).
func (s *SnapshotStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close закрывает клиент.
func (s *SnapshotStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

var _ domain.SnapshotStore = (*SnapshotStore)(nil)
