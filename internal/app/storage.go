package app

import (
	"context"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"

	"github.com/newmedica/storefront/internal/domain"
	"github.com/newmedica/storefront/internal/health"
	"github.com/newmedica/storefront/internal/storage/memory"
	"github.com/newmedica/storefront/internal/storage/postgres"
	"github.com/newmedica/storefront/internal/storage/redisstore"
)

// Storage — выбранные по конфигурации хранилища.
type Storage struct {
	Snapshots   domain.SnapshotStore
	Outbox      domain.OutboxRepository
	Idempotency domain.IdempotencyRepository

	checkers map[string]health.Checker
	closers  []io.Closer
}

// openStoragePostgres и openStorageRedis подменяются в тестах.
var (
	openStoragePostgres = func(ctx context.Context, dsn string) (*postgres.Store, error) {
		return postgres.Open(ctx, dsn)
	}
	openStorageRedis = func(ctx context.Context, cfg redisstore.Config) (*redisstore.SnapshotStore, error) {
		return redisstore.Open(ctx, cfg)
	}
)

// OpenStorage открывает хранилища для cfg.StorageDriver.
// Для redis снимки живут в Redis, а outbox и ключи идемпотентности остаются в памяти процесса.
func OpenStorage(ctx context.Context, cfg Config, logger *log.Entry) (*Storage, error) {
	if logger == nil {
		logger = log.WithField("component", "storage")
	}

	s := &Storage{checkers: make(map[string]health.Checker)}

	switch cfg.StorageDriver {
	case "", StorageDriverMemory:
		s.Snapshots = memory.NewSnapshotStore()
		s.Outbox = memory.NewOutboxRepository()
		s.Idempotency = memory.NewIdempotencyRepository()
	case StorageDriverPostgres:
		store, err := openStoragePostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("migrate postgres: %w", err)
			}
			logger.Info("postgres schema is up to date")
		}
		s.Snapshots = postgres.NewSnapshotStore(store)
		s.Outbox = postgres.NewOutboxRepository(store)
		s.Idempotency = postgres.NewIdempotencyRepository(store)
		s.checkers["postgres"] = health.NewPingChecker("postgres", store.Ping)
		s.closers = append(s.closers, store)
	case StorageDriverRedis:
		snapshots, err := openStorageRedis(ctx, redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.SnapshotTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("open redis: %w", err)
		}
		s.Snapshots = snapshots
		s.Outbox = memory.NewOutboxRepository()
		s.Idempotency = memory.NewIdempotencyRepository()
		s.checkers["redis"] = health.NewOptionalChecker("redis", snapshots.Ping)
		s.closers = append(s.closers, snapshots)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}

	s.checkers["outbox"] = health.NewOutboxBacklogChecker(s.Outbox, cfg.OutboxMaxPending)

	logger.WithField("driver", cfg.StorageDriver).Info("storage initialized")
	return s, nil
}

// RegisterHealth добавляет проверки хранилищ в handler.
func (s *Storage) RegisterHealth(h *health.Handler) {
	for name, checker := range s.checkers {
		h.RegisterChecker(name, checker)
	}
}

// Close закрывает соединения в обратном порядке.
func (s *Storage) Close() error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}
