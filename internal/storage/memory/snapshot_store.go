package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/newmedica/storefront/internal/domain"
)

// snapshotStoreInMemory хранит снимки клиентского состояния в памяти процесса.
type snapshotStoreInMemory struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewSnapshotStore создаёт in-memory реализацию SnapshotStore.
func NewSnapshotStore() domain.SnapshotStore {
	return &snapshotStoreInMemory{items: make(map[string][]byte)}
}

func (s *snapshotStoreInMemory) Load(_ context.Context, key string) ([]byte, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, domain.ErrSnapshotKeyRequired
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.items[key]
	if !ok {
		return nil, domain.ErrSnapshotNotFound
	}
	return append([]byte(nil), value...), nil
}

func (s *snapshotStoreInMemory) Save(_ context.Context, key string, value []byte) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrSnapshotKeyRequired
	}

	s.mu.Lock()
	s.items[key] = append([]byte(nil), value...)
	s.mu.Unlock()
	return nil
}

// Delete удаляет снимок; отсутствие ключа не считается ошибкой.
func (s *snapshotStoreInMemory) Delete(_ context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrSnapshotKeyRequired
	}

	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}

var _ domain.SnapshotStore = (*snapshotStoreInMemory)(nil)
