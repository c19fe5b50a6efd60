package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/newmedica/storefront/internal/domain"
)

type snapshotStore struct {
	store *Store
}

// NewSnapshotStore создаёт PostgreSQL-реализацию SnapshotStore (таблица client_snapshots).
func NewSnapshotStore(store *Store) domain.SnapshotStore {
	return &snapshotStore{store: store}
}

func (s *snapshotStore) Load(ctx context.Context, key string) ([]byte, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, domain.ErrSnapshotKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var value []byte
	err := s.store.DB().QueryRowContext(ctx, `
		SELECT value
		FROM client_snapshots
		WHERE key = $1
	`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("load snapshot %s: %w", key, err)
	}
	return value, nil
}

func (s *snapshotStore) Save(ctx context.Context, key string, value []byte) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrSnapshotKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := s.store.DB().ExecContext(ctx, `
		INSERT INTO client_snapshots (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value,
		    updated_at = EXCLUDED.updated_at
	`, key, value, s.store.clock()); err != nil {
		return fmt.Errorf("save snapshot %s: %w", key, err)
	}
	return nil
}

func (s *snapshotStore) Delete(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrSnapshotKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := s.store.DB().ExecContext(ctx, `DELETE FROM client_snapshots WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", key, err)
	}
	return nil
}

var _ domain.SnapshotStore = (*snapshotStore)(nil)
