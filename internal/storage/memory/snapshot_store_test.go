package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/newmedica/storefront/internal/domain"
	"github.com/newmedica/storefront/internal/storage/memory"
)

func TestSnapshotStore_SaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSnapshotStore()

	if _, err := store.Load(ctx, domain.SnapshotKeyCart); !errors.Is(err, domain.ErrSnapshotNotFound) {
		t.Fatalf("expected ErrSnapshotNotFound, got %v", err)
	}

	value := []byte(`{"items":[]}`)
	if err := store.Save(ctx, domain.SnapshotKeyCart, value); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	value[0] = 'X'

	got, err := store.Load(ctx, domain.SnapshotKeyCart)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(got) != `{"items":[]}` {
		t.Fatalf("stored value must not alias caller buffer, got %s", got)
	}

	if err := store.Delete(ctx, domain.SnapshotKeyCart); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete(ctx, domain.SnapshotKeyCart); err != nil {
		t.Fatalf("second Delete must be a no-op, got %v", err)
	}
	if _, err := store.Load(ctx, domain.SnapshotKeyCart); !errors.Is(err, domain.ErrSnapshotNotFound) {
		t.Fatalf("expected ErrSnapshotNotFound after delete, got %v", err)
	}
}

func TestSnapshotStore_RequiresKey(t *testing.T) {
	store := memory.NewSnapshotStore()

	if err := store.Save(context.Background(), "  ", nil); !errors.Is(err, domain.ErrSnapshotKeyRequired) {
		t.Fatalf("expected ErrSnapshotKeyRequired, got %v", err)
	}
}
