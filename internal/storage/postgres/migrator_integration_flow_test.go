package postgres

import (
	"context"
	"testing"
	"time"
)

func TestMigrator_UpDownRoundTrip(t *testing.T) {
	store := rawTestStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := store.MigrateDown(ctx, 100); err != nil {
		t.Fatalf("reset schema: %v", err)
	}

	steps := []struct {
		name string
		run  func() error
		want MigrationState
	}{
		{"empty", func() error { return nil }, MigrationState{Version: 0, Applied: 0, Pending: 2}},
		{"up all", func() error { return store.MigrateUp(ctx, 0) }, MigrationState{Version: 2, Applied: 2, Pending: 0}},
		{"up again", func() error { return store.MigrateUp(ctx, 0) }, MigrationState{Version: 2, Applied: 2, Pending: 0}},
		{"down one", func() error { return store.MigrateDown(ctx, 1) }, MigrationState{Version: 1, Applied: 1, Pending: 1}},
		{"down default", func() error { return store.MigrateDown(ctx, 0) }, MigrationState{Version: 0, Applied: 0, Pending: 2}},
		{"down on empty", func() error { return store.MigrateDown(ctx, 1) }, MigrationState{Version: 0, Applied: 0, Pending: 2}},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			t.Fatalf("%s: %v", step.name, err)
		}
		got, err := store.MigrationStatus(ctx)
		if err != nil {
			t.Fatalf("%s: status: %v", step.name, err)
		}
		if got != step.want {
			t.Fatalf("%s: status %+v, want %+v", step.name, got, step.want)
		}
	}
}

func TestMigrator_NilStoreAndBadDirection(t *testing.T) {
	var nilStore *Store
	ctx := context.Background()

	if nilStore.MigrateUp(ctx, 0) == nil || nilStore.MigrateDown(ctx, 1) == nil {
		t.Fatal("nil store must refuse to migrate")
	}
	if _, err := nilStore.MigrationStatus(ctx); err == nil {
		t.Fatal("nil store must refuse status")
	}

	store := rawTestStore(t)
	if err := store.migrate(ctx, migrationDirection("sideways"), 0); err == nil {
		t.Fatal("expected unsupported direction error")
	}
}
