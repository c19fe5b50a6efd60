package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"testing"

	"github.com/newmedica/storefront/internal/storage/postgres"
)

type fakeMigrator struct {
	calls  []string
	steps  int
	state  postgres.MigrationState
	err    error
	closed bool
}

func (f *fakeMigrator) MigrateUp(_ context.Context, steps int) error {
	f.calls = append(f.calls, "up")
	f.steps = steps
	return f.err
}

func (f *fakeMigrator) MigrateDown(_ context.Context, steps int) error {
	f.calls = append(f.calls, "down")
	f.steps = steps
	return f.err
}

func (f *fakeMigrator) MigrationStatus(context.Context) (postgres.MigrationState, error) {
	f.calls = append(f.calls, "status")
	return f.state, nil
}

func (f *fakeMigrator) Close() error {
	f.closed = true
	return nil
}

func withFakeMigrator(t *testing.T, fake *fakeMigrator) {
	t.Helper()
	original := openMigrator
	t.Cleanup(func() { openMigrator = original })
	openMigrator = func(context.Context, string) (schemaMigrator, error) {
		return fake, nil
	}
}

func noEnv(string) string { return "" }

func TestParseOptions(t *testing.T) {
	opts, err := parseOptions([]string{"-direction= DOWN ", "-steps=2"}, func(key string) string {
		if key == envPostgresDSN {
			return " postgres://storefront@localhost/storefront "
		}
		return ""
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.direction != "down" || opts.steps != 2 || opts.dsn != "postgres://storefront@localhost/storefront" {
		t.Fatalf("unexpected options: %+v", opts)
	}

	if _, err := parseOptions(nil, noEnv); err == nil {
		t.Fatal("expected error for missing dsn")
	}
	if _, err := parseOptions([]string{"-dsn=x", "-direction=sideways"}, noEnv); err == nil {
		t.Fatal("expected error for unsupported direction")
	}
}

func TestRun_Up(t *testing.T) {
	fake := &fakeMigrator{state: postgres.MigrationState{Version: 2, Applied: 2}}
	withFakeMigrator(t, fake)

	var out bytes.Buffer
	if err := run(context.Background(), options{direction: "up", dsn: "x"}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := out.String(); got != "migrate up ok: version=2 applied=2 pending=0\n" {
		t.Fatalf("unexpected output %q", got)
	}
	if len(fake.calls) != 2 || fake.calls[0] != "up" || !fake.closed {
		t.Fatalf("unexpected calls %v closed=%v", fake.calls, fake.closed)
	}
}

func TestRun_StatusOnly(t *testing.T) {
	fake := &fakeMigrator{state: postgres.MigrationState{Version: 1, Applied: 1, Pending: 1}}
	withFakeMigrator(t, fake)

	var out bytes.Buffer
	if err := run(context.Background(), options{direction: "status", dsn: "x"}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(fake.calls) != 1 || fake.calls[0] != "status" {
		t.Fatalf("status must not migrate, calls %v", fake.calls)
	}
}

func TestRun_DownFailure(t *testing.T) {
	fake := &fakeMigrator{err: errors.New("lock timeout")}
	withFakeMigrator(t, fake)

	err := run(context.Background(), options{direction: "down", steps: 1, dsn: "x"}, &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !fake.closed {
		t.Fatal("store must be closed on failure")
	}
}

func TestFailExits(t *testing.T) {
	if os.Getenv("MIGRATE_TEST_FAIL_EXIT") == "1" {
		fail("forced failure %d", 42)
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFailExits")
	cmd.Env = append(os.Environ(), "MIGRATE_TEST_FAIL_EXIT=1")
	err := cmd.Run()
	if err == nil {
		t.Fatal("expected subprocess to exit with error")
	}
	if exitErr, ok := err.(*exec.ExitError); !ok || exitErr.ExitCode() == 0 {
		t.Fatalf("expected non-zero exit code, got %v", err)
	}
}
