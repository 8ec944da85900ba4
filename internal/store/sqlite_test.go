package store

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "prefs.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteRoundTrip(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	if err := store.Set(ctx, "cvrd:appearance_mode", []byte(`"light"`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Set(ctx, "cvrd:appearance_mode", []byte(`"dark"`)); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}

	value, err := store.Get(ctx, "cvrd:appearance_mode")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(value) != `"dark"` {
		t.Fatalf("Get() = %q, want %q", value, `"dark"`)
	}
}

func TestSQLiteMissingAndDelete(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.Set(ctx, "k", []byte(`1`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestSQLiteKeysUsesLiteralPrefix(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	for _, key := range []string{"cvrd:b", "cvrd:a", "cvrdXa", "@cvrd/section_order"} {
		if err := store.Set(ctx, key, []byte(`1`)); err != nil {
			t.Fatalf("Set(%s) error = %v", key, err)
		}
	}

	keys, err := store.Keys(ctx, "cvrd:")
	if err != nil {
		t.Fatalf("Keys() error = %v", err)
	}
	if want := []string{"cvrd:a", "cvrd:b"}; !reflect.DeepEqual(keys, want) {
		t.Fatalf("Keys() = %v, want %v", keys, want)
	}
}

func TestSQLiteMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.db")
	ctx := context.Background()

	first, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("first open error = %v", err)
	}
	if err := first.Set(ctx, "kept", []byte(`"yes"`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	_ = first.Close()

	second, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("second open error = %v", err)
	}
	defer second.Close()

	value, err := second.Get(ctx, "kept")
	if err != nil {
		t.Fatalf("Get() after reopen error = %v", err)
	}
	if string(value) != `"yes"` {
		t.Fatalf("Get() after reopen = %q", value)
	}

	var count int
	if err := second.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&count); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 recorded migration, got %d", count)
	}
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	if _, err := OpenSQLite(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
