package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func newTestKV(t *testing.T) *SQLiteKV {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	kv, err := NewSQLiteKV(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteKV: %v", err)
	}
	t.Cleanup(func() { kv.Close() })
	return kv
}

func TestSQLiteKV_PutAndGet(t *testing.T) {
	kv := newTestKV(t)
	ctx := context.Background()

	if err := kv.Put(ctx, "k", []byte(`[{"id":1}]`)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := kv.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != `[{"id":1}]` {
		t.Errorf("Get = %q, want %q", got, `[{"id":1}]`)
	}
}

func TestSQLiteKV_GetMissing(t *testing.T) {
	kv := newTestKV(t)

	_, err := kv.Get(context.Background(), "nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing: err = %v, want ErrNotFound", err)
	}
}

func TestSQLiteKV_PutOverwrites(t *testing.T) {
	kv := newTestKV(t)
	ctx := context.Background()

	if err := kv.Put(ctx, "k", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	if err := kv.Put(ctx, "k", []byte("v2")); err != nil {
		t.Fatal(err)
	}

	got, err := kv.Get(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "v2" {
		t.Errorf("Get = %q, want %q", got, "v2")
	}
}

func TestSQLiteKV_SurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "history.db")
	ctx := context.Background()

	kv, err := NewSQLiteKV(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteKV: %v", err)
	}
	if err := kv.Put(ctx, CollectionKey, []byte("[]")); err != nil {
		t.Fatal(err)
	}
	kv.Close()

	kv, err = NewSQLiteKV(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer kv.Close()

	got, err := kv.Get(ctx, CollectionKey)
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if string(got) != "[]" {
		t.Errorf("Get = %q, want %q", got, "[]")
	}
}

func TestFileKV_PutAndGet(t *testing.T) {
	kv := NewFileKV(filepath.Join(t.TempDir(), "store"))
	ctx := context.Background()

	if _, err := kv.Get(ctx, CollectionKey); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get before Put: err = %v, want ErrNotFound", err)
	}
	if err := kv.Put(ctx, CollectionKey, []byte("[1]")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := kv.Put(ctx, CollectionKey, []byte("[2]")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := kv.Get(ctx, CollectionKey)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "[2]" {
		t.Errorf("Get = %q, want %q", got, "[2]")
	}
}
