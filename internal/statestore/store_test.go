package statestore

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func testStoreContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing key, got %v", err)
	}

	if err := store.Put(ctx, "checkoutState/sess-1", []byte(`{"currentStep":2}`)); err != nil {
		t.Fatalf("unexpected put error: %v", err)
	}
	value, err := store.Get(ctx, "checkoutState/sess-1")
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if !bytes.Equal(value, []byte(`{"currentStep":2}`)) {
		t.Fatalf("unexpected value %q", value)
	}

	if err := store.Put(ctx, "checkoutState/sess-1", []byte(`{"currentStep":3}`)); err != nil {
		t.Fatalf("unexpected overwrite error: %v", err)
	}
	value, err = store.Get(ctx, "checkoutState/sess-1")
	if err != nil {
		t.Fatalf("unexpected get error after overwrite: %v", err)
	}
	if !bytes.Equal(value, []byte(`{"currentStep":3}`)) {
		t.Fatalf("expected overwritten value, got %q", value)
	}

	if err := store.Delete(ctx, "checkoutState/sess-1"); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	if _, err := store.Get(ctx, "checkoutState/sess-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	// Deleting a missing key is a no-op.
	if err := store.Delete(ctx, "checkoutState/sess-1"); err != nil {
		t.Fatalf("expected idempotent delete, got %v", err)
	}
}

func TestMemoryStoreContract(t *testing.T) {
	testStoreContract(t, NewMemoryStore())
}

func TestFileStoreContract(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testStoreContract(t, store)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	original := []byte("payload")
	if err := store.Put(ctx, "k", original); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	original[0] = 'X'

	value, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(value) != "payload" {
		t.Fatalf("stored value aliased caller buffer: %q", value)
	}
	value[0] = 'Y'
	again, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(again) != "payload" {
		t.Fatalf("returned value aliased internal buffer: %q", again)
	}
}

func TestFileStorePersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := first.Put(ctx, "checkoutState/sess-9", []byte("snapshot")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	value, err := second.Get(ctx, "checkoutState/sess-9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(value) != "snapshot" {
		t.Fatalf("unexpected value %q", value)
	}
}

func TestFileStoreRequiresDirectory(t *testing.T) {
	if _, err := NewFileStore(""); err == nil {
		t.Fatalf("expected error for empty directory")
	}
}

func TestFileStoreKeysWithSeparators(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()

	// Keys contain slashes; files must land directly in the base directory.
	if err := store.Put(ctx, "checkoutState/a/b/../c", []byte("v")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one flat file, got %v", matches)
	}
}
