package credstore

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestBoltStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(filepath.Join(t.TempDir(), "credentials.db"))
	if err != nil {
		t.Fatalf("NewBoltStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBoltStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestBoltStore(t)

	// A fresh database has no bucket yet and reads as empty.
	if access, err := store.GetAccess(ctx); err != nil || access != "" {
		t.Fatalf("GetAccess on empty store = %q, %v", access, err)
	}

	if err := store.SetAccess(ctx, "A1"); err != nil {
		t.Fatalf("SetAccess: %v", err)
	}
	if err := store.SetRefresh(ctx, "R1"); err != nil {
		t.Fatalf("SetRefresh: %v", err)
	}

	access, err := store.GetAccess(ctx)
	if err != nil || access != "A1" {
		t.Errorf("GetAccess = %q, %v, want A1", access, err)
	}
	refresh, err := store.GetRefresh(ctx)
	if err != nil || refresh != "R1" {
		t.Errorf("GetRefresh = %q, %v, want R1", refresh, err)
	}
}

func TestBoltStoreClearAll(t *testing.T) {
	ctx := context.Background()
	store := newTestBoltStore(t)

	// Clearing before any write must not fail.
	if err := store.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll on empty store: %v", err)
	}

	if err := store.SetAccess(ctx, "A1"); err != nil {
		t.Fatalf("SetAccess: %v", err)
	}
	if err := store.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}

	if access, err := store.GetAccess(ctx); err != nil || access != "" {
		t.Errorf("GetAccess after ClearAll = %q, %v, want empty", access, err)
	}
}

func TestBoltStoreHonorsContext(t *testing.T) {
	store := newTestBoltStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.GetAccess(ctx); err == nil {
		t.Error("GetAccess with cancelled context succeeded")
	}
	if err := store.SetAccess(ctx, "A1"); err == nil {
		t.Error("SetAccess with cancelled context succeeded")
	}
}
