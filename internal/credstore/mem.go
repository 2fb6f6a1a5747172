package credstore

import (
	"context"
	"sync"
)

// MemStore keeps the credential pair in process memory. Intended for tests
// and for embedding applications that manage persistence themselves.
type MemStore struct {
	mu      sync.RWMutex
	access  string
	refresh string
}

// Compile-time check to ensure MemStore implements Store
var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{}
}

// GetAccess returns the stored access credential, or "" if none is stored.
func (m *MemStore) GetAccess(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.access, nil
}

// GetRefresh returns the stored refresh credential, or "" if none is stored.
func (m *MemStore) GetRefresh(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.refresh, nil
}

// SetAccess stores the access credential.
func (m *MemStore) SetAccess(ctx context.Context, credential string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.access = credential
	return nil
}

// SetRefresh stores the refresh credential.
func (m *MemStore) SetRefresh(ctx context.Context, credential string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh = credential
	return nil
}

// ClearAll removes both credentials.
func (m *MemStore) ClearAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.access = ""
	m.refresh = ""
	return nil
}
