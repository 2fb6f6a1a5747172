package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileStore persists the credential pair as a JSON file with secure
// permissions. Writes use temp file + rename for crash safety.
type FileStore struct {
	filePath string

	// Serializes read-modify-write cycles so concurrent Set calls
	// cannot lose each other's field.
	mu sync.Mutex
}

// Compile-time check to ensure FileStore implements Store
var _ Store = (*FileStore)(nil)

// fileCredentials is the on-disk representation.
type fileCredentials struct {
	Access  string `json:"access_token,omitempty"`
	Refresh string `json:"refresh_token,omitempty"`
}

// NewFileStore creates a FileStore for the given path, creating parent
// directories with 0700 permissions if they don't exist. A missing file is
// treated as an empty store.
func NewFileStore(filePath string) (*FileStore, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	return &FileStore{
		filePath: filePath,
	}, nil
}

// GetAccess returns the stored access credential, or "" if none is stored.
func (f *FileStore) GetAccess(ctx context.Context) (string, error) {
	creds, err := f.load(ctx)
	if err != nil {
		return "", err
	}
	return creds.Access, nil
}

// GetRefresh returns the stored refresh credential, or "" if none is stored.
func (f *FileStore) GetRefresh(ctx context.Context) (string, error) {
	creds, err := f.load(ctx)
	if err != nil {
		return "", err
	}
	return creds.Refresh, nil
}

// SetAccess persists the access credential, keeping the stored refresh credential.
func (f *FileStore) SetAccess(ctx context.Context, credential string) error {
	return f.update(ctx, func(c *fileCredentials) {
		c.Access = credential
	})
}

// SetRefresh persists the refresh credential, keeping the stored access credential.
func (f *FileStore) SetRefresh(ctx context.Context, credential string) error {
	return f.update(ctx, func(c *fileCredentials) {
		c.Refresh = credential
	})
}

// ClearAll removes the credential file. A missing file is not an error.
func (f *FileStore) ClearAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (f *FileStore) load(ctx context.Context) (fileCredentials, error) {
	if err := ctx.Err(); err != nil {
		return fileCredentials{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loadLocked()
}

func (f *FileStore) loadLocked() (fileCredentials, error) {
	info, err := os.Stat(f.filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return fileCredentials{}, nil
	}
	if err != nil {
		return fileCredentials{}, err
	}

	// Check file permissions before reading
	if info.Mode().Perm() != 0600 {
		return fileCredentials{}, fmt.Errorf("insecure permissions on %s: %04o (expected 0600)", f.filePath, info.Mode().Perm())
	}

	data, err := os.ReadFile(f.filePath)
	if err != nil {
		return fileCredentials{}, err
	}

	var creds fileCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return fileCredentials{}, fmt.Errorf("malformed credential file %s: %w", f.filePath, err)
	}
	return creds, nil
}

func (f *FileStore) update(ctx context.Context, mutate func(*fileCredentials)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	creds, err := f.loadLocked()
	if err != nil {
		return err
	}
	mutate(&creds)

	data, err := json.Marshal(creds)
	if err != nil {
		return err
	}

	// Create secure temp file in same directory for atomic rename
	dir := filepath.Dir(f.filePath)
	tempFile, err := os.CreateTemp(dir, "*.tmp")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()
	// Cleanup deferred for all exit paths
	defer func() { _ = os.Remove(tempName) }()
	defer func() { _ = tempFile.Close() }()

	if _, err := tempFile.Write(append(data, '\n')); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tempName, 0600); err != nil {
		return err
	}

	// Atomic rename to final location
	return os.Rename(tempName, f.filePath)
}
