package credstore

import (
	"context"
	"fmt"
	"os"
)

// EnvStore provides read-only access to credentials stored in environment
// variables. Suitable for externally managed credentials but not for the
// refresh protocol, which requires writable storage.
type EnvStore struct {
	accessKey  string
	refreshKey string
}

// Compile-time check to ensure EnvStore implements Store
var _ Store = (*EnvStore)(nil)

// NewEnvStore creates an EnvStore reading the access and refresh credentials
// from the given environment variables. The refresh variable may be left
// empty for access-only deployments.
func NewEnvStore(accessKey, refreshKey string) (*EnvStore, error) {
	if accessKey == "" {
		return nil, fmt.Errorf("access environment key cannot be empty")
	}

	return &EnvStore{
		accessKey:  accessKey,
		refreshKey: refreshKey,
	}, nil
}

// GetAccess returns the access credential from the environment, or "" if unset.
func (e *EnvStore) GetAccess(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return os.Getenv(e.accessKey), nil
}

// GetRefresh returns the refresh credential from the environment, or "" if unset.
func (e *EnvStore) GetRefresh(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if e.refreshKey == "" {
		return "", nil
	}
	return os.Getenv(e.refreshKey), nil
}

// SetAccess is not supported for environment variables (they are read-only).
func (e *EnvStore) SetAccess(ctx context.Context, credential string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("environment variable storage is read-only")
}

// SetRefresh is not supported for environment variables (they are read-only).
func (e *EnvStore) SetRefresh(ctx context.Context, credential string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("environment variable storage is read-only")
}

// ClearAll is a no-op: the variables are owned by whatever rotates them
// externally, and there is nothing the process can clear.
func (e *EnvStore) ClearAll(ctx context.Context) error {
	return ctx.Err()
}
