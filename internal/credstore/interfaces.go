package credstore

import "context"

// Store reads and writes the credential pair used to authenticate API calls.
//
// An absent credential is a valid state and is reported as an empty string
// with a nil error; errors are reserved for storage-level failures. Writes
// must be visible to subsequent reads within the process.
type Store interface {
	// GetAccess returns the stored access credential, or "" if none is stored.
	GetAccess(ctx context.Context) (string, error)

	// GetRefresh returns the stored refresh credential, or "" if none is stored.
	GetRefresh(ctx context.Context) (string, error)

	// SetAccess persists the access credential, replacing any previous value.
	SetAccess(ctx context.Context, credential string) error

	// SetRefresh persists the refresh credential, replacing any previous value.
	SetRefresh(ctx context.Context, credential string) error

	// ClearAll removes both credentials. Clearing an already-empty store
	// is not an error.
	ClearAll(ctx context.Context) error
}
