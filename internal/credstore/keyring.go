package credstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringStore provides OS-native secure credential storage.
// Uses macOS Keychain, Windows Credential Manager, or Linux Secret Service.
// The access and refresh credentials are kept as two entries under the same
// service, distinguished by a user suffix.
type KeyringStore struct {
	service string
	user    string
}

// Compile-time check to ensure KeyringStore implements Store
var _ Store = (*KeyringStore)(nil)

const (
	keyringAccessSuffix  = "/access"
	keyringRefreshSuffix = "/refresh"
)

// NewKeyringStore creates a KeyringStore for the OS-native credential storage
// using the given service and user identifiers.
func NewKeyringStore(service, user string) (*KeyringStore, error) {
	if service == "" {
		return nil, fmt.Errorf("service cannot be empty")
	}
	if user == "" {
		return nil, fmt.Errorf("user cannot be empty")
	}

	return &KeyringStore{
		service: service,
		user:    user,
	}, nil
}

// GetAccess returns the access credential from the system keyring, or "" if absent.
func (k *KeyringStore) GetAccess(ctx context.Context) (string, error) {
	return k.get(ctx, keyringAccessSuffix)
}

// GetRefresh returns the refresh credential from the system keyring, or "" if absent.
func (k *KeyringStore) GetRefresh(ctx context.Context) (string, error) {
	return k.get(ctx, keyringRefreshSuffix)
}

// SetAccess persists the access credential to the system keyring.
func (k *KeyringStore) SetAccess(ctx context.Context, credential string) error {
	return k.set(ctx, keyringAccessSuffix, credential)
}

// SetRefresh persists the refresh credential to the system keyring.
func (k *KeyringStore) SetRefresh(ctx context.Context, credential string) error {
	return k.set(ctx, keyringRefreshSuffix, credential)
}

// ClearAll deletes both keyring entries. Missing entries are not an error.
func (k *KeyringStore) ClearAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, suffix := range []string{keyringAccessSuffix, keyringRefreshSuffix} {
		if err := keyring.Delete(k.service, k.user+suffix); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return err
		}
	}
	return nil
}

func (k *KeyringStore) get(ctx context.Context, suffix string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	credential, err := keyring.Get(k.service, k.user+suffix)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return credential, nil
}

func (k *KeyringStore) set(ctx context.Context, suffix, credential string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return keyring.Set(k.service, k.user+suffix, credential)
}
