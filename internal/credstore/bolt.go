package credstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BoltStore keeps the credential pair in an embedded bbolt database.
// Useful when the surrounding application already carries one for local
// state, avoiding a second storage mechanism for credentials.
type BoltStore struct {
	db *bolt.DB
}

// Compile-time check to ensure BoltStore implements Store
var _ Store = (*BoltStore)(nil)

var (
	boltBucketCredentials = []byte("credentials")
	boltKeyAccess         = []byte("access")
	boltKeyRefresh        = []byte("refresh")
)

// NewBoltStore opens (or creates) the database at the given path with 0600
// permissions, creating parent directories if needed. The returned store
// must be closed with Close when no longer needed.
func NewBoltStore(path string) (*BoltStore, error) {
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening credential database: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close releases the underlying database file.
func (b *BoltStore) Close() error {
	return b.db.Close()
}

// GetAccess returns the stored access credential, or "" if none is stored.
func (b *BoltStore) GetAccess(ctx context.Context) (string, error) {
	return b.get(ctx, boltKeyAccess)
}

// GetRefresh returns the stored refresh credential, or "" if none is stored.
func (b *BoltStore) GetRefresh(ctx context.Context) (string, error) {
	return b.get(ctx, boltKeyRefresh)
}

// SetAccess persists the access credential.
func (b *BoltStore) SetAccess(ctx context.Context, credential string) error {
	return b.set(ctx, boltKeyAccess, credential)
}

// SetRefresh persists the refresh credential.
func (b *BoltStore) SetRefresh(ctx context.Context, credential string) error {
	return b.set(ctx, boltKeyRefresh, credential)
}

// ClearAll drops the credential bucket. An absent bucket is not an error.
func (b *BoltStore) ClearAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(boltBucketCredentials) == nil {
			return nil
		}
		return tx.DeleteBucket(boltBucketCredentials)
	})
}

func (b *BoltStore) get(ctx context.Context, key []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var credential string
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(boltBucketCredentials)
		if bucket == nil {
			return nil
		}
		credential = string(bucket.Get(key))
		return nil
	})
	return credential, err
}

func (b *BoltStore) set(ctx context.Context, key []byte, credential string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(boltBucketCredentials)
		if err != nil {
			return err
		}
		return bucket.Put(key, []byte(credential))
	})
}
