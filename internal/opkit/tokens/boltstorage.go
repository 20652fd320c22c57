package tokens

import (
	"context"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var bucketSecrets = []byte("opkit_secrets")

// BoltSecureStorage is a SecureStorage backed by a bbolt bucket, grounded
// on pkg/storage/boltdb.go's bucket-per-resource, View/Update-per-call
// shape.
type BoltSecureStorage struct {
	db *bolt.DB
}

// OpenBoltSecureStorage opens (creating if necessary) a bbolt database at
// path and ensures the secrets bucket exists.
func OpenBoltSecureStorage(path string) (*BoltSecureStorage, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("opkit/tokens: open bolt database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSecrets)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("opkit/tokens: create secrets bucket: %w", err)
	}
	return &BoltSecureStorage{db: db}, nil
}

// Close closes the underlying database.
func (b *BoltSecureStorage) Close() error { return b.db.Close() }

// Get implements SecureStorage.
func (b *BoltSecureStorage) Get(_ context.Context, key string) ([]byte, error) {
	var value []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSecrets).Get([]byte(key))
		if data != nil {
			value = append([]byte(nil), data...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("opkit/tokens: read %q: %w", key, err)
	}
	return value, nil
}

// Set implements SecureStorage.
func (b *BoltSecureStorage) Set(_ context.Context, key string, value []byte) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSecrets).Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("opkit/tokens: write %q: %w", key, err)
	}
	return nil
}

// Delete implements SecureStorage.
func (b *BoltSecureStorage) Delete(_ context.Context, key string) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSecrets).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("opkit/tokens: delete %q: %w", key, err)
	}
	return nil
}
