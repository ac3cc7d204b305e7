package boltdb

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/opsdeck/opsdeck/internal/storage"
)

// GetSecret returns the secret stored under name
func (s *Storage) GetSecret(ctx context.Context, name string) ([]byte, error) {
	var value []byte

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketSecrets)
		if bucket == nil {
			return fmt.Errorf("secrets bucket not found")
		}

		data := bucket.Get([]byte(name))
		if data == nil {
			return storage.ErrSecretNotFound
		}

		// Copy out: bolt's slice is only valid inside the transaction
		value = make([]byte, len(data))
		copy(value, data)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return value, nil
}

// PutSecret stores the secret under name
func (s *Storage) PutSecret(ctx context.Context, name string, value []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketSecrets)
		if bucket == nil {
			return fmt.Errorf("secrets bucket not found")
		}

		if err := bucket.Put([]byte(name), value); err != nil {
			return fmt.Errorf("failed to save secret: %w", err)
		}
		return nil
	})
}

// DeleteSecret removes the secret; absent names are a no-op
func (s *Storage) DeleteSecret(ctx context.Context, name string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketSecrets)
		if bucket == nil {
			return fmt.Errorf("secrets bucket not found")
		}

		if err := bucket.Delete([]byte(name)); err != nil {
			return fmt.Errorf("failed to delete secret: %w", err)
		}
		return nil
	})
}
