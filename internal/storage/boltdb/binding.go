package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/opsdeck/opsdeck/internal/models"
	"github.com/opsdeck/opsdeck/internal/storage"
)

var bindingKey = []byte("current")

// SaveTeamBinding persists the team server identity this client
// currently trusts
func (s *Storage) SaveTeamBinding(ctx context.Context, info *models.AppInfo) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketBinding)
		if bucket == nil {
			return fmt.Errorf("binding bucket not found")
		}

		data, err := json.Marshal(info)
		if err != nil {
			return fmt.Errorf("failed to marshal team binding: %w", err)
		}

		if err := bucket.Put(bindingKey, data); err != nil {
			return fmt.Errorf("failed to save team binding: %w", err)
		}
		return nil
	})
}

// GetTeamBinding retrieves the trusted team server identity
// Returns storage.ErrAppInfoNotFound if no binding is stored
func (s *Storage) GetTeamBinding(ctx context.Context) (*models.AppInfo, error) {
	var info *models.AppInfo

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketBinding)
		if bucket == nil {
			return fmt.Errorf("binding bucket not found")
		}

		data := bucket.Get(bindingKey)
		if data == nil {
			return storage.ErrAppInfoNotFound
		}

		info = &models.AppInfo{}
		if err := json.Unmarshal(data, info); err != nil {
			return fmt.Errorf("failed to unmarshal team binding: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return info, nil
}

// ClearTeamBinding erases the trusted identity; clearing an absent
// binding is a no-op
func (s *Storage) ClearTeamBinding(ctx context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketBinding)
		if bucket == nil {
			return fmt.Errorf("binding bucket not found")
		}

		if err := bucket.Delete(bindingKey); err != nil {
			return fmt.Errorf("failed to clear team binding: %w", err)
		}
		return nil
	})
}
