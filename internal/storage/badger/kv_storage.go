package badger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fragor/internal/interfaces"
	"github.com/timshannon/badgerhold/v4"
)

// KVStorage implements the KeyValueStorage interface for Badger
type KVStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewKVStorage creates a new KVStorage instance
func NewKVStorage(db *BadgerDB, logger arbor.ILogger) interfaces.KeyValueStorage {
	return &KVStorage{
		db:     db,
		logger: logger,
	}
}

// normalizeKey converts a key to lowercase for case-insensitive storage
func (s *KVStorage) normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Get retrieves a value by key (case-insensitive)
func (s *KVStorage) Get(ctx context.Context, key string) (string, error) {
	var pair interfaces.KeyValuePair
	err := s.db.Store().Get(s.normalizeKey(key), &pair)
	if err == badgerhold.ErrNotFound {
		return "", interfaces.ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get key: %w", err)
	}
	return pair.Value, nil
}

// Set inserts or updates a key/value pair (case-insensitive)
func (s *KVStorage) Set(ctx context.Context, key, value, description string) error {
	normalizedKey := s.normalizeKey(key)
	if normalizedKey == "" {
		return fmt.Errorf("key cannot be empty")
	}

	now := time.Now()
	pair := interfaces.KeyValuePair{
		Key:         normalizedKey,
		Value:       value,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// Preserve CreatedAt on update
	var existing interfaces.KeyValuePair
	if err := s.db.Store().Get(normalizedKey, &existing); err == nil {
		pair.CreatedAt = existing.CreatedAt
	}

	if err := s.db.Store().Upsert(normalizedKey, &pair); err != nil {
		return fmt.Errorf("failed to set key/value: %w", err)
	}
	return nil
}

// Delete removes a key/value pair (case-insensitive)
func (s *KVStorage) Delete(ctx context.Context, key string) error {
	err := s.db.Store().Delete(s.normalizeKey(key), &interfaces.KeyValuePair{})
	if err == badgerhold.ErrNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	return nil
}

// List returns all key/value pairs
func (s *KVStorage) List(ctx context.Context) ([]interfaces.KeyValuePair, error) {
	var pairs []interfaces.KeyValuePair
	if err := s.db.Store().Find(&pairs, nil); err != nil {
		return nil, fmt.Errorf("failed to list key/value pairs: %w", err)
	}
	return pairs, nil
}
