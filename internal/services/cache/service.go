// Package cache provides a short-TTL cache backed by native badger TTL
// entries. Entries are an optimization only: expiry or loss of an entry is
// always harmless to correctness.
package cache

import (
	"errors"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fragor/internal/interfaces"
)

// Service provides TTL'd key/value caching on the raw badger database.
// Cache keys live outside the badgerhold type prefixes, so they never collide
// with entity records sharing the same database.
type Service struct {
	db     *badgerdb.DB
	logger arbor.ILogger
}

// NewService creates a new cache service.
func NewService(db *badgerdb.DB, logger arbor.ILogger) *Service {
	return &Service{
		db:     db,
		logger: logger,
	}
}

// Get returns the cached value and whether it was present and unexpired.
func (s *Service) Get(key string) (string, bool) {
	var value string
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			value = string(v)
			return nil
		})
	})
	if err != nil {
		if !errors.Is(err, badgerdb.ErrKeyNotFound) {
			s.logger.Warn().Err(err).Str("key", key).Msg("Cache read failed")
		}
		return "", false
	}
	return value, true
}

// Set stores a value with the given TTL. A zero TTL stores without expiry.
func (s *Service) Set(key, value string, ttl time.Duration) error {
	return s.db.Update(func(txn *badgerdb.Txn) error {
		entry := badgerdb.NewEntry([]byte(key), []byte(value))
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
}

// Add stores the value only if the key is absent, and reports whether it was
// stored. The check and the write share one transaction, so two concurrent
// Adds for the same key admit exactly one winner.
func (s *Service) Add(key, value string, ttl time.Duration) (bool, error) {
	var added bool
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(key))
		if err == nil {
			added = false
			return nil
		}
		if !errors.Is(err, badgerdb.ErrKeyNotFound) {
			return err
		}
		entry := badgerdb.NewEntry([]byte(key), []byte(value))
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		added = true
		return txn.SetEntry(entry)
	})
	if errors.Is(err, badgerdb.ErrConflict) {
		// A concurrent writer beat us to the key.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return added, nil
}

// Delete removes a cache entry. Deleting a missing key is a no-op.
func (s *Service) Delete(key string) error {
	return s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Ensure Service implements CacheService interface
var _ interfaces.CacheService = (*Service)(nil)
