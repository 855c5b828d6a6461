// Package prefs persists the string preferences shared by both migration phases.
package prefs

import (
	"fmt"
	"sync"

	"go.etcd.io/bbolt"

	"github.com/Ning0612/relocator/internal/domain"
)

// Preference keys
const (
	KeyMigrationSource      = "migration.source"
	KeyMigrationDestination = "migration.destination"
	KeyCollectionPath       = "collection.path"
)

var preferencesBucket = []byte("preferences")

// Store is a string key-value store.
// Setting a key to the empty string removes it.
type Store interface {
	GetString(key, def string) (string, error)
	SetString(key, value string) error
	// SetStrings writes every entry in one transaction
	SetStrings(values map[string]string) error
	Close() error
}

// BoltStore is a Store backed by bbolt
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens (or creates) the preference database at path
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open preference database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(preferencesBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create preferences bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// GetString returns the value of key, or def if it is not set
func (s *BoltStore) GetString(key, def string) (string, error) {
	value := def
	err := s.db.View(func(tx *bbolt.Tx) error {
		if data := tx.Bucket(preferencesBucket).Get([]byte(key)); data != nil {
			value = string(data)
		}
		return nil
	})
	if err != nil {
		return def, fmt.Errorf("failed to read preference %s: %w", key, err)
	}
	return value, nil
}

// SetString sets a single preference
func (s *BoltStore) SetString(key, value string) error {
	return s.SetStrings(map[string]string{key: value})
}

// SetStrings implements Store
func (s *BoltStore) SetStrings(values map[string]string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putAll(tx.Bucket(preferencesBucket), values)
	})
}

func putAll(b *bbolt.Bucket, values map[string]string) error {
	for key, value := range values {
		var err error
		if value == "" {
			err = b.Delete([]byte(key))
		} else {
			err = b.Put([]byte(key), []byte(value))
		}
		if err != nil {
			return fmt.Errorf("failed to write preference %s: %w", key, err)
		}
	}
	return nil
}

// Close closes the underlying database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// MemoryStore is an in-memory Store
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// GetString returns the value of key, or def if it is not set
func (s *MemoryStore) GetString(key, def string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if value, ok := s.values[key]; ok {
		return value, nil
	}
	return def, nil
}

// SetString sets key to value. An empty value removes the key.
func (s *MemoryStore) SetString(key, value string) error {
	return s.SetStrings(map[string]string{key: value})
}

// SetStrings sets every key of values at once
func (s *MemoryStore) SetStrings(values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, value := range values {
		if value == "" {
			delete(s.values, key)
		} else {
			s.values[key] = value
		}
	}
	return nil
}

// Close is a no-op
func (s *MemoryStore) Close() error { return nil }

// LoadMigrationState reads the migration source and destination
func LoadMigrationState(store Store) (domain.MigrationState, error) {
	source, err := store.GetString(KeyMigrationSource, "")
	if err != nil {
		return domain.MigrationState{}, err
	}
	destination, err := store.GetString(KeyMigrationDestination, "")
	if err != nil {
		return domain.MigrationState{}, err
	}
	return domain.MigrationState{Source: source, Destination: destination}, nil
}

// ClearMigrationState marks the migration as finished
func ClearMigrationState(store Store) error {
	return store.SetStrings(map[string]string{
		KeyMigrationSource:      "",
		KeyMigrationDestination: "",
	})
}

// CollectionDirectory returns the directory holding the active collection
func CollectionDirectory(store Store) (string, error) {
	return store.GetString(KeyCollectionPath, "")
}
