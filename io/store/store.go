// Package store is a key/value store with compare-and-swap, kept in BadgerDB.
//
// It backs the simulated sequential store the cluster tests run against. With an empty
// directory the database lives in memory only.
package store

import (
	"bytes"
	stdErrors "errors"
	"os"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
)

var (
	// ErrNotFound returned when key does not exist in the store.
	ErrNotFound = errors.New("key not found")
	// ErrPreconditionFailed returned when a compare-and-swap sees a value other than expected.
	ErrPreconditionFailed = errors.New("precondition failed")
)

// Store serializes every operation, so a read never observes a half-applied swap.
type Store struct {
	db *badger.DB
	mu sync.RWMutex
}

// New opens the store in dir, or in memory when dir is empty.
func New(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create badger directory")
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "open badger db")
	}

	return &Store{db: db}, nil
}

// Put stores the provided value for the key.
func (s *Store) Put(key string, value []byte) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), cloneBytes(value))
	})
}

// Get retrieves value by key. Returns ErrNotFound if key does not exist.
func (s *Store) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []byte
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		result, err = get(txn, key)
		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// CompareAndSwap sets key to to if its current value equals from.
// Returns ErrNotFound if the key does not exist and ErrPreconditionFailed on a mismatch.
func (s *Store) CompareAndSwap(key string, from, to []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(txn *badger.Txn) error {
		current, err := get(txn, key)
		if err != nil {
			return err
		}
		if !bytes.Equal(current, from) {
			return ErrPreconditionFailed
		}
		return txn.Set([]byte(key), cloneBytes(to))
	})
}

// Close closes the underlying Badger database.
func (s *Store) Close() error {
	return s.db.Close()
}

func get(txn *badger.Txn, key string) ([]byte, error) {
	item, err := txn.Get([]byte(key))
	if err != nil {
		if stdErrors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return item.ValueCopy(nil)
}

func cloneBytes(src []byte) []byte {
	if src == nil {
		return []byte{}
	}

	dst := make([]byte, len(src))
	copy(dst, src)
	return dst
}
