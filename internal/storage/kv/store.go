// Package kv is the local key-value store used for credentials and wallet pointers.
package kv

import (
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
)

// ErrNotOpened is returned by operations on a closed or nil store.
var ErrNotOpened = errors.New("kv: store is not opened")

type Options struct {
	Path string
	// InMemory keeps everything in RAM; Path is ignored.
	InMemory bool
	// EncryptionKey 16, 24 or 32 bytes; nil disables at-rest encryption.
	EncryptionKey []byte
}

// Store badger-backed KV.
type Store struct {
	db *badger.DB
}

func Open(opts Options) (*Store, error) {
	var bopts badger.Options
	switch {
	case opts.InMemory:
		bopts = badger.DefaultOptions("").WithInMemory(true)
	case strings.TrimSpace(opts.Path) == "":
		return nil, errors.New("kv: path is required")
	default:
		bopts = badger.DefaultOptions(opts.Path)
	}
	bopts = bopts.WithLogger(nil)
	if len(opts.EncryptionKey) > 0 {
		// encrypted tables need the index cache
		bopts = bopts.
			WithEncryptionKey(opts.EncryptionKey).
			WithIndexCacheSize(100 << 20)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, errors.Wrap(err, "open badger")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the value and whether the key exists.
func (s *Store) Get(key string) ([]byte, bool, error) {
	k, err := s.key(key)
	if err != nil {
		return nil, false, err
	}

	var (
		out   []byte
		found bool
	)
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		found = true
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, false, errors.Wrapf(err, "kv get %s", key)
	}
	return out, found, nil
}

func (s *Store) Set(key string, val []byte) error {
	k, err := s.key(key)
	if err != nil {
		return err
	}
	return errors.Wrapf(s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(k, val)
	}), "kv set %s", key)
}

// Delete removes the key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	k, err := s.key(key)
	if err != nil {
		return err
	}
	return errors.Wrapf(s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(k)
	}), "kv delete %s", key)
}

// Keys lists keys starting with prefix in byte order.
func (s *Store) Keys(prefix string) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotOpened
	}
	p := []byte(prefix)

	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: p})
		defer it.Close()
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "kv keys")
	}
	return keys, nil
}

func (s *Store) key(key string) ([]byte, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotOpened
	}
	k := strings.TrimSpace(key)
	if k == "" {
		return nil, errors.New("kv: key is empty")
	}
	return []byte(k), nil
}
