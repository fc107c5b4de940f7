// Package keyValStore wraps the badger key-value store backing the memory
// palace records.
package keyValStore

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

// ErrKeyNotFound is returned by Read for absent keys. Absence is a
// distinct outcome, never conflated with an invalid record.
var ErrKeyNotFound = errors.New("keyValStore: key not found")

type StoreConfig struct {
	Path             string // badger data directory
	MinimumFreeSpace int    // in GB, checked before open
	InMemory         bool   // ephemeral store for tests
	Logger           *logrus.Logger
}

type KeyValStore struct {
	config   StoreConfig
	badgerDB *badger.DB
}

var log *logrus.Logger

func NewKeyValStore(config StoreConfig) (*KeyValStore, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	log = config.Logger

	if err := config.check(); err != nil {
		return nil, fmt.Errorf("error checking config for KeyValStore: %w", err)
	}

	var opts badger.Options
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(config.Path)
	}
	opts.Logger = nil
	opts.ValueLogFileSize = 1024 * 1024 * 100

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("error opening badger at %q: %w", config.Path, err)
	}

	return &KeyValStore{
		config:   config,
		badgerDB: db,
	}, nil
}

func (k *KeyValStore) Write(key []byte, content []byte) error {
	return k.badgerDB.Update(func(txn *badger.Txn) error {
		return txn.Set(key, content)
	})
}

func (k *KeyValStore) Read(key []byte) ([]byte, error) {
	var value []byte
	err := k.badgerDB.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error reading key %q: %w", key, err)
	}
	return value, nil
}

func (k *KeyValStore) Delete(key []byte) error {
	return k.badgerDB.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// ReadPrefix calls fn with a value copy for every key under prefix.
func (k *KeyValStore) ReadPrefix(prefix []byte, fn func(key, value []byte) error) error {
	return k.badgerDB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(item.KeyCopy(nil), value); err != nil {
				return err
			}
		}
		return nil
	})
}

// Update runs fn inside one badger read-write transaction so multi-key
// record writes commit atomically.
func (k *KeyValStore) Update(fn func(txn *badger.Txn) error) error {
	return k.badgerDB.Update(fn)
}

// View runs fn inside one badger read-only transaction.
func (k *KeyValStore) View(fn func(txn *badger.Txn) error) error {
	return k.badgerDB.View(fn)
}

func (k *KeyValStore) Close() error {
	if !k.config.InMemory {
		if err := k.badgerDB.Sync(); err != nil {
			log.WithError(err).Error("error syncing db on close")
		}
	}
	return k.badgerDB.Close()
}
