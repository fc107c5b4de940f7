// Package palace wires the memory palace service together: the badger
// record store and the typed storage layer over it. The cryptographic
// pipeline itself lives in pkg/ and carries no service state; keys are
// explicit parameters on every call, never ambient configuration.
package palace

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/cuer-ai/memory-palace/internal/keyValStore"
	"github.com/cuer-ai/memory-palace/internal/storage"
)

type Config struct {
	DataPath      string
	MinimumFreeGB int
	InMemory      bool // ephemeral store, used by tests
	Logger        *logrus.Logger
}

type Palace struct {
	kv     *keyValStore.KeyValStore
	store  *storage.Storage
	config Config
}

func New(conf Config) (*Palace, error) {
	kv, err := keyValStore.NewKeyValStore(keyValStore.StoreConfig{
		Path:             conf.DataPath,
		MinimumFreeSpace: conf.MinimumFreeGB,
		InMemory:         conf.InMemory,
		Logger:           conf.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating KeyValStore: %w", err)
	}

	return &Palace{
		kv:     kv,
		store:  storage.New(kv),
		config: conf,
	}, nil
}

// Store exposes the typed record store.
func (p *Palace) Store() *storage.Storage {
	return p.store
}

func (p *Palace) Close() error {
	return p.kv.Close()
}
