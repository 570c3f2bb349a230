package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/poiesic/knowit/core"
	badgerstore "github.com/poiesic/knowit/storage/badger"
)

// Factory opens stores by provider and caches them, so every index on
// the same provider shares one connection.
type Factory struct {
	backend *badgerstore.Backend
	dsn     string

	mu     sync.Mutex
	stores map[core.StoreProvider]Store
}

// NewFactory wires the embedded backend and the postgres DSN. Either
// may be absent; opening a store that needs the missing half fails
// with a configuration error.
func NewFactory(backend *badgerstore.Backend, dsn string) *Factory {
	return &Factory{
		backend: backend,
		dsn:     dsn,
		stores:  make(map[core.StoreProvider]Store),
	}
}

// Open returns the store for a provider, connecting on first use.
func (f *Factory) Open(ctx context.Context, provider core.StoreProvider) (Store, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if store, ok := f.stores[provider]; ok {
		return store, nil
	}

	var (
		store Store
		err   error
	)
	switch provider {
	case core.StoreBadger:
		store, err = NewBadgerStore(f.backend)
	case core.StorePgvector:
		store, err = NewPGStore(ctx, f.dsn)
	default:
		return nil, fmt.Errorf("%w: unknown vector store provider %q", core.ErrConfiguration, provider)
	}
	if err != nil {
		return nil, err
	}

	f.stores[provider] = store
	return store, nil
}

// Close closes every store opened so far.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs []error
	for provider, store := range f.stores {
		if err := store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s store: %w", provider, err))
		}
		delete(f.stores, provider)
	}
	return errors.Join(errs...)
}
