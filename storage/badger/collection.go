package badger

import (
	"context"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/knowit/core"
	"github.com/poiesic/knowit/storage"
)

// CollectionRepository implements storage.CollectionRepository for BadgerDB.
type CollectionRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.CollectionRepository = (*CollectionRepository)(nil)

// NewCollectionRepository creates a new CollectionRepository.
func NewCollectionRepository(backend *Backend) (*CollectionRepository, error) {
	idSeq, err := backend.GetSequence(collectionIDSeq)
	if err != nil {
		return nil, err
	}

	return &CollectionRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *CollectionRepository) Close() error {
	return r.idSeq.Release()
}

// WithTransaction delegates to the backend.
func (r *CollectionRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// AddCollection adds a collection to storage.
func (r *CollectionRepository) AddCollection(ctx context.Context, collection *core.Collection) (*core.Collection, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		if collection.Id == 0 {
			nextID, err := nextSequenceID(r.idSeq)
			if err != nil {
				return err
			}
			collection.Id = nextID
		}

		collection.InsertedAt = time.Now().UTC()
		collection.UpdatedAt = collection.InsertedAt

		key := makeCollectionKey(collection.Id)
		value := storage.MarshalCollection(collection)
		if err := tx.Set(key, value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)

	return collection, err
}

// UpdateCollection updates an existing collection.
func (r *CollectionRepository) UpdateCollection(ctx context.Context, collection *core.Collection) (*core.Collection, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeCollectionKey(collection.Id)

		old, err := readCollection(tx, key)
		if err != nil {
			return err
		}
		if old == nil {
			return storage.ErrNotFound
		}

		collection.InsertedAt = old.InsertedAt
		collection.UpdatedAt = time.Now().UTC()

		value := storage.MarshalCollection(collection)
		if err := tx.Set(key, value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)

	return collection, err
}

// DeleteCollection removes a collection by ID.
func (r *CollectionRepository) DeleteCollection(ctx context.Context, id core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Delete(makeCollectionKey(id)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetCollection retrieves a single collection by ID.
func (r *CollectionRepository) GetCollection(ctx context.Context, id core.ID) (*core.Collection, error) {
	var result *core.Collection
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readCollection(tx, makeCollectionKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// ListCollections retrieves all collections ordered by ID.
func (r *CollectionRepository) ListCollections(ctx context.Context) ([]*core.Collection, error) {
	var results []*core.Collection
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(collectionPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var collection *core.Collection
			err := iter.Item().Value(func(val []byte) error {
				var unmarshalErr error
				collection, unmarshalErr = storage.UnmarshalCollection(val)
				return unmarshalErr
			})
			if err != nil {
				return err
			}
			results = append(results, collection)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	// Record keys are decimal, so iteration order is lexicographic.
	slices.SortFunc(results, func(a, b *core.Collection) int {
		switch {
		case a.Id < b.Id:
			return -1
		case a.Id > b.Id:
			return 1
		default:
			return 0
		}
	})

	return results, nil
}

// readCollection reads a collection from the transaction.
// Returns nil, nil when the key does not exist.
func readCollection(tx *badger.Txn, key []byte) (*core.Collection, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var collection *core.Collection
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		collection, unmarshalErr = storage.UnmarshalCollection(val)
		return unmarshalErr
	})
	return collection, err
}

// nextSequenceID draws the next non-zero ID from a sequence.
// BadgerDB sequences can return 0 on first call, so we skip it.
func nextSequenceID(seq *badger.Sequence) (core.ID, error) {
	nextID, err := seq.Next()
	if err != nil {
		return 0, err
	}
	if nextID == 0 {
		nextID, err = seq.Next()
		if err != nil {
			return 0, err
		}
	}
	return core.ID(nextID), nil
}
