package badger

import (
	"context"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/knowit/core"
	"github.com/poiesic/knowit/storage"
)

// IndexRepository implements storage.IndexRepository for BadgerDB.
type IndexRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.IndexRepository = (*IndexRepository)(nil)

// NewIndexRepository creates a new IndexRepository.
func NewIndexRepository(backend *Backend) (*IndexRepository, error) {
	idSeq, err := backend.GetSequence(indexIDSeq)
	if err != nil {
		return nil, err
	}

	return &IndexRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *IndexRepository) Close() error {
	return r.idSeq.Release()
}

// WithTransaction delegates to the backend.
func (r *IndexRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// AddIndex adds a vector index to storage.
func (r *IndexRepository) AddIndex(ctx context.Context, index *core.VectorIndex) (*core.VectorIndex, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		if index.Id == 0 {
			nextID, err := nextSequenceID(r.idSeq)
			if err != nil {
				return err
			}
			index.Id = nextID
		}

		index.InsertedAt = time.Now().UTC()
		index.UpdatedAt = index.InsertedAt

		key := makeIndexKey(index.Id)
		value := storage.MarshalVectorIndex(index)
		if err := tx.Set(key, value); err != nil {
			return err
		}

		colKey := makeIndexCollectionKey(index.CollectionId, index.Id)
		if err := tx.Set(colKey, storage.MarshalID(index.Id)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)

	return index, err
}

// UpdateIndex updates an existing index.
func (r *IndexRepository) UpdateIndex(ctx context.Context, index *core.VectorIndex) (*core.VectorIndex, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeIndexKey(index.Id)

		old, err := readVectorIndex(tx, key)
		if err != nil {
			return err
		}
		if old == nil {
			return storage.ErrNotFound
		}

		index.InsertedAt = old.InsertedAt
		index.UpdatedAt = time.Now().UTC()

		value := storage.MarshalVectorIndex(index)
		if err := tx.Set(key, value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)

	return index, err
}

// DeleteIndex removes an index by ID.
func (r *IndexRepository) DeleteIndex(ctx context.Context, id core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeIndexKey(id)
		index, err := readVectorIndex(tx, key)
		if err != nil {
			return err
		}
		if index == nil {
			return nil
		}

		colKey := makeIndexCollectionKey(index.CollectionId, index.Id)
		if err := tx.Delete(colKey); err != nil {
			return err
		}
		if err := tx.Delete(key); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetIndex retrieves a single index by ID.
func (r *IndexRepository) GetIndex(ctx context.Context, id core.ID) (*core.VectorIndex, error) {
	var result *core.VectorIndex
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readVectorIndex(tx, makeIndexKey(id))
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

// ListIndexes retrieves all indexes ordered by ID.
func (r *IndexRepository) ListIndexes(ctx context.Context) ([]*core.VectorIndex, error) {
	var results []*core.VectorIndex
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(indexRecordPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var index *core.VectorIndex
			err := iter.Item().Value(func(val []byte) error {
				var unmarshalErr error
				index, unmarshalErr = storage.UnmarshalVectorIndex(val)
				return unmarshalErr
			})
			if err != nil {
				return err
			}
			results = append(results, index)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(results, func(a, b *core.VectorIndex) int {
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

// ListIndexesByCollection retrieves all indexes of a collection.
func (r *IndexRepository) ListIndexesByCollection(ctx context.Context, collectionID core.ID) ([]*core.VectorIndex, error) {
	var results []*core.VectorIndex
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		ids, err := scanIndexedIDs(tx, makePartialIndexCollectionKey(collectionID))
		if err != nil {
			return err
		}
		for _, id := range ids {
			index, err := readVectorIndex(tx, makeIndexKey(id))
			if err != nil {
				return err
			}
			if index != nil {
				results = append(results, index)
			}
		}
		return nil
	}, false)
	return results, err
}

// readVectorIndex reads a vector index from the transaction.
// Returns nil, nil when the key does not exist.
func readVectorIndex(tx *badger.Txn, key []byte) (*core.VectorIndex, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var index *core.VectorIndex
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		index, unmarshalErr = storage.UnmarshalVectorIndex(val)
		return unmarshalErr
	})
	return index, err
}
