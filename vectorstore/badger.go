package vectorstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/poiesic/knowit/core"
	"github.com/poiesic/knowit/storage"
	badgerstore "github.com/poiesic/knowit/storage/badger"
)

// BadgerStore keeps vectors in the same embedded database as the
// repositories, under a per-index keyspace. Similarity is the dot
// product, which equals cosine similarity because stored and query
// vectors are normalized.
type BadgerStore struct {
	backend *badgerstore.Backend
}

var _ Store = (*BadgerStore)(nil)

// NewBadgerStore wraps an already open backend. The caller keeps
// ownership of the backend; Close here is a no-op.
func NewBadgerStore(backend *badgerstore.Backend) (*BadgerStore, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: badger store requires an open backend", core.ErrConfiguration)
	}
	return &BadgerStore{backend: backend}, nil
}

// Upsert writes every record under (indexID, chunkID). Records land in
// one transaction, so a write failure rejects the whole batch.
func (s *BadgerStore) Upsert(ctx context.Context, indexID core.ID, records []*core.VectorRecord) (*UpsertResult, error) {
	result := &UpsertResult{}
	if len(records) == 0 {
		return result, nil
	}

	err := s.backend.WithTx(func(tx *badger.Txn) error {
		for _, record := range records {
			key := badgerstore.MakeVectorKey(indexID, record.ChunkId)
			if err := tx.Set(key, storage.MarshalVectorRecord(record)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	if err != nil {
		for _, record := range records {
			result.Failed = append(result.Failed, RecordError{ChunkId: record.ChunkId, Err: err})
		}
		return result, fmt.Errorf("%w: %w: index %d: %w", core.ErrProvider, ErrUpsert, indexID, err)
	}

	result.Succeeded = len(records)
	return result, nil
}

// Search scans the index keyspace and scores every stored vector.
// Records without a vector are skipped.
func (s *BadgerStore) Search(ctx context.Context, indexID core.ID, vector []float32, opts SearchOptions) ([]Match, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = core.DefaultTopK
	}

	var matches []Match
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = badgerstore.MakePartialVectorKey(indexID)
		iter := tx.NewIterator(iterOpts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var record *core.VectorRecord
			err := iter.Item().Value(func(val []byte) error {
				var unmarshalErr error
				record, unmarshalErr = storage.UnmarshalVectorRecord(val)
				return unmarshalErr
			})
			if err != nil {
				return err
			}
			if record == nil || len(record.Vector) == 0 {
				continue
			}

			score := float64(dotProduct(vector, record.Vector))
			if score < opts.MinScore {
				continue
			}
			matches = append(matches, Match{
				ChunkId:    record.ChunkId,
				DocumentId: record.DocumentId,
				ChunkIndex: record.ChunkIndex,
				Text:       record.Text,
				Metadata:   record.Metadata,
				Score:      score,
			})
		}
		return nil
	}, false)
	if err != nil {
		return nil, fmt.Errorf("%w: search index %d: %w", core.ErrProvider, indexID, err)
	}

	slices.SortFunc(matches, compareMatches)
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// DeleteIndex removes every vector stored for the index.
func (s *BadgerStore) DeleteIndex(ctx context.Context, indexID core.ID) error {
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = badgerstore.MakePartialVectorKey(indexID)
		iterOpts.PrefetchValues = false
		iter := tx.NewIterator(iterOpts)

		// Collect first; deleting under a live iterator is undefined.
		var keys [][]byte
		for iter.Rewind(); iter.Valid(); iter.Next() {
			keys = append(keys, iter.Item().KeyCopy(nil))
		}
		iter.Close()

		for _, key := range keys {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return fmt.Errorf("%w: delete index %d: %w", core.ErrProvider, indexID, err)
	}
	return nil
}

// Close is a no-op; the backend is shared with the repositories and
// closed by its owner.
func (s *BadgerStore) Close() error {
	return nil
}

// compareMatches orders by score descending, then chunk index, then
// chunk ID, so equal scores rank deterministically.
func compareMatches(a, b Match) int {
	switch {
	case a.Score > b.Score:
		return -1
	case a.Score < b.Score:
		return 1
	}
	if a.ChunkIndex != b.ChunkIndex {
		return cmp.Compare(a.ChunkIndex, b.ChunkIndex)
	}
	return cmp.Compare(a.ChunkId, b.ChunkId)
}

// dotProduct calculates the dot product of two vectors.
func dotProduct(a, b []float32) float32 {
	var sum float32
	for i := 0; i < min(len(a), len(b)); i++ {
		sum += a[i] * b[i]
	}
	return sum
}
