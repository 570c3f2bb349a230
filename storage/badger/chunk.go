package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/knowit/core"
	"github.com/poiesic/knowit/storage"
)

// ChunkRepository implements storage.ChunkRepository for BadgerDB.
type ChunkRepository struct {
	backend *Backend
}

var _ storage.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository creates a new ChunkRepository.
// Chunks use content-based IDs, so no sequence is needed.
func NewChunkRepository(backend *Backend) *ChunkRepository {
	return &ChunkRepository{
		backend: backend,
	}
}

// Close is a no-op; the repository holds no resources of its own.
func (r *ChunkRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *ChunkRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// PutChunks inserts or overwrites chunks.
func (r *ChunkRepository) PutChunks(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		now := time.Now().UTC()
		for _, chunk := range chunks {
			if chunk.Id == 0 {
				chunk.Id = core.ChunkID(chunk.DocumentId, chunk.Index, chunk.Text)
			}

			key := makeChunkKey(chunk.Id)
			existing, err := readChunk(tx, key)
			if err != nil {
				return err
			}
			if existing != nil {
				chunk.InsertedAt = existing.InsertedAt
			} else if chunk.InsertedAt.IsZero() {
				chunk.InsertedAt = now
			}
			chunk.UpdatedAt = now

			value := storage.MarshalChunk(chunk)
			if err := tx.Set(key, value); err != nil {
				return err
			}

			// Update document index, keyed by position
			docKey := makeChunkDocumentKey(chunk.DocumentId, chunk.Index)
			if err := tx.Set(docKey, storage.MarshalID(chunk.Id)); err != nil {
				return err
			}

			// Update collection index
			colKey := makeChunkCollectionKey(chunk.CollectionId, chunk.Id)
			if err := tx.Set(colKey, storage.MarshalID(chunk.Id)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)

	return chunks, err
}

// GetChunk retrieves a single chunk by ID.
func (r *ChunkRepository) GetChunk(ctx context.Context, id core.ID) (*core.Chunk, error) {
	var result *core.Chunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readChunk(tx, makeChunkKey(id))
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

// ListChunksByDocument retrieves a document's chunks ordered by position.
func (r *ChunkRepository) ListChunksByDocument(ctx context.Context, documentID core.ID) ([]*core.Chunk, error) {
	var results []*core.Chunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		ids, err := scanIndexedIDs(tx, makePartialChunkDocumentKey(documentID))
		if err != nil {
			return err
		}
		for _, id := range ids {
			chunk, err := readChunk(tx, makeChunkKey(id))
			if err != nil {
				return err
			}
			if chunk != nil {
				results = append(results, chunk)
			}
		}
		return nil
	}, false)
	return results, err
}

// ListChunksByCollection retrieves every chunk of a collection.
func (r *ChunkRepository) ListChunksByCollection(ctx context.Context, collectionID core.ID) ([]*core.Chunk, error) {
	var results []*core.Chunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		ids, err := scanIndexedIDs(tx, makePartialChunkCollectionKey(collectionID))
		if err != nil {
			return err
		}
		for _, id := range ids {
			chunk, err := readChunk(tx, makeChunkKey(id))
			if err != nil {
				return err
			}
			if chunk != nil {
				results = append(results, chunk)
			}
		}
		return nil
	}, false)
	return results, err
}

// DeleteChunksByDocument removes every chunk of a document.
func (r *ChunkRepository) DeleteChunksByDocument(ctx context.Context, documentID core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		ids, err := scanIndexedIDs(tx, makePartialChunkDocumentKey(documentID))
		if err != nil {
			return err
		}
		for _, id := range ids {
			chunk, err := readChunk(tx, makeChunkKey(id))
			if err != nil {
				return err
			}
			if chunk == nil {
				continue
			}
			if err := deleteChunk(tx, chunk); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// DeleteChunksByCollection removes every chunk of a collection.
func (r *ChunkRepository) DeleteChunksByCollection(ctx context.Context, collectionID core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		ids, err := scanIndexedIDs(tx, makePartialChunkCollectionKey(collectionID))
		if err != nil {
			return err
		}
		for _, id := range ids {
			chunk, err := readChunk(tx, makeChunkKey(id))
			if err != nil {
				return err
			}
			if chunk == nil {
				continue
			}
			if err := deleteChunk(tx, chunk); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// deleteChunk removes a chunk record along with its index entries.
func deleteChunk(tx *badger.Txn, chunk *core.Chunk) error {
	if err := tx.Delete(makeChunkDocumentKey(chunk.DocumentId, chunk.Index)); err != nil {
		return err
	}
	if err := tx.Delete(makeChunkCollectionKey(chunk.CollectionId, chunk.Id)); err != nil {
		return err
	}
	return tx.Delete(makeChunkKey(chunk.Id))
}

// readChunk reads a chunk from the transaction.
// Returns nil, nil when the key does not exist.
func readChunk(tx *badger.Txn, key []byte) (*core.Chunk, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var chunk *core.Chunk
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		chunk, unmarshalErr = storage.UnmarshalChunk(val)
		return unmarshalErr
	})
	return chunk, err
}
