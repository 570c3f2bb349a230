package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/knowit/core"
	"github.com/poiesic/knowit/storage"
)

// DocumentRepository implements storage.DocumentRepository for BadgerDB.
type DocumentRepository struct {
	backend *Backend
}

var _ storage.DocumentRepository = (*DocumentRepository)(nil)

// NewDocumentRepository creates a new DocumentRepository.
// Documents use content-based IDs, so no sequence is needed.
func NewDocumentRepository(backend *Backend) *DocumentRepository {
	return &DocumentRepository{
		backend: backend,
	}
}

// Close is a no-op; the repository holds no resources of its own.
func (r *DocumentRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *DocumentRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// AddDocuments adds one or more documents to storage.
func (r *DocumentRepository) AddDocuments(ctx context.Context, documents ...*core.Document) ([]*core.Document, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, document := range documents {
			if document.Id == 0 {
				document.Id = core.DocumentID(document.CollectionId, document.Filename, document.Contents)
			}
			if document.InsertedAt.IsZero() {
				document.InsertedAt = time.Now().UTC()
			}

			// Store primary record
			key := makeDocumentKey(document.Id)
			value := storage.MarshalDocument(document)
			if err := tx.Set(key, value); err != nil {
				return err
			}

			// Update collection index
			colKey := makeDocumentCollectionKey(document.CollectionId, document.Id)
			if err := tx.Set(colKey, storage.MarshalID(document.Id)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)

	return documents, err
}

// GetDocument retrieves a single document by ID.
func (r *DocumentRepository) GetDocument(ctx context.Context, id core.ID) (*core.Document, error) {
	var result *core.Document
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readDocument(tx, makeDocumentKey(id))
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

// ListDocuments retrieves all documents of a collection ordered by ID.
func (r *DocumentRepository) ListDocuments(ctx context.Context, collectionID core.ID) ([]*core.Document, error) {
	var results []*core.Document
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		ids, err := scanIndexedIDs(tx, makePartialDocumentCollectionKey(collectionID))
		if err != nil {
			return err
		}
		for _, id := range ids {
			document, err := readDocument(tx, makeDocumentKey(id))
			if err != nil {
				return err
			}
			if document != nil {
				results = append(results, document)
			}
		}
		return nil
	}, false)
	return results, err
}

// DeleteDocuments removes documents by their IDs.
func (r *DocumentRepository) DeleteDocuments(ctx context.Context, ids ...core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			key := makeDocumentKey(id)
			document, err := readDocument(tx, key)
			if err != nil {
				return err
			}
			if document == nil {
				continue
			}

			colKey := makeDocumentCollectionKey(document.CollectionId, document.Id)
			if err := tx.Delete(colKey); err != nil {
				return err
			}
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// DeleteDocumentsByCollection removes every document of a collection.
func (r *DocumentRepository) DeleteDocumentsByCollection(ctx context.Context, collectionID core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		ids, err := scanIndexedIDs(tx, makePartialDocumentCollectionKey(collectionID))
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := tx.Delete(makeDocumentCollectionKey(collectionID, id)); err != nil {
				return err
			}
			if err := tx.Delete(makeDocumentKey(id)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// readDocument reads a document from the transaction.
// Returns nil, nil when the key does not exist.
func readDocument(tx *badger.Txn, key []byte) (*core.Document, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var document *core.Document
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		document, unmarshalErr = storage.UnmarshalDocument(val)
		return unmarshalErr
	})
	return document, err
}

// scanIndexedIDs collects the ID values stored under a composite index
// prefix, in key order.
func scanIndexedIDs(tx *badger.Txn, prefix []byte) ([]core.ID, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	iter := tx.NewIterator(opts)
	defer iter.Close()

	var ids []core.ID
	for iter.Rewind(); iter.Valid(); iter.Next() {
		var id core.ID
		err := iter.Item().Value(func(val []byte) error {
			var unmarshalErr error
			id, unmarshalErr = storage.UnmarshalID(val)
			return unmarshalErr
		})
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
