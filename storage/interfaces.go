package storage

import (
	"context"

	"github.com/poiesic/knowit/core"
)

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// WithTransaction executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	// The context passed to fn may contain transaction state.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Close closes the storage backend and releases resources.
	Close() error
}

// CollectionRepository provides operations for managing document collections.
type CollectionRepository interface {
	Repository
	// AddCollection adds a collection to storage.
	// For a collection with ID=0, generates a new ID from sequence.
	// Sets InsertedAt and UpdatedAt timestamps if not already set.
	// Returns the collection with the generated ID and timestamps populated.
	AddCollection(ctx context.Context, collection *core.Collection) (*core.Collection, error)

	// UpdateCollection updates an existing collection.
	// Updates the UpdatedAt timestamp automatically.
	// Returns ErrNotFound if the collection doesn't exist.
	UpdateCollection(ctx context.Context, collection *core.Collection) (*core.Collection, error)

	// DeleteCollection removes a collection by ID.
	// Deleting a missing collection is not an error.
	// Documents, chunks, indexes and jobs are not touched; cascade is the
	// caller's decision.
	DeleteCollection(ctx context.Context, id core.ID) error

	// GetCollection retrieves a single collection by ID.
	// Returns ErrNotFound if the collection doesn't exist.
	GetCollection(ctx context.Context, id core.ID) (*core.Collection, error)

	// ListCollections retrieves all collections ordered by ID.
	ListCollections(ctx context.Context) ([]*core.Collection, error)
}

// DocumentRepository provides operations for managing ingested documents.
type DocumentRepository interface {
	Repository
	// AddDocuments adds one or more documents to storage.
	// Documents carry content-based IDs, so re-adding identical content
	// overwrites the same record. Sets InsertedAt if not already set.
	AddDocuments(ctx context.Context, documents ...*core.Document) ([]*core.Document, error)

	// GetDocument retrieves a single document by ID.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id core.ID) (*core.Document, error)

	// ListDocuments retrieves all documents of a collection ordered by ID.
	ListDocuments(ctx context.Context, collectionID core.ID) ([]*core.Document, error)

	// DeleteDocuments removes documents by their IDs along with their
	// collection index entries. Missing IDs are ignored.
	DeleteDocuments(ctx context.Context, ids ...core.ID) error

	// DeleteDocumentsByCollection removes every document of a collection.
	DeleteDocumentsByCollection(ctx context.Context, collectionID core.ID) error
}

// ChunkRepository provides operations for managing document chunks.
type ChunkRepository interface {
	Repository
	// PutChunks inserts or overwrites chunks. Chunks carry content-based
	// IDs, so re-processing identical text lands on the same records.
	// Sets InsertedAt on first write and UpdatedAt on every write.
	PutChunks(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error)

	// GetChunk retrieves a single chunk by ID.
	// Returns ErrNotFound if the chunk doesn't exist.
	GetChunk(ctx context.Context, id core.ID) (*core.Chunk, error)

	// ListChunksByDocument retrieves a document's chunks ordered by their
	// position in the document.
	ListChunksByDocument(ctx context.Context, documentID core.ID) ([]*core.Chunk, error)

	// ListChunksByCollection retrieves every chunk of a collection.
	// Order follows chunk IDs, not document positions.
	ListChunksByCollection(ctx context.Context, collectionID core.ID) ([]*core.Chunk, error)

	// DeleteChunksByDocument removes every chunk of a document.
	DeleteChunksByDocument(ctx context.Context, documentID core.ID) error

	// DeleteChunksByCollection removes every chunk of a collection.
	DeleteChunksByCollection(ctx context.Context, collectionID core.ID) error
}

// IndexRepository provides operations for managing vector indexes.
type IndexRepository interface {
	Repository
	// AddIndex adds a vector index to storage.
	// For an index with ID=0, generates a new ID from sequence.
	// Sets InsertedAt and UpdatedAt timestamps if not already set.
	AddIndex(ctx context.Context, index *core.VectorIndex) (*core.VectorIndex, error)

	// UpdateIndex updates an existing index.
	// Updates the UpdatedAt timestamp automatically.
	// Returns ErrNotFound if the index doesn't exist.
	UpdateIndex(ctx context.Context, index *core.VectorIndex) (*core.VectorIndex, error)

	// DeleteIndex removes an index by ID.
	// Deleting a missing index is not an error.
	DeleteIndex(ctx context.Context, id core.ID) error

	// GetIndex retrieves a single index by ID.
	// Returns ErrNotFound if the index doesn't exist.
	GetIndex(ctx context.Context, id core.ID) (*core.VectorIndex, error)

	// ListIndexes retrieves all indexes ordered by ID.
	ListIndexes(ctx context.Context) ([]*core.VectorIndex, error)

	// ListIndexesByCollection retrieves all indexes of a collection.
	ListIndexesByCollection(ctx context.Context, collectionID core.ID) ([]*core.VectorIndex, error)
}

// JobRepository provides operations for managing ingestion jobs.
type JobRepository interface {
	Repository
	// AddJob adds a job to storage.
	// For a job with ID=0, generates a new ID from sequence.
	// Sets InsertedAt and UpdatedAt timestamps if not already set.
	AddJob(ctx context.Context, job *core.Job) (*core.Job, error)

	// UpdateJob updates an existing job.
	// Updates the UpdatedAt timestamp automatically.
	// Returns ErrNotFound if the job doesn't exist.
	UpdateJob(ctx context.Context, job *core.Job) (*core.Job, error)

	// GetJob retrieves a single job by ID.
	// Returns ErrNotFound if the job doesn't exist.
	GetJob(ctx context.Context, id core.ID) (*core.Job, error)

	// ListJobsByCollection retrieves all jobs of a collection ordered by ID.
	ListJobsByCollection(ctx context.Context, collectionID core.ID) ([]*core.Job, error)

	// ListActiveJobs retrieves every job still in a non-terminal state.
	ListActiveJobs(ctx context.Context) ([]*core.Job, error)
}
