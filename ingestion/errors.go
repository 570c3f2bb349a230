package ingestion

import "errors"

var (
	// ErrCollectionRepositoryRequired is returned when a collection repository is not provided.
	ErrCollectionRepositoryRequired = errors.New("collection repository required")

	// ErrDocumentRepositoryRequired is returned when a document repository is not provided.
	ErrDocumentRepositoryRequired = errors.New("document repository required")

	// ErrChunkRepositoryRequired is returned when a chunk repository is not provided.
	ErrChunkRepositoryRequired = errors.New("chunk repository required")

	// ErrIndexRepositoryRequired is returned when an index repository is not provided.
	ErrIndexRepositoryRequired = errors.New("index repository required")

	// ErrTrackerRequired is returned when a job tracker is not provided.
	ErrTrackerRequired = errors.New("job tracker required")

	// ErrRegistryRequired is returned when a provider registry is not provided.
	ErrRegistryRequired = errors.New("provider registry required")

	// ErrStoreFactoryRequired is returned when a vector store factory is not provided.
	ErrStoreFactoryRequired = errors.New("vector store factory required")
)
