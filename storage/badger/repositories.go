package badger

import (
	"errors"

	"github.com/poiesic/knowit/storage"
)

// Repositories bundles every BadgerDB-backed repository over one shared
// backend. All repositories see the same keyspace, so cross-entity
// reads compose without extra plumbing.
type Repositories struct {
	Collections storage.CollectionRepository
	Documents   storage.DocumentRepository
	Chunks      storage.ChunkRepository
	Indexes     storage.IndexRepository
	Jobs        storage.JobRepository

	backend *Backend
}

// NewRepositories opens a BadgerDB database at the given path and wires
// all repositories over it. Caller must Close when done.
func NewRepositories(filePath string) (*Repositories, error) {
	return newRepositories(filePath, false)
}

func newRepositories(filePath string, inMemory bool) (*Repositories, error) {
	backend, err := OpenBackend(filePath, inMemory)
	if err != nil {
		return nil, err
	}

	collections, err := NewCollectionRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	indexes, err := NewIndexRepository(backend)
	if err != nil {
		collections.Close()
		backend.Close()
		return nil, err
	}

	jobs, err := NewJobRepository(backend)
	if err != nil {
		indexes.Close()
		collections.Close()
		backend.Close()
		return nil, err
	}

	return &Repositories{
		Collections: collections,
		Documents:   NewDocumentRepository(backend),
		Chunks:      NewChunkRepository(backend),
		Indexes:     indexes,
		Jobs:        jobs,
		backend:     backend,
	}, nil
}

// Backend exposes the shared backend, for components that store their
// own keyspaces alongside the repositories.
func (r *Repositories) Backend() *Backend {
	return r.backend
}

// Close releases the repositories and then the backend.
func (r *Repositories) Close() error {
	errs := []error{
		r.Collections.Close(),
		r.Documents.Close(),
		r.Chunks.Close(),
		r.Indexes.Close(),
		r.Jobs.Close(),
		r.backend.Close(),
	}
	return errors.Join(errs...)
}
