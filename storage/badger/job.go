package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/knowit/core"
	"github.com/poiesic/knowit/storage"
)

// JobRepository implements storage.JobRepository for BadgerDB.
type JobRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.JobRepository = (*JobRepository)(nil)

// NewJobRepository creates a new JobRepository.
func NewJobRepository(backend *Backend) (*JobRepository, error) {
	idSeq, err := backend.GetSequence(jobIDSeq)
	if err != nil {
		return nil, err
	}

	return &JobRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *JobRepository) Close() error {
	return r.idSeq.Release()
}

// WithTransaction delegates to the backend.
func (r *JobRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// AddJob adds a job to storage.
func (r *JobRepository) AddJob(ctx context.Context, job *core.Job) (*core.Job, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		if job.Id == 0 {
			nextID, err := nextSequenceID(r.idSeq)
			if err != nil {
				return err
			}
			job.Id = nextID
		}

		job.InsertedAt = time.Now().UTC()
		job.UpdatedAt = job.InsertedAt

		key := makeJobKey(job.Id)
		value := storage.MarshalJob(job)
		if err := tx.Set(key, value); err != nil {
			return err
		}

		colKey := makeJobCollectionKey(job.CollectionId, job.Id)
		if err := tx.Set(colKey, storage.MarshalID(job.Id)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)

	return job, err
}

// UpdateJob updates an existing job.
func (r *JobRepository) UpdateJob(ctx context.Context, job *core.Job) (*core.Job, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeJobKey(job.Id)

		old, err := readJob(tx, key)
		if err != nil {
			return err
		}
		if old == nil {
			return storage.ErrNotFound
		}

		job.InsertedAt = old.InsertedAt
		job.UpdatedAt = time.Now().UTC()

		value := storage.MarshalJob(job)
		if err := tx.Set(key, value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)

	return job, err
}

// GetJob retrieves a single job by ID.
func (r *JobRepository) GetJob(ctx context.Context, id core.ID) (*core.Job, error) {
	var result *core.Job
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readJob(tx, makeJobKey(id))
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

// ListJobsByCollection retrieves all jobs of a collection ordered by ID.
func (r *JobRepository) ListJobsByCollection(ctx context.Context, collectionID core.ID) ([]*core.Job, error) {
	var results []*core.Job
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		ids, err := scanIndexedIDs(tx, makePartialJobCollectionKey(collectionID))
		if err != nil {
			return err
		}
		for _, id := range ids {
			job, err := readJob(tx, makeJobKey(id))
			if err != nil {
				return err
			}
			if job != nil {
				results = append(results, job)
			}
		}
		return nil
	}, false)
	return results, err
}

// ListActiveJobs retrieves every job still in a non-terminal state.
func (r *JobRepository) ListActiveJobs(ctx context.Context) ([]*core.Job, error) {
	var results []*core.Job
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(jobPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var job *core.Job
			err := iter.Item().Value(func(val []byte) error {
				var unmarshalErr error
				job, unmarshalErr = storage.UnmarshalJob(val)
				return unmarshalErr
			})
			if err != nil {
				return err
			}
			if !job.Status.Terminal() {
				results = append(results, job)
			}
		}
		return nil
	}, false)
	return results, err
}

// readJob reads a job from the transaction.
// Returns nil, nil when the key does not exist.
func readJob(tx *badger.Txn, key []byte) (*core.Job, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var job *core.Job
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		job, unmarshalErr = storage.UnmarshalJob(val)
		return unmarshalErr
	})
	return job, err
}
