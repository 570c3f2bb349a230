// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package knowit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/knowit/core"
	"github.com/poiesic/knowit/ingestion"
	"github.com/poiesic/knowit/jobs"
	"github.com/poiesic/knowit/parse"
	"github.com/poiesic/knowit/providers"
	"github.com/poiesic/knowit/retrieval"
	"github.com/poiesic/knowit/storage"
	badgerstore "github.com/poiesic/knowit/storage/badger"
	"github.com/poiesic/knowit/vectorstore"
)

// DefaultPollInterval paces WaitForJob and the CLI status watcher.
const DefaultPollInterval = 2 * time.Second

// Service bundles the repositories, the job tracker, the ingestion
// coordinator and the retrieval planner behind one handle. Open wires the
// pieces together; Close releases them in reverse order.
type Service struct {
	repos       *badgerstore.Repositories
	tracker     *jobs.Tracker
	registry    *providers.Registry
	stores      *vectorstore.Factory
	coordinator *ingestion.Coordinator
	planner     *retrieval.Planner
	logger      *slog.Logger
}

type serviceOptions struct {
	registry    *providers.Registry
	poolSize    int
	callTimeout time.Duration
	parser      parse.Parser
	logger      *slog.Logger
}

// Option configures a Service during Open.
type Option func(*serviceOptions)

// WithRegistry replaces the provider registry built from the process
// environment.
func WithRegistry(registry *providers.Registry) Option {
	return func(o *serviceOptions) {
		if registry != nil {
			o.registry = registry
		}
	}
}

// WithPoolSize sets the worker pool size of the ingestion coordinator.
func WithPoolSize(size int) Option {
	return func(o *serviceOptions) {
		o.poolSize = size
	}
}

// WithCallTimeout bounds individual embedding and vector store calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(o *serviceOptions) {
		o.callTimeout = timeout
	}
}

// WithParser replaces the parser documents are read with.
func WithParser(parser parse.Parser) Option {
	return func(o *serviceOptions) {
		o.parser = parser
	}
}

// WithLogger sets the logger shared by all components.
func WithLogger(logger *slog.Logger) Option {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Open creates or opens the knowledge base rooted at filePath and returns a
// ready Service. Jobs left queued or processing by an earlier shutdown are
// failed before Open returns.
func Open(filePath string, opts ...Option) (*Service, error) {
	options := &serviceOptions{
		registry: providers.NewRegistry(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	repos, err := badgerstore.NewRepositories(filePath)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	tracker, err := jobs.NewTracker(repos.Jobs, repos.Collections)
	if err != nil {
		repos.Close()
		return nil, err
	}

	// The postgres DSN is optional here. Indexes on the pgvector store
	// validate it when they are created.
	dsn, _ := options.registry.PostgresDSN()
	stores := vectorstore.NewFactory(repos.Backend(), dsn)

	coordinatorOpts := []ingestion.Option{ingestion.WithLogger(options.logger)}
	if options.poolSize > 0 {
		coordinatorOpts = append(coordinatorOpts, ingestion.WithPoolSize(options.poolSize))
	}
	if options.callTimeout > 0 {
		coordinatorOpts = append(coordinatorOpts, ingestion.WithCallTimeout(options.callTimeout))
	}
	if options.parser != nil {
		coordinatorOpts = append(coordinatorOpts, ingestion.WithParser(options.parser))
	}

	coordinator, err := ingestion.NewCoordinator(
		repos.Collections, repos.Documents, repos.Chunks, repos.Indexes,
		tracker, options.registry, stores, coordinatorOpts...)
	if err != nil {
		stores.Close()
		repos.Close()
		return nil, err
	}

	planner, err := retrieval.NewPlanner(repos.Chunks, repos.Indexes,
		options.registry, stores, retrieval.WithLogger(options.logger))
	if err != nil {
		coordinator.Release()
		stores.Close()
		repos.Close()
		return nil, err
	}

	service := &Service{
		repos:       repos,
		tracker:     tracker,
		registry:    options.registry,
		stores:      stores,
		coordinator: coordinator,
		planner:     planner,
		logger:      options.logger,
	}

	recovered, err := tracker.RecoverInterrupted(context.Background())
	if err != nil {
		service.Close()
		return nil, fmt.Errorf("recovering interrupted jobs: %w", err)
	}
	if recovered > 0 {
		options.logger.Warn("failed jobs interrupted by an earlier shutdown", "count", recovered)
	}

	return service, nil
}

// Close stops the ingestion workers and closes the vector stores and the
// repositories. Vector store errors are logged; the storage error is
// returned.
func (s *Service) Close() error {
	s.coordinator.Release()
	if err := s.stores.Close(); err != nil {
		s.logger.Error("error closing vector stores", "error", err)
	}
	return s.repos.Close()
}

// CollectionSpec describes a collection to create.
type CollectionSpec struct {
	Name        string
	Description string
	Config      core.ProcessingConfig
}

// CreateCollection stores a new collection and, when inputs are given,
// starts an ingestion job for them. A collection without a name is named
// after its id. When the job fails to start the created collection is
// returned alongside the error.
func (s *Service) CreateCollection(ctx context.Context, spec CollectionSpec, inputs ...parse.Input) (*core.Collection, *core.Job, error) {
	config := spec.Config
	config.Normalize()
	if err := core.ValidateProcessingConfig(&config); err != nil {
		return nil, nil, err
	}

	collection, err := s.repos.Collections.AddCollection(ctx, &core.Collection{
		Name:        spec.Name,
		Description: spec.Description,
		Config:      config,
		Status:      core.StatusPending,
	})
	if err != nil {
		return nil, nil, err
	}

	if collection.Name == "" {
		collection.Name = fmt.Sprintf("collection-%d", collection.Id)
		if collection, err = s.repos.Collections.UpdateCollection(ctx, collection); err != nil {
			return nil, nil, err
		}
	}
	s.logger.Info("created collection", "collection_id", collection.Id, "name", collection.Name)

	var job *core.Job
	if len(inputs) > 0 {
		if job, err = s.coordinator.Run(ctx, collection.Id, inputs); err != nil {
			return collection, nil, err
		}
	}
	return collection, job, nil
}

// AddDocuments starts an ingestion job that parses, chunks and embeds the
// inputs into the collection. The returned job is queued; poll it with
// JobStatus or WaitForJob.
func (s *Service) AddDocuments(ctx context.Context, collectionID core.ID, inputs ...parse.Input) (*core.Job, error) {
	return s.coordinator.Run(ctx, collectionID, inputs)
}

// JobStatus returns the current state of a job.
func (s *Service) JobStatus(ctx context.Context, jobID core.ID) (*core.Job, error) {
	return s.tracker.Snapshot(ctx, jobID)
}

// WaitForJob polls a job until it reaches a terminal status or ctx ends.
// A poll of zero or less falls back to DefaultPollInterval. On context end
// the last observed job is returned with the context error.
func (s *Service) WaitForJob(ctx context.Context, jobID core.ID, poll time.Duration) (*core.Job, error) {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		job, err := s.tracker.Snapshot(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.Status.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

// IndexSpec describes an index to create. Zero values fall back to
// defaults: vector strategy, the embedded badger store, DefaultTopK, and
// the weights the strategy pins.
type IndexSpec struct {
	Name              string
	Description       string
	CollectionId      core.ID
	EmbeddingProvider core.EmbeddingProvider
	EmbeddingModel    string
	Store             core.StoreProvider
	Strategy          core.SearchStrategy
	SemanticWeight    float64
	KeywordWeight     float64
	TopK              int
	ScoreThreshold    float64
}

// CreateIndex stores a new index on a collection. Provider credentials are
// checked before the index is written so a misconfigured provider never
// leaves an index behind. When the collection already holds documents a
// build job embeds them; fulltext indexes rank from stored chunks and are
// ready immediately.
func (s *Service) CreateIndex(ctx context.Context, spec IndexSpec) (*core.VectorIndex, *core.Job, error) {
	collection, err := s.GetCollection(ctx, spec.CollectionId)
	if err != nil {
		return nil, nil, err
	}

	index := &core.VectorIndex{
		Name:              spec.Name,
		Description:       spec.Description,
		CollectionId:      collection.Id,
		EmbeddingProvider: spec.EmbeddingProvider,
		EmbeddingModel:    spec.EmbeddingModel,
		Store:             spec.Store,
		Strategy:          spec.Strategy,
		SemanticWeight:    spec.SemanticWeight,
		KeywordWeight:     spec.KeywordWeight,
		TopK:              spec.TopK,
		ScoreThreshold:    spec.ScoreThreshold,
		Status:            core.StatusPending,
	}
	applyIndexDefaults(index)

	if err := core.ValidateVectorIndex(index); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", core.ErrConfiguration, err)
	}
	if index.Strategy != core.StrategyFulltext {
		if err := s.registry.ValidateEmbedding(index.EmbeddingProvider); err != nil {
			return nil, nil, err
		}
		if err := s.registry.ValidateStore(index.Store); err != nil {
			return nil, nil, err
		}
		if index.EmbeddingModel == "" {
			// Pin the provider default so the record names the model it
			// embeds with.
			spec, err := s.registry.EmbeddingSpec(index.EmbeddingProvider)
			if err != nil {
				return nil, nil, err
			}
			index.EmbeddingModel = spec.DefaultModel
		}
	}

	documents, err := s.repos.Documents.ListDocuments(ctx, collection.Id)
	if err != nil {
		return nil, nil, err
	}

	index, err = s.repos.Indexes.AddIndex(ctx, index)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("created index",
		"index_id", index.Id,
		"collection_id", collection.Id,
		"strategy", index.Strategy.String())

	if len(documents) == 0 {
		return index, nil, nil
	}

	if index.Strategy == core.StrategyFulltext {
		// Chunks already stored are searchable without any embedding work.
		index.Status = core.StatusReady
		index.DocumentCount = collection.DocumentCount
		index.ChunkCount = collection.ChunkCount
		if index, err = s.repos.Indexes.UpdateIndex(ctx, index); err != nil {
			return index, nil, err
		}
		return index, nil, nil
	}

	job, err := s.coordinator.RunIndexBuild(ctx, collection.Id, index.Id)
	if err != nil {
		return index, nil, err
	}
	return index, job, nil
}

func applyIndexDefaults(index *core.VectorIndex) {
	if index.Strategy == 0 {
		index.Strategy = core.StrategyVector
	}
	if index.Store == "" {
		index.Store = core.StoreBadger
	}
	if index.TopK == 0 {
		index.TopK = core.DefaultTopK
	}
	if index.SemanticWeight != 0 || index.KeywordWeight != 0 {
		return
	}
	// Unset weights take the values the strategy pins. Hybrid weights stay
	// explicit and fail validation when absent.
	switch index.Strategy {
	case core.StrategyVector:
		index.SemanticWeight = 1
	case core.StrategyFulltext:
		index.KeywordWeight = 1
	}
}

// Query runs a search against an index. Nil opts use the index defaults.
func (s *Service) Query(ctx context.Context, indexID core.ID, query string, opts *retrieval.SearchOptions) ([]retrieval.Result, error) {
	return s.planner.Search(ctx, indexID, query, opts)
}

// DeleteIndex removes an index and its stored vectors. Deleting an index
// that does not exist is a no-op.
func (s *Service) DeleteIndex(ctx context.Context, indexID core.ID) error {
	index, err := s.repos.Indexes.GetIndex(ctx, indexID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}

	if index.Strategy != core.StrategyFulltext {
		store, err := s.stores.Open(ctx, index.Store)
		if err != nil {
			// The index record still has to go even when its store is
			// unreachable.
			s.logger.Warn("skipping vector cleanup", "index_id", indexID, "error", err)
		} else if err := store.DeleteIndex(ctx, indexID); err != nil {
			return err
		}
	}

	if err := s.repos.Indexes.DeleteIndex(ctx, indexID); err != nil {
		return err
	}
	s.logger.Info("deleted index", "index_id", indexID)
	return nil
}

// DeleteCollection removes a collection with its documents and chunks.
// Indexes on the collection block deletion unless cascade is set, and a
// running job blocks it always. Deleting a collection that does not exist
// is a no-op. Job history is kept.
func (s *Service) DeleteCollection(ctx context.Context, collectionID core.ID, cascade bool) error {
	if jobID, active := s.tracker.ActiveJob(collectionID); active {
		return fmt.Errorf("%w: collection %d is busy with job %d", core.ErrJobActive, collectionID, jobID)
	}

	if _, err := s.repos.Collections.GetCollection(ctx, collectionID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}

	indexes, err := s.repos.Indexes.ListIndexesByCollection(ctx, collectionID)
	if err != nil {
		return err
	}
	if len(indexes) > 0 && !cascade {
		return fmt.Errorf("%w: collection %d still has %d indexes", core.ErrConfiguration, collectionID, len(indexes))
	}
	for _, index := range indexes {
		if err := s.DeleteIndex(ctx, index.Id); err != nil {
			return err
		}
	}

	if err := s.repos.Chunks.DeleteChunksByCollection(ctx, collectionID); err != nil {
		return err
	}
	if err := s.repos.Documents.DeleteDocumentsByCollection(ctx, collectionID); err != nil {
		return err
	}
	if err := s.repos.Collections.DeleteCollection(ctx, collectionID); err != nil {
		return err
	}
	s.logger.Info("deleted collection", "collection_id", collectionID, "indexes", len(indexes))
	return nil
}

// GetCollection retrieves a collection by id.
func (s *Service) GetCollection(ctx context.Context, id core.ID) (*core.Collection, error) {
	collection, err := s.repos.Collections.GetCollection(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: collection %d", core.ErrNotFound, id)
		}
		return nil, err
	}
	return collection, nil
}

// ListCollections retrieves every collection ordered by id.
func (s *Service) ListCollections(ctx context.Context) ([]*core.Collection, error) {
	return s.repos.Collections.ListCollections(ctx)
}

// ListDocuments retrieves the documents of a collection ordered by id.
func (s *Service) ListDocuments(ctx context.Context, collectionID core.ID) ([]*core.Document, error) {
	return s.repos.Documents.ListDocuments(ctx, collectionID)
}

// GetIndex retrieves an index by id.
func (s *Service) GetIndex(ctx context.Context, id core.ID) (*core.VectorIndex, error) {
	index, err := s.repos.Indexes.GetIndex(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: index %d", core.ErrNotFound, id)
		}
		return nil, err
	}
	return index, nil
}

// ListIndexes retrieves the indexes of a collection.
func (s *Service) ListIndexes(ctx context.Context, collectionID core.ID) ([]*core.VectorIndex, error) {
	return s.repos.Indexes.ListIndexesByCollection(ctx, collectionID)
}

// ListJobs retrieves the jobs recorded for a collection ordered by id.
func (s *Service) ListJobs(ctx context.Context, collectionID core.ID) ([]*core.Job, error) {
	return s.repos.Jobs.ListJobsByCollection(ctx, collectionID)
}
