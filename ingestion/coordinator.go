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


package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/knowit/chunking"
	"github.com/poiesic/knowit/core"
	"github.com/poiesic/knowit/embedding"
	"github.com/poiesic/knowit/jobs"
	"github.com/poiesic/knowit/parse"
	"github.com/poiesic/knowit/providers"
	"github.com/poiesic/knowit/render"
	"github.com/poiesic/knowit/storage"
	"github.com/poiesic/knowit/vectorstore"
)

// Coordinator runs ingestion jobs in the background. Each job parses,
// chunks and renders its documents, then embeds and upserts the chunks
// into every vector index of the collection.
type Coordinator struct {
	collections storage.CollectionRepository
	documents   storage.DocumentRepository
	chunks      storage.ChunkRepository
	indexes     storage.IndexRepository
	tracker     *jobs.Tracker
	registry    *providers.Registry
	stores      *vectorstore.Factory
	parser      parse.Parser
	pool        *ants.Pool
	callTimeout time.Duration
	logger      *slog.Logger
}

// indexRuntime binds one vector index to its embedding dispatcher and
// store for the duration of a job. Fulltext indexes rank from the chunk
// repository, so their dispatcher and store stay nil.
type indexRuntime struct {
	index      *core.VectorIndex
	dispatcher *embedding.Dispatcher
	store      vectorstore.Store
}

// Option configures a Coordinator.
type Option func(*Coordinator) error

// WithPoolSize sets the worker pool size for background jobs.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(c *Coordinator) error {
		if size < 1 {
			size = 1
		}

		// Release old pool
		if c.pool != nil {
			c.pool.Release()
		}

		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}

		c.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// WithParser replaces the document text extractor.
// Default is the plain-text parser.
func WithParser(parser parse.Parser) Option {
	return func(c *Coordinator) error {
		if parser == nil {
			parser = parse.NewTextParser()
		}
		c.parser = parser
		return nil
	}
}

// WithCallTimeout bounds each provider call, embedding batches and vector
// upserts alike. Default is embedding.DefaultCallTimeout.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Coordinator) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: call timeout must be positive", core.ErrConfiguration)
		}
		c.callTimeout = timeout
		return nil
	}
}

// NewCoordinator creates an ingestion coordinator.
func NewCoordinator(
	collections storage.CollectionRepository,
	documents storage.DocumentRepository,
	chunks storage.ChunkRepository,
	indexes storage.IndexRepository,
	tracker *jobs.Tracker,
	registry *providers.Registry,
	stores *vectorstore.Factory,
	opts ...Option,
) (*Coordinator, error) {
	if collections == nil {
		return nil, ErrCollectionRepositoryRequired
	}
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if indexes == nil {
		return nil, ErrIndexRepositoryRequired
	}
	if tracker == nil {
		return nil, ErrTrackerRequired
	}
	if registry == nil {
		return nil, ErrRegistryRequired
	}
	if stores == nil {
		return nil, ErrStoreFactoryRequired
	}

	// Default pool size
	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}

	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	// Create coordinator with defaults
	c := &Coordinator{
		collections: collections,
		documents:   documents,
		chunks:      chunks,
		indexes:     indexes,
		tracker:     tracker,
		registry:    registry,
		stores:      stores,
		parser:      parse.NewTextParser(),
		pool:        pool,
		callTimeout: embedding.DefaultCallTimeout,
		logger:      slog.Default().With("component", "ingestion"),
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if optErr := opt(c); optErr != nil {
			c.Release()
			return nil, optErr
		}
	}

	return c, nil
}

// Run ingests a batch of documents into a collection. The returned job is
// already registered with the tracker; the heavy work happens on the
// worker pool and callers poll the tracker for progress. One collection
// runs at most one job at a time.
func (c *Coordinator) Run(ctx context.Context, collectionID core.ID, inputs []parse.Input) (*core.Job, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: no documents to ingest", core.ErrConfiguration)
	}

	collection, err := c.loadCollection(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	if err := core.ValidateProcessingConfig(&collection.Config); err != nil {
		return nil, err
	}

	job, err := c.tracker.Create(ctx, collectionID, 0, len(inputs))
	if err != nil {
		return nil, err
	}

	if err := c.pool.Submit(func() {
		c.runIngest(context.Background(), job.Id, collection, inputs)
	}); err != nil {
		c.failJob(ctx, job.Id, err)
		return nil, err
	}

	return job, nil
}

// RunIndexBuild embeds a collection's existing chunks into one index. It
// is used when an index is added to a collection that already holds
// documents. Collections without documents have nothing to build.
func (c *Coordinator) RunIndexBuild(ctx context.Context, collectionID, indexID core.ID) (*core.Job, error) {
	collection, err := c.loadCollection(ctx, collectionID)
	if err != nil {
		return nil, err
	}

	index, err := c.indexes.GetIndex(ctx, indexID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: index %d", core.ErrNotFound, indexID)
		}
		return nil, err
	}

	documents, err := c.documents.ListDocuments(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	if len(documents) == 0 {
		return nil, fmt.Errorf("%w: collection %d has no documents to index", core.ErrConfiguration, collectionID)
	}

	job, err := c.tracker.Create(ctx, collectionID, indexID, len(documents))
	if err != nil {
		return nil, err
	}

	if err := c.pool.Submit(func() {
		c.runBuild(context.Background(), job.Id, collection, index, documents)
	}); err != nil {
		c.failJob(ctx, job.Id, err)
		return nil, err
	}

	return job, nil
}

// Release stops the worker pool. In-flight jobs run to completion; the
// coordinator must not be used afterwards.
func (c *Coordinator) Release() {
	if c.pool != nil {
		c.pool.Release()
	}
}

// runIngest is the worker body of Run.
func (c *Coordinator) runIngest(ctx context.Context, jobID core.ID, collection *core.Collection, inputs []parse.Input) {
	logger := c.logger.With("job_id", jobID, "collection_id", collection.Id)

	if err := c.tracker.Start(ctx, jobID); err != nil {
		logger.Error("failed to start job", "err", err)
		return
	}

	engine, err := chunking.NewEngine(collection.Config)
	if err != nil {
		c.abort(ctx, jobID, nil, err)
		return
	}
	renderer, err := render.NewFromConfig(collection.Config)
	if err != nil {
		c.abort(ctx, jobID, nil, err)
		return
	}

	runtimes, err := c.openIndexes(ctx, collection)
	if err != nil {
		c.abort(ctx, jobID, nil, err)
		return
	}
	if err := c.markProcessing(ctx, runtimes); err != nil {
		c.abort(ctx, jobID, runtimes, err)
		return
	}

	persistVectors := false
	for _, rt := range runtimes {
		if rt.dispatcher != nil {
			persistVectors = true
		}
	}

	var processed, failed, totalChunks, processedChunks int
	report := func(step string) {
		err := c.tracker.UpdateProgress(ctx, jobID, jobs.Progress{
			ProcessedFiles:  processed,
			FailedFiles:     failed,
			TotalChunks:     totalChunks,
			ProcessedChunks: processedChunks,
			CurrentStep:     step,
		})
		if err != nil {
			logger.Warn("failed to record progress", "err", err)
		}
	}

	for i, input := range inputs {
		label := fmt.Sprintf("document %d/%d", i+1, len(inputs))
		report(label + ": parsing")

		text, err := c.parser.Parse(ctx, input)
		if err != nil {
			failed++
			if len(inputs) == 1 {
				c.abort(ctx, jobID, runtimes, err)
				return
			}
			logger.Warn("skipping document", "filename", input.Filename, "err", err)
			report(label + ": parse failed")
			continue
		}

		report(label + ": chunking")
		chunks, err := c.storeDocument(ctx, collection.Id, input, text, engine, renderer)
		if err != nil {
			c.abort(ctx, jobID, runtimes, err)
			return
		}
		totalChunks += len(chunks)

		for _, rt := range runtimes {
			if rt.dispatcher == nil {
				continue
			}
			report(fmt.Sprintf("%s: embedding for index %s", label, rt.index.Name))
			if err := c.embedAndStore(ctx, rt, chunks, logger); err != nil {
				c.abort(ctx, jobID, runtimes, err)
				return
			}
		}

		// Record the vectors the chunks picked up during the index passes.
		if persistVectors && len(chunks) > 0 {
			if _, err := c.chunks.PutChunks(ctx, chunks...); err != nil {
				c.abort(ctx, jobID, runtimes, err)
				return
			}
		}

		processed++
		processedChunks += len(chunks)
		report(label + ": done")
	}

	c.finish(ctx, jobID, collection.Id, runtimes, logger)
}

// runBuild is the worker body of RunIndexBuild. Parsing and chunking
// already happened during ingestion, so the loop embeds stored chunks.
func (c *Coordinator) runBuild(ctx context.Context, jobID core.ID, collection *core.Collection, index *core.VectorIndex, documents []*core.Document) {
	logger := c.logger.With("job_id", jobID, "collection_id", collection.Id, "index_id", index.Id)

	if err := c.tracker.Start(ctx, jobID); err != nil {
		logger.Error("failed to start job", "err", err)
		return
	}

	rt, err := c.openIndex(ctx, index, collection.Config)
	if err != nil {
		c.abort(ctx, jobID, []*indexRuntime{{index: index}}, err)
		return
	}
	runtimes := []*indexRuntime{rt}
	if err := c.markProcessing(ctx, runtimes); err != nil {
		c.abort(ctx, jobID, runtimes, err)
		return
	}

	var processed, totalChunks, processedChunks int
	report := func(step string) {
		err := c.tracker.UpdateProgress(ctx, jobID, jobs.Progress{
			ProcessedFiles:  processed,
			TotalChunks:     totalChunks,
			ProcessedChunks: processedChunks,
			CurrentStep:     step,
		})
		if err != nil {
			logger.Warn("failed to record progress", "err", err)
		}
	}

	for i, document := range documents {
		label := fmt.Sprintf("document %d/%d", i+1, len(documents))
		report(label + ": loading chunks")

		chunks, err := c.chunks.ListChunksByDocument(ctx, document.Id)
		if err != nil {
			c.abort(ctx, jobID, runtimes, err)
			return
		}
		totalChunks += len(chunks)

		if rt.dispatcher != nil && len(chunks) > 0 {
			report(label + ": embedding")
			if err := c.embedAndStore(ctx, rt, chunks, logger); err != nil {
				c.abort(ctx, jobID, runtimes, err)
				return
			}
			if _, err := c.chunks.PutChunks(ctx, chunks...); err != nil {
				c.abort(ctx, jobID, runtimes, err)
				return
			}
		}

		processed++
		processedChunks += len(chunks)
		report(label + ": done")
	}

	c.finish(ctx, jobID, collection.Id, runtimes, logger)
}

// openIndexes builds a runtime for every index of the collection.
// Credential problems surface here, before any document is touched.
func (c *Coordinator) openIndexes(ctx context.Context, collection *core.Collection) ([]*indexRuntime, error) {
	indexes, err := c.indexes.ListIndexesByCollection(ctx, collection.Id)
	if err != nil {
		return nil, err
	}

	runtimes := make([]*indexRuntime, 0, len(indexes))
	for _, index := range indexes {
		rt, err := c.openIndex(ctx, index, collection.Config)
		if err != nil {
			return nil, fmt.Errorf("index %s: %w", index.Name, err)
		}
		runtimes = append(runtimes, rt)
	}
	return runtimes, nil
}

// openIndex validates an index's providers and constructs its dispatcher
// and store.
func (c *Coordinator) openIndex(ctx context.Context, index *core.VectorIndex, config core.ProcessingConfig) (*indexRuntime, error) {
	// Fulltext indexes rank from the chunk repository and never touch an
	// embedder or a vector store.
	if index.Strategy == core.StrategyFulltext {
		return &indexRuntime{index: index}, nil
	}

	if err := c.registry.ValidateStore(index.Store); err != nil {
		return nil, err
	}

	embedder, err := c.registry.OpenEmbedder(index.EmbeddingProvider, index.EmbeddingModel)
	if err != nil {
		return nil, err
	}

	dispatcher, err := embedding.NewDispatcher(embedder,
		embedding.WithBatchSize(config.EmbeddingBatchSize),
		embedding.WithMinLength(config.MinChunkLengthToEmbed),
		embedding.WithCallTimeout(c.callTimeout),
		embedding.WithLogger(c.logger),
	)
	if err != nil {
		return nil, err
	}

	store, err := c.stores.Open(ctx, index.Store)
	if err != nil {
		return nil, err
	}

	return &indexRuntime{index: index, dispatcher: dispatcher, store: store}, nil
}

// storeDocument persists the parsed document and its rendered chunks.
func (c *Coordinator) storeDocument(ctx context.Context, collectionID core.ID, input parse.Input, text string, engine *chunking.Engine, renderer *render.Renderer) ([]*core.Chunk, error) {
	added, err := c.documents.AddDocuments(ctx, &core.Document{
		CollectionId: collectionID,
		Filename:     input.Filename,
		SourceId:     input.SourceId,
		Contents:     text,
	})
	if err != nil {
		return nil, err
	}
	document := added[0]

	spans := engine.Split(text)
	chunks := make([]*core.Chunk, len(spans))
	for i, span := range spans {
		rendered, metadata := renderer.Render(span.Text)
		chunks[i] = &core.Chunk{
			DocumentId:   document.Id,
			CollectionId: collectionID,
			Index:        span.Index,
			Text:         span.Text,
			RenderedText: rendered,
			Metadata:     metadata,
			IsEnd:        i == len(spans)-1,
		}
	}
	return c.chunks.PutChunks(ctx, chunks...)
}

// embedAndStore embeds a document's chunks for one index and upserts the
// vectors. The returned error is job-fatal; recoverable partial failures
// are logged and absorbed.
func (c *Coordinator) embedAndStore(ctx context.Context, rt *indexRuntime, chunks []*core.Chunk, logger *slog.Logger) error {
	// Clear vectors left over from a previous index pass or an earlier
	// job. A chunk whose batch fails must not keep another model's
	// embedding.
	for _, chunk := range chunks {
		chunk.Vector = nil
	}

	result, err := rt.dispatcher.Dispatch(ctx, chunks)
	if err != nil {
		return err
	}
	if result.AllFailed() {
		return fmt.Errorf("%w: index %s: every embedding batch failed: %w",
			core.ErrProvider, rt.index.Name, errors.Join(result.BatchErrors...))
	}

	records := vectorRecords(chunks)
	if len(records) == 0 {
		return nil
	}

	upsertCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	outcome, err := rt.store.Upsert(upsertCtx, rt.index.Id, records)
	if err != nil {
		return err
	}
	for _, rejected := range outcome.Failed {
		logger.Warn("vector upsert rejected",
			"index", rt.index.Name, "chunk_id", rejected.ChunkId, "err", rejected.Err)
	}
	return nil
}

// finish recomputes collection totals, marks the touched indexes ready and
// completes the job.
func (c *Coordinator) finish(ctx context.Context, jobID core.ID, collectionID core.ID, runtimes []*indexRuntime, logger *slog.Logger) {
	documents, err := c.documents.ListDocuments(ctx, collectionID)
	if err != nil {
		c.abort(ctx, jobID, runtimes, err)
		return
	}
	chunks, err := c.chunks.ListChunksByCollection(ctx, collectionID)
	if err != nil {
		c.abort(ctx, jobID, runtimes, err)
		return
	}

	for _, rt := range runtimes {
		rt.index.Status = core.StatusReady
		rt.index.ErrorMessage = ""
		rt.index.DocumentCount = len(documents)
		rt.index.ChunkCount = len(chunks)
		updated, err := c.indexes.UpdateIndex(ctx, rt.index)
		if err != nil {
			c.abort(ctx, jobID, runtimes, err)
			return
		}
		rt.index = updated
	}

	if err := c.tracker.Complete(ctx, jobID, len(documents), len(chunks)); err != nil {
		logger.Error("failed to complete job", "err", err)
	}
}

// markProcessing flips every touched index to processing before document
// work begins.
func (c *Coordinator) markProcessing(ctx context.Context, runtimes []*indexRuntime) error {
	for _, rt := range runtimes {
		rt.index.Status = core.StatusProcessing
		rt.index.ErrorMessage = ""
		updated, err := c.indexes.UpdateIndex(ctx, rt.index)
		if err != nil {
			return err
		}
		rt.index = updated
	}
	return nil
}

// abort fails the job and marks the touched indexes failed. Storage
// errors during the mark are logged; the job failure itself is what
// callers observe.
func (c *Coordinator) abort(ctx context.Context, jobID core.ID, runtimes []*indexRuntime, cause error) {
	c.failJob(ctx, jobID, cause)
	for _, rt := range runtimes {
		rt.index.Status = core.StatusFailed
		rt.index.ErrorMessage = cause.Error()
		if _, err := c.indexes.UpdateIndex(ctx, rt.index); err != nil {
			c.logger.Error("failed to mark index failed", "index_id", rt.index.Id, "err", err)
		}
	}
}

func (c *Coordinator) failJob(ctx context.Context, jobID core.ID, cause error) {
	if err := c.tracker.Fail(ctx, jobID, cause); err != nil {
		c.logger.Error("failed to record job failure", "job_id", jobID, "err", err)
	}
}

func (c *Coordinator) loadCollection(ctx context.Context, id core.ID) (*core.Collection, error) {
	collection, err := c.collections.GetCollection(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: collection %d", core.ErrNotFound, id)
		}
		return nil, err
	}
	return collection, nil
}

// vectorRecords converts the embedded chunks to store records. Chunks
// without a vector, skipped or failed, stay out of the store.
func vectorRecords(chunks []*core.Chunk) []*core.VectorRecord {
	records := make([]*core.VectorRecord, 0, len(chunks))
	for _, chunk := range chunks {
		if len(chunk.Vector) == 0 {
			continue
		}
		records = append(records, &core.VectorRecord{
			ChunkId:    chunk.Id,
			DocumentId: chunk.DocumentId,
			ChunkIndex: chunk.Index,
			Text:       chunk.RenderedText,
			Metadata:   chunk.Metadata,
			Vector:     chunk.Vector,
		})
	}
	return records
}
