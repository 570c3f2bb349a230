package knowit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/knowit/core"
	"github.com/poiesic/knowit/parse"
	"github.com/poiesic/knowit/providers"
	"github.com/poiesic/knowit/retrieval"
)

const (
	docBadger   = "Badger organizes values in a log structured merge tree."
	docPostgres = "Postgres keeps hot table pages pinned in shared buffers."
)

func testRegistry(env map[string]string) *providers.Registry {
	return providers.NewRegistryWithEnv(func(key string) (string, bool) {
		value, ok := env[key]
		return value, ok
	})
}

func newTestService(t *testing.T, env map[string]string, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{
		WithRegistry(testRegistry(env)),
		WithPoolSize(1),
	}, opts...)
	service, err := Open(filepath.Join(t.TempDir(), "kb"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { service.Close() })
	return service
}

func testConfig() core.ProcessingConfig {
	return core.ProcessingConfig{
		ChunkTokenSize:        64,
		MinChunkSizeChars:     1,
		MinChunkLengthToEmbed: 1,
		EmbeddingBatchSize:    4,
	}
}

func newCollection(t *testing.T, service *Service, name string) *core.Collection {
	t.Helper()
	collection, job, err := service.CreateCollection(context.Background(), CollectionSpec{
		Name:   name,
		Config: testConfig(),
	})
	require.NoError(t, err)
	require.Nil(t, job)
	return collection
}

func mockIndexSpec(collectionID core.ID) IndexSpec {
	return IndexSpec{
		Name:              "semantic",
		CollectionId:      collectionID,
		EmbeddingProvider: core.ProviderMock,
		EmbeddingModel:    "mock",
		Store:             core.StoreBadger,
		Strategy:          core.StrategyVector,
		TopK:              5,
	}
}

func textInput(name, text string) parse.Input {
	return parse.Input{Filename: name, Data: []byte(text)}
}

func waitCompleted(t *testing.T, service *Service, jobID core.ID) *core.Job {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	job, err := service.WaitForJob(ctx, jobID, 5*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, core.JobCompleted, job.Status, "job error: %s", job.ErrorMessage)
	return job
}

func TestOpen(t *testing.T) {
	t.Run("creates a new knowledge base", func(t *testing.T) {
		service, err := Open(filepath.Join(t.TempDir(), "kb"), WithRegistry(testRegistry(nil)))
		require.NoError(t, err)
		require.NotNil(t, service)
		defer service.Close()

		assert.NotNil(t, service.repos)
		assert.NotNil(t, service.tracker)
		assert.NotNil(t, service.coordinator)
		assert.NotNil(t, service.planner)
	})

	t.Run("error with invalid path", func(t *testing.T) {
		tmpFile := filepath.Join(t.TempDir(), "not_a_dir")
		require.NoError(t, os.WriteFile(tmpFile, []byte("x"), 0644))

		service, err := Open(tmpFile)
		assert.Error(t, err)
		assert.Nil(t, service)
	})
}

func TestService_Close(t *testing.T) {
	service, err := Open(filepath.Join(t.TempDir(), "kb"), WithRegistry(testRegistry(nil)))
	require.NoError(t, err)
	assert.NoError(t, service.Close())
}

func TestOpen_RecoversInterruptedJobs(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "kb")
	slow := parse.ParserFunc(func(ctx context.Context, input parse.Input) (string, error) {
		time.Sleep(2 * time.Second)
		return string(input.Data), nil
	})

	service, err := Open(dir, WithRegistry(testRegistry(nil)), WithPoolSize(1), WithParser(slow))
	require.NoError(t, err)

	ctx := context.Background()
	collection := newCollection(t, service, "docs")
	job, err := service.AddDocuments(ctx, collection.Id, textInput("a.txt", docBadger))
	require.NoError(t, err)

	// Close while the worker is stuck in the parser, like a crash would.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, service.Close())

	reopened, err := Open(dir, WithRegistry(testRegistry(nil)), WithPoolSize(1))
	require.NoError(t, err)
	defer reopened.Close()

	recovered, err := reopened.JobStatus(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, core.JobFailed, recovered.Status)
	assert.Equal(t, "interrupted by restart", recovered.ErrorMessage)

	stored, err := reopened.GetCollection(ctx, collection.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, stored.Status)
}

func TestService_CreateCollection(t *testing.T) {
	service := newTestService(t, nil)
	ctx := context.Background()

	t.Run("named", func(t *testing.T) {
		collection, job, err := service.CreateCollection(ctx, CollectionSpec{
			Name:        "manuals",
			Description: "product manuals",
			Config:      testConfig(),
		})
		require.NoError(t, err)
		require.Nil(t, job)
		assert.NotZero(t, collection.Id)
		assert.Equal(t, "manuals", collection.Name)
		assert.Equal(t, core.StatusPending, collection.Status)

		stored, err := service.GetCollection(ctx, collection.Id)
		require.NoError(t, err)
		assert.Equal(t, "manuals", stored.Name)
		assert.Equal(t, "product manuals", stored.Description)
	})

	t.Run("unnamed takes its id as a name", func(t *testing.T) {
		collection, _, err := service.CreateCollection(ctx, CollectionSpec{Config: testConfig()})
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("collection-%d", collection.Id), collection.Name)
	})

	t.Run("zero config is normalized", func(t *testing.T) {
		collection, _, err := service.CreateCollection(ctx, CollectionSpec{Name: "defaults"})
		require.NoError(t, err)
		assert.Equal(t, core.DefaultChunkTokenSize, collection.Config.ChunkTokenSize)
		assert.Equal(t, core.DefaultEmbeddingBatchSize, collection.Config.EmbeddingBatchSize)
	})

	t.Run("invalid config is rejected", func(t *testing.T) {
		_, _, err := service.CreateCollection(ctx, CollectionSpec{
			Name:   "broken",
			Config: core.ProcessingConfig{ChunkTokenSize: -1},
		})
		assert.ErrorIs(t, err, core.ErrConfiguration)
	})

	t.Run("with initial documents", func(t *testing.T) {
		collection, job, err := service.CreateCollection(ctx,
			CollectionSpec{Name: "seeded", Config: testConfig()},
			textInput("badger.txt", docBadger))
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, collection.Id, job.CollectionId)

		waitCompleted(t, service, job.Id)
		documents, err := service.ListDocuments(ctx, collection.Id)
		require.NoError(t, err)
		require.Len(t, documents, 1)
		assert.Equal(t, "badger.txt", documents[0].Filename)
	})
}

func TestService_ListCollections(t *testing.T) {
	service := newTestService(t, nil)
	newCollection(t, service, "first")
	newCollection(t, service, "second")

	collections, err := service.ListCollections(context.Background())
	require.NoError(t, err)
	require.Len(t, collections, 2)
	assert.Equal(t, "first", collections[0].Name)
	assert.Equal(t, "second", collections[1].Name)
}

func TestService_AddDocumentsAndQuery(t *testing.T) {
	service := newTestService(t, nil)
	ctx := context.Background()

	collection := newCollection(t, service, "docs")
	index, job, err := service.CreateIndex(ctx, mockIndexSpec(collection.Id))
	require.NoError(t, err)
	require.Nil(t, job, "no build job without documents")
	assert.Equal(t, core.StatusPending, index.Status)

	ingest, err := service.AddDocuments(ctx, collection.Id,
		textInput("badger.txt", docBadger),
		textInput("postgres.txt", docPostgres))
	require.NoError(t, err)
	final := waitCompleted(t, service, ingest.Id)
	assert.Equal(t, 2, final.ProcessedFiles)
	assert.Equal(t, 1.0, final.Progress)

	stored, err := service.GetIndex(ctx, index.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusReady, stored.Status)
	assert.Equal(t, 2, stored.DocumentCount)

	results, err := service.Query(ctx, index.Id, docPostgres, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, docPostgres, results[0].Text)
	assert.InDelta(t, 1.0, results[0].Score, 1e-4)

	one, err := service.Query(ctx, index.Id, docBadger, &retrieval.SearchOptions{TopK: 1})
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, docBadger, one[0].Text)
}

func TestService_QueryUnknownIndex(t *testing.T) {
	service := newTestService(t, nil)
	_, err := service.Query(context.Background(), 424242, "anything", nil)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestService_JobStatusUnknownJob(t *testing.T) {
	service := newTestService(t, nil)
	_, err := service.JobStatus(context.Background(), 424242)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestService_WaitForJob(t *testing.T) {
	slow := parse.ParserFunc(func(ctx context.Context, input parse.Input) (string, error) {
		time.Sleep(400 * time.Millisecond)
		return string(input.Data), nil
	})
	service := newTestService(t, nil, WithParser(slow))
	ctx := context.Background()

	collection := newCollection(t, service, "docs")
	job, err := service.AddDocuments(ctx, collection.Id, textInput("a.txt", docBadger))
	require.NoError(t, err)

	bounded, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	observed, err := service.WaitForJob(bounded, job.Id, 10*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, observed)
	assert.False(t, observed.Status.Terminal())

	waitCompleted(t, service, job.Id)
}

func TestService_CreateIndex(t *testing.T) {
	service := newTestService(t, nil)
	ctx := context.Background()
	collection := newCollection(t, service, "docs")

	t.Run("defaults", func(t *testing.T) {
		index, job, err := service.CreateIndex(ctx, IndexSpec{
			Name:              "bare",
			CollectionId:      collection.Id,
			EmbeddingProvider: core.ProviderMock,
		})
		require.NoError(t, err)
		require.Nil(t, job)
		assert.Equal(t, core.StrategyVector, index.Strategy)
		assert.Equal(t, core.StoreBadger, index.Store)
		assert.Equal(t, core.DefaultTopK, index.TopK)
		assert.Equal(t, 1.0, index.SemanticWeight)
		assert.Zero(t, index.KeywordWeight)
		assert.Equal(t, "mock", index.EmbeddingModel)
	})

	t.Run("unnamed is rejected", func(t *testing.T) {
		_, _, err := service.CreateIndex(ctx, IndexSpec{
			CollectionId:      collection.Id,
			EmbeddingProvider: core.ProviderMock,
		})
		assert.ErrorIs(t, err, core.ErrConfiguration)
	})

	t.Run("hybrid requires explicit weights", func(t *testing.T) {
		spec := mockIndexSpec(collection.Id)
		spec.Name = "blend"
		spec.Strategy = core.StrategyHybrid
		_, _, err := service.CreateIndex(ctx, spec)
		assert.ErrorIs(t, err, core.ErrConfiguration)

		spec.SemanticWeight = 0.5
		spec.KeywordWeight = 0.5
		index, _, err := service.CreateIndex(ctx, spec)
		require.NoError(t, err)
		assert.Equal(t, core.StrategyHybrid, index.Strategy)
	})

	t.Run("unknown collection", func(t *testing.T) {
		spec := mockIndexSpec(424242)
		_, _, err := service.CreateIndex(ctx, spec)
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("missing credentials leave no index behind", func(t *testing.T) {
		other := newCollection(t, service, "no-creds")
		spec := mockIndexSpec(other.Id)
		spec.Name = "openai"
		spec.EmbeddingProvider = core.ProviderOpenAI
		spec.EmbeddingModel = ""
		_, _, err := service.CreateIndex(ctx, spec)
		require.ErrorIs(t, err, core.ErrCredential)
		assert.ErrorContains(t, err, providers.EnvOpenAIKey)

		indexes, err := service.ListIndexes(ctx, other.Id)
		require.NoError(t, err)
		assert.Empty(t, indexes)
	})
}

func TestService_CreateIndexBuildsExistingDocuments(t *testing.T) {
	service := newTestService(t, nil)
	ctx := context.Background()

	collection := newCollection(t, service, "docs")
	ingest, err := service.AddDocuments(ctx, collection.Id,
		textInput("badger.txt", docBadger),
		textInput("postgres.txt", docPostgres))
	require.NoError(t, err)
	waitCompleted(t, service, ingest.Id)

	index, build, err := service.CreateIndex(ctx, mockIndexSpec(collection.Id))
	require.NoError(t, err)
	require.NotNil(t, build, "existing documents need a build job")
	assert.Equal(t, index.Id, build.IndexId)
	assert.Equal(t, 2, build.TotalFiles)
	waitCompleted(t, service, build.Id)

	stored, err := service.GetIndex(ctx, index.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusReady, stored.Status)
	assert.Equal(t, 2, stored.DocumentCount)

	results, err := service.Query(ctx, index.Id, docBadger, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, docBadger, results[0].Text)
}

func TestService_FulltextIndexReadyWithoutJob(t *testing.T) {
	service := newTestService(t, nil)
	ctx := context.Background()

	collection := newCollection(t, service, "docs")
	ingest, err := service.AddDocuments(ctx, collection.Id,
		textInput("tuning.txt", "postgres tunes postgres buffers for postgres workloads"),
		textInput("replication.txt", "postgres replication basics"),
		textInput("badger.txt", "badger compaction merges level files"))
	require.NoError(t, err)
	waitCompleted(t, service, ingest.Id)

	// No embedding provider and no credentials: fulltext ranks stored
	// chunks directly.
	index, job, err := service.CreateIndex(ctx, IndexSpec{
		Name:         "keywords",
		CollectionId: collection.Id,
		Strategy:     core.StrategyFulltext,
	})
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.Equal(t, core.StatusReady, index.Status)
	assert.Equal(t, 3, index.DocumentCount)
	assert.Equal(t, 0.0, index.SemanticWeight)
	assert.Equal(t, 1.0, index.KeywordWeight)

	results, err := service.Query(ctx, index.Id, "postgres", nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "postgres tunes postgres buffers for postgres workloads", results[0].Text)
	assert.InDelta(t, 0.5, results[0].KeywordScore, 1e-9)
	assert.InDelta(t, 1.0/3.0, results[1].KeywordScore, 1e-9)
}

func TestService_DeleteIndex(t *testing.T) {
	service := newTestService(t, nil)
	ctx := context.Background()

	collection := newCollection(t, service, "docs")
	index, job, err := service.CreateIndex(ctx, mockIndexSpec(collection.Id))
	require.NoError(t, err)
	require.Nil(t, job)

	ingest, err := service.AddDocuments(ctx, collection.Id, textInput("a.txt", docBadger))
	require.NoError(t, err)
	waitCompleted(t, service, ingest.Id)

	require.NoError(t, service.DeleteIndex(ctx, index.Id))

	_, err = service.GetIndex(ctx, index.Id)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = service.Query(ctx, index.Id, docBadger, nil)
	assert.ErrorIs(t, err, core.ErrNotFound)

	// Deleting again is a no-op.
	assert.NoError(t, service.DeleteIndex(ctx, index.Id))
}

func TestService_DeleteCollection(t *testing.T) {
	service := newTestService(t, nil)
	ctx := context.Background()

	collection := newCollection(t, service, "docs")
	ingest, err := service.AddDocuments(ctx, collection.Id, textInput("a.txt", docBadger))
	require.NoError(t, err)
	waitCompleted(t, service, ingest.Id)

	index, build, err := service.CreateIndex(ctx, mockIndexSpec(collection.Id))
	require.NoError(t, err)
	waitCompleted(t, service, build.Id)

	err = service.DeleteCollection(ctx, collection.Id, false)
	require.ErrorIs(t, err, core.ErrConfiguration)
	assert.ErrorContains(t, err, "indexes")

	require.NoError(t, service.DeleteCollection(ctx, collection.Id, true))

	_, err = service.GetCollection(ctx, collection.Id)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = service.GetIndex(ctx, index.Id)
	assert.ErrorIs(t, err, core.ErrNotFound)

	// Job history survives the collection.
	history, err := service.ListJobs(ctx, collection.Id)
	require.NoError(t, err)
	assert.NotEmpty(t, history)

	// Deleting again is a no-op.
	assert.NoError(t, service.DeleteCollection(ctx, collection.Id, true))
}

func TestService_DeleteCollectionBlockedByActiveJob(t *testing.T) {
	slow := parse.ParserFunc(func(ctx context.Context, input parse.Input) (string, error) {
		time.Sleep(300 * time.Millisecond)
		return string(input.Data), nil
	})
	service := newTestService(t, nil, WithParser(slow))
	ctx := context.Background()

	collection := newCollection(t, service, "docs")
	job, err := service.AddDocuments(ctx, collection.Id, textInput("a.txt", docBadger))
	require.NoError(t, err)

	err = service.DeleteCollection(ctx, collection.Id, false)
	assert.ErrorIs(t, err, core.ErrJobActive)

	waitCompleted(t, service, job.Id)
	assert.NoError(t, service.DeleteCollection(ctx, collection.Id, false))
}
