package badger

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/knowit/core"
	"github.com/poiesic/knowit/storage"
)

func newTestIndex(collectionID core.ID, name string) *core.VectorIndex {
	return &core.VectorIndex{
		Name:              name,
		CollectionId:      collectionID,
		EmbeddingProvider: core.ProviderMock,
		EmbeddingModel:    "mock",
		Store:             core.StoreBadger,
		Strategy:          core.StrategyVector,
		SemanticWeight:    1,
		TopK:              5,
		Status:            core.StatusPending,
	}
}

func TestIndexBasics(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()

	added, err := repos.Indexes.AddIndex(ctx, newTestIndex(1, "main"))
	if err != nil {
		t.Fatalf("Failed to add index: %v", err)
	}
	if added.Id == 0 {
		t.Fatal("Expected non-zero ID")
	}

	added.Status = core.StatusReady
	added.ChunkCount = 12
	if _, err := repos.Indexes.UpdateIndex(ctx, added); err != nil {
		t.Fatalf("Failed to update index: %v", err)
	}

	retrieved, err := repos.Indexes.GetIndex(ctx, added.Id)
	if err != nil {
		t.Fatalf("Failed to get index: %v", err)
	}
	if retrieved.Status != core.StatusReady || retrieved.ChunkCount != 12 {
		t.Fatalf("Expected updated index, got status=%v chunks=%d", retrieved.Status, retrieved.ChunkCount)
	}
}

func TestDeleteIndex(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()

	added, err := repos.Indexes.AddIndex(ctx, newTestIndex(1, "main"))
	if err != nil {
		t.Fatalf("Failed to add index: %v", err)
	}

	if err := repos.Indexes.DeleteIndex(ctx, added.Id); err != nil {
		t.Fatalf("Failed to delete index: %v", err)
	}

	_, err = repos.Indexes.GetIndex(ctx, added.Id)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound after delete, got %v", err)
	}

	// Idempotent
	if err := repos.Indexes.DeleteIndex(ctx, added.Id); err != nil {
		t.Fatalf("Expected idempotent delete, got %v", err)
	}

	// Collection listing no longer sees it
	listed, err := repos.Indexes.ListIndexesByCollection(ctx, 1)
	if err != nil {
		t.Fatalf("Failed to list indexes: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("Expected 0 indexes, got %d", len(listed))
	}
}

func TestListIndexesByCollection(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()

	for _, spec := range []struct {
		collection core.ID
		name       string
	}{
		{1, "one"},
		{1, "two"},
		{2, "other"},
	} {
		if _, err := repos.Indexes.AddIndex(ctx, newTestIndex(spec.collection, spec.name)); err != nil {
			t.Fatalf("Failed to add index %s: %v", spec.name, err)
		}
	}

	listed, err := repos.Indexes.ListIndexesByCollection(ctx, 1)
	if err != nil {
		t.Fatalf("Failed to list indexes: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("Expected 2 indexes for collection 1, got %d", len(listed))
	}

	all, err := repos.Indexes.ListIndexes(ctx)
	if err != nil {
		t.Fatalf("Failed to list all indexes: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 indexes total, got %d", len(all))
	}
}
