package badger

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/knowit/core"
	"github.com/poiesic/knowit/storage"
)

func TestCollectionBasics(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()

	collection := &core.Collection{
		Name:        "support-articles",
		Description: "Customer support knowledge base",
		Config:      core.DefaultProcessingConfig(),
		Status:      core.StatusPending,
	}

	added, err := repos.Collections.AddCollection(ctx, collection)
	if err != nil {
		t.Fatalf("Failed to add collection: %v", err)
	}

	if added.Id == 0 {
		t.Fatal("Expected non-zero ID")
	}
	if added.InsertedAt.IsZero() {
		t.Fatal("Expected InsertedAt to be set")
	}

	retrieved, err := repos.Collections.GetCollection(ctx, added.Id)
	if err != nil {
		t.Fatalf("Failed to get collection: %v", err)
	}

	if retrieved.Name != "support-articles" {
		t.Fatalf("Expected 'support-articles', got '%s'", retrieved.Name)
	}
	if retrieved.Config.ChunkTokenSize != core.DefaultChunkTokenSize {
		t.Fatalf("Expected default chunk token size, got %d", retrieved.Config.ChunkTokenSize)
	}
}

func TestCollectionConfigSnapshot(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()

	config := core.DefaultProcessingConfig()
	config.ChunkTokenSize = 250
	collection := &core.Collection{Name: "docs", Config: config}

	added, err := repos.Collections.AddCollection(ctx, collection)
	if err != nil {
		t.Fatalf("Failed to add collection: %v", err)
	}

	// Mutating the caller's config must not reach the stored copy.
	config.ChunkTokenSize = 9999

	retrieved, err := repos.Collections.GetCollection(ctx, added.Id)
	if err != nil {
		t.Fatalf("Failed to get collection: %v", err)
	}
	if retrieved.Config.ChunkTokenSize != 250 {
		t.Fatalf("Expected stored chunk size 250, got %d", retrieved.Config.ChunkTokenSize)
	}
}

func TestUpdateCollection(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()

	added, err := repos.Collections.AddCollection(ctx, &core.Collection{
		Name:   "docs",
		Config: core.DefaultProcessingConfig(),
		Status: core.StatusPending,
	})
	if err != nil {
		t.Fatalf("Failed to add collection: %v", err)
	}

	added.Status = core.StatusReady
	added.DocumentCount = 3
	added.ChunkCount = 40

	updated, err := repos.Collections.UpdateCollection(ctx, added)
	if err != nil {
		t.Fatalf("Failed to update collection: %v", err)
	}
	if updated.Status != core.StatusReady {
		t.Fatalf("Expected status ready, got %v", updated.Status)
	}

	retrieved, err := repos.Collections.GetCollection(ctx, added.Id)
	if err != nil {
		t.Fatalf("Failed to get collection: %v", err)
	}
	if retrieved.DocumentCount != 3 || retrieved.ChunkCount != 40 {
		t.Fatalf("Expected counters (3,40), got (%d,%d)", retrieved.DocumentCount, retrieved.ChunkCount)
	}
	if !retrieved.UpdatedAt.After(retrieved.InsertedAt) && !retrieved.UpdatedAt.Equal(retrieved.InsertedAt) {
		t.Fatal("Expected UpdatedAt at or after InsertedAt")
	}
}

func TestUpdateCollection_NotFound(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()

	_, err = repos.Collections.UpdateCollection(ctx, &core.Collection{
		Id:     999,
		Name:   "ghost",
		Config: core.DefaultProcessingConfig(),
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestDeleteCollection(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()

	added, err := repos.Collections.AddCollection(ctx, &core.Collection{
		Name:   "docs",
		Config: core.DefaultProcessingConfig(),
	})
	if err != nil {
		t.Fatalf("Failed to add collection: %v", err)
	}

	if err := repos.Collections.DeleteCollection(ctx, added.Id); err != nil {
		t.Fatalf("Failed to delete collection: %v", err)
	}

	_, err = repos.Collections.GetCollection(ctx, added.Id)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound after delete, got %v", err)
	}

	// Deleting again must not error.
	if err := repos.Collections.DeleteCollection(ctx, added.Id); err != nil {
		t.Fatalf("Expected idempotent delete, got %v", err)
	}
}

func TestListCollections(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()

	names := []string{"alpha", "beta", "gamma"}
	for _, name := range names {
		_, err := repos.Collections.AddCollection(ctx, &core.Collection{
			Name:   name,
			Config: core.DefaultProcessingConfig(),
		})
		if err != nil {
			t.Fatalf("Failed to add collection %s: %v", name, err)
		}
	}

	listed, err := repos.Collections.ListCollections(ctx)
	if err != nil {
		t.Fatalf("Failed to list collections: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("Expected 3 collections, got %d", len(listed))
	}

	// Ordered by ID ascending
	for i := 1; i < len(listed); i++ {
		if listed[i-1].Id >= listed[i].Id {
			t.Fatalf("Expected ascending IDs, got %d before %d", listed[i-1].Id, listed[i].Id)
		}
	}
}
