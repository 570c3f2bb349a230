package badger

import (
	"context"
	"testing"
	"time"

	"github.com/poiesic/knowit/core"
)

func TestPutChunks(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()

	chunks := []*core.Chunk{
		{DocumentId: 10, CollectionId: 1, Index: 1, Text: "First chunk."},
		{DocumentId: 10, CollectionId: 1, Index: 2, Text: "Second chunk.", IsEnd: true},
	}

	added, err := repos.Chunks.PutChunks(ctx, chunks...)
	if err != nil {
		t.Fatalf("Failed to put chunks: %v", err)
	}

	for _, c := range added {
		if c.Id == 0 {
			t.Fatal("Expected non-zero content-based ID")
		}
		if c.InsertedAt.IsZero() || c.UpdatedAt.IsZero() {
			t.Fatal("Expected timestamps to be set")
		}
	}

	if added[0].Id != core.ChunkID(10, 1, "First chunk.") {
		t.Fatal("Expected deterministic chunk ID")
	}
}

func TestPutChunks_OverwritePreservesInsertedAt(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()

	first, err := repos.Chunks.PutChunks(ctx, &core.Chunk{
		DocumentId: 10, CollectionId: 1, Index: 1, Text: "Stable text.",
	})
	if err != nil {
		t.Fatalf("Failed to put chunk: %v", err)
	}
	insertedAt := first[0].InsertedAt

	time.Sleep(2 * time.Millisecond)

	second, err := repos.Chunks.PutChunks(ctx, &core.Chunk{
		DocumentId: 10, CollectionId: 1, Index: 1, Text: "Stable text.",
		Vector: []float32{0.1, 0.2},
	})
	if err != nil {
		t.Fatalf("Failed to overwrite chunk: %v", err)
	}

	if second[0].Id != first[0].Id {
		t.Fatalf("Expected same ID on overwrite, got %d and %d", first[0].Id, second[0].Id)
	}
	if !second[0].InsertedAt.Equal(insertedAt) {
		t.Fatal("Expected InsertedAt preserved on overwrite")
	}
	if !second[0].UpdatedAt.After(insertedAt) {
		t.Fatal("Expected UpdatedAt to advance on overwrite")
	}

	listed, err := repos.Chunks.ListChunksByDocument(ctx, 10)
	if err != nil {
		t.Fatalf("Failed to list chunks: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("Expected overwrite to keep 1 chunk, got %d", len(listed))
	}
	if len(listed[0].Vector) != 2 {
		t.Fatalf("Expected stored vector to survive, got %d dims", len(listed[0].Vector))
	}
}

func TestListChunksByDocument_Ordered(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()

	// Insert out of order; listing must come back by position.
	chunks := []*core.Chunk{
		{DocumentId: 10, CollectionId: 1, Index: 3, Text: "third", IsEnd: true},
		{DocumentId: 10, CollectionId: 1, Index: 1, Text: "first"},
		{DocumentId: 10, CollectionId: 1, Index: 2, Text: "second"},
		{DocumentId: 11, CollectionId: 1, Index: 1, Text: "other document"},
	}
	if _, err := repos.Chunks.PutChunks(ctx, chunks...); err != nil {
		t.Fatalf("Failed to put chunks: %v", err)
	}

	listed, err := repos.Chunks.ListChunksByDocument(ctx, 10)
	if err != nil {
		t.Fatalf("Failed to list chunks: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("Expected 3 chunks, got %d", len(listed))
	}
	for i, want := range []string{"first", "second", "third"} {
		if listed[i].Text != want {
			t.Fatalf("Expected chunk %d to be %q, got %q", i, want, listed[i].Text)
		}
	}
	if !listed[2].IsEnd {
		t.Fatal("Expected final chunk to carry IsEnd")
	}
}

func TestListChunksByCollection(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()

	chunks := []*core.Chunk{
		{DocumentId: 10, CollectionId: 1, Index: 1, Text: "one"},
		{DocumentId: 11, CollectionId: 1, Index: 1, Text: "two"},
		{DocumentId: 12, CollectionId: 2, Index: 1, Text: "elsewhere"},
	}
	if _, err := repos.Chunks.PutChunks(ctx, chunks...); err != nil {
		t.Fatalf("Failed to put chunks: %v", err)
	}

	listed, err := repos.Chunks.ListChunksByCollection(ctx, 1)
	if err != nil {
		t.Fatalf("Failed to list chunks: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("Expected 2 chunks in collection 1, got %d", len(listed))
	}
}

func TestDeleteChunksByDocument(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()

	chunks := []*core.Chunk{
		{DocumentId: 10, CollectionId: 1, Index: 1, Text: "one"},
		{DocumentId: 10, CollectionId: 1, Index: 2, Text: "two"},
		{DocumentId: 11, CollectionId: 1, Index: 1, Text: "keep"},
	}
	if _, err := repos.Chunks.PutChunks(ctx, chunks...); err != nil {
		t.Fatalf("Failed to put chunks: %v", err)
	}

	if err := repos.Chunks.DeleteChunksByDocument(ctx, 10); err != nil {
		t.Fatalf("Failed to delete chunks: %v", err)
	}

	listed, err := repos.Chunks.ListChunksByDocument(ctx, 10)
	if err != nil {
		t.Fatalf("Failed to list chunks: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("Expected 0 chunks for document 10, got %d", len(listed))
	}

	// Collection index entries must be gone too.
	colChunks, err := repos.Chunks.ListChunksByCollection(ctx, 1)
	if err != nil {
		t.Fatalf("Failed to list collection chunks: %v", err)
	}
	if len(colChunks) != 1 {
		t.Fatalf("Expected 1 chunk left in collection, got %d", len(colChunks))
	}
	if colChunks[0].Text != "keep" {
		t.Fatalf("Expected surviving chunk 'keep', got %q", colChunks[0].Text)
	}
}

func TestDeleteChunksByCollection(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()

	chunks := []*core.Chunk{
		{DocumentId: 10, CollectionId: 1, Index: 1, Text: "one"},
		{DocumentId: 11, CollectionId: 1, Index: 1, Text: "two"},
		{DocumentId: 12, CollectionId: 2, Index: 1, Text: "other"},
	}
	if _, err := repos.Chunks.PutChunks(ctx, chunks...); err != nil {
		t.Fatalf("Failed to put chunks: %v", err)
	}

	if err := repos.Chunks.DeleteChunksByCollection(ctx, 1); err != nil {
		t.Fatalf("Failed to delete chunks: %v", err)
	}

	listed, err := repos.Chunks.ListChunksByCollection(ctx, 1)
	if err != nil {
		t.Fatalf("Failed to list chunks: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("Expected 0 chunks in collection 1, got %d", len(listed))
	}

	other, err := repos.Chunks.ListChunksByCollection(ctx, 2)
	if err != nil {
		t.Fatalf("Failed to list chunks: %v", err)
	}
	if len(other) != 1 {
		t.Fatalf("Expected collection 2 untouched, got %d chunks", len(other))
	}
}
