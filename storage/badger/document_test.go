package badger

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/knowit/core"
	"github.com/poiesic/knowit/storage"
)

func TestDocumentBasics(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()

	document := &core.Document{
		CollectionId: 1,
		Filename:     "notes.txt",
		Contents:     "Badgers dig extensive burrow systems.",
	}

	added, err := repos.Documents.AddDocuments(ctx, document)
	if err != nil {
		t.Fatalf("Failed to add document: %v", err)
	}

	if len(added) != 1 {
		t.Fatalf("Expected 1 document, got %d", len(added))
	}
	if added[0].Id == 0 {
		t.Fatal("Expected non-zero content-based ID")
	}

	wantID := core.DocumentID(1, "notes.txt", "Badgers dig extensive burrow systems.")
	if added[0].Id != wantID {
		t.Fatalf("Expected content-based ID %d, got %d", wantID, added[0].Id)
	}

	retrieved, err := repos.Documents.GetDocument(ctx, added[0].Id)
	if err != nil {
		t.Fatalf("Failed to get document: %v", err)
	}
	if retrieved.Filename != "notes.txt" {
		t.Fatalf("Expected 'notes.txt', got '%s'", retrieved.Filename)
	}
}

func TestAddDocuments_IdenticalContentCollapses(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()

	doc := func() *core.Document {
		return &core.Document{
			CollectionId: 1,
			Filename:     "notes.txt",
			Contents:     "same text",
		}
	}

	_, err = repos.Documents.AddDocuments(ctx, doc())
	if err != nil {
		t.Fatalf("Failed to add document: %v", err)
	}
	_, err = repos.Documents.AddDocuments(ctx, doc())
	if err != nil {
		t.Fatalf("Failed to re-add document: %v", err)
	}

	listed, err := repos.Documents.ListDocuments(ctx, 1)
	if err != nil {
		t.Fatalf("Failed to list documents: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("Expected identical content to collapse to 1 document, got %d", len(listed))
	}
}

func TestListDocuments_ScopedToCollection(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()

	docs := []*core.Document{
		{CollectionId: 1, Filename: "a.txt", Contents: "first"},
		{CollectionId: 1, Filename: "b.txt", Contents: "second"},
		{CollectionId: 2, Filename: "c.txt", Contents: "third"},
	}
	if _, err := repos.Documents.AddDocuments(ctx, docs...); err != nil {
		t.Fatalf("Failed to add documents: %v", err)
	}

	listed, err := repos.Documents.ListDocuments(ctx, 1)
	if err != nil {
		t.Fatalf("Failed to list documents: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("Expected 2 documents in collection 1, got %d", len(listed))
	}
	for _, d := range listed {
		if d.CollectionId != 1 {
			t.Fatalf("Expected collection 1, got %d", d.CollectionId)
		}
	}
}

func TestDeleteDocuments(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()

	docs := []*core.Document{
		{CollectionId: 1, Filename: "a.txt", Contents: "first"},
		{CollectionId: 1, Filename: "b.txt", Contents: "second"},
	}
	added, err := repos.Documents.AddDocuments(ctx, docs...)
	if err != nil {
		t.Fatalf("Failed to add documents: %v", err)
	}

	// Missing IDs are ignored.
	if err := repos.Documents.DeleteDocuments(ctx, added[0].Id, core.ID(424242)); err != nil {
		t.Fatalf("Failed to delete documents: %v", err)
	}

	_, err = repos.Documents.GetDocument(ctx, added[0].Id)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound for deleted document, got %v", err)
	}

	listed, err := repos.Documents.ListDocuments(ctx, 1)
	if err != nil {
		t.Fatalf("Failed to list documents: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("Expected 1 remaining document, got %d", len(listed))
	}
}

func TestDeleteDocumentsByCollection(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()

	docs := []*core.Document{
		{CollectionId: 1, Filename: "a.txt", Contents: "first"},
		{CollectionId: 1, Filename: "b.txt", Contents: "second"},
		{CollectionId: 2, Filename: "c.txt", Contents: "third"},
	}
	if _, err := repos.Documents.AddDocuments(ctx, docs...); err != nil {
		t.Fatalf("Failed to add documents: %v", err)
	}

	if err := repos.Documents.DeleteDocumentsByCollection(ctx, 1); err != nil {
		t.Fatalf("Failed to delete by collection: %v", err)
	}

	listed, err := repos.Documents.ListDocuments(ctx, 1)
	if err != nil {
		t.Fatalf("Failed to list documents: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("Expected 0 documents in collection 1, got %d", len(listed))
	}

	other, err := repos.Documents.ListDocuments(ctx, 2)
	if err != nil {
		t.Fatalf("Failed to list documents: %v", err)
	}
	if len(other) != 1 {
		t.Fatalf("Expected collection 2 untouched, got %d documents", len(other))
	}
}
