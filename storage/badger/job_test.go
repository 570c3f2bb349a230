package badger

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/knowit/core"
	"github.com/poiesic/knowit/storage"
)

func TestJobBasics(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()

	job := &core.Job{
		CollectionId: 1,
		Status:       core.JobQueued,
		TotalFiles:   5,
		CurrentStep:  "queued",
	}

	added, err := repos.Jobs.AddJob(ctx, job)
	if err != nil {
		t.Fatalf("Failed to add job: %v", err)
	}
	if added.Id == 0 {
		t.Fatal("Expected non-zero ID")
	}

	added.Status = core.JobProcessing
	added.Progress = 0.4
	added.CurrentStep = "document 2/5: chunking"

	if _, err := repos.Jobs.UpdateJob(ctx, added); err != nil {
		t.Fatalf("Failed to update job: %v", err)
	}

	retrieved, err := repos.Jobs.GetJob(ctx, added.Id)
	if err != nil {
		t.Fatalf("Failed to get job: %v", err)
	}
	if retrieved.Status != core.JobProcessing {
		t.Fatalf("Expected processing status, got %v", retrieved.Status)
	}
	if retrieved.Progress != 0.4 {
		t.Fatalf("Expected progress 0.4, got %f", retrieved.Progress)
	}
	if retrieved.CurrentStep != "document 2/5: chunking" {
		t.Fatalf("Unexpected current step %q", retrieved.CurrentStep)
	}
}

func TestUpdateJob_NotFound(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()

	_, err = repos.Jobs.UpdateJob(ctx, &core.Job{Id: 404, CollectionId: 1})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestListJobsByCollection(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()

	jobs := []*core.Job{
		{CollectionId: 1, Status: core.JobCompleted},
		{CollectionId: 1, Status: core.JobQueued},
		{CollectionId: 2, Status: core.JobQueued},
	}
	for _, j := range jobs {
		if _, err := repos.Jobs.AddJob(ctx, j); err != nil {
			t.Fatalf("Failed to add job: %v", err)
		}
	}

	listed, err := repos.Jobs.ListJobsByCollection(ctx, 1)
	if err != nil {
		t.Fatalf("Failed to list jobs: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("Expected 2 jobs for collection 1, got %d", len(listed))
	}

	// Ordered by ID ascending via the composite index
	if listed[0].Id >= listed[1].Id {
		t.Fatalf("Expected ascending IDs, got %d then %d", listed[0].Id, listed[1].Id)
	}
}

func TestListActiveJobs(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()

	jobs := []*core.Job{
		{CollectionId: 1, Status: core.JobQueued},
		{CollectionId: 2, Status: core.JobProcessing},
		{CollectionId: 3, Status: core.JobCompleted},
		{CollectionId: 4, Status: core.JobFailed},
	}
	for _, j := range jobs {
		if _, err := repos.Jobs.AddJob(ctx, j); err != nil {
			t.Fatalf("Failed to add job: %v", err)
		}
	}

	active, err := repos.Jobs.ListActiveJobs(ctx)
	if err != nil {
		t.Fatalf("Failed to list active jobs: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("Expected 2 active jobs, got %d", len(active))
	}
	for _, j := range active {
		if j.Status.Terminal() {
			t.Fatalf("Expected only live jobs, got %v", j.Status)
		}
	}
}
