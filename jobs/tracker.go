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


// Package jobs tracks background ingestion jobs through their state
// machine: queued -> processing -> completed | failed, terminal states
// final. The tracker enforces at most one live job per collection,
// keeps every transition persisted, and mirrors job outcomes onto the
// owning collection. Reads are value-copy snapshots, so polling never
// interferes with the single writing coordinator.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/poiesic/knowit/core"
	"github.com/poiesic/knowit/storage"
)

// Progress carries the counters a coordinator reports while running.
// Zero-valued counters never regress the stored ones.
type Progress struct {
	ProcessedFiles  int
	FailedFiles     int
	TotalChunks     int
	ProcessedChunks int
	CurrentStep     string
}

// Tracker owns job state transitions. All mutating methods persist
// before returning; Snapshot reads the in-memory copy for live jobs
// and falls back to storage for terminal ones.
type Tracker struct {
	jobs        storage.JobRepository
	collections storage.CollectionRepository
	logger      *slog.Logger

	mu     sync.RWMutex
	live   map[core.ID]*core.Job // non-terminal jobs by ID
	active map[core.ID]core.ID   // collection -> its live job
}

// NewTracker wires the tracker over the job and collection
// repositories.
func NewTracker(jobs storage.JobRepository, collections storage.CollectionRepository) (*Tracker, error) {
	if jobs == nil || collections == nil {
		return nil, fmt.Errorf("%w: tracker requires job and collection repositories", core.ErrConfiguration)
	}
	return &Tracker{
		jobs:        jobs,
		collections: collections,
		logger:      slog.Default().With("component", "jobs"),
		live:        make(map[core.ID]*core.Job),
		active:      make(map[core.ID]core.ID),
	}, nil
}

// Create registers a queued job for the collection. A collection with
// a live job refuses a second one with core.ErrJobActive; callers
// retry after the current job reaches a terminal state.
func (t *Tracker) Create(ctx context.Context, collectionID, indexID core.ID, totalFiles int) (*core.Job, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if jobID, ok := t.active[collectionID]; ok {
		return nil, fmt.Errorf("%w: collection %d is busy with job %d", core.ErrJobActive, collectionID, jobID)
	}
	// The map only knows jobs created through this tracker; check
	// storage so a tracker built without recovery stays correct.
	existing, err := t.jobs.ListJobsByCollection(ctx, collectionID)
	if err != nil {
		return nil, fmt.Errorf("list jobs for collection %d: %w", collectionID, err)
	}
	for _, job := range existing {
		if !job.Status.Terminal() {
			return nil, fmt.Errorf("%w: collection %d is busy with job %d", core.ErrJobActive, collectionID, job.Id)
		}
	}

	job := &core.Job{
		CollectionId: collectionID,
		IndexId:      indexID,
		Status:       core.JobQueued,
		CurrentStep:  "queued",
		TotalFiles:   totalFiles,
	}
	created, err := t.jobs.AddJob(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	t.remember(created)
	t.logger.Info("job created",
		"job_id", created.Id,
		"collection_id", collectionID,
		"total_files", totalFiles)
	return created, nil
}

// Start moves a job to processing and marks its collection
// accordingly.
func (t *Tracker) Start(ctx context.Context, jobID core.ID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, err := t.loadLocked(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return terminalErr(job)
	}

	job.Status = core.JobProcessing
	job.CurrentStep = "processing"
	updated, err := t.jobs.UpdateJob(ctx, job)
	if err != nil {
		return fmt.Errorf("start job %d: %w", jobID, err)
	}
	t.remember(updated)

	return t.mirrorCollection(ctx, updated.CollectionId, func(c *core.Collection) {
		c.Status = core.StatusProcessing
		c.ErrorMessage = ""
	})
}

// UpdateProgress folds reported counters into the job. Counters and
// the progress fraction are monotonic: a stale report can never move
// them backwards.
func (t *Tracker) UpdateProgress(ctx context.Context, jobID core.ID, p Progress) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, err := t.loadLocked(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return terminalErr(job)
	}

	job.ProcessedFiles = max(job.ProcessedFiles, p.ProcessedFiles)
	job.FailedFiles = max(job.FailedFiles, p.FailedFiles)
	job.TotalChunks = max(job.TotalChunks, p.TotalChunks)
	job.ProcessedChunks = max(job.ProcessedChunks, p.ProcessedChunks)
	if p.CurrentStep != "" {
		job.CurrentStep = p.CurrentStep
	}
	if job.TotalFiles > 0 {
		attempted := float64(job.ProcessedFiles + job.FailedFiles)
		job.Progress = max(job.Progress, min(attempted/float64(job.TotalFiles), 1))
	}

	updated, err := t.jobs.UpdateJob(ctx, job)
	if err != nil {
		return fmt.Errorf("update job %d: %w", jobID, err)
	}
	t.remember(updated)
	return nil
}

// Complete finishes a job successfully and finalizes the collection's
// counters. The job record is persisted before the collection mirror,
// so a mirror failure cannot leave the job non-terminal.
func (t *Tracker) Complete(ctx context.Context, jobID core.ID, documentCount, chunkCount int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, err := t.loadLocked(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return terminalErr(job)
	}

	job.Status = core.JobCompleted
	job.Progress = 1.0
	job.CurrentStep = "completed"
	job.ErrorMessage = ""
	updated, err := t.jobs.UpdateJob(ctx, job)
	if err != nil {
		return fmt.Errorf("complete job %d: %w", jobID, err)
	}
	t.release(updated)
	t.logger.Info("job completed",
		"job_id", jobID,
		"documents", documentCount,
		"chunks", chunkCount)

	return t.mirrorCollection(ctx, updated.CollectionId, func(c *core.Collection) {
		c.Status = core.StatusReady
		c.DocumentCount = documentCount
		c.ChunkCount = chunkCount
		c.ErrorMessage = ""
	})
}

// Fail finishes a job with an error. Progress and counters stay as
// last reported, and the collection keeps the counters of its last
// successful run.
func (t *Tracker) Fail(ctx context.Context, jobID core.ID, cause error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, err := t.loadLocked(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return terminalErr(job)
	}

	message := "unknown error"
	if cause != nil {
		message = cause.Error()
	}
	job.Status = core.JobFailed
	job.CurrentStep = "failed"
	job.ErrorMessage = message
	updated, err := t.jobs.UpdateJob(ctx, job)
	if err != nil {
		return fmt.Errorf("fail job %d: %w", jobID, err)
	}
	t.release(updated)
	t.logger.Warn("job failed", "job_id", jobID, "error", message)

	return t.mirrorCollection(ctx, updated.CollectionId, func(c *core.Collection) {
		c.Status = core.StatusFailed
		c.ErrorMessage = message
	})
}

// Snapshot returns a value copy of the job's current state.
func (t *Tracker) Snapshot(ctx context.Context, jobID core.ID) (*core.Job, error) {
	t.mu.RLock()
	if job, ok := t.live[jobID]; ok {
		snapshot := *job
		t.mu.RUnlock()
		return &snapshot, nil
	}
	t.mu.RUnlock()

	job, err := t.jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: job %d", core.ErrNotFound, jobID)
		}
		return nil, err
	}
	return job, nil
}

// ActiveJob reports the live job of a collection, if any.
func (t *Tracker) ActiveJob(collectionID core.ID) (core.ID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	jobID, ok := t.active[collectionID]
	return jobID, ok
}

// RecoverInterrupted fails every job left non-terminal by a previous
// process. Runs once at open, before any new job is created, so a
// restart never leaves a job ambiguous.
func (t *Tracker) RecoverInterrupted(ctx context.Context) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	stale, err := t.jobs.ListActiveJobs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active jobs: %w", err)
	}

	recovered := 0
	for _, job := range stale {
		job.Status = core.JobFailed
		job.CurrentStep = "failed"
		job.ErrorMessage = "interrupted by restart"
		if _, err := t.jobs.UpdateJob(ctx, job); err != nil {
			return recovered, fmt.Errorf("recover job %d: %w", job.Id, err)
		}
		err := t.mirrorCollection(ctx, job.CollectionId, func(c *core.Collection) {
			c.Status = core.StatusFailed
			c.ErrorMessage = "interrupted by restart"
		})
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return recovered, err
		}
		t.logger.Warn("failed interrupted job",
			"job_id", job.Id,
			"collection_id", job.CollectionId)
		recovered++
	}
	return recovered, nil
}

// remember stores a private copy in the live maps.
func (t *Tracker) remember(job *core.Job) {
	stored := *job
	t.live[job.Id] = &stored
	t.active[job.CollectionId] = job.Id
}

// release drops a job from the live maps once it is terminal.
func (t *Tracker) release(job *core.Job) {
	delete(t.live, job.Id)
	if t.active[job.CollectionId] == job.Id {
		delete(t.active, job.CollectionId)
	}
}

// loadLocked returns a mutable copy of the job. Callers hold mu.
func (t *Tracker) loadLocked(ctx context.Context, jobID core.ID) (*core.Job, error) {
	if job, ok := t.live[jobID]; ok {
		snapshot := *job
		return &snapshot, nil
	}
	job, err := t.jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: job %d", core.ErrNotFound, jobID)
		}
		return nil, err
	}
	return job, nil
}

// mirrorCollection applies a job outcome to the owning collection.
func (t *Tracker) mirrorCollection(ctx context.Context, collectionID core.ID, mutate func(*core.Collection)) error {
	collection, err := t.collections.GetCollection(ctx, collectionID)
	if err != nil {
		return fmt.Errorf("mirror collection %d: %w", collectionID, err)
	}
	mutate(collection)
	if _, err := t.collections.UpdateCollection(ctx, collection); err != nil {
		return fmt.Errorf("mirror collection %d: %w", collectionID, err)
	}
	return nil
}

func terminalErr(job *core.Job) error {
	return fmt.Errorf("%w: job %d is %s", core.ErrJobTerminal, job.Id, job.Status)
}
