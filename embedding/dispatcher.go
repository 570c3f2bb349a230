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


// Package embedding batches chunk texts and drives the embedding provider.
//
// The dispatcher isolates provider failures per batch: a failed batch marks
// only its own chunks, already-embedded batches keep their vectors, and
// processing continues. Chunks whose rendered text is shorter than the
// configured minimum are skipped entirely and never reach the provider.
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/poiesic/knowit/ai"
	"github.com/poiesic/knowit/core"
)

// Dispatcher defaults.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 500 * time.Millisecond
	DefaultCallTimeout = 30 * time.Second
)

// Dispatcher sends chunk texts to an embedder in bounded batches.
// Immutable after construction, safe for concurrent use.
type Dispatcher struct {
	embedder    ai.Embedder
	batchSize   int
	minLength   int
	maxAttempts int
	baseDelay   time.Duration
	callTimeout time.Duration
	logger      *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher) error

// WithBatchSize caps how many chunk texts one provider call carries.
func WithBatchSize(size int) Option {
	return func(d *Dispatcher) error {
		if size < 1 {
			return fmt.Errorf("%w: batch size must be positive", core.ErrConfiguration)
		}
		d.batchSize = size
		return nil
	}
}

// WithMinLength sets the minimum rendered text length (in runes) a chunk
// needs to be embedded. Shorter chunks are skipped.
func WithMinLength(length int) Option {
	return func(d *Dispatcher) error {
		if length < 0 {
			return fmt.Errorf("%w: min length cannot be negative", core.ErrConfiguration)
		}
		d.minLength = length
		return nil
	}
}

// WithRetry sets the per-batch retry policy.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(d *Dispatcher) error {
		if maxAttempts < 1 {
			return fmt.Errorf("%w: %w", core.ErrConfiguration, ErrInvalidMaxAttempts)
		}
		d.maxAttempts = maxAttempts
		d.baseDelay = baseDelay
		return nil
	}
}

// WithCallTimeout bounds each individual provider call.
func WithCallTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: call timeout must be positive", core.ErrConfiguration)
		}
		d.callTimeout = timeout
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		d.logger = logger
		return nil
	}
}

// NewDispatcher creates a dispatcher over the given embedder.
func NewDispatcher(embedder ai.Embedder, opts ...Option) (*Dispatcher, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	d := &Dispatcher{
		embedder:    embedder,
		batchSize:   core.DefaultEmbeddingBatchSize,
		minLength:   core.DefaultMinChunkLengthToEmbed,
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		callTimeout: DefaultCallTimeout,
		logger:      slog.Default().With("component", "embedding"),
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Result summarizes one Dispatch call. Skipped chunks are stored without a
// vector but still count as processed work.
type Result struct {
	Embedded    int
	Skipped     int
	Failed      int
	BatchErrors []error
}

// AllFailed reports whether every batch that reached the provider failed.
// Skip-only results are not failures.
func (r *Result) AllFailed() bool {
	return r.Failed > 0 && r.Embedded == 0
}

// Dispatch embeds the eligible chunks in place, attaching a normalized
// vector to each. Provider failures are collected per batch in the result;
// the returned error is non-nil only when the context ends the run early.
func (d *Dispatcher) Dispatch(ctx context.Context, chunks []*core.Chunk) (*Result, error) {
	result := &Result{}

	eligible := make([]*core.Chunk, 0, len(chunks))
	for _, chunk := range chunks {
		if utf8.RuneCountInString(chunk.RenderedText) < d.minLength {
			result.Skipped++
			continue
		}
		eligible = append(eligible, chunk)
	}
	if result.Skipped > 0 {
		d.logger.Debug("skipping short chunks", "skipped", result.Skipped, "eligible", len(eligible))
	}

	for start := 0; start < len(eligible); start += d.batchSize {
		end := min(start+d.batchSize, len(eligible))
		batch := eligible[start:end]

		if err := d.embedBatch(ctx, batch); err != nil {
			result.Failed += len(batch)
			result.BatchErrors = append(result.BatchErrors,
				fmt.Errorf("%w: chunks %d-%d: %w", core.ErrProvider, batch[0].Index, batch[len(batch)-1].Index, err))
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			d.logger.Error("embedding batch failed", "from", batch[0].Index, "to", batch[len(batch)-1].Index, "err", err)
			continue
		}
		result.Embedded += len(batch)
	}

	return result, nil
}

// embedBatch sends one batch through the retry policy and attaches the
// returned vectors. A count mismatch fails the whole batch.
func (d *Dispatcher) embedBatch(ctx context.Context, batch []*core.Chunk) error {
	texts := make([]string, len(batch))
	for i, chunk := range batch {
		texts[i] = chunk.RenderedText
	}

	var vectors [][]float32
	err := RetryWithBackoff(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
		defer cancel()

		var embedErr error
		vectors, embedErr = d.embedder.EmbedTexts(callCtx, texts)
		return embedErr
	}, d.maxAttempts, d.baseDelay)
	if err != nil {
		return err
	}

	if len(vectors) != len(batch) {
		return fmt.Errorf("%w: expected %d, received %d", ErrLengthMismatch, len(batch), len(vectors))
	}

	for i, chunk := range batch {
		chunk.Vector = NormalizeVector(vectors[i])
	}
	return nil
}
