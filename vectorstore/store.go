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


// Package vectorstore persists embedded chunks and serves similarity
// queries over them. Two adapters implement the Store contract: an
// embedded one sharing the BadgerDB backend with the repositories, and
// a PostgreSQL one built on the pgvector extension. The Factory picks
// the adapter from the index's store provider.
package vectorstore

import (
	"context"
	"errors"

	"github.com/poiesic/knowit/core"
)

// ErrUpsert indicates a vector store rejected one or more records.
var ErrUpsert = errors.New("vector upsert failed")

// Store writes embedded chunks keyed by (index, chunk) identity and
// answers similarity queries against one index's vectors.
type Store interface {
	// Upsert writes records under their (index, chunk) identity,
	// overwriting previous versions of the same chunk. Per-record
	// rejections are reported in the result and leave the remaining
	// records written; the error return is reserved for failures of
	// the call as a whole.
	Upsert(ctx context.Context, indexID core.ID, records []*core.VectorRecord) (*UpsertResult, error)

	// Search returns the stored vectors most similar to the query
	// vector, ordered by descending score. Scores are cosine
	// similarity in [-1, 1].
	Search(ctx context.Context, indexID core.ID, vector []float32, opts SearchOptions) ([]Match, error)

	// DeleteIndex removes every vector stored for the index.
	// Deleting an index that holds no vectors is not an error.
	DeleteIndex(ctx context.Context, indexID core.ID) error

	// Close releases any connections the store holds.
	Close() error
}

// SearchOptions bounds one similarity query.
type SearchOptions struct {
	// TopK caps the number of matches returned. Zero or negative
	// falls back to core.DefaultTopK.
	TopK int

	// MinScore drops matches scoring below it. Cosine scores lie in
	// [-1, 1], so a caller that wants every candidate passes -1.
	MinScore float64
}

// Match is one scored hit from a similarity query.
type Match struct {
	ChunkId    core.ID
	DocumentId core.ID
	ChunkIndex int
	Text       string
	Metadata   map[string]string
	Score      float64
}

// UpsertResult reports the per-record outcome of one Upsert call.
// Failed records stay retryable on the next ingestion run.
type UpsertResult struct {
	Succeeded int
	Failed    []RecordError
}

// RecordError ties a rejected record to its cause.
type RecordError struct {
	ChunkId core.ID
	Err     error
}

// AllFailed reports whether the call wrote nothing at all.
func (r *UpsertResult) AllFailed() bool {
	return len(r.Failed) > 0 && r.Succeeded == 0
}
