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


package core

import "errors"

// Domain error taxonomy. Callers branch on these with errors.Is; the
// wrapped detail carries the specifics.
var (
	// ErrConfiguration indicates an invalid processing or index
	// configuration. Rejected synchronously, never inside a job.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrCredential indicates a provider is missing required credentials.
	// Checked eagerly before any network call; the wrapped message names
	// the missing environment keys.
	ErrCredential = errors.New("missing provider credential")

	// ErrProvider indicates an embedding or vector store call failed.
	// Isolated to the affected batch or record.
	ErrProvider = errors.New("provider call failed")

	// ErrJobActive indicates a second job was requested for a collection
	// that already has a non-terminal job.
	ErrJobActive = errors.New("job already running for collection")

	// ErrJobTerminal indicates an attempted transition on a job that has
	// already reached completed or failed.
	ErrJobTerminal = errors.New("job already in terminal state")

	// ErrNotFound indicates a referenced entity does not exist.
	ErrNotFound = errors.New("entity not found")
)

// Validation errors for the field-level checks in validation.go.
var (
	// ErrInvalidCollection indicates a Collection failed validation.
	ErrInvalidCollection = errors.New("invalid collection")

	// ErrInvalidDocument indicates a Document failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrInvalidIndex indicates a VectorIndex failed validation.
	ErrInvalidIndex = errors.New("invalid vector index")

	// ErrEmptyContent indicates a required text field is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrEmptyFilename indicates the document Filename field is empty.
	ErrEmptyFilename = errors.New("filename cannot be empty")

	// ErrInvalidChunkSize indicates a non-positive chunk token size.
	ErrInvalidChunkSize = errors.New("chunk token size must be positive")

	// ErrInvalidMinChunkSize indicates a negative minimum chunk size.
	ErrInvalidMinChunkSize = errors.New("minimum chunk size cannot be negative")

	// ErrInvalidOverlap indicates an overlap that is negative or at least
	// the chunk size.
	ErrInvalidOverlap = errors.New("chunk overlap must be smaller than chunk token size")

	// ErrInvalidBatchSize indicates a non-positive embedding batch size.
	ErrInvalidBatchSize = errors.New("embedding batch size must be positive")

	// ErrInvalidStrategy indicates an unknown search strategy value.
	ErrInvalidStrategy = errors.New("invalid search strategy")

	// ErrInvalidWeights indicates hybrid weights that do not sum to 1.0.
	ErrInvalidWeights = errors.New("semantic and keyword weights must sum to 1.0")

	// ErrInvalidTopK indicates a non-positive top-k value.
	ErrInvalidTopK = errors.New("top_k must be positive")
)
