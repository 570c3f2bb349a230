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

import (
	"fmt"
	"math"
)

// weightTolerance absorbs float rounding when checking that hybrid
// weights sum to 1.0.
const weightTolerance = 1e-6

// ValidateProcessingConfig validates a ProcessingConfig according to
// domain rules. Call Normalize first when zero values should mean
// "use the default".
//
// Validation rules:
//   - ChunkTokenSize must be positive
//   - MinChunkSizeChars must not be negative
//   - ChunkOverlap must be non-negative and smaller than ChunkTokenSize
//   - MinChunkLengthToEmbed must not be negative
//   - EmbeddingBatchSize must be positive
//   - MaxChunkCount must not be negative (0 means unlimited)
func ValidateProcessingConfig(config *ProcessingConfig) error {
	if config == nil {
		return fmt.Errorf("%w: config is nil", ErrConfiguration)
	}

	if config.ChunkTokenSize <= 0 {
		return fmt.Errorf("%w: %w", ErrConfiguration, ErrInvalidChunkSize)
	}

	if config.MinChunkSizeChars < 0 {
		return fmt.Errorf("%w: %w", ErrConfiguration, ErrInvalidMinChunkSize)
	}

	if config.ChunkOverlap < 0 || config.ChunkOverlap >= config.ChunkTokenSize {
		return fmt.Errorf("%w: %w", ErrConfiguration, ErrInvalidOverlap)
	}

	if config.MinChunkLengthToEmbed < 0 {
		return fmt.Errorf("%w: min chunk length to embed cannot be negative", ErrConfiguration)
	}

	if config.EmbeddingBatchSize <= 0 {
		return fmt.Errorf("%w: %w", ErrConfiguration, ErrInvalidBatchSize)
	}

	if config.MaxChunkCount < 0 {
		return fmt.Errorf("%w: max chunk count cannot be negative", ErrConfiguration)
	}

	return nil
}

// ValidateCollection validates a Collection according to domain rules.
//
// Validation rules:
//   - Name must not be empty
//   - Config must pass ValidateProcessingConfig
//
// NOT validated (populated by the job lifecycle):
//   - Counters, Status, ErrorMessage
//   - ID (0 is valid before a database sequence assigns one)
func ValidateCollection(collection *Collection) error {
	if collection == nil {
		return fmt.Errorf("%w: collection is nil", ErrInvalidCollection)
	}

	if collection.Name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidCollection)
	}

	if err := ValidateProcessingConfig(&collection.Config); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCollection, err)
	}

	return nil
}

// ValidateDocument validates a Document according to domain rules.
//
// Validation rules:
//   - CollectionId must be set
//   - Filename must not be empty
//   - Contents must not be empty
func ValidateDocument(document *Document) error {
	if document == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}

	if document.CollectionId == 0 {
		return fmt.Errorf("%w: collection id is required", ErrInvalidDocument)
	}

	if document.Filename == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyFilename)
	}

	if document.Contents == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyContent)
	}

	return nil
}

// ValidateVectorIndex validates a VectorIndex according to domain rules.
//
// Validation rules:
//   - Name must not be empty
//   - CollectionId must be set
//   - Strategy must be a known value
//   - Weights must match the strategy (see ValidateWeights)
//   - TopK must be positive
//   - ScoreThreshold must lie in [0,1]
//
// Provider and model membership is checked by the provider registry,
// not here.
func ValidateVectorIndex(index *VectorIndex) error {
	if index == nil {
		return fmt.Errorf("%w: index is nil", ErrInvalidIndex)
	}

	if index.Name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidIndex)
	}

	if index.CollectionId == 0 {
		return fmt.Errorf("%w: collection id is required", ErrInvalidIndex)
	}

	if err := ValidateSearchStrategy(index.Strategy); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidIndex, err)
	}

	if err := ValidateWeights(index.Strategy, index.SemanticWeight, index.KeywordWeight); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidIndex, err)
	}

	if index.TopK <= 0 {
		return fmt.Errorf("%w: %w", ErrInvalidIndex, ErrInvalidTopK)
	}

	if index.ScoreThreshold < 0 || index.ScoreThreshold > 1 {
		return fmt.Errorf("%w: score threshold must be in [0,1]", ErrInvalidIndex)
	}

	return nil
}

// ValidateSearchStrategy validates that a SearchStrategy has a valid value.
func ValidateSearchStrategy(strategy SearchStrategy) error {
	switch strategy {
	case StrategyVector, StrategyFulltext, StrategyHybrid:
		return nil
	default:
		return fmt.Errorf("%w: value %d", ErrInvalidStrategy, strategy)
	}
}

// ValidateWeights checks the weight pair against the strategy. Vector
// search requires (1,0), fulltext requires (0,1), and hybrid requires
// two non-negative weights summing to 1.0 within tolerance.
func ValidateWeights(strategy SearchStrategy, semantic, keyword float64) error {
	switch strategy {
	case StrategyVector:
		if semantic != 1 || keyword != 0 {
			return fmt.Errorf("%w: vector strategy requires weights (1,0)", ErrInvalidWeights)
		}
	case StrategyFulltext:
		if semantic != 0 || keyword != 1 {
			return fmt.Errorf("%w: fulltext strategy requires weights (0,1)", ErrInvalidWeights)
		}
	case StrategyHybrid:
		if semantic < 0 || keyword < 0 {
			return fmt.Errorf("%w: weights cannot be negative", ErrInvalidWeights)
		}
		if math.Abs(semantic+keyword-1) > weightTolerance {
			return fmt.Errorf("%w: got %.3f + %.3f", ErrInvalidWeights, semantic, keyword)
		}
	}
	return nil
}

// ParseSearchStrategy maps a wire name to its SearchStrategy value.
func ParseSearchStrategy(name string) (SearchStrategy, error) {
	switch name {
	case "vector":
		return StrategyVector, nil
	case "fulltext":
		return StrategyFulltext, nil
	case "hybrid":
		return StrategyHybrid, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidStrategy, name)
	}
}
