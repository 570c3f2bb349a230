package core

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing or database sequences.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// LifecycleStatus tracks a collection or index through its processing lifecycle.
type LifecycleStatus int

const (
	// StatusPending means the entity exists but no job has touched it yet.
	StatusPending LifecycleStatus = iota + 1
	// StatusProcessing means an ingestion job is currently mutating the entity.
	StatusProcessing
	// StatusReady means the last job finished successfully.
	StatusReady
	// StatusFailed means the last job ended with an error.
	StatusFailed
)

// String returns the lowercase wire name of the status.
func (s LifecycleStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusProcessing:
		return "processing"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// JobStatus tracks an ingestion job through its state machine.
// Valid transitions are queued -> processing -> completed | failed.
// Terminal states are final.
type JobStatus int

const (
	// JobQueued means the job is created but its worker has not started.
	JobQueued JobStatus = iota + 1
	// JobProcessing means the worker is running.
	JobProcessing
	// JobCompleted means the worker finished successfully.
	JobCompleted
	// JobFailed means the worker ended with an error.
	JobFailed
)

// String returns the lowercase wire name of the status.
func (s JobStatus) String() string {
	switch s {
	case JobQueued:
		return "queued"
	case JobProcessing:
		return "processing"
	case JobCompleted:
		return "completed"
	case JobFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// SearchStrategy selects how an index answers queries.
type SearchStrategy int

const (
	// StrategyVector ranks purely by embedding similarity.
	StrategyVector SearchStrategy = iota + 1
	// StrategyFulltext ranks purely by keyword overlap.
	StrategyFulltext
	// StrategyHybrid blends both branches with configured weights.
	StrategyHybrid
)

// String returns the lowercase wire name of the strategy.
func (s SearchStrategy) String() string {
	switch s {
	case StrategyVector:
		return "vector"
	case StrategyFulltext:
		return "fulltext"
	case StrategyHybrid:
		return "hybrid"
	default:
		return "unknown"
	}
}

// EmbeddingProvider names a supported embedding backend.
type EmbeddingProvider string

const (
	ProviderOpenAI EmbeddingProvider = "openai"
	ProviderOllama EmbeddingProvider = "ollama"
	ProviderMock   EmbeddingProvider = "mock"
)

// StoreProvider names a supported vector store backend.
type StoreProvider string

const (
	StoreBadger   StoreProvider = "badger"
	StorePgvector StoreProvider = "pgvector"
)

// Default processing parameters, applied by ProcessingConfig.Normalize
// when the caller leaves a field zero.
const (
	DefaultChunkTokenSize        = 1000
	DefaultMinChunkSizeChars     = 100
	DefaultMinChunkLengthToEmbed = 10
	DefaultEmbeddingBatchSize    = 32
)

// DefaultTopK is the result count applied when an index is created
// without one.
const DefaultTopK = 5

// ProcessingConfig holds the per-collection ingestion parameters.
// A collection stores its own copy at creation time; later changes by the
// caller never affect jobs already planned against the stored copy.
type ProcessingConfig struct {
	ChunkTokenSize        int // Target chunk size in tokens
	MinChunkSizeChars     int // Trailing chunks shorter than this merge into their predecessor
	ChunkOverlap          int // Tokens repeated from the end of the previous chunk
	MinChunkLengthToEmbed int // Rendered chunks shorter than this are stored unembedded
	EmbeddingBatchSize    int // Chunk texts per provider call
	MaxChunkCount         int // Per-document chunk limit, 0 means unlimited
	VisionEnabled         bool
	VisionProvider        string
	VisionModel           string
	ChunkTemplate         string            // Template with a {{chunk}} placeholder, empty disables rendering
	MetadataTemplate      map[string]string // Static metadata attached to every rendered chunk
}

// Normalize fills unset fields with the documented defaults.
func (c *ProcessingConfig) Normalize() {
	if c.ChunkTokenSize == 0 {
		c.ChunkTokenSize = DefaultChunkTokenSize
	}
	if c.MinChunkSizeChars == 0 {
		c.MinChunkSizeChars = DefaultMinChunkSizeChars
	}
	if c.MinChunkLengthToEmbed == 0 {
		c.MinChunkLengthToEmbed = DefaultMinChunkLengthToEmbed
	}
	if c.EmbeddingBatchSize == 0 {
		c.EmbeddingBatchSize = DefaultEmbeddingBatchSize
	}
}

// DefaultProcessingConfig returns a config with every default applied.
func DefaultProcessingConfig() ProcessingConfig {
	var c ProcessingConfig
	c.Normalize()
	return c
}

// Collection groups documents that share one processing configuration.
// Aggregate counters reflect the last successful ingestion and are
// preserved when a later job fails.
type Collection struct {
	Id            ID
	Name          string
	Description   string
	Config        ProcessingConfig
	DocumentCount int
	ChunkCount    int
	Status        LifecycleStatus
	ErrorMessage  string
	InsertedAt    time.Time
	UpdatedAt     time.Time
}

// Document is one ingested source file with its extracted text.
type Document struct {
	Id           ID
	CollectionId ID
	Filename     string
	SourceId     string // Caller-supplied external identifier, may be empty
	Contents     string
	InsertedAt   time.Time
}

// DocumentID derives the deterministic document identifier from its
// collection, filename and extracted text. Re-adding identical content
// yields the same ID.
func DocumentID(collectionID ID, filename, contents string) ID {
	return IDFromContent(fmt.Sprintf("%d:%s:%s", collectionID, filename, contents))
}

// Chunk is one contiguous slice of a document's text, optionally rendered
// through the collection's template and enriched with an embedding.
type Chunk struct {
	Id           ID
	DocumentId   ID
	CollectionId ID
	Index        int // 1-based position within the document
	Text         string
	RenderedText string
	Metadata     map[string]string
	Vector       []float32 // Most recent embedding, empty when skipped
	IsEnd        bool      // True for the document's final chunk
	InsertedAt   time.Time
	UpdatedAt    time.Time
}

// ChunkID derives the deterministic chunk identifier from its document,
// position and raw text. Re-processing identical content yields the same
// ID, which makes vector upserts idempotent.
func ChunkID(documentID ID, index int, text string) ID {
	return IDFromContent(fmt.Sprintf("%d:%d:%s", documentID, index, text))
}

// VectorIndex binds a collection to one embedding model, one vector store
// and one retrieval strategy. A collection may carry several indexes.
type VectorIndex struct {
	Id                ID
	Name              string
	Description       string
	CollectionId      ID
	EmbeddingProvider EmbeddingProvider
	EmbeddingModel    string
	Store             StoreProvider
	Strategy          SearchStrategy
	SemanticWeight    float64
	KeywordWeight     float64
	TopK              int
	ScoreThreshold    float64
	DocumentCount     int
	ChunkCount        int
	Status            LifecycleStatus
	ErrorMessage      string
	InsertedAt        time.Time
	UpdatedAt         time.Time
}

// Job records the progress of one background ingestion run.
// Progress never decreases while the job is live.
type Job struct {
	Id              ID
	CollectionId    ID
	IndexId         ID // Zero unless the job rebuilds a single index
	Status          JobStatus
	Progress        float64 // Fraction of documents attempted, in [0,1]
	CurrentStep     string
	TotalFiles      int
	ProcessedFiles  int // Documents fully processed
	FailedFiles     int // Documents abandoned after an error
	TotalChunks     int
	ProcessedChunks int
	ErrorMessage    string
	InsertedAt      time.Time
	UpdatedAt       time.Time
}

// VectorRecord is the unit stored in and returned by a vector store.
type VectorRecord struct {
	ChunkId    ID
	DocumentId ID
	ChunkIndex int
	Text       string
	Metadata   map[string]string
	Vector     []float32
}
