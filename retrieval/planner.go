package retrieval

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/poiesic/knowit/core"
	"github.com/poiesic/knowit/embedding"
	"github.com/poiesic/knowit/providers"
	"github.com/poiesic/knowit/storage"
	"github.com/poiesic/knowit/vectorstore"
)

const (
	// hybridFetchFactor widens each branch's candidate pool relative to
	// the requested result count, so the blend has something to reorder.
	hybridFetchFactor = 4

	// hybridFetchFloor is the minimum candidate pool per branch.
	hybridFetchFloor = 20
)

// Planner executes queries against vector indexes, dispatching on the
// index's configured strategy.
type Planner struct {
	chunks   storage.ChunkRepository
	indexes  storage.IndexRepository
	registry *providers.Registry
	stores   *vectorstore.Factory
	logger   *slog.Logger
}

// Option configures a Planner.
type Option func(*Planner) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Planner) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPlanner creates a new query planner.
func NewPlanner(
	chunks storage.ChunkRepository,
	indexes storage.IndexRepository,
	registry *providers.Registry,
	stores *vectorstore.Factory,
	opts ...Option,
) (*Planner, error) {
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if indexes == nil {
		return nil, ErrIndexRepositoryRequired
	}
	if registry == nil {
		return nil, ErrRegistryRequired
	}
	if stores == nil {
		return nil, ErrStoreFactoryRequired
	}

	p := &Planner{
		chunks:   chunks,
		indexes:  indexes,
		registry: registry,
		stores:   stores,
		logger:   slog.Default().With("component", "retrieval"),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// SearchOptions holds optional per-query overrides.
type SearchOptions struct {
	// TopK overrides the index's configured result count when positive.
	TopK int

	// ScoreThreshold overrides the index's configured threshold when set.
	// The pointer distinguishes an explicit zero from "use the index".
	ScoreThreshold *float64

	// Monitor receives stage callbacks during execution. Nil disables
	// monitoring.
	Monitor Monitor
}

// Result is one ranked retrieval hit. Score carries the strategy's final
// value: raw cosine similarity for vector search, the weighted blend of
// normalized branch scores otherwise. The raw branch scores ride along.
type Result struct {
	ChunkId      core.ID
	DocumentId   core.ID
	ChunkIndex   int
	Text         string
	Metadata     map[string]string
	Score        float64
	VectorScore  float64
	KeywordScore float64
}

// Search runs a query against an index using its configured strategy.
// Results are ranked by descending score and capped at the effective
// result count.
func (p *Planner) Search(ctx context.Context, indexID core.ID, query string, opts *SearchOptions) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", core.ErrConfiguration)
	}
	if opts == nil {
		opts = &SearchOptions{}
	}
	monitor := opts.Monitor
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	index, err := p.indexes.GetIndex(ctx, indexID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: index %d", core.ErrNotFound, indexID)
		}
		return nil, err
	}

	topK := index.TopK
	if opts.TopK > 0 {
		topK = opts.TopK
	}
	if topK <= 0 {
		topK = core.DefaultTopK
	}
	threshold := index.ScoreThreshold
	if opts.ScoreThreshold != nil {
		threshold = *opts.ScoreThreshold
	}

	monitor.Start(query)

	switch index.Strategy {
	case core.StrategyVector:
		return p.vectorSearch(ctx, index, query, topK, threshold, monitor)
	case core.StrategyFulltext, core.StrategyHybrid:
		return p.blendedSearch(ctx, index, query, topK, threshold, monitor)
	default:
		return nil, fmt.Errorf("%w: %w: value %d", core.ErrConfiguration, core.ErrInvalidStrategy, index.Strategy)
	}
}

// vectorSearch ranks purely by cosine similarity, thresholding the raw
// store scores.
func (p *Planner) vectorSearch(ctx context.Context, index *core.VectorIndex, query string, topK int, threshold float64, monitor Monitor) ([]Result, error) {
	vector, err := p.embedQuery(ctx, index, query)
	if err != nil {
		return nil, err
	}
	monitor.AfterQueryEmbedding(vector)

	store, err := p.stores.Open(ctx, index.Store)
	if err != nil {
		return nil, err
	}
	matches, err := store.Search(ctx, index.Id, vector, vectorstore.SearchOptions{
		TopK:     topK,
		MinScore: threshold,
	})
	if err != nil {
		return nil, err
	}
	monitor.AfterVectorSearch(matches)

	// The store already ranks and thresholds.
	results := make([]Result, len(matches))
	for i, match := range matches {
		results[i] = Result{
			ChunkId:     match.ChunkId,
			DocumentId:  match.DocumentId,
			ChunkIndex:  match.ChunkIndex,
			Text:        match.Text,
			Metadata:    match.Metadata,
			Score:       match.Score,
			VectorScore: match.Score,
		}
	}
	monitor.Finish(results)
	return results, nil
}

// blendedSearch runs the weighted branches in parallel and fuses them.
// Fulltext is the degenerate case with all weight on the keyword branch.
func (p *Planner) blendedSearch(ctx context.Context, index *core.VectorIndex, query string, topK int, threshold float64, monitor Monitor) ([]Result, error) {
	fetchK := max(topK*hybridFetchFactor, hybridFetchFloor)

	var (
		queryVector   []float32
		matches       []vectorstore.Match
		keywordScores map[core.ID]float64
		chunkByID     map[core.ID]*core.Chunk
	)

	group, groupCtx := errgroup.WithContext(ctx)

	// Zero-weight branches are skipped, so a fulltext index never calls
	// an embedding provider.
	if index.SemanticWeight > 0 {
		group.Go(func() error {
			vector, err := p.embedQuery(groupCtx, index, query)
			if err != nil {
				return err
			}
			store, err := p.stores.Open(groupCtx, index.Store)
			if err != nil {
				return err
			}
			found, err := store.Search(groupCtx, index.Id, vector, vectorstore.SearchOptions{
				TopK:     fetchK,
				MinScore: -1, // thresholding happens on the blended score
			})
			if err != nil {
				return err
			}
			queryVector, matches = vector, found
			return nil
		})
	}

	if index.KeywordWeight > 0 {
		group.Go(func() error {
			chunks, err := p.chunks.ListChunksByCollection(groupCtx, index.CollectionId)
			if err != nil {
				return err
			}
			keywordScores, chunkByID = keywordCandidates(chunks, query, fetchK)
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	if index.SemanticWeight > 0 {
		monitor.AfterQueryEmbedding(queryVector)
		monitor.AfterVectorSearch(matches)
	}
	if index.KeywordWeight > 0 {
		monitor.AfterKeywordSearch(maps.All(keywordScores))
	}

	vectorScores := make(map[core.ID]float64, len(matches))
	matchByID := make(map[core.ID]vectorstore.Match, len(matches))
	for _, match := range matches {
		vectorScores[match.ChunkId] = match.Score
		matchByID[match.ChunkId] = match
	}

	normVector := normalizeScores(vectorScores)
	normKeyword := normalizeScores(keywordScores)

	candidates := make(map[core.ID]bool, len(vectorScores)+len(keywordScores))
	for id := range vectorScores {
		candidates[id] = true
	}
	for id := range keywordScores {
		candidates[id] = true
	}

	results := make([]Result, 0, len(candidates))
	for id := range candidates {
		combined := index.SemanticWeight*normVector[id] + index.KeywordWeight*normKeyword[id]
		if combined < threshold {
			continue
		}

		result := Result{
			ChunkId:      id,
			Score:        combined,
			VectorScore:  vectorScores[id],
			KeywordScore: keywordScores[id],
		}
		if match, ok := matchByID[id]; ok {
			result.DocumentId = match.DocumentId
			result.ChunkIndex = match.ChunkIndex
			result.Text = match.Text
			result.Metadata = match.Metadata
		} else if chunk, ok := chunkByID[id]; ok {
			result.DocumentId = chunk.DocumentId
			result.ChunkIndex = chunk.Index
			result.Text = chunk.RenderedText
			result.Metadata = chunk.Metadata
		}
		results = append(results, result)
	}

	slices.SortFunc(results, compareResults)
	if len(results) > topK {
		results = results[:topK]
	}
	monitor.Finish(results)
	return results, nil
}

// embedQuery opens the index's embedder and embeds the query text. The
// vector is normalized so stores can rank by plain dot product.
func (p *Planner) embedQuery(ctx context.Context, index *core.VectorIndex, query string) ([]float32, error) {
	embedder, err := p.registry.OpenEmbedder(index.EmbeddingProvider, index.EmbeddingModel)
	if err != nil {
		return nil, err
	}
	vector, err := embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding query: %w", core.ErrProvider, err)
	}
	return embedding.NormalizeVector(vector), nil
}

// compareResults orders by blended score, then raw vector score, then
// document position, then chunk id. The trailing keys keep equal-scored
// runs stable across runs.
func compareResults(a, b Result) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	if c := cmp.Compare(b.VectorScore, a.VectorScore); c != 0 {
		return c
	}
	if c := cmp.Compare(a.ChunkIndex, b.ChunkIndex); c != 0 {
		return c
	}
	return cmp.Compare(a.ChunkId, b.ChunkId)
}

// normalizeScores min-max scales a branch's scores to [0,1]. A branch
// where every hit lands on the same value maps to 1.0 for all of them.
func normalizeScores(scores map[core.ID]float64) map[core.ID]float64 {
	if len(scores) == 0 {
		return scores
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, score := range scores {
		lo = math.Min(lo, score)
		hi = math.Max(hi, score)
	}

	normalized := make(map[core.ID]float64, len(scores))
	if hi-lo < 1e-12 {
		for id := range scores {
			normalized[id] = 1
		}
		return normalized
	}
	for id, score := range scores {
		normalized[id] = (score - lo) / (hi - lo)
	}
	return normalized
}
