package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/poiesic/knowit/core"
)

// PGStore keeps vectors in PostgreSQL through the pgvector extension.
// Each index owns one table, created on first upsert with the
// dimension of the vectors it receives. Scores are cosine similarity,
// computed as 1 - (embedding <=> query).
type PGStore struct {
	pool *pgxpool.Pool

	mu      sync.Mutex
	ensured map[core.ID]bool
}

var _ Store = (*PGStore)(nil)

// NewPGStore connects a pool against the given DSN. Connections are
// established lazily, so a wrong DSN surfaces on first use.
func NewPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: pgvector store requires a postgres DSN", core.ErrConfiguration)
	}
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid postgres DSN: %w", core.ErrConfiguration, err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%w: connect postgres: %w", core.ErrProvider, err)
	}
	return &PGStore{pool: pool, ensured: make(map[core.ID]bool)}, nil
}

// tableIdent returns the sanitized per-index table name.
func tableIdent(indexID core.ID) string {
	return pgx.Identifier{fmt.Sprintf("knowit_vectors_%d", indexID)}.Sanitize()
}

// ensureTable creates the index's table on first contact. The vector
// column dimension is fixed by the first batch; an index rebuilt with
// a different model must be deleted first.
func (s *PGStore) ensureTable(ctx context.Context, indexID core.ID, dimension int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured[indexID] {
		return nil
	}

	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("enable pgvector extension: %w", err)
	}
	createTable := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	chunk_id    BIGINT PRIMARY KEY,
	document_id BIGINT NOT NULL,
	chunk_index INTEGER NOT NULL,
	chunk_text  TEXT NOT NULL,
	metadata    JSONB,
	embedding   vector(%d) NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, tableIdent(indexID), dimension)
	if _, err := s.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("create vector table: %w", err)
	}

	s.ensured[indexID] = true
	return nil
}

// Upsert writes records one at a time so a rejected record does not
// take down its batch. The first record's vector length fixes the
// table dimension.
func (s *PGStore) Upsert(ctx context.Context, indexID core.ID, records []*core.VectorRecord) (*UpsertResult, error) {
	result := &UpsertResult{}
	if len(records) == 0 {
		return result, nil
	}

	if err := s.ensureTable(ctx, indexID, len(records[0].Vector)); err != nil {
		for _, record := range records {
			result.Failed = append(result.Failed, RecordError{ChunkId: record.ChunkId, Err: err})
		}
		return result, fmt.Errorf("%w: %w: index %d: %w", core.ErrProvider, ErrUpsert, indexID, err)
	}

	stmt := fmt.Sprintf(`INSERT INTO %s (chunk_id, document_id, chunk_index, chunk_text, metadata, embedding, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW())
ON CONFLICT (chunk_id) DO UPDATE SET
	document_id = EXCLUDED.document_id,
	chunk_index = EXCLUDED.chunk_index,
	chunk_text  = EXCLUDED.chunk_text,
	metadata    = EXCLUDED.metadata,
	embedding   = EXCLUDED.embedding,
	updated_at  = NOW()`, tableIdent(indexID))

	for _, record := range records {
		metadata, err := json.Marshal(record.Metadata)
		if err != nil {
			result.Failed = append(result.Failed, RecordError{ChunkId: record.ChunkId, Err: err})
			continue
		}

		// IDs are full-range 64-bit content hashes; the int64 cast is
		// a bit cast, reversed on read.
		_, err = s.pool.Exec(ctx, stmt,
			int64(record.ChunkId),
			int64(record.DocumentId),
			record.ChunkIndex,
			record.Text,
			metadata,
			pgvector.NewVector(record.Vector),
		)
		if err != nil {
			result.Failed = append(result.Failed, RecordError{ChunkId: record.ChunkId, Err: err})
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			continue
		}
		result.Succeeded++
	}

	return result, nil
}

// Search runs a cosine query against the index table. An index that
// was never written to returns no matches.
func (s *PGStore) Search(ctx context.Context, indexID core.ID, vector []float32, opts SearchOptions) ([]Match, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = core.DefaultTopK
	}

	query := fmt.Sprintf(`SELECT chunk_id, document_id, chunk_index, chunk_text, metadata,
	1 - (embedding <=> $1) AS score
FROM %s
WHERE 1 - (embedding <=> $1) >= $2
ORDER BY embedding <=> $1 ASC, chunk_index ASC, chunk_id ASC
LIMIT $3`, tableIdent(indexID))

	rows, err := s.pool.Query(ctx, query, pgvector.NewVector(vector), opts.MinScore, topK)
	if err != nil {
		if isUndefinedTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: search index %d: %w", core.ErrProvider, indexID, err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			chunkID    int64
			documentID int64
			chunkIndex int
			text       string
			metaRaw    []byte
			score      float64
		)
		if err := rows.Scan(&chunkID, &documentID, &chunkIndex, &text, &metaRaw, &score); err != nil {
			return nil, fmt.Errorf("%w: search index %d: %w", core.ErrProvider, indexID, err)
		}
		var metadata map[string]string
		if len(metaRaw) > 0 {
			if err := json.Unmarshal(metaRaw, &metadata); err != nil {
				return nil, fmt.Errorf("%w: search index %d: decode metadata: %w", core.ErrProvider, indexID, err)
			}
		}
		matches = append(matches, Match{
			ChunkId:    core.ID(chunkID),
			DocumentId: core.ID(documentID),
			ChunkIndex: chunkIndex,
			Text:       text,
			Metadata:   metadata,
			Score:      score,
		})
	}
	if err := rows.Err(); err != nil {
		if isUndefinedTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: search index %d: %w", core.ErrProvider, indexID, err)
	}
	return matches, nil
}

// DeleteIndex drops the index table. Dropping a table that never
// existed is not an error.
func (s *PGStore) DeleteIndex(ctx context.Context, indexID core.ID) error {
	s.mu.Lock()
	delete(s.ensured, indexID)
	s.mu.Unlock()

	stmt := fmt.Sprintf("DROP TABLE IF EXISTS %s", tableIdent(indexID))
	if _, err := s.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("%w: delete index %d: %w", core.ErrProvider, indexID, err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}

// isUndefinedTable reports the postgres undefined_table error, which
// here means the index has no vectors yet.
func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}
