// Package postgres implements sage.Store using PostgreSQL with pgvector
// for native vector similarity search.
//
// Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool; Close here is a no-op
// so a shared pool is never torn down by one of its users.
package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	sage "github.com/vheim/sage"
)

// Store implements sage.Store backed by PostgreSQL with pgvector.
// Vector search uses an HNSW index with cosine distance.
type Store struct {
	pool *pgxpool.Pool
	cfg  pgConfig
}

// pgConfig holds store configuration set via Option functions.
type pgConfig struct {
	embeddingDimension int // 0 = untyped vector
	hnswM              int // 0 = pgvector default (16)
	hnswEFConstruction int // 0 = pgvector default (64)
}

// Option configures a PostgreSQL Store.
type Option func(*pgConfig)

// WithEmbeddingDimension sets the vector column dimension (e.g. 1536, 768).
// When set, CREATE TABLE uses vector(N) instead of untyped vector, enabling
// index optimization and catching dimension mismatches at insert time.
// Only affects new table creation (no ALTER on existing tables).
func WithEmbeddingDimension(dim int) Option {
	return func(c *pgConfig) { c.embeddingDimension = dim }
}

// WithHNSWM sets the HNSW m parameter (max connections per node).
// Higher values improve recall at the cost of memory. Default: pgvector's 16.
func WithHNSWM(m int) Option {
	return func(c *pgConfig) { c.hnswM = m }
}

// WithEFConstruction sets the HNSW ef_construction parameter (build-time
// candidate list size). Higher values improve index quality at the cost of
// slower builds. Default: pgvector's 64.
func WithEFConstruction(ef int) Option {
	return func(c *pgConfig) { c.hnswEFConstruction = ef }
}

var _ sage.Store = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	var cfg pgConfig
	for _, o := range opts {
		o(&cfg)
	}
	return &Store{pool: pool, cfg: cfg}
}

// vectorType returns "vector" or "vector(N)" depending on config.
func (s *Store) vectorType() string {
	if s.cfg.embeddingDimension > 0 {
		return fmt.Sprintf("vector(%d)", s.cfg.embeddingDimension)
	}
	return "vector"
}

// hnswWithClause returns the WITH (...) clause for HNSW index creation,
// or an empty string if no tuning params are set.
func (s *Store) hnswWithClause() string {
	var parts []string
	if s.cfg.hnswM > 0 {
		parts = append(parts, fmt.Sprintf("m = %d", s.cfg.hnswM))
	}
	if s.cfg.hnswEFConstruction > 0 {
		parts = append(parts, fmt.Sprintf("ef_construction = %d", s.cfg.hnswEFConstruction))
	}
	if len(parts) == 0 {
		return ""
	}
	return " WITH (" + strings.Join(parts, ", ") + ")"
}

// Init creates the pgvector extension, the records table, and its indexes.
// Safe to call multiple times (all statements are idempotent).
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS records (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			source TEXT NOT NULL,
			title TEXT NOT NULL,
			content_hash TEXT NOT NULL UNIQUE,
			embedding %s NOT NULL,
			created_at BIGINT NOT NULL
		)`, s.vectorType()),

		`CREATE INDEX IF NOT EXISTS idx_records_source ON records (source)`,

		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_records_embedding
			ON records USING hnsw (embedding vector_cosine_ops)%s`, s.hnswWithClause()),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: init: %w", err)
		}
	}
	return nil
}

// Upsert writes records in one transaction, conflicting on content_hash.
func (s *Store) Upsert(ctx context.Context, records []sage.IndexRecord) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("postgres: begin upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, r := range records {
		_, err := tx.Exec(ctx,
			`INSERT INTO records (id, content, source, title, content_hash, embedding, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6::vector, $7)
			 ON CONFLICT (content_hash) DO UPDATE SET
				content = EXCLUDED.content,
				source = EXCLUDED.source,
				title = EXCLUDED.title,
				embedding = EXCLUDED.embedding`,
			r.ID, r.Content, r.Source, r.Title, r.ContentHash,
			serializeEmbedding(r.Embedding), r.CreatedAt)
		if err != nil {
			return fmt.Errorf("postgres: upsert record %s: %w", r.ContentHash, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit upsert: %w", err)
	}
	return nil
}

// PruneExcept deletes every row whose content_hash is not in hashes.
func (s *Store) PruneExcept(ctx context.Context, hashes []string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM records WHERE NOT (content_hash = ANY($1))`, hashes)
	if err != nil {
		return 0, fmt.Errorf("postgres: prune records: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Search returns the topK records nearest to the query embedding by cosine
// distance, scored as 1 - distance.
func (s *Store) Search(ctx context.Context, embedding []float32, topK int) ([]sage.SearchResult, error) {
	if topK <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT content, source, title,
		        1 - (embedding <=> $1::vector) AS score
		 FROM records
		 ORDER BY embedding <=> $1::vector
		 LIMIT $2`,
		serializeEmbedding(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("postgres: search records: %w", err)
	}
	defer rows.Close()

	var results []sage.SearchResult
	for rows.Next() {
		var r sage.SearchResult
		if err := rows.Scan(&r.Content, &r.Source, &r.Title, &r.Score); err != nil {
			return nil, fmt.Errorf("postgres: scan record: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// Count returns the number of indexed records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count records: %w", err)
	}
	return n, nil
}

// Close is a no-op; the pool is owned by the caller.
func (s *Store) Close() error { return nil }

// serializeEmbedding formats a vector as a pgvector literal, e.g. [0.1,0.2].
func serializeEmbedding(embedding []float32) string {
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
