// Package sqlite implements sage.Store using pure-Go SQLite
// with in-process brute-force vector search. Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	sage "github.com/vheim/sage"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store. When set, the store
// emits debug logs with timing and row counts. If not set, no logs are
// emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store implements sage.Store backed by a local SQLite file. Embeddings are
// stored as JSON text and vector search is done in-process using brute-force
// cosine similarity, which is plenty for a corpus of a few thousand chunks.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ sage.Store = (*Store)(nil)

// New creates a Store using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so that
// all goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: sage.NopLogger()}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// Init creates the records table if missing. Idempotent.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		source TEXT NOT NULL,
		title TEXT NOT NULL,
		content_hash TEXT NOT NULL UNIQUE,
		embedding TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create records table: %w", err)
	}
	return nil
}

// Upsert writes records in one transaction, conflicting on content_hash.
// An unchanged chunk keeps its row (and id); a changed chunk inserts a new
// row and leaves the old one for PruneExcept.
func (s *Store) Upsert(ctx context.Context, records []sage.IndexRecord) error {
	start := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO records
		(id, content, source, title, content_hash, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_hash) DO UPDATE SET
			content = excluded.content,
			source = excluded.source,
			title = excluded.title,
			embedding = excluded.embedding`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		_, err := stmt.ExecContext(ctx, r.ID, r.Content, r.Source, r.Title,
			r.ContentHash, serializeEmbedding(r.Embedding), r.CreatedAt)
		if err != nil {
			return fmt.Errorf("upsert record %s: %w", r.ContentHash, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	s.logger.Debug("sqlite: upsert", "records", len(records), "took", time.Since(start))
	return nil
}

// PruneExcept deletes every row whose content_hash is not in hashes.
// Deletes run in batches to stay under SQLite's bound-variable limit.
func (s *Store) PruneExcept(ctx context.Context, hashes []string) (int, error) {
	keep := make(map[string]bool, len(hashes))
	for _, h := range hashes {
		keep[h] = true
	}

	rows, err := s.db.QueryContext(ctx, `SELECT content_hash FROM records`)
	if err != nil {
		return 0, fmt.Errorf("list hashes: %w", err)
	}
	var stale []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan hash: %w", err)
		}
		if !keep[h] {
			stale = append(stale, h)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("list hashes: %w", err)
	}

	const batch = 500
	pruned := 0
	for lo := 0; lo < len(stale); lo += batch {
		hi := min(lo+batch, len(stale))
		placeholders := strings.TrimSuffix(strings.Repeat("?,", hi-lo), ",")
		args := make([]any, hi-lo)
		for i, h := range stale[lo:hi] {
			args[i] = h
		}
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM records WHERE content_hash IN (`+placeholders+`)`, args...)
		if err != nil {
			return pruned, fmt.Errorf("prune records: %w", err)
		}
		n, _ := res.RowsAffected()
		pruned += int(n)
	}
	if pruned > 0 {
		s.logger.Debug("sqlite: pruned stale records", "rows", pruned)
	}
	return pruned, nil
}

// Search performs brute-force cosine similarity over all rows, returning the
// topK best matches.
func (s *Store) Search(ctx context.Context, embedding []float32, topK int) ([]sage.SearchResult, error) {
	if topK <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT content, source, title, embedding FROM records`)
	if err != nil {
		return nil, fmt.Errorf("search records: %w", err)
	}
	defer rows.Close()

	var results []sage.SearchResult
	for rows.Next() {
		var r sage.SearchResult
		var embJSON string
		if err := rows.Scan(&r.Content, &r.Source, &r.Title, &embJSON); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		stored, err := deserializeEmbedding(embJSON)
		if err != nil {
			continue
		}
		r.Score = float64(cosineSimilarity(embedding, stored))
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search records: %w", err)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Count returns the number of indexed records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// cosineSimilarity computes the cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return float32(dot / denom)
}

func serializeEmbedding(embedding []float32) string {
	data, _ := json.Marshal(embedding)
	return string(data)
}

func deserializeEmbedding(s string) ([]float32, error) {
	var v []float32
	err := json.Unmarshal([]byte(s), &v)
	return v, err
}
