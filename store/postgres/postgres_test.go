package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	sage "github.com/vheim/sage"
)

func TestVectorType(t *testing.T) {
	if got := New(nil).vectorType(); got != "vector" {
		t.Errorf("default = %q, want vector", got)
	}
	if got := New(nil, WithEmbeddingDimension(1536)).vectorType(); got != "vector(1536)" {
		t.Errorf("dimensioned = %q, want vector(1536)", got)
	}
}

func TestHNSWWithClause(t *testing.T) {
	if got := New(nil).hnswWithClause(); got != "" {
		t.Errorf("default = %q, want empty", got)
	}
	got := New(nil, WithHNSWM(32), WithEFConstruction(128)).hnswWithClause()
	if got != " WITH (m = 32, ef_construction = 128)" {
		t.Errorf("tuned = %q", got)
	}
}

func TestSerializeEmbedding(t *testing.T) {
	if got := serializeEmbedding([]float32{0.5, -1, 2}); got != "[0.5,-1,2]" {
		t.Errorf("serializeEmbedding = %q", got)
	}
	if got := serializeEmbedding(nil); got != "[]" {
		t.Errorf("empty = %q", got)
	}
}

// TestIntegration exercises the full Store lifecycle against a real
// database. Set SAGE_TEST_POSTGRES_URL to run it.
func TestIntegration(t *testing.T) {
	url := os.Getenv("SAGE_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("SAGE_TEST_POSTGRES_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	s := New(pool, WithEmbeddingDimension(3))
	if err := s.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { pool.Exec(ctx, `DROP TABLE IF EXISTS records`) })

	rec := sage.IndexRecord{
		ID:          sage.NewID(),
		Content:     "attack rolls use a d20",
		Source:      "combat.md",
		Title:       "Combat",
		ContentHash: sage.ContentHash("attack rolls use a d20", "combat.md"),
		Embedding:   []float32{1, 0, 0},
		CreatedAt:   1700000000,
	}
	if err := s.Upsert(ctx, []sage.IndexRecord{rec}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := s.Upsert(ctx, []sage.IndexRecord{rec}); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}
	if n, _ := s.Count(ctx); n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}

	results, err := s.Search(ctx, []float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Source != "combat.md" {
		t.Errorf("results = %+v", results)
	}
	if results[0].Score < 0.99 {
		t.Errorf("score = %v, want ~1 for identical vector", results[0].Score)
	}

	pruned, err := s.PruneExcept(ctx, []string{"no-such-hash"})
	if err != nil {
		t.Fatalf("PruneExcept: %v", err)
	}
	if pruned != 1 {
		t.Errorf("pruned = %d, want 1", pruned)
	}
}
