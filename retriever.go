package sage

import (
	"context"
	"fmt"
)

// Retriever searches the index and returns ranked results for a question.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]SearchResult, error)
}

// RetrieverOption configures a VectorRetriever.
type RetrieverOption func(*VectorRetriever)

// WithMinScore sets the minimum similarity score. Results below it are
// dropped before returning. Default is 0 (no filtering).
func WithMinScore(score float64) RetrieverOption {
	return func(r *VectorRetriever) { r.minScore = score }
}

// VectorRetriever embeds the query and runs a similarity search against the
// store. Results come back scored in [0, 1], best first.
type VectorRetriever struct {
	store     Store
	embedding EmbeddingProvider
	minScore  float64
}

var _ Retriever = (*VectorRetriever)(nil)

// NewVectorRetriever creates a Retriever over store using embedding for
// query vectors.
func NewVectorRetriever(store Store, embedding EmbeddingProvider, opts ...RetrieverOption) *VectorRetriever {
	r := &VectorRetriever{store: store, embedding: embedding}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Retrieve embeds query, searches the store, and returns up to topK results
// above the minimum score.
func (r *VectorRetriever) Retrieve(ctx context.Context, query string, topK int) ([]SearchResult, error) {
	embs, err := r.embedding.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(embs) == 0 {
		return nil, fmt.Errorf("embed query: no embedding returned")
	}

	results, err := r.store.Search(ctx, embs[0], topK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	if r.minScore > 0 {
		filtered := results[:0]
		for _, res := range results {
			if res.Score >= r.minScore {
				filtered = append(filtered, res)
			}
		}
		results = filtered
	}
	return results, nil
}
