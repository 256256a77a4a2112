package sage

import "context"

// Store abstracts the content-addressed vector index.
//
// Upsert conflicts on IndexRecord.ContentHash: re-writing an unchanged record
// is a no-op update, so running ingestion twice on an unchanged corpus never
// creates duplicates. PruneExcept removes rows left behind by deleted or
// changed source content; callers run it only after a successful Upsert.
type Store interface {
	// Init creates the schema (and indexes) if missing. Idempotent.
	Init(ctx context.Context) error
	// Upsert inserts or updates records keyed on ContentHash.
	Upsert(ctx context.Context, records []IndexRecord) error
	// PruneExcept deletes every record whose ContentHash is not in hashes.
	// Returns the number of rows removed.
	PruneExcept(ctx context.Context, hashes []string) (int, error)
	// Search returns the topK records most similar to the query embedding,
	// scored in [0, 1], best first.
	Search(ctx context.Context, embedding []float32, topK int) ([]SearchResult, error)
	// Count returns the number of indexed records.
	Count(ctx context.Context) (int, error)
	// Close releases the underlying connection(s).
	Close() error
}
