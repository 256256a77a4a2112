// Package sage is a retrieval-augmented question answering pipeline for
// tabletop-game rules documents.
//
// It has two halves. Offline ingestion turns a directory of rules files into
// a content-addressed vector index: documents are split into bounded chunks,
// undersized fragments are merged into their neighbors, each chunk is
// enriched with a title derived from its source path, and the result is
// embedded and upserted keyed on a content hash so re-runs are idempotent.
// Online answering retrieves the most similar chunks for a question and asks
// an LLM to answer from them.
//
// # Quick Start
//
//	store := sqlite.New("sage.db")
//	emb := sage.WithEmbeddingRetry(gemini.NewEmbedding(apiKey, "gemini-embedding-001", 1536))
//
//	pipe := ingest.New(store, emb)
//	result, err := pipe.Run(ctx, "corpus/vault")
//
//	answerer := sage.NewAnswerer(
//		gemini.New(apiKey, "gemini-2.5-flash"),
//		sage.NewVectorRetriever(store, emb),
//	)
//	answer, err := answerer.Ask(ctx, "How does sneak attack work?")
//
// # Core Interfaces
//
// The root package defines the contracts that all components implement:
//
//   - [Provider] — LLM backend (chat, streaming)
//   - [EmbeddingProvider] — text-to-vector embedding
//   - [Store] — content-addressed vector index (upsert, prune, search)
//   - [Retriever] — query-time similarity lookup
//
// # Included Implementations
//
// Providers: provider/gemini (Google Gemini), provider/openai
// (OpenAI-compatible APIs), provider/embcache (Redis embedding cache).
// Storage: store/sqlite (local, pure Go), store/postgres (pgvector).
// The ingestion pipeline lives in ingest; the HTTP API in frontend/httpapi.
//
// See cmd/sage for the command-line entry point.
package sage
