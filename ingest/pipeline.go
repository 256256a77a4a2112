package ingest

import (
	"context"
	"log/slog"
	"time"

	sage "github.com/vheim/sage"
)

// DocumentLoader reads a corpus directory into documents.
type DocumentLoader interface {
	Load(ctx context.Context, dir string) ([]sage.Document, error)
}

// Result summarizes one ingestion run.
type Result struct {
	Documents int           `json:"documents"`
	Chunks    int           `json:"chunks"`
	Merged    int           `json:"merged"`
	Written   int           `json:"written"`
	Pruned    int           `json:"pruned"`
	Took      time.Duration `json:"took"`
}

// Pipeline runs the full ingestion sequence: load, split, merge, enrich,
// embed, upsert, prune. Stages run strictly in order; a failure aborts the
// run and nothing downstream of the failed stage executes. Pruning runs only
// after a successful upsert, so a failed run can never leave the index
// emptier than it found it.
type Pipeline struct {
	store     sage.Store
	embedding sage.EmbeddingProvider
	loader    DocumentLoader
	splitter  *Splitter
	merger    *Merger
	titles    *TitleExtractor
	batchSize int
	logger    *slog.Logger
}

// New creates a Pipeline with default stages. The store and embedding
// provider are required; everything else has a usable default.
func New(store sage.Store, embedding sage.EmbeddingProvider, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:     store,
		embedding: embedding,
		loader:    NewLoader(),
		splitter:  NewSplitter(),
		merger:    NewMerger(),
		titles:    NewTitleExtractor(),
		batchSize: DefaultBatchSize,
		logger:    sage.NopLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run ingests the corpus at dir into the store. An empty corpus returns
// ErrEmptyResult before the store is touched; a populated index is never
// cleared by an accidental run against a missing or empty directory.
func (p *Pipeline) Run(ctx context.Context, dir string) (Result, error) {
	start := time.Now()

	docs, err := p.loader.Load(ctx, dir)
	if err != nil {
		return Result{}, err
	}
	p.logger.Info("corpus loaded", "dir", dir, "documents", len(docs))

	chunks := p.splitter.SplitAll(docs)
	merged := p.merger.Merge(chunks)
	p.logger.Info("corpus chunked", "chunks", len(chunks), "merged", len(merged))

	records := p.buildRecords(merged)
	if len(records) == 0 {
		return Result{}, &sage.ErrEmptyResult{Dir: dir}
	}

	if err := p.store.Init(ctx); err != nil {
		return Result{}, &sage.ErrWrite{Stage: "init", Err: err}
	}
	if err := p.embedRecords(ctx, records); err != nil {
		return Result{}, &sage.ErrWrite{Stage: "embed", Err: err}
	}
	if err := p.store.Upsert(ctx, records); err != nil {
		return Result{}, &sage.ErrWrite{Stage: "upsert", Err: err}
	}

	hashes := make([]string, len(records))
	for i, r := range records {
		hashes[i] = r.ContentHash
	}
	pruned, err := p.store.PruneExcept(ctx, hashes)
	if err != nil {
		return Result{}, &sage.ErrWrite{Stage: "prune", Err: err}
	}

	res := Result{
		Documents: len(docs),
		Chunks:    len(chunks),
		Merged:    len(merged),
		Written:   len(records),
		Pruned:    pruned,
		Took:      time.Since(start),
	}
	p.logger.Info("ingest complete",
		"written", res.Written, "pruned", res.Pruned, "took", res.Took)
	return res, nil
}

// buildRecords enriches each merged chunk with its title and computes the
// identity fields. The content hash covers the enriched content, so a title
// policy change re-indexes affected chunks like any other edit.
func (p *Pipeline) buildRecords(merged []sage.Chunk) []sage.IndexRecord {
	now := time.Now().Unix()
	records := make([]sage.IndexRecord, 0, len(merged))
	for _, c := range merged {
		title := p.titles.Extract(c.Source)
		enriched := Enrich(c, title)
		records = append(records, sage.IndexRecord{
			ID:          sage.NewID(),
			Content:     enriched.Content,
			Source:      c.Source,
			Title:       title,
			ContentHash: sage.ContentHash(enriched.Content, c.Source),
			CreatedAt:   now,
		})
	}
	return records
}

// embedRecords fills in embeddings batch by batch, sequentially, preserving
// record order.
func (p *Pipeline) embedRecords(ctx context.Context, records []sage.IndexRecord) error {
	for lo := 0; lo < len(records); lo += p.batchSize {
		hi := min(lo+p.batchSize, len(records))
		texts := make([]string, hi-lo)
		for i := lo; i < hi; i++ {
			texts[i-lo] = records[i].Content
		}
		vectors, err := p.embedding.Embed(ctx, texts)
		if err != nil {
			return err
		}
		for i, v := range vectors {
			records[lo+i].Embedding = v
		}
		p.logger.Debug("batch embedded", "from", lo, "to", hi)
	}
	return nil
}
