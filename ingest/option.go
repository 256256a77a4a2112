package ingest

import "log/slog"

// DefaultBatchSize is the number of texts sent per embedding call.
const DefaultBatchSize = 64

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLoader replaces the corpus loader.
func WithLoader(l DocumentLoader) Option {
	return func(p *Pipeline) { p.loader = l }
}

// WithSplitter replaces the default splitter.
func WithSplitter(s *Splitter) Option {
	return func(p *Pipeline) { p.splitter = s }
}

// WithMerger replaces the default merger.
func WithMerger(m *Merger) Option {
	return func(p *Pipeline) { p.merger = m }
}

// WithTitleExtractor replaces the default title extractor.
func WithTitleExtractor(t *TitleExtractor) Option {
	return func(p *Pipeline) { p.titles = t }
}

// WithBatchSize sets how many texts are embedded per provider call.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithLogger sets the logger for stage progress. The default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}
