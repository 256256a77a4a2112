package ingest

import sage "github.com/vheim/sage"

// DefaultMinChunkSize is the size below which a chunk counts as an orphan.
const DefaultMinChunkSize = 100

// mergeSeparator joins two merged chunk bodies with a blank line.
const mergeSeparator = "\n\n"

// Merger folds undersized chunks into their following same-source neighbor.
// A chunk below the minimum size (a bare heading, a one-line stub) makes a
// poor retrieval unit: too little text to embed meaningfully, noisy as a
// search hit. Splitting at structural boundaries produces such fragments
// routinely, so the merger runs over the splitter's full output.
type Merger struct {
	minSize int
	sep     string
}

// MergerOption configures a Merger.
type MergerOption func(*Merger)

// WithMinChunkSize sets the orphan threshold in characters. Default 100.
func WithMinChunkSize(n int) MergerOption {
	return func(m *Merger) {
		if n > 0 {
			m.minSize = n
		}
	}
}

// WithMergeSeparator sets the string inserted between combined chunk bodies.
// Default is a blank line.
func WithMergeSeparator(sep string) MergerOption {
	return func(m *Merger) { m.sep = sep }
}

// NewMerger creates a Merger with the given options.
func NewMerger(opts ...MergerOption) *Merger {
	m := &Merger{minSize: DefaultMinChunkSize, sep: mergeSeparator}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Merge makes a single left-to-right pass over chunks, carrying at most one
// pending undersized chunk:
//
//   - no pending: an undersized chunk is held as pending, a full-size chunk
//     is emitted as-is;
//   - pending, same source: pending and current combine (pending's content,
//     the separator, current's content; pending's metadata). If the
//     combination is still undersized it becomes the new pending, so a run
//     of consecutive orphans folds into one chunk;
//   - pending, different source: pending is flushed unmerged — merging never
//     crosses a source boundary — and the current chunk is re-checked as if
//     the pass had just reached it;
//   - end of input: a remaining pending is flushed even if undersized, since
//     a tail fragment has no later neighbor to merge with.
//
// No content is ever dropped, chunk order and source grouping are preserved,
// and the input slice is not modified.
func (m *Merger) Merge(chunks []sage.Chunk) []sage.Chunk {
	out := make([]sage.Chunk, 0, len(chunks))
	var pending *sage.Chunk

	for _, c := range chunks {
		if pending != nil && pending.Source == c.Source {
			combined := *pending
			combined.Content = pending.Content + m.sep + c.Content
			if len(combined.Content) < m.minSize {
				pending = &combined
			} else {
				out = append(out, combined)
				pending = nil
			}
			continue
		}

		if pending != nil {
			out = append(out, *pending)
			pending = nil
		}

		if len(c.Content) < m.minSize {
			pending = &c
		} else {
			out = append(out, c)
		}
	}

	if pending != nil {
		out = append(out, *pending)
	}
	return out
}
