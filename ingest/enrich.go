package ingest

import sage "github.com/vheim/sage"

// Enrich returns a copy of chunk with the title prepended as a bracketed
// header line. The title anchors an otherwise context-free fragment to its
// document, which is what makes short rule snippets findable by semantic
// search. Source and metadata pass through unchanged. Pure: the input chunk
// is not modified.
func Enrich(chunk sage.Chunk, title string) sage.Chunk {
	chunk.Content = "[" + title + "]\n" + chunk.Content
	return chunk
}
