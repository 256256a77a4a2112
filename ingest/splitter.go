package ingest

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	sage "github.com/vheim/sage"
)

// Default chunking parameters, in characters.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 100
)

// breakKind ranks split positions. Higher is better: a markdown heading
// starts a new topic, a blank line a new paragraph, any line start is the
// floor. Splitting mid-line is never considered.
type breakKind int

const (
	breakLine breakKind = iota
	breakParagraph
	breakHeading
)

type breakPoint struct {
	off  int
	kind breakKind
}

// Splitter cuts a document into chunks of at most chunkSize characters,
// breaking at the best structural boundary available and repeating up to
// chunkOverlap characters of trailing text at the start of the next chunk so
// no context is lost across a cut. Chunks are slices of the original text;
// nothing is reflowed or dropped.
type Splitter struct {
	chunkSize int
	overlap   int
	md        goldmark.Markdown
}

// SplitterOption configures a Splitter.
type SplitterOption func(*Splitter)

// WithChunkSize sets the maximum chunk length in characters. Default 1000.
func WithChunkSize(n int) SplitterOption {
	return func(s *Splitter) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// WithChunkOverlap sets the overlap between consecutive chunks in characters.
// Default 100. An overlap at or above the chunk size is clamped to a quarter
// of it.
func WithChunkOverlap(n int) SplitterOption {
	return func(s *Splitter) {
		if n >= 0 {
			s.overlap = n
		}
	}
}

// NewSplitter creates a Splitter with the given options.
func NewSplitter(opts ...SplitterOption) *Splitter {
	s := &Splitter{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
		md:        goldmark.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.overlap >= s.chunkSize {
		s.overlap = s.chunkSize / 4
	}
	return s
}

// SplitAll splits every document in order. Output order follows input order;
// within a document, chunk order follows text order.
func (s *Splitter) SplitAll(docs []sage.Document) []sage.Chunk {
	var chunks []sage.Chunk
	for _, doc := range docs {
		chunks = append(chunks, s.Split(doc)...)
	}
	return chunks
}

// Split cuts one document into chunks carrying its Source. An empty or
// whitespace-only document yields no chunks.
func (s *Splitter) Split(doc sage.Document) []sage.Chunk {
	content := doc.Content
	if strings.TrimSpace(content) == "" {
		return nil
	}

	breaks := s.breakPoints(content)

	var chunks []sage.Chunk
	start := skipNewlines(content, 0)
	prevEnd := 0

	for start < len(content) {
		end := s.chooseEnd(content, breaks, start, prevEnd)

		piece := strings.TrimRight(content[start:end], " \t\r\n")
		if piece != "" {
			chunks = append(chunks, sage.Chunk{Content: piece, Source: doc.Source})
		}

		if end >= len(content) {
			break
		}
		prevEnd = end
		start = skipNewlines(content, s.overlapStart(breaks, end))
	}
	return chunks
}

// chooseEnd picks where the chunk starting at start should end. Within the
// size window it takes the last break of the best kind available; past
// prevEnd so overlapped chunks always make progress. A single unbreakable
// line longer than chunkSize extends the chunk past the limit rather than
// cutting mid-line.
func (s *Splitter) chooseEnd(content string, breaks []breakPoint, start, prevEnd int) int {
	limit := start + s.chunkSize
	if limit >= len(content) {
		return len(content)
	}

	floor := start
	if prevEnd > floor {
		floor = prevEnd
	}

	best := -1
	bestKind := breakLine
	for _, b := range breaks {
		if b.off <= floor {
			continue
		}
		if b.off > limit {
			break
		}
		if best == -1 || b.kind > bestKind || (b.kind == bestKind && b.off > best) {
			best = b.off
			bestKind = b.kind
		}
	}
	if best != -1 {
		return best
	}

	// No break fits the window: the current line is indivisible. Run to the
	// next break (or end of text) and accept an oversized chunk.
	for _, b := range breaks {
		if b.off > floor {
			return b.off
		}
	}
	return len(content)
}

// overlapStart returns where the next chunk begins after a cut at end: the
// earliest line start within the overlap window before end, or end itself
// when no line start falls inside it.
func (s *Splitter) overlapStart(breaks []breakPoint, end int) int {
	if s.overlap <= 0 {
		return end
	}
	from := end - s.overlap
	for _, b := range breaks {
		if b.off >= from && b.off < end {
			return b.off
		}
	}
	return end
}

// breakPoints collects every line start in content, classified by what the
// line begins: a markdown heading, a paragraph after a blank line, or a
// plain continuation line. Headings come from the goldmark AST, so a "#"
// line inside a fenced code block does not count.
func (s *Splitter) breakPoints(content string) []breakPoint {
	headings := s.headingStarts(content)

	var breaks []breakPoint
	prevBlank := false
	off := 0
	for off < len(content) {
		lineEnd := strings.IndexByte(content[off:], '\n')
		if lineEnd == -1 {
			lineEnd = len(content)
		} else {
			lineEnd = off + lineEnd + 1
		}

		if off > 0 {
			kind := breakLine
			switch {
			case headings[off]:
				kind = breakHeading
			case prevBlank:
				kind = breakParagraph
			}
			breaks = append(breaks, breakPoint{off: off, kind: kind})
		}

		prevBlank = strings.TrimSpace(content[off:lineEnd]) == ""
		off = lineEnd
	}
	return breaks
}

// headingStarts returns the byte offsets of lines that open a markdown
// heading, per the parsed AST.
func (s *Splitter) headingStarts(content string) map[int]bool {
	src := []byte(content)
	root := s.md.Parser().Parse(text.NewReader(src))

	starts := make(map[int]bool)
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok || h.Lines().Len() == 0 {
			return ast.WalkContinue, nil
		}
		starts[lineStartBefore(src, h.Lines().At(0).Start)] = true
		return ast.WalkContinue, nil
	})
	return starts
}

// lineStartBefore walks back from pos to the start of its line. Heading AST
// segments begin after the "#" markers; the break point is the line itself.
func lineStartBefore(src []byte, pos int) int {
	if pos > len(src) {
		pos = len(src)
	}
	for pos > 0 && src[pos-1] != '\n' {
		pos--
	}
	return pos
}

// skipNewlines advances past blank leading lines so a chunk never opens with
// empty lines.
func skipNewlines(content string, off int) int {
	for off < len(content) && (content[off] == '\n' || content[off] == '\r') {
		off++
	}
	return off
}
