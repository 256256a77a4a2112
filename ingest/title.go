package ingest

import (
	"path"
	"regexp"
	"strings"
)

// orderingPrefix matches the manual-ordering prefix on corpus file and
// directory names: digits, an optional letter, then "." or "-" and
// whitespace ("02. Thief", "05a- Grappling"). The numbers only order files
// on disk and carry no meaning for retrieval.
var orderingPrefix = regexp.MustCompile(`^\d+[A-Za-z]?[.-]\s+`)

// TitleExtractor derives a short display title from a chunk's source path.
// Prepending the title to a chunk (see Enrich) gives the embedding model the
// document context a fragment loses when it is cut out of its file.
//
// The zero value is not usable; construct with NewTitleExtractor.
type TitleExtractor struct {
	rootMarker   string
	classSegment string
	classSuffix  string
	placeholders []string
	noise        []string
}

// TitleOption configures a TitleExtractor.
type TitleOption func(*TitleExtractor)

// WithRootMarker sets the path segment everything is stripped up to and
// including. Default is "vault".
func WithRootMarker(name string) TitleOption {
	return func(t *TitleExtractor) { t.rootMarker = name }
}

// WithClassSegment sets the category directory name and the suffix appended
// to files inside it. Defaults are "Classes" and "Class", so
// "Classes/02. Thief.md" titles as "Thief Class".
func WithClassSegment(segment, suffix string) TitleOption {
	return func(t *TitleExtractor) {
		t.classSegment = segment
		t.classSuffix = suffix
	}
}

// WithPlaceholders sets the generic file titles that never take the class
// suffix. Default is "Character Classes".
func WithPlaceholders(titles ...string) TitleOption {
	return func(t *TitleExtractor) { t.placeholders = titles }
}

// WithNoiseSegments sets the path segments dropped from breadcrumb titles.
// Default is "rules".
func WithNoiseSegments(names ...string) TitleOption {
	return func(t *TitleExtractor) { t.noise = names }
}

// NewTitleExtractor creates a TitleExtractor with the corpus defaults.
func NewTitleExtractor(opts ...TitleOption) *TitleExtractor {
	t := &TitleExtractor{
		rootMarker:   "vault",
		classSegment: "Classes",
		classSuffix:  "Class",
		placeholders: []string{"Character Classes"},
		noise:        []string{"rules"},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Extract returns a title for the given source path. It is a pure string
// transform: deterministic, no I/O, and total — malformed paths degrade to a
// best-effort breadcrumb rather than failing.
//
//	vault/Classes/02. Thief.md       → "Thief Class"
//	vault/rules/Combat/Initiative.md → "Combat > Initiative"
func (t *TitleExtractor) Extract(source string) string {
	segments := splitPath(source)

	// Everything up to and including the root marker is filesystem layout,
	// not meaning. If the marker is absent the whole path is used.
	for i, seg := range segments {
		if seg == t.rootMarker {
			segments = segments[i+1:]
			break
		}
	}
	if len(segments) == 0 {
		return ""
	}

	last := len(segments) - 1
	segments[last] = strings.TrimSuffix(segments[last], path.Ext(segments[last]))

	for i, seg := range segments {
		segments[i] = orderingPrefix.ReplaceAllString(seg, "")
	}

	if t.isClassPath(segments) {
		return segments[last] + " " + t.classSuffix
	}

	kept := segments[:0:0]
	for _, seg := range segments {
		if !contains(t.noise, seg) {
			kept = append(kept, seg)
		}
	}
	return strings.Join(kept, " > ")
}

// isClassPath reports whether the segment list names a file inside the
// category directory: the special case that titles "02. Thief" as
// "Thief Class" for entity-class lookup queries. Generic placeholder files
// ("Character Classes") fall through to the breadcrumb.
func (t *TitleExtractor) isClassPath(segments []string) bool {
	if len(segments) < 2 {
		return false
	}
	final := segments[len(segments)-1]
	if contains(t.placeholders, final) {
		return false
	}
	return contains(segments, t.classSegment)
}

func splitPath(source string) []string {
	source = strings.ReplaceAll(source, "\\", "/")
	parts := strings.Split(source, "/")
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
