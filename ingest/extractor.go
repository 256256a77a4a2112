package ingest

import (
	"fmt"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
)

// ContentType identifies the source format of a corpus file.
type ContentType string

const (
	ContentTypeMarkdown  ContentType = "markdown"
	ContentTypePlainText ContentType = "text"
	ContentTypeHTML      ContentType = "html"
	ContentTypePDF       ContentType = "pdf"
)

// ContentTypeFromExtension maps a file extension (with or without the
// leading dot) to a ContentType. Unknown extensions return false.
func ContentTypeFromExtension(ext string) (ContentType, bool) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "md", "markdown":
		return ContentTypeMarkdown, true
	case "txt", "text":
		return ContentTypePlainText, true
	case "html", "htm":
		return ContentTypeHTML, true
	case "pdf":
		return ContentTypePDF, true
	}
	return "", false
}

// Extractor converts raw file content to text suitable for splitting.
type Extractor interface {
	Extract(content []byte) (string, error)
}

// ExtractorFor returns the extractor for a content type.
func ExtractorFor(ct ContentType) (Extractor, error) {
	switch ct {
	case ContentTypeMarkdown, ContentTypePlainText:
		return TextExtractor{}, nil
	case ContentTypeHTML:
		return HTMLExtractor{}, nil
	case ContentTypePDF:
		return PDFExtractor{}, nil
	}
	return nil, fmt.Errorf("no extractor for content type %q", ct)
}

// TextExtractor passes markdown and plain text through unchanged. The
// splitter works on raw markdown, so nothing is stripped here.
type TextExtractor struct{}

var _ Extractor = TextExtractor{}

func (TextExtractor) Extract(content []byte) (string, error) {
	return string(content), nil
}

// HTMLExtractor pulls readable text out of an HTML page using the
// readability algorithm, falling back to tag stripping when readability
// finds no article body.
type HTMLExtractor struct{}

var _ Extractor = HTMLExtractor{}

func (HTMLExtractor) Extract(content []byte) (string, error) {
	// readability resolves relative links against the page URL; local corpus
	// files have none, so any well-formed base works.
	base, _ := url.Parse("file:///corpus")
	article, err := readability.FromReader(strings.NewReader(string(content)), base)
	if err == nil && article.TextContent != "" {
		return strings.TrimSpace(article.TextContent), nil
	}
	return StripHTML(string(content)), nil
}

// StripHTML removes tags, scripts, and styles from HTML and decodes the
// common entities, returning the remaining text.
func StripHTML(html string) string {
	html = removeBetween(html, "<script", "</script>")
	html = removeBetween(html, "<style", "</style>")

	var sb strings.Builder
	inTag := false
	for _, r := range html {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			sb.WriteByte(' ')
		case !inTag:
			sb.WriteRune(r)
		}
	}

	text := sb.String()
	for entity, repl := range map[string]string{
		"&amp;": "&", "&lt;": "<", "&gt;": ">",
		"&quot;": `"`, "&#39;": "'", "&nbsp;": " ",
	} {
		text = strings.ReplaceAll(text, entity, repl)
	}
	return strings.TrimSpace(strings.Join(strings.Fields(text), " "))
}

// removeBetween drops every span between a case-insensitive open marker and
// its close marker, inclusive.
func removeBetween(s, open, close string) string {
	lower := strings.ToLower(s)
	open, close = strings.ToLower(open), strings.ToLower(close)
	var sb strings.Builder
	for {
		i := strings.Index(lower, open)
		if i == -1 {
			sb.WriteString(s)
			return sb.String()
		}
		j := strings.Index(lower[i:], close)
		if j == -1 {
			sb.WriteString(s[:i])
			return sb.String()
		}
		sb.WriteString(s[:i])
		cut := i + j + len(close)
		s, lower = s[cut:], lower[cut:]
	}
}
