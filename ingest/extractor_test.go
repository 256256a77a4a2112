package ingest

import (
	"strings"
	"testing"
)

func TestContentTypeFromExtension(t *testing.T) {
	cases := []struct {
		ext  string
		want ContentType
		ok   bool
	}{
		{".md", ContentTypeMarkdown, true},
		{"markdown", ContentTypeMarkdown, true},
		{".TXT", ContentTypePlainText, true},
		{".html", ContentTypeHTML, true},
		{"htm", ContentTypeHTML, true},
		{".pdf", ContentTypePDF, true},
		{".exe", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := ContentTypeFromExtension(tc.ext)
		if got != tc.want || ok != tc.ok {
			t.Errorf("ContentTypeFromExtension(%q) = %q, %v; want %q, %v",
				tc.ext, got, ok, tc.want, tc.ok)
		}
	}
}

func TestTextExtractorPassesThrough(t *testing.T) {
	in := "# Heading\n\nBody with *markdown* intact.\n"
	out, err := TextExtractor{}.Extract([]byte(in))
	if err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Errorf("out = %q, want input unchanged", out)
	}
}

func TestHTMLExtractorStripsMarkup(t *testing.T) {
	html := `<html><head><title>Combat</title><style>p{color:red}</style></head>
<body><article><h1>Combat</h1><p>Attack rolls use a d20 &amp; add your bonus.</p>
<script>alert("x")</script></article></body></html>`

	out, err := HTMLExtractor{}.Extract([]byte(html))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "<") || strings.Contains(out, "alert") || strings.Contains(out, "color:red") {
		t.Errorf("markup leaked into output: %q", out)
	}
	if !strings.Contains(out, "Attack rolls use a d20 & add your bonus.") {
		t.Errorf("body text missing from output: %q", out)
	}
}

func TestStripHTML(t *testing.T) {
	out := StripHTML(`<p>Roll <b>2d6</b> &gt; 7 to hit.</p><script>bad()</script>`)
	if out != "Roll 2d6 > 7 to hit." {
		t.Errorf("StripHTML = %q", out)
	}
}

func TestExtractorForUnknownType(t *testing.T) {
	if _, err := ExtractorFor(ContentType("docx")); err == nil {
		t.Error("want error for unknown content type")
	}
}

func TestPDFExtractorRejectsGarbage(t *testing.T) {
	if _, err := (PDFExtractor{}).Extract(nil); err == nil {
		t.Error("want error for empty input")
	}
	if _, err := (PDFExtractor{}).Extract([]byte("not a pdf")); err == nil {
		t.Error("want error for non-pdf input")
	}
}
