package ingest

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	sage "github.com/vheim/sage"
)

// Loader reads a corpus directory into documents. Files are walked in
// lexical order, hidden entries skipped, and each supported file extracted
// to text. Content is normalized to NFC so the same text hashes the same
// regardless of how the file was encoded.
type Loader struct{}

// NewLoader creates a Loader.
func NewLoader() *Loader { return &Loader{} }

// Load walks dir and returns one document per supported file. A missing or
// unreadable directory, or any unreadable file, aborts with ErrLoad; a
// partial corpus is never returned.
func (l *Loader) Load(ctx context.Context, dir string) ([]sage.Document, error) {
	var docs []sage.Document
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") && path != dir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		ct, ok := ContentTypeFromExtension(filepath.Ext(name))
		if !ok {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		extractor, err := ExtractorFor(ct)
		if err != nil {
			return err
		}
		text, err := extractor.Extract(raw)
		if err != nil {
			return err
		}

		docs = append(docs, sage.Document{
			Content: norm.NFC.String(text),
			Source:  filepath.ToSlash(path),
		})
		return nil
	})
	if err != nil {
		return nil, &sage.ErrLoad{Dir: dir, Err: err}
	}
	return docs, nil
}
