package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hyperjump/kotae/internal/fileid"
	"github.com/hyperjump/kotae/internal/models"
)

// Source produces the document to ingest.
type Source interface {
	Load(ctx context.Context) (*models.Document, error)
}

// Upload is one file received over HTTP.
type Upload struct {
	Name string
	Data []byte
}

// FileSource reads local files, concatenated in the given order.
type FileSource struct {
	Paths     []string
	Extractor *Extractor
}

// Load extracts every file and joins their text.
func (s FileSource) Load(ctx context.Context) (*models.Document, error) {
	ex := s.Extractor
	if ex == nil {
		ex = NewExtractor()
	}
	parts := make([]string, 0, len(s.Paths))
	for _, p := range s.Paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := ex.Extract(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		parts = append(parts, text)
	}
	return newDocument(s.Paths, parts), nil
}

// UploadSource extracts in-memory uploads, concatenated in the given order.
type UploadSource struct {
	Files     []Upload
	Extractor *Extractor
}

// Load extracts every upload and joins their text.
func (s UploadSource) Load(ctx context.Context) (*models.Document, error) {
	ex := s.Extractor
	if ex == nil {
		ex = NewExtractor()
	}
	names := make([]string, 0, len(s.Files))
	parts := make([]string, 0, len(s.Files))
	for _, f := range s.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := ex.ExtractBytes(f.Data, filepath.Ext(f.Name))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		names = append(names, f.Name)
		parts = append(parts, text)
	}
	return newDocument(names, parts), nil
}

// URLSource scrapes one web page through a Fetcher.
type URLSource struct {
	URL     string
	Fetcher *Fetcher
}

// Load fetches the page text.
func (s URLSource) Load(ctx context.Context) (*models.Document, error) {
	if s.Fetcher == nil {
		return nil, fmt.Errorf("no fetcher configured")
	}
	text, err := s.Fetcher.Fetch(ctx, s.URL)
	if err != nil {
		return nil, err
	}
	return &models.Document{
		ID:       fileid.DocID(s.URL),
		Source:   s.URL,
		Sources:  []string{s.URL},
		Kind:     models.SourceWeb,
		Text:     text,
		Sections: []models.Section{{Source: s.URL, Text: text}},
	}, nil
}

// newDocument joins the per-file texts. The kind is PDF only when every source is a PDF.
func newDocument(names, parts []string) *models.Document {
	kind := models.SourcePDF
	if len(names) == 0 {
		kind = models.SourceFile
	}
	for _, n := range names {
		if !strings.EqualFold(filepath.Ext(n), ".pdf") {
			kind = models.SourceFile
			break
		}
	}
	var (
		texts    []string
		sections []models.Section
	)
	for i, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		texts = append(texts, p)
		sections = append(sections, models.Section{Source: names[i], Text: p})
	}
	return &models.Document{
		ID:       fileid.DocID(names...),
		Source:   strings.Join(names, ", "),
		Sources:  append([]string(nil), names...),
		Kind:     kind,
		Text:     strings.Join(texts, "\n"),
		Sections: sections,
	}
}
