package extract

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/hyperjump/kotae/internal/models"
)

func TestFileSource_Concatenates(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.md")
	empty := filepath.Join(dir, "c.txt")
	for path, content := range map[string]string{a: "alpha", b: "beta", empty: "  \n"} {
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
	}

	doc, err := FileSource{Paths: []string{a, empty, b}}.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.Text != "alpha\nbeta" {
		t.Errorf("Text = %q", doc.Text)
	}
	if doc.Kind != models.SourceFile {
		t.Errorf("Kind = %s, want file", doc.Kind)
	}
	if doc.ID == "" || !strings.Contains(doc.Source, "a.txt") {
		t.Errorf("unexpected document %+v", doc)
	}
	if len(doc.Sources) != 3 || len(doc.Sections) != 2 || doc.Sections[1].Source != b {
		t.Errorf("empty files should be listed as sources but not as sections: %+v", doc)
	}
}

func TestFileSource_MissingFile(t *testing.T) {
	_, err := FileSource{Paths: []string{"/nonexistent/x.txt"}}.Load(context.Background())
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestUploadSource(t *testing.T) {
	src := UploadSource{Files: []Upload{
		{Name: "notes.txt", Data: []byte("one")},
		{Name: "more.txt", Data: []byte("two")},
	}}
	doc, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.Text != "one\ntwo" || doc.Source != "notes.txt, more.txt" {
		t.Errorf("unexpected document %+v", doc)
	}
	wantSections := []models.Section{{Source: "notes.txt", Text: "one"}, {Source: "more.txt", Text: "two"}}
	if !reflect.DeepEqual(doc.Sections, wantSections) || !reflect.DeepEqual(doc.Sources, []string{"notes.txt", "more.txt"}) {
		t.Errorf("sections = %+v, sources = %q", doc.Sections, doc.Sources)
	}

	if _, err := (UploadSource{Files: []Upload{{Name: "x.exe", Data: []byte("MZ")}}}).Load(context.Background()); err == nil {
		t.Error("expected unsupported type error")
	}
}

func TestNewDocument_PDFKind(t *testing.T) {
	doc := newDocument([]string{"a.pdf", "B.PDF"}, []string{"p1", "p2"})
	if doc.Kind != models.SourcePDF {
		t.Errorf("Kind = %s, want pdf", doc.Kind)
	}
	doc = newDocument([]string{"a.pdf", "b.txt"}, []string{"p1", "p2"})
	if doc.Kind != models.SourceFile {
		t.Errorf("mixed sources Kind = %s, want file", doc.Kind)
	}
}

func TestURLSource(t *testing.T) {
	var hits atomic.Int32
	reader := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/https://example.com/missing" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte("page not found"))
			return
		}
		if r.Header.Get("Authorization") != "Bearer jina" {
			t.Errorf("missing reader key")
		}
		_, _ = w.Write([]byte("Title: Example\n\nBody text"))
	}))
	defer reader.Close()

	f := NewFetcher(reader.URL+"/", 0, WithFetchClient(reader.Client()), WithReaderKey("jina"))
	doc, err := URLSource{URL: "https://example.com/page", Fetcher: f}.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.Kind != models.SourceWeb || doc.Text != "Title: Example\n\nBody text" || doc.Source != "https://example.com/page" {
		t.Errorf("unexpected document %+v", doc)
	}

	// cached
	if _, err := f.Fetch(context.Background(), "https://example.com/page"); err != nil {
		t.Fatal(err)
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("reader hit %d times, want 1", n)
	}

	_, err = f.Fetch(context.Background(), "https://example.com/missing")
	if !errors.Is(err, ErrFetchFailed) || !strings.Contains(err.Error(), "404") {
		t.Errorf("expected status error, got %v", err)
	}

	if _, err := f.Fetch(context.Background(), "ftp://example.com"); !errors.Is(err, ErrInvalidURL) {
		t.Error("expected invalid URL error")
	}
	if _, err := (URLSource{URL: "https://example.com"}).Load(context.Background()); err == nil {
		t.Error("expected error without fetcher")
	}
}
