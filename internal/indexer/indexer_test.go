package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

func newTestIndexer(t *testing.T, emb embedding.Embedder, opts ...IndexerOption) (*Indexer, *vector.Store) {
	t.Helper()
	store, err := vector.NewStore(t.TempDir(), emb.Dimensions(), vector.MetricCosine)
	if err != nil {
		t.Fatal(err)
	}
	chunker, err := NewChunker(40, 10)
	if err != nil {
		t.Fatal(err)
	}
	return NewIndexer(emb, store, chunker, opts...), store
}

func TestIndexer_Ingest_segmentsNameTheirFile(t *testing.T) {
	ctx := context.Background()
	idx, store := newTestIndexer(t, embedding.NewMockEmbedder(8))
	src := extract.UploadSource{Files: []extract.Upload{
		{Name: "notes, draft.txt", Data: []byte("alpha beta gamma delta")},
		{Name: "blank.txt", Data: []byte("   ")},
		{Name: "faq.txt", Data: []byte("omega psi chi phi")},
	}}
	rec, err := idx.IngestSource(ctx, "mixed", src)
	if err != nil {
		t.Fatalf("IngestSource: %v", err)
	}
	want := []string{"notes, draft.txt", "blank.txt", "faq.txt"}
	if !reflect.DeepEqual(rec.Sources, want) {
		t.Errorf("Sources = %q, want %q", rec.Sources, want)
	}
	if rec.Segments != 2 {
		t.Fatalf("Segments = %d, want one per non-empty file", rec.Segments)
	}

	vi, err := store.Get("mixed")
	if err != nil {
		t.Fatal(err)
	}
	q, _ := embedding.NewMockEmbedder(8).Embed(ctx, "anything")
	hits, err := vi.Search(ctx, q, 10)
	if err != nil {
		t.Fatal(err)
	}
	bySource := map[string]string{}
	ordinals := map[string]bool{}
	for _, h := range hits {
		bySource[h.Metadata[MetaSource]] = h.Text
		ordinals[h.Metadata[MetaOrdinal]] = true
	}
	if bySource["notes, draft.txt"] != "alpha beta gamma delta" || bySource["faq.txt"] != "omega psi chi phi" {
		t.Errorf("segments attributed to the wrong file: %q", bySource)
	}
	if !ordinals["0"] || !ordinals["1"] {
		t.Errorf("ordinals should run across the document: %v", ordinals)
	}
}

func TestIndexer_Ingest(t *testing.T) {
	ctx := context.Background()
	emb := embedding.NewMockEmbedder(8)
	db, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "kotae.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	idx, store := newTestIndexer(t, emb, WithCorpusStore(db))

	doc := &models.Document{
		ID:     "d1",
		Source:  "a.pdf, b.pdf",
		Sources: []string{"a.pdf", "b.pdf"},
		Kind:    models.SourcePDF,
		Text:    "Go is a statically typed language.\r\n\r\n\r\nIt compiles quickly and has goroutines for concurrency.",
	}
	rec, err := idx.Ingest(ctx, "golang", doc)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if rec.Segments < 2 || rec.Kind != models.SourcePDF || len(rec.Sources) != 2 {
		t.Errorf("unexpected corpus record %+v", rec)
	}

	vi, err := store.Get("golang")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if vi.Size() != rec.Segments {
		t.Errorf("index has %d entries, record says %d", vi.Size(), rec.Segments)
	}
	if _, err := os.Stat(rec.IndexPath); err != nil {
		t.Errorf("snapshot not written: %v", err)
	}

	saved, err := db.GetCorpus(ctx, "golang")
	if err != nil {
		t.Fatalf("GetCorpus: %v", err)
	}
	if saved.Segments != rec.Segments {
		t.Errorf("saved record %+v", saved)
	}

	q, _ := emb.Embed(ctx, "Go is a statically typed language.")
	hits, err := vi.Search(ctx, q, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Metadata[MetaDocID] != "d1" || hits[0].Metadata[MetaOrdinal] == "" {
		t.Errorf("unexpected hit %+v", hits)
	}
	if strings.Contains(hits[0].Text, "\r") {
		t.Errorf("text was not preprocessed: %q", hits[0].Text)
	}
}

func TestIndexer_IngestReplaces(t *testing.T) {
	ctx := context.Background()
	idx, store := newTestIndexer(t, embedding.NewMockEmbedder(4))

	long := strings.Repeat("word ", 40)
	if _, err := idx.Ingest(ctx, "c", &models.Document{Source: "x", Text: long}); err != nil {
		t.Fatal(err)
	}
	if _, err := idx.Ingest(ctx, "c", &models.Document{Source: "y", Text: "short"}); err != nil {
		t.Fatal(err)
	}
	vi, _ := store.Get("c")
	if vi.Size() != 1 {
		t.Errorf("re-ingest should replace the index, size %d", vi.Size())
	}
}

func TestIndexer_EmptyExtraction(t *testing.T) {
	idx, store := newTestIndexer(t, embedding.NewMockEmbedder(4))
	_, err := idx.Ingest(context.Background(), "empty", &models.Document{Source: "scan.pdf", Text: " \n\n "})
	if !errors.Is(err, models.ErrEmptyExtraction) {
		t.Fatalf("err = %v, want ErrEmptyExtraction", err)
	}
	if _, err := store.Get("empty"); !errors.Is(err, models.ErrIndexNotFound) {
		t.Errorf("no index should be written, got %v", err)
	}
}

func TestIndexer_EmbeddingFailureKeepsOldIndex(t *testing.T) {
	ctx := context.Background()
	emb := embedding.NewMockEmbedder(4)
	idx, store := newTestIndexer(t, emb)
	if _, err := idx.Ingest(ctx, "c", &models.Document{Source: "x", Text: "first version"}); err != nil {
		t.Fatal(err)
	}
	emb.Err = models.ErrRetrievalUnavailable
	_, err := idx.Ingest(ctx, "c", &models.Document{Source: "x", Text: "second version"})
	if !errors.Is(err, models.ErrRetrievalUnavailable) {
		t.Fatalf("err = %v, want ErrRetrievalUnavailable", err)
	}
	vi, _ := store.Get("c")
	if vi.Size() != 1 {
		t.Errorf("old index should survive, size %d", vi.Size())
	}
}

func TestIndexer_WebChunker(t *testing.T) {
	emb := embedding.NewMockEmbedder(4)
	web, _ := NewChunker(200, 20)
	idx, store := newTestIndexer(t, emb, WithWebChunker(web))
	text := strings.Repeat("scraped text ", 10)
	rec, err := idx.Ingest(context.Background(), "site", &models.Document{Source: "https://example.com", Kind: models.SourceWeb, Text: text})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Segments != 1 {
		t.Errorf("web chunker should keep %d chars in one segment, got %d", len(text), rec.Segments)
	}
	if vi, _ := store.Get("site"); vi.Size() != 1 {
		t.Errorf("size = %d", vi.Size())
	}
}

func TestIndexer_InvalidCorpusName(t *testing.T) {
	idx, _ := newTestIndexer(t, embedding.NewMockEmbedder(4))
	if _, err := idx.Ingest(context.Background(), "../etc", &models.Document{Text: "x"}); err == nil {
		t.Error("expected invalid name error")
	}
}

func TestIngestDirectory(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"a.txt":          "alpha document",
		"sub/b.md":       "beta document",
		"ignored.bin":    "binary",
		".hidden/c.txt":  "hidden",
		"notes/.tmp.txt": "hidden file",
	}
	for name, content := range files {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
	}

	paths, err := CollectFiles(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 2 || filepath.Base(paths[0]) != "a.txt" || filepath.Base(paths[1]) != "b.md" {
		t.Errorf("CollectFiles = %v", paths)
	}
	if only, _ := CollectFiles(dir, []string{"md"}); len(only) != 1 {
		t.Errorf("extension filter: %v", only)
	}

	idx, store := newTestIndexer(t, embedding.NewMockEmbedder(4))
	rec, err := idx.IngestDirectory(context.Background(), "dir", dir, nil)
	if err != nil {
		t.Fatalf("IngestDirectory: %v", err)
	}
	if rec.Kind != models.SourceFile || len(rec.Sources) != 2 {
		t.Errorf("unexpected record %+v", rec)
	}
	if vi, err := store.Get("dir"); err != nil || vi.Size() == 0 {
		t.Errorf("index not built: %v", err)
	}

	if _, err := idx.IngestDirectory(context.Background(), "none", t.TempDir(), nil); !errors.Is(err, models.ErrEmptyExtraction) {
		t.Errorf("empty dir: err = %v", err)
	}
}
