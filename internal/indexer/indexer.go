package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"go.uber.org/zap"
)

// Metadata keys stored with every index entry.
const (
	MetaSource  = "source"
	MetaOrdinal = "ordinal"
	MetaDocID   = "doc_id"
)

// Indexer builds a corpus index from a document: preprocess, chunk, embed, store.
type Indexer struct {
	embedder   embedding.Embedder
	store      *vector.Store
	corpora    storage.CorpusStore
	docChunker *Chunker
	webChunker *Chunker
	logger     *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output (segments produced, corpus built).
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithCorpusStore records every ingested corpus in cs.
func WithCorpusStore(cs storage.CorpusStore) IndexerOption {
	return func(idx *Indexer) { idx.corpora = cs }
}

// WithWebChunker uses c for documents scraped from the web instead of the default chunker.
func WithWebChunker(c *Chunker) IndexerOption {
	return func(idx *Indexer) { idx.webChunker = c }
}

// NewIndexer creates an indexer that splits documents with chunker.
func NewIndexer(embedder embedding.Embedder, store *vector.Store, chunker *Chunker, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		embedder:   embedder,
		store:      store,
		docChunker: chunker,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	if idx.webChunker == nil {
		idx.webChunker = chunker
	}
	return idx
}

func (idx *Indexer) chunkerFor(kind models.SourceKind) *Chunker {
	if kind == models.SourceWeb {
		return idx.webChunker
	}
	return idx.docChunker
}

// Ingest replaces the index of corpus with the segments of doc. It fails with
// models.ErrEmptyExtraction when doc has no text.
func (idx *Indexer) Ingest(ctx context.Context, corpus string, doc *models.Document) (*models.Corpus, error) {
	if err := vector.ValidateName(corpus); err != nil {
		return nil, err
	}
	text := Preprocess(doc.Text)
	if text == "" {
		return nil, fmt.Errorf("%s: %w", doc.Source, models.ErrEmptyExtraction)
	}

	start := time.Now()
	segments := idx.split(doc)
	if len(segments) == 0 {
		return nil, fmt.Errorf("%s: %w", doc.Source, models.ErrEmptyExtraction)
	}
	texts := make([]string, len(segments))
	for i, s := range segments {
		texts[i] = s.Text
	}
	vecs, err := idx.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(vecs) != len(segments) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d segments", models.ErrRetrievalUnavailable, len(vecs), len(segments))
	}

	entries := make([]models.IndexEntry, len(segments))
	for i, s := range segments {
		entries[i] = models.IndexEntry{
			Vector: vecs[i],
			Text:   s.Text,
			Metadata: map[string]string{
				MetaSource:  s.Source,
				MetaOrdinal: strconv.Itoa(s.Ordinal),
				MetaDocID:   doc.ID,
			},
		}
	}
	if _, err := idx.store.Build(ctx, corpus, entries); err != nil {
		return nil, fmt.Errorf("failed to build index: %w", err)
	}

	rec := &models.Corpus{
		Name:       corpus,
		Kind:       doc.Kind,
		Sources:    sourcesOf(doc),
		Segments:   len(segments),
		Dimensions: idx.store.Dimensions(),
		IndexPath:  idx.store.Path(corpus),
		IngestedAt: time.Now(),
	}
	if idx.corpora != nil {
		if err := idx.corpora.SaveCorpus(ctx, rec); err != nil {
			return nil, fmt.Errorf("failed to record corpus: %w", err)
		}
	}
	idx.logger.Debug("corpus ingested",
		zap.String("corpus", corpus),
		zap.String("kind", string(doc.Kind)),
		zap.Int("segments", len(segments)),
		zap.Duration("took", time.Since(start)),
	)
	return rec, nil
}

// IngestSource loads src and ingests the resulting document.
func (idx *Indexer) IngestSource(ctx context.Context, corpus string, src extract.Source) (*models.Corpus, error) {
	doc, err := src.Load(ctx)
	if err != nil {
		return nil, err
	}
	return idx.Ingest(ctx, corpus, doc)
}

// IngestDirectory ingests every supported file under dir (recursively, sorted by path)
// as one corpus. allowedExts, when non-empty, further restricts the extensions.
func (idx *Indexer) IngestDirectory(ctx context.Context, corpus, dir string, allowedExts []string) (*models.Corpus, error) {
	paths, err := CollectFiles(dir, allowedExts)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%s: no supported files: %w", dir, models.ErrEmptyExtraction)
	}
	return idx.IngestSource(ctx, corpus, extract.FileSource{Paths: paths})
}

// CollectFiles lists the supported files under dir, skipping hidden entries.
func CollectFiles(dir string, allowedExts []string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != dir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if !extract.Supported(ext) || !extensionAllowed(ext, allowedExts) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

func extensionAllowed(ext string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		a = strings.ToLower(a)
		if !strings.HasPrefix(a, ".") {
			a = "." + a
		}
		if a == ext {
			return true
		}
	}
	return false
}

// split chunks each section of doc on its own, so no segment spans two inputs and
// every segment carries the name of its input. Ordinals run across the document.
func (idx *Indexer) split(doc *models.Document) []models.Segment {
	sections := doc.Sections
	if len(sections) == 0 {
		sections = []models.Section{{Source: doc.Source, Text: doc.Text}}
	}
	chunker := idx.chunkerFor(doc.Kind)
	var segments []models.Segment
	for _, sec := range sections {
		for _, s := range chunker.Split(sec.Source, Preprocess(sec.Text)) {
			s.Ordinal = len(segments)
			segments = append(segments, s)
		}
	}
	return segments
}

func sourcesOf(doc *models.Document) []string {
	if len(doc.Sources) > 0 {
		return append([]string(nil), doc.Sources...)
	}
	if doc.Source == "" {
		return nil
	}
	return []string{doc.Source}
}
