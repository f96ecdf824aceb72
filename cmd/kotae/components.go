package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/memory"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/rag"
	"github.com/hyperjump/kotae/internal/search"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"go.uber.org/zap"
)

// Components holds initialized services.
type Components struct {
	Database *storage.SQLiteStorage
	History  storage.HistoryStore
	Embedder embedding.Embedder
	Store    *vector.Store
	Indexer  *indexer.Indexer
	Fetcher  *extract.Fetcher
	Pipeline *rag.Pipeline
}

// Close releases the embedder and the stores.
func (c *Components) Close() {
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.History != nil && c.History != storage.HistoryStore(c.Database) {
		_ = c.History.Close()
	}
	if c.Database != nil {
		_ = c.Database.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	db, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Database = db

	switch cfg.Storage.HistoryBackend {
	case "redis":
		rh, err := storage.NewRedisHistory(ctx, cfg.Storage.RedisURL, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize history store: %w", err)
		}
		c.History = rh
	default:
		c.History = db
	}

	emb, err := embedding.New(cfg.Provider.Name, embedding.Config{
		APIKey:            cfg.Provider.APIKey,
		BaseURL:           cfg.Provider.BaseURL,
		Model:             cfg.Embedding.Model,
		Dimensions:        cfg.Embedding.Dimensions,
		BatchSize:         cfg.Embedding.BatchSize,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		Timeout:           cfg.Provider.Timeout,
	}, embedding.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	if cfg.Embedding.CacheSize > 0 {
		emb = embedding.NewCachedEmbedder(emb, cfg.Embedding.CacheSize)
	}
	c.Embedder = emb

	metric, err := vector.ParseMetric(cfg.Embedding.Metric)
	if err != nil {
		return nil, err
	}
	store, err := vector.NewStore(cfg.Storage.IndexDir, emb.Dimensions(), metric, vector.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize index store: %w", err)
	}
	c.Store = store

	chunker, err := indexer.NewChunker(cfg.Chunking.MaxLen, cfg.Chunking.Overlap)
	if err != nil {
		return nil, err
	}
	webChunker, err := indexer.NewChunker(cfg.Chunking.WebMaxLen, cfg.Chunking.Overlap)
	if err != nil {
		return nil, err
	}
	c.Indexer = indexer.NewIndexer(emb, store, chunker,
		indexer.WithLogger(logger),
		indexer.WithCorpusStore(db),
		indexer.WithWebChunker(webChunker),
	)

	gen, err := llm.New(cfg.Provider.Name, llm.Config{
		APIKey:      cfg.Provider.APIKey,
		BaseURL:     cfg.Provider.BaseURL,
		Model:       cfg.Generation.Model,
		Temperature: cfg.Generation.Temperature,
		MaxTokens:   cfg.Generation.MaxTokens,
		Timeout:     cfg.Provider.Timeout,
	}, llm.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize generator: %w", err)
	}

	settings := rag.Settings{
		TopK:     cfg.Retrieval.TopK,
		WebTopK:  cfg.Retrieval.WebTopK,
		MaxTurns: cfg.Memory.HistoryWindow(),
	}
	if settings.DocumentPrompt, err = optionalPrompt(cfg.Generation.PromptTemplate); err != nil {
		return nil, fmt.Errorf("generation.prompt_template: %w", err)
	}
	if settings.WebPrompt, err = optionalPrompt(cfg.Generation.WebPromptTemplate); err != nil {
		return nil, fmt.Errorf("generation.web_prompt_template: %w", err)
	}

	history := c.History
	sessions := memory.NewRegistry(cfg.Memory.SessionTTL,
		memory.WithLogger(logger),
		memory.WithLoader(func(ctx context.Context, id string) ([]models.ConversationTurn, error) {
			return history.ListTurns(ctx, id, 0)
		}),
	)

	c.Pipeline = rag.New(c.Indexer, store,
		search.NewRetriever(emb, search.WithLogger(logger)),
		search.NewAssembler(cfg.Retrieval.MaxContextLen),
		gen,
		sessions,
		settings,
		rag.WithLogger(logger),
		rag.WithCorpusStore(db),
		rag.WithHistoryStore(history),
	)
	c.Fetcher = extract.NewFetcher(cfg.Scrape.ReaderURL, cfg.Scrape.Timeout,
		extract.WithFetchLogger(logger),
		extract.WithReaderKey(cfg.Scrape.APIKey),
	)

	ok = true
	return c, nil
}

// optionalPrompt parses tmpl, returning nil (the built-in prompt) when it is empty.
func optionalPrompt(tmpl string) (*llm.Prompt, error) {
	if tmpl == "" {
		return nil, nil
	}
	return llm.NewPrompt(tmpl)
}

// corpusIsStale reports whether any watched file under dir changed after corpus was
// last ingested, or whether it was never ingested at all.
func corpusIsStale(ctx context.Context, corpora storage.CorpusStore, corpus, dir string, exts []string) bool {
	rec, err := corpora.GetCorpus(ctx, corpus)
	if err != nil {
		return true
	}
	paths, err := indexer.CollectFiles(dir, exts)
	if err != nil {
		return true
	}
	if len(paths) != len(rec.Sources) {
		return true
	}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || info.ModTime().After(rec.IngestedAt) {
			return true
		}
	}
	return false
}

// reindexFunc returns the watcher callback that rebuilds a corpus from its directory.
func reindexFunc(ctx context.Context, idx *indexer.Indexer, exts []string, logger *zap.Logger) func(corpus, dir string) {
	return func(corpus, dir string) {
		start := time.Now()
		rec, err := idx.IngestDirectory(ctx, corpus, dir, exts)
		if err != nil {
			logger.Warn("watch reindex failed", zap.String("corpus", corpus), zap.String("dir", dir), zap.Error(err))
			return
		}
		logger.Info("watch reindexed corpus",
			zap.String("corpus", corpus),
			zap.String("dir", filepath.Clean(dir)),
			zap.Int("segments", rec.Segments),
			zap.Duration("took", time.Since(start)),
		)
	}
}
