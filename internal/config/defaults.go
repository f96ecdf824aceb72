package config

import "time"

// DefaultReaderURL is the public Jina reader endpoint.
const DefaultReaderURL = "https://r.jina.ai"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.IndexDir == "" {
		cfg.Storage.IndexDir = "/usr/local/var/kotae/data/indexes"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kotae/data/kotae.db"
	}
	if cfg.Storage.HistoryBackend == "" {
		cfg.Storage.HistoryBackend = "sqlite"
	}
	if cfg.Provider.Name == "" {
		cfg.Provider.Name = "gemini"
	}
	if cfg.Provider.Timeout == 0 {
		cfg.Provider.Timeout = 60 * time.Second
	}
	if cfg.Embedding.Model == "" {
		switch cfg.Provider.Name {
		case "openai":
			cfg.Embedding.Model = "text-embedding-3-small"
		default:
			cfg.Embedding.Model = "embedding-001"
		}
	}
	if cfg.Embedding.Dimensions == 0 {
		switch cfg.Provider.Name {
		case "openai":
			cfg.Embedding.Dimensions = 1536
		default:
			cfg.Embedding.Dimensions = 768
		}
	}
	if cfg.Embedding.Metric == "" {
		cfg.Embedding.Metric = "cosine"
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 100
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1000
	}
	if cfg.Generation.Model == "" {
		switch cfg.Provider.Name {
		case "openai":
			cfg.Generation.Model = "gpt-4o-mini"
		default:
			cfg.Generation.Model = "gemini-2.0-flash"
		}
	}
	if cfg.Chunking.MaxLen == 0 {
		cfg.Chunking.MaxLen = 1000
	}
	if cfg.Chunking.WebMaxLen == 0 {
		cfg.Chunking.WebMaxLen = 2000
	}
	if cfg.Chunking.Overlap == 0 {
		cfg.Chunking.Overlap = 200
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 4
	}
	if cfg.Retrieval.WebTopK == 0 {
		cfg.Retrieval.WebTopK = 10
	}
	if cfg.Memory.MaxTurns == 0 {
		cfg.Memory.MaxTurns = 10
	}
	if cfg.Memory.SessionTTL == 0 {
		cfg.Memory.SessionTTL = time.Hour
	}
	if cfg.Scrape.ReaderURL == "" {
		cfg.Scrape.ReaderURL = DefaultReaderURL
	}
	if cfg.Scrape.Timeout == 0 {
		cfg.Scrape.Timeout = 30 * time.Second
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".rst", ".pdf", ".xlsx"}
	}
}
