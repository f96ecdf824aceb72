// Package config provides configuration loading and structs for the kotae server and CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Provider   ProviderConfig   `yaml:"provider"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Memory     MemoryConfig     `yaml:"memory"`
	Scrape     ScrapeConfig     `yaml:"scrape"`
	Watch      WatchConfig      `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds where indexes, the corpus registry and transcripts live.
type StorageConfig struct {
	IndexDir       string `yaml:"index_dir"`
	DatabasePath   string `yaml:"database_path"`
	HistoryBackend string `yaml:"history_backend"` // sqlite or redis
	RedisURL       string `yaml:"redis_url"`
}

// ProviderConfig selects the hosted model provider shared by embedding and generation.
type ProviderConfig struct {
	Name    string        `yaml:"name"` // gemini, openai or mock
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// EmbeddingConfig holds embedding model settings.
type EmbeddingConfig struct {
	Model             string  `yaml:"model"`
	Dimensions        int     `yaml:"dimensions"`
	Metric            string  `yaml:"metric"`
	BatchSize         int     `yaml:"batch_size"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	CacheSize         int     `yaml:"cache_size"`
}

// GenerationConfig holds chat model settings. Prompt templates use text/template
// with the fields .Context and .Question; empty means the built-in prompt.
type GenerationConfig struct {
	Model             string  `yaml:"model"`
	Temperature       float64 `yaml:"temperature"`
	MaxTokens         int     `yaml:"max_tokens"`
	PromptTemplate    string  `yaml:"prompt_template"`
	WebPromptTemplate string  `yaml:"web_prompt_template"`
}

// ChunkingConfig holds segment sizes in characters.
type ChunkingConfig struct {
	MaxLen    int `yaml:"max_len"`
	WebMaxLen int `yaml:"web_max_len"`
	Overlap   int `yaml:"overlap"`
}

// RetrievalConfig holds how many segments to retrieve and how much context to send.
type RetrievalConfig struct {
	TopK          int `yaml:"top_k"`
	WebTopK       int `yaml:"web_top_k"`
	MaxContextLen int `yaml:"max_context_len"`
}

// MemoryConfig holds conversation memory settings. A negative MaxTurns sends the
// whole session to the model.
type MemoryConfig struct {
	MaxTurns   int           `yaml:"max_turns"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

// ScrapeConfig holds the web reader endpoint used for URL ingestion.
type ScrapeConfig struct {
	ReaderURL string        `yaml:"reader_url"`
	APIKey    string        `yaml:"api_key"`
	Timeout   time.Duration `yaml:"timeout"`
}

// WatchConfig maps corpus names to directories that are re-ingested on change.
type WatchConfig struct {
	Corpora    map[string]string `yaml:"corpora"`
	Extensions []string          `yaml:"extensions"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.IndexDir = expandPath(cfg.Storage.IndexDir, configDir)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	for name, dir := range cfg.Watch.Corpora {
		cfg.Watch.Corpora[name] = expandPath(dir, configDir)
	}

	return &cfg, nil
}

// LoadOrDefault loads path when it exists and falls back to the defaults otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := &Config{}
		ApplyDefaults(cfg)
		return cfg, nil
	}
	return Load(path)
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// LoadEnv loads the given .env files into the process environment, skipping any that
// do not exist. Variables already set are not overridden.
func LoadEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv fills secrets and endpoints left empty in the file from the environment:
// KOTAE_API_KEY, then GOOGLE_API_KEY or OPENAI_API_KEY depending on the provider,
// JINA_API for the reader URL and JINA_API_KEY for its token.
func ApplyEnv(cfg *Config) {
	if cfg.Provider.APIKey == "" {
		keys := []string{"KOTAE_API_KEY"}
		switch cfg.Provider.Name {
		case "gemini":
			keys = append(keys, "GOOGLE_API_KEY", "GEMINI_API_KEY")
		case "openai":
			keys = append(keys, "OPENAI_API_KEY")
		}
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				cfg.Provider.APIKey = v
				break
			}
		}
	}
	if v := os.Getenv("JINA_API"); v != "" && (cfg.Scrape.ReaderURL == "" || cfg.Scrape.ReaderURL == DefaultReaderURL) {
		cfg.Scrape.ReaderURL = strings.TrimRight(v, "/")
	}
	if cfg.Scrape.APIKey == "" {
		cfg.Scrape.APIKey = os.Getenv("JINA_API_KEY")
	}
	if cfg.Storage.RedisURL == "" {
		cfg.Storage.RedisURL = os.Getenv("REDIS_URL")
	}
}

// HistoryWindow returns the number of recent turns sent to the model, 0 meaning all.
func (m MemoryConfig) HistoryWindow() int {
	if m.MaxTurns < 0 {
		return 0
	}
	return m.MaxTurns
}

// Validate reports settings that would make the pipeline misbehave.
func (c *Config) Validate() error {
	var errs []error
	if c.Chunking.MaxLen <= 0 || c.Chunking.WebMaxLen <= 0 {
		errs = append(errs, errors.New("chunking.max_len and chunking.web_max_len must be positive"))
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.MaxLen || c.Chunking.Overlap >= c.Chunking.WebMaxLen {
		errs = append(errs, fmt.Errorf("chunking.overlap (%d) must be smaller than max_len and web_max_len", c.Chunking.Overlap))
	}
	if c.Retrieval.TopK < 0 || c.Retrieval.WebTopK < 0 || c.Retrieval.MaxContextLen < 0 {
		errs = append(errs, errors.New("retrieval settings must not be negative"))
	}
	switch c.Provider.Name {
	case "gemini":
		if c.Provider.APIKey == "" {
			errs = append(errs, errors.New("provider.api_key is required (or set GOOGLE_API_KEY)"))
		}
	case "openai":
		if c.Provider.APIKey == "" && c.Provider.BaseURL == "" {
			errs = append(errs, errors.New("provider.api_key is required (or set OPENAI_API_KEY)"))
		}
	case "mock":
	default:
		errs = append(errs, fmt.Errorf("unknown provider %q (want gemini, openai or mock)", c.Provider.Name))
	}
	switch c.Storage.HistoryBackend {
	case "sqlite":
	case "redis":
		if c.Storage.RedisURL == "" {
			errs = append(errs, errors.New("storage.redis_url is required for the redis history backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown history backend %q (want sqlite or redis)", c.Storage.HistoryBackend))
	}
	return errors.Join(errs...)
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if strings.HasPrefix(path, "~/") {
		path = path[2:]
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
