package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// ScraperConfig configures the crawling provider client.
type ScraperConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	PollSecs    int    `yaml:"poll_secs"`
	MaxWaitSecs int    `yaml:"max_wait_secs"`
	CrawlLimit  int    `yaml:"crawl_limit"`
}

// EmbedderConfig configures the embedding provider client.
type EmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	Dimension   int    `yaml:"dimension"`
	BatchSize   int    `yaml:"batch_size"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// LLMConfig configures the generative model client.
type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	TimeoutSecs int     `yaml:"timeout_secs"`
}

// QdrantConfig contains connection details for the vector store. Type
// selects the backing implementation: "qdrant" or "memory".
type QdrantConfig struct {
	Type             string `yaml:"type"`
	URL              string `yaml:"url"`
	APIKey           string `yaml:"api_key"`
	Collection       string `yaml:"collection"`
	WidgetCollection string `yaml:"widget_collection"`
	UpsertBatchSize  int    `yaml:"upsert_batch_size"`
	TimeoutSecs      int    `yaml:"timeout_secs"`
}

// ChunkerConfig configures how page markdown is split into chunks.
type ChunkerConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	MinChunkSize int `yaml:"min_chunk_size"`
}

// StoreConfig locates the session/cache database file.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// WidgetConfig configures the widget API surface.
type WidgetConfig struct {
	APIKeyPrefix string `yaml:"api_key_prefix"`
}

// BackgroundConfig bounds the deep-crawl task manager.
type BackgroundConfig struct {
	BatchSize    int `yaml:"batch_size"`
	PendingLimit int `yaml:"pending_limit"`
}

// PageCacheConfig bounds the in-memory scraped page cache.
type PageCacheConfig struct {
	Capacity int `yaml:"capacity"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Scraper    ScraperConfig    `yaml:"scraper"`
	Embedder   EmbedderConfig   `yaml:"embedder"`
	LLM        LLMConfig        `yaml:"llm"`
	Qdrant     QdrantConfig     `yaml:"qdrant"`
	Chunker    ChunkerConfig    `yaml:"chunker"`
	Store      StoreConfig      `yaml:"store"`
	Widget     WidgetConfig     `yaml:"widget"`
	Background BackgroundConfig `yaml:"background"`
	PageCache  PageCacheConfig  `yaml:"page_cache"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"http://localhost:3000", "http://localhost:3001"}
	}
	if cfg.Scraper.BaseURL == "" {
		cfg.Scraper.BaseURL = "https://api.firecrawl.dev"
	}
	if cfg.Scraper.APIKeyEnv == "" {
		cfg.Scraper.APIKeyEnv = "FIRECRAWL_API_KEY"
	}
	if cfg.Scraper.TimeoutSecs == 0 {
		cfg.Scraper.TimeoutSecs = 60
	}
	if cfg.Scraper.PollSecs == 0 {
		cfg.Scraper.PollSecs = 2
	}
	if cfg.Scraper.MaxWaitSecs == 0 {
		cfg.Scraper.MaxWaitSecs = 60
	}
	if cfg.Scraper.CrawlLimit == 0 {
		cfg.Scraper.CrawlLimit = 100
	}
	if cfg.Embedder.BaseURL == "" {
		cfg.Embedder.BaseURL = "https://router.huggingface.co/hf-inference/models"
	}
	if cfg.Embedder.APIKeyEnv == "" {
		cfg.Embedder.APIKeyEnv = "HUGGINGFACE_API_KEY"
	}
	if cfg.Embedder.Model == "" {
		cfg.Embedder.Model = "sentence-transformers/all-MiniLM-L6-v2"
	}
	if cfg.Embedder.Dimension == 0 {
		cfg.Embedder.Dimension = 384
	}
	if cfg.Embedder.BatchSize == 0 {
		cfg.Embedder.BatchSize = 32
	}
	if cfg.Embedder.TimeoutSecs == 0 {
		cfg.Embedder.TimeoutSecs = 30
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = "GOOGLE_API_KEY"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gemini-flash-latest"
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.7
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = 60
	}
	if cfg.Qdrant.Type == "" {
		cfg.Qdrant.Type = "qdrant"
	}
	if cfg.Qdrant.URL == "" {
		cfg.Qdrant.URL = "http://localhost:6333"
	}
	if cfg.Qdrant.Collection == "" {
		cfg.Qdrant.Collection = "scraped_pages"
	}
	if cfg.Qdrant.WidgetCollection == "" {
		cfg.Qdrant.WidgetCollection = "widget_embeddings"
	}
	if cfg.Qdrant.UpsertBatchSize == 0 {
		cfg.Qdrant.UpsertBatchSize = 64
	}
	if cfg.Qdrant.TimeoutSecs == 0 {
		cfg.Qdrant.TimeoutSecs = 15
	}
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = 800
	}
	if cfg.Chunker.ChunkOverlap == 0 {
		cfg.Chunker.ChunkOverlap = 200
	}
	if cfg.Chunker.MinChunkSize == 0 {
		cfg.Chunker.MinChunkSize = 200
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "astra.db"
	}
	if cfg.Widget.APIKeyPrefix == "" {
		cfg.Widget.APIKeyPrefix = "astra_"
	}
	if cfg.Background.BatchSize == 0 {
		cfg.Background.BatchSize = 5
	}
	if cfg.Background.PendingLimit == 0 {
		cfg.Background.PendingLimit = 50
	}
	if cfg.PageCache.Capacity == 0 {
		cfg.PageCache.Capacity = 256
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}
