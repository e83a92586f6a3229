package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"time"

	"github.com/joho/godotenv"

	"astra/internal/cache"
	"astra/internal/chunker"
	"astra/internal/config"
	"astra/internal/crawler"
	"astra/internal/domain"
	"astra/internal/embedding/huggingface"
	"astra/internal/httpapi"
	"astra/internal/llm/gemini"
	"astra/internal/logger"
	"astra/internal/rag"
	"astra/internal/scraper"
	"astra/internal/store"
	"astra/internal/vectorstore/memory"
	"astra/internal/vectorstore/qdrant"
	"astra/internal/widget"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string
	flag.StringVar(&cfgPath, "config", "config.yaml", "Path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger.Init(cfg.Logging)

	sessions, err := store.Open(cfg.Store.Path)
	if err != nil {
		log.Fatalf("failed to open session store: %v", err)
	}
	defer func() { _ = sessions.Close() }()

	scraperClient, err := scraper.NewClient(scraper.Config{
		BaseURL:    cfg.Scraper.BaseURL,
		APIKeyEnv:  cfg.Scraper.APIKeyEnv,
		Timeout:    time.Duration(cfg.Scraper.TimeoutSecs) * time.Second,
		PollEvery:  time.Duration(cfg.Scraper.PollSecs) * time.Second,
		MaxWait:    time.Duration(cfg.Scraper.MaxWaitSecs) * time.Second,
		CrawlLimit: cfg.Scraper.CrawlLimit,
	})
	if err != nil {
		log.Fatalf("scraper init failed: %v", err)
	}

	embedder, err := huggingface.NewClient(huggingface.Config{
		BaseURL:   cfg.Embedder.BaseURL,
		APIKeyEnv: cfg.Embedder.APIKeyEnv,
		Model:     cfg.Embedder.Model,
		Dimension: cfg.Embedder.Dimension,
		BatchSize: cfg.Embedder.BatchSize,
		Timeout:   time.Duration(cfg.Embedder.TimeoutSecs) * time.Second,
	})
	if err != nil {
		log.Fatalf("embedder init failed: %v", err)
	}

	llm, err := gemini.NewClient(gemini.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKeyEnv:   cfg.LLM.APIKeyEnv,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     time.Duration(cfg.LLM.TimeoutSecs) * time.Second,
	})
	if err != nil {
		log.Fatalf("llm init failed: %v", err)
	}

	var index, widgetIndex domain.VectorIndex
	switch cfg.Qdrant.Type {
	case "memory":
		index = memory.NewStorage()
		widgetIndex = memory.NewStorage()
	case "qdrant", "":
		index = qdrant.NewStorage(qdrant.Config{
			URL:        cfg.Qdrant.URL,
			APIKey:     cfg.Qdrant.APIKey,
			Collection: cfg.Qdrant.Collection,
			Dimension:  cfg.Embedder.Dimension,
			BatchSize:  cfg.Qdrant.UpsertBatchSize,
			Timeout:    time.Duration(cfg.Qdrant.TimeoutSecs) * time.Second,
		})
		widgetIndex = qdrant.NewStorage(qdrant.Config{
			URL:        cfg.Qdrant.URL,
			APIKey:     cfg.Qdrant.APIKey,
			Collection: cfg.Qdrant.WidgetCollection,
			Dimension:  cfg.Embedder.Dimension,
			BatchSize:  cfg.Qdrant.UpsertBatchSize,
			Timeout:    time.Duration(cfg.Qdrant.TimeoutSecs) * time.Second,
		})
	default:
		log.Fatalf("unknown vector store: %s", cfg.Qdrant.Type)
	}
	ctx := context.Background()
	if err := index.EnsureSchema(ctx); err != nil {
		log.Fatalf("vector schema init failed: %v", err)
	}
	if err := widgetIndex.EnsureSchema(ctx); err != nil {
		log.Fatalf("widget vector schema init failed: %v", err)
	}

	chk := chunker.NewTextChunker(cfg.Chunker.ChunkSize, cfg.Chunker.ChunkOverlap, cfg.Chunker.MinChunkSize)
	indexer := crawler.NewIndexer(chk, embedder, index)
	composer := rag.NewComposer(embedder, index, llm)
	manager := crawler.NewManager(sessions, scraperClient, indexer, cfg.Background.BatchSize, cfg.Background.PendingLimit)
	pages := cache.NewLRU[domain.Page](cfg.PageCache.Capacity, func(key string, page domain.Page) {
		slog.Debug("page evicted from cache", "page_id", key, "url", page.URL)
	})
	orch := crawler.NewOrchestrator(sessions, scraperClient, indexer, composer, pages, manager, 150*time.Millisecond)
	widgetSvc := widget.NewService(scraperClient, chk, embedder, widgetIndex, llm, cfg.Widget.APIKeyPrefix)

	srv := httpapi.NewServer(cfg.Server, sessions, orch, manager, composer, widgetSvc, pages)
	slog.Info("server listening", "addr", cfg.Server.Addr, "vector_store", cfg.Qdrant.Type)
	if err := srv.Run(); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
