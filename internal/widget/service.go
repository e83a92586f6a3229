package widget

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"astra/internal/domain"
	"astra/internal/rag"
)

// Service indexes and queries fixed page sets registered by third
// parties under a site id. Widget vectors live in their own collection
// and every operation is scoped by site id.
type Service struct {
	scraper   domain.Scraper
	chunker   domain.Chunker
	embedder  domain.Embedder
	index     domain.VectorIndex
	composer  *rag.Composer
	keyPrefix string
}

func NewService(scr domain.Scraper, chunker domain.Chunker, embedder domain.Embedder, index domain.VectorIndex, llm domain.Generator, keyPrefix string) *Service {
	return &Service{
		scraper:   scr,
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
		composer:  rag.NewComposer(embedder, index, llm),
		keyPrefix: keyPrefix,
	}
}

// Authorize checks the static API key prefix. This is not cryptographic
// auth and does not bind the key to a site id.
func (s *Service) Authorize(apiKey string) error {
	if s.keyPrefix == "" || !strings.HasPrefix(apiKey, s.keyPrefix) {
		return domain.ErrUnauthorized
	}
	return nil
}

// Init scrapes and indexes the given pages under the site id. Pages
// that fail to scrape are logged and skipped; Init fails only when no
// page could be indexed.
func (s *Service) Init(ctx context.Context, siteID string, urls []string) (int, error) {
	var texts []string
	var records []domain.VectorRecord
	indexed := 0

	for _, url := range urls {
		page, err := s.scraper.ScrapePage(ctx, url)
		if err != nil {
			slog.Warn("widget page scrape failed", "site_id", siteID, "url", url, "err", err)
			continue
		}
		chunks := s.chunker.Chunk(page.Markdown)
		if len(chunks) == 0 {
			slog.Warn("widget page produced no chunks", "site_id", siteID, "url", url)
			continue
		}
		indexed++
		for _, chunk := range chunks {
			texts = append(texts, chunk.Text)
			records = append(records, domain.VectorRecord{
				Key: fmt.Sprintf("site:%s:%s:chunk_%d", siteID, url, chunk.Index),
				Payload: domain.VectorPayload{
					PageID:     page.ID,
					SiteID:     siteID,
					URL:        url,
					Title:      page.Title,
					Markdown:   chunk.Text,
					ChunkIndex: chunk.Index,
					Total:      chunk.Total,
					OriginalID: page.ID,
				},
			})
		}
	}
	if len(records) == 0 {
		return 0, fmt.Errorf("no pages indexed for site %s: %w", siteID, domain.ErrNotFound)
	}

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, err
	}
	for i := range records {
		records[i].Vector = vectors[i]
	}
	if err := s.index.UpsertBatch(ctx, records); err != nil {
		return 0, err
	}
	return indexed, nil
}

// Refresh replaces a site's indexed content: everything previously
// stored for the site is deleted before the supplied pages are
// re-indexed. Replace, never merge.
func (s *Service) Refresh(ctx context.Context, siteID string, urls []string) (int, error) {
	if err := s.index.DeleteSite(ctx, siteID); err != nil {
		return 0, err
	}
	return s.Init(ctx, siteID, urls)
}

// Query answers a question against the site's indexed pages.
func (s *Service) Query(ctx context.Context, siteID, query string, limit int) (domain.Answer, error) {
	return s.composer.Answer(ctx, query, domain.SearchScope{SiteID: siteID}, limit)
}
