package crawler

import (
	"context"
	"fmt"
	"log/slog"

	"astra/internal/domain"
)

// Indexer turns scraped pages into searchable vector records. The
// orchestrator ingests whole crawls through it in one flattened batch
// and the background manager reuses it page by page.
type Indexer struct {
	chunker  domain.Chunker
	embedder domain.Embedder
	index    domain.VectorIndex
}

func NewIndexer(chunker domain.Chunker, embedder domain.Embedder, index domain.VectorIndex) *Indexer {
	return &Indexer{chunker: chunker, embedder: embedder, index: index}
}

// IndexPages chunks every page, embeds all chunks in one flattened
// batch and upserts the records. Pages with no chunkable content are
// skipped. Returns the number of pages that produced records.
func (ix *Indexer) IndexPages(ctx context.Context, crawlID string, pages []domain.Page) (int, error) {
	var texts []string
	var records []domain.VectorRecord
	indexed := make(map[string]struct{})

	for _, page := range pages {
		chunks := ix.chunker.Chunk(page.Markdown)
		if len(chunks) == 0 {
			slog.Warn("page produced no chunks", "crawl_id", crawlID, "url", page.URL)
			continue
		}
		indexed[page.ID] = struct{}{}
		for _, chunk := range chunks {
			texts = append(texts, chunk.Text)
			records = append(records, ix.record(crawlID, page, chunk))
		}
	}
	if len(records) == 0 {
		return 0, nil
	}

	vectors, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, err
	}
	for i := range records {
		records[i].Vector = vectors[i]
	}
	if err := ix.index.UpsertBatch(ctx, records); err != nil {
		return 0, err
	}
	return len(indexed), nil
}

// IndexPage ingests a single page, used on the deep-crawl path where
// pages arrive one at a time.
func (ix *Indexer) IndexPage(ctx context.Context, crawlID string, page domain.Page) error {
	n, err := ix.IndexPages(ctx, crawlID, []domain.Page{page})
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("page %s has no chunkable content", page.URL)
	}
	return nil
}

func (ix *Indexer) record(crawlID string, page domain.Page, chunk domain.Chunk) domain.VectorRecord {
	return domain.VectorRecord{
		Key: fmt.Sprintf("%s_chunk_%d", page.ID, chunk.Index),
		Payload: domain.VectorPayload{
			PageID:     page.ID,
			CrawlID:    crawlID,
			URL:        page.URL,
			BaseURL:    page.BaseURL,
			Title:      page.Title,
			Markdown:   chunk.Text,
			ChunkIndex: chunk.Index,
			Total:      chunk.Total,
			OriginalID: page.ID,
		},
	}
}
