package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"astra/internal/cache"
	"astra/internal/domain"
	"astra/internal/rag"
	"astra/internal/scraper"
)

// Orchestrator drives one crawl request end to end: cache lookup,
// scrape, store, index, summarize, and the progress event stream. Deep
// link-following crawls are handed off to the background Manager.
type Orchestrator struct {
	store      domain.SessionStore
	scraper    domain.Scraper
	indexer    *Indexer
	composer   *rag.Composer
	pages      *cache.LRU[domain.Page]
	background *Manager
	pace       time.Duration
}

// ScrapeRequest is one crawl request. A caller-supplied CrawlID pins
// the crawl and skips the URL cache; ForceRefresh skips it too.
type ScrapeRequest struct {
	URL          string `json:"url"`
	MaxDepth     int    `json:"max_depth"`
	CrawlID      string `json:"crawl_id,omitempty"`
	ForceRefresh bool   `json:"force_refresh,omitempty"`
}

// ScrapeResult reports the session a completed crawl request produced.
type ScrapeResult struct {
	CrawlID   string `json:"crawl_id"`
	ChatID    string `json:"chat_id"`
	PageCount int    `json:"page_count"`
	CacheHit  bool   `json:"cache_hit"`
	Summary   string `json:"summary,omitempty"`
}

func NewOrchestrator(store domain.SessionStore, scr domain.Scraper, indexer *Indexer, composer *rag.Composer, pages *cache.LRU[domain.Page], background *Manager, pace time.Duration) *Orchestrator {
	return &Orchestrator{
		store:      store,
		scraper:    scr,
		indexer:    indexer,
		composer:   composer,
		pages:      pages,
		background: background,
		pace:       pace,
	}
}

// Scrape runs the crawl state machine, emitting a progress event at
// every transition. On failure a terminal error event is emitted and
// the error returned.
func (o *Orchestrator) Scrape(ctx context.Context, req ScrapeRequest, emitFn EmitFunc) (ScrapeResult, error) {
	result, err := o.scrape(ctx, req, emitFn)
	if err != nil {
		emit(emitFn, StageError, err.Error(), nil)
		return ScrapeResult{}, err
	}
	return result, nil
}

func (o *Orchestrator) scrape(ctx context.Context, req ScrapeRequest, emitFn EmitFunc) (ScrapeResult, error) {
	log := slog.With("url", req.URL)
	emit(emitFn, StageInitializing, "Starting crawl", nil)
	o.sleep(ctx)

	if !req.ForceRefresh && req.CrawlID == "" {
		emit(emitFn, StageCacheCheck, "Checking for existing crawl", nil)
		if result, ok := o.cacheHit(ctx, req.URL, emitFn); ok {
			return result, nil
		}
	}

	crawlID := req.CrawlID
	if crawlID == "" {
		crawlID = uuid.NewString()
	}
	crawl, err := o.store.CreateCrawl(req.URL, crawlID)
	if err != nil {
		return ScrapeResult{}, fmt.Errorf("create crawl: %w", err)
	}
	chat, err := o.store.CreateChat(crawl.ID)
	if err != nil {
		return ScrapeResult{}, fmt.Errorf("create chat: %w", err)
	}
	emit(emitFn, StageChatCreated, "Chat session created", map[string]any{
		"crawl_id": crawl.ID, "chat_id": chat.ID,
	})
	o.sleep(ctx)

	maxDepth := req.MaxDepth
	if maxDepth < 1 {
		maxDepth = 1
	}
	if err := o.store.UpdateCrawlStatus(crawl.ID, domain.CrawlScraping, 1, maxDepth, 0); err != nil {
		log.Error("failed to update crawl status", "err", err)
	}
	emit(emitFn, StageScraping, "Scraping website", nil)

	pages, err := o.scraper.ScrapeSite(ctx, req.URL, maxDepth)
	if err != nil {
		o.markFailed(crawl.ID)
		return ScrapeResult{}, fmt.Errorf("scrape %s: %w", req.URL, err)
	}
	if len(pages) == 0 {
		o.markFailed(crawl.ID)
		return ScrapeResult{}, fmt.Errorf("scrape %s returned no pages", req.URL)
	}
	emit(emitFn, StageScraped, fmt.Sprintf("Scraped %d page(s)", len(pages)), map[string]any{"page_count": len(pages)})
	o.sleep(ctx)

	emit(emitFn, StageStoring, "Storing pages", nil)
	o.storePages(crawl.ID, req.URL, pages)
	if err := o.store.UpdateCrawlPageCount(crawl.ID, len(pages)); err != nil {
		log.Error("failed to update page count", "err", err)
	}
	emit(emitFn, StageStored, "Pages stored", nil)
	o.sleep(ctx)

	emit(emitFn, StageEmbedding, "Generating embeddings", nil)
	indexed, err := o.indexer.IndexPages(ctx, crawl.ID, pages)
	if err != nil {
		// Partial ingestion is acceptable: the crawl survives with
		// unsearchable pages rather than failing outright.
		log.Error("bulk indexing failed, pages remain unsearchable", "crawl_id", crawl.ID, "err", err)
	} else {
		o.markIndexed(pages)
	}
	emit(emitFn, StageEmbedded, fmt.Sprintf("Indexed %d page(s)", indexed), nil)
	o.sleep(ctx)

	emit(emitFn, StageSummarizing, "Summarizing content", nil)
	summary := o.composer.ContentSummary(ctx, pages, req.URL)
	if err := o.store.AppendMessage(chat.ID, domain.Message{
		Role:    domain.RoleAI,
		Content: indexingCompleteMessage(summary, pages),
	}); err != nil {
		log.Error("failed to append summary message", "err", err)
	}
	chatSummary := fmt.Sprintf("Indexed %d page(s) from %s", len(pages), req.URL)
	if err := o.store.UpdateChatSummary(chat.ID, chatSummary); err != nil {
		log.Error("failed to update chat summary", "err", err)
	}

	deep := maxDepth > 1 && o.background != nil
	if deep {
		enqueued := o.seedFrontier(crawl.ID, req.URL, pages[0])
		if err := o.store.UpdateCrawlStatus(crawl.ID, domain.CrawlScraping, 1, maxDepth, enqueued); err != nil {
			log.Error("failed to update crawl status", "err", err)
		}
		o.background.Start(crawl.ID, req.URL, maxDepth)
	} else {
		if err := o.store.UpdateCrawlStatus(crawl.ID, domain.CrawlCompleted, 1, maxDepth, 0); err != nil {
			log.Error("failed to update crawl status", "err", err)
		}
	}

	emit(emitFn, StageComplete, "Crawl complete", map[string]any{
		"crawl_id": crawl.ID, "chat_id": chat.ID, "page_count": len(pages),
	})
	return ScrapeResult{
		CrawlID:   crawl.ID,
		ChatID:    chat.ID,
		PageCount: len(pages),
		Summary:   chatSummary,
	}, nil
}

// cacheHit resolves a previous crawl of the same URL. A hit never
// reuses an old chat: a fresh chat is bound to the existing crawl.
func (o *Orchestrator) cacheHit(ctx context.Context, url string, emitFn EmitFunc) (ScrapeResult, bool) {
	crawl, err := o.store.FindCrawlByURL(url)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Error("crawl cache lookup failed", "url", url, "err", err)
		}
		return ScrapeResult{}, false
	}
	if crawl.PageCount == 0 {
		return ScrapeResult{}, false
	}

	chat, err := o.store.CreateChat(crawl.ID)
	if err != nil {
		slog.Error("failed to create chat for cached crawl", "crawl_id", crawl.ID, "err", err)
		return ScrapeResult{}, false
	}
	emit(emitFn, StageChatCreated, "Chat session created", map[string]any{
		"crawl_id": crawl.ID, "chat_id": chat.ID,
	})

	summary := o.cachedSummary(ctx, crawl)
	if summary != "" {
		if err := o.store.UpdateChatSummary(chat.ID, summary); err != nil {
			slog.Error("failed to update chat summary", "chat_id", chat.ID, "err", err)
		}
		if err := o.store.AppendMessage(chat.ID, domain.Message{Role: domain.RoleAI, Content: summary}); err != nil {
			slog.Error("failed to append cached summary", "chat_id", chat.ID, "err", err)
		}
	}

	emit(emitFn, StageCacheHit, "Using previously indexed content", map[string]any{
		"crawl_id": crawl.ID, "page_count": crawl.PageCount,
	})
	o.sleep(ctx)
	emit(emitFn, StageComplete, "Crawl complete", map[string]any{
		"crawl_id": crawl.ID, "chat_id": chat.ID, "page_count": crawl.PageCount,
	})
	return ScrapeResult{
		CrawlID:   crawl.ID,
		ChatID:    chat.ID,
		PageCount: crawl.PageCount,
		CacheHit:  true,
		Summary:   summary,
	}, true
}

// cachedSummary reuses the summary of any earlier chat on the crawl,
// regenerating from stored page metadata when none survives.
func (o *Orchestrator) cachedSummary(ctx context.Context, crawl domain.Crawl) string {
	chats, err := o.store.ListChats()
	if err == nil {
		for _, chat := range chats {
			if chat.CrawlID == crawl.ID && chat.Summary != "" {
				return chat.Summary
			}
		}
	}
	stored, err := o.store.ListPages(crawl.ID)
	if err != nil || len(stored) == 0 {
		return ""
	}
	// Markdown is not cached, so regeneration works from titles only.
	pages := make([]domain.Page, len(stored))
	for i, p := range stored {
		pages[i] = domain.Page{ID: p.ID, URL: p.URL, Title: p.Title}
	}
	return o.composer.ContentSummary(ctx, pages, crawl.URL)
}

// storePages persists a page record per scraped page and caches the
// full bodies. The first page is the hierarchy root; the rest hang off
// it until deep-crawl discovery provides real parentage.
func (o *Orchestrator) storePages(crawlID, baseURL string, pages []domain.Page) {
	rootID := pages[0].ID
	for i := range pages {
		pages[i].CrawlID = crawlID
		pages[i].BaseURL = baseURL
		discoveredFrom := ""
		if i > 0 {
			discoveredFrom = rootID
			pages[i].ParentID = rootID
		}
		err := o.store.StorePage(domain.PendingPage{
			ID:             pages[i].ID,
			CrawlID:        crawlID,
			URL:            pages[i].URL,
			Title:          pages[i].Title,
			Depth:          1,
			DiscoveredFrom: discoveredFrom,
			Status:         domain.PageScraped,
		})
		if err != nil && !errors.Is(err, domain.ErrDuplicatePage) {
			slog.Error("failed to store page", "url", pages[i].URL, "err", err)
		}
		if o.pages != nil {
			o.pages.Put(pages[i].ID, pages[i])
		}
	}
}

func (o *Orchestrator) markIndexed(pages []domain.Page) {
	for _, page := range pages {
		if err := o.store.MarkPageStatus(page.ID, domain.PageIndexed, page.Title); err != nil {
			slog.Error("failed to mark page indexed", "page_id", page.ID, "err", err)
		}
	}
}

// seedFrontier queues the root page's same-domain links at depth 2.
// Links pointing at already stored pages dedupe via the frontier's
// uniqueness constraint.
func (o *Orchestrator) seedFrontier(crawlID, baseURL string, root domain.Page) int {
	enqueued := 0
	for _, link := range scraper.ExtractLinks(root.Markdown, baseURL) {
		if _, err := o.store.EnqueuePending(crawlID, link, root.ID, 2); err != nil {
			if !errors.Is(err, domain.ErrDuplicatePage) {
				slog.Error("failed to enqueue link", "link", link, "err", err)
			}
			continue
		}
		enqueued++
	}
	return enqueued
}

func (o *Orchestrator) markFailed(crawlID string) {
	if err := o.store.UpdateCrawlStatus(crawlID, domain.CrawlFailed, 0, 0, 0); err != nil {
		slog.Error("failed to mark crawl failed", "crawl_id", crawlID, "err", err)
	}
}

func (o *Orchestrator) sleep(ctx context.Context) {
	if o.pace <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(o.pace):
	}
}

// indexingCompleteMessage is the AI message appended to a fresh chat
// after ingestion: the narrative summary plus the first page titles.
func indexingCompleteMessage(summary string, pages []domain.Page) string {
	var b strings.Builder
	b.WriteString("**Indexing Complete**\n\n")
	if summary != "" {
		b.WriteString(summary)
		b.WriteString("\n\n")
	}
	b.WriteString("**Indexed Pages:**\n")
	const maxListed = 10
	for i, page := range pages {
		if i >= maxListed {
			fmt.Fprintf(&b, "...and %d more pages\n", len(pages)-maxListed)
			break
		}
		title := page.Title
		if title == "" {
			title = page.URL
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, title)
	}
	return strings.TrimRight(b.String(), "\n")
}
