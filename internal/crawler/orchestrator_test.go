package crawler

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astra/internal/cache"
	"astra/internal/chunker"
	"astra/internal/domain"
	"astra/internal/rag"
	"astra/internal/store"
	"astra/internal/vectorstore/memory"
)

type fakeScraper struct {
	mu    sync.Mutex
	site  []domain.Page
	pages map[string]domain.Page
	calls []string
	block chan struct{}
}

func (f *fakeScraper) ScrapeSite(ctx context.Context, url string, maxDepth int) ([]domain.Page, error) {
	f.record(url)
	if len(f.site) == 0 {
		return nil, nil
	}
	return append([]domain.Page(nil), f.site...), nil
}

func (f *fakeScraper) ScrapePage(ctx context.Context, url string) (domain.Page, error) {
	f.record(url)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return domain.Page{}, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return domain.Page{}, err
	}
	page, ok := f.pages[url]
	if !ok {
		return domain.Page{}, fmt.Errorf("no such page: %s", url)
	}
	return page, nil
}

func (f *fakeScraper) record(url string) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()
}

type fixedEmbedder struct{}

func (fixedEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{1, 0}
	}
	return out, nil
}

func (fixedEmbedder) EmbedQuery(context.Context, string) ([]float64, error) {
	return []float64{1, 0}, nil
}

func (fixedEmbedder) Dimension() int { return 2 }

type fixedLLM struct{ reply string }

func (f fixedLLM) Generate(context.Context, string, string) (string, error) { return f.reply, nil }

func (f fixedLLM) Model() string { return "test-model" }

type testEnv struct {
	store   *store.Bolt
	index   *memory.Storage
	scraper *fakeScraper
	orch    *Orchestrator
	manager *Manager
}

func newTestEnv(t *testing.T, scr *fakeScraper) *testEnv {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "astra.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	index := memory.NewStorage()
	indexer := NewIndexer(chunker.NewTextChunker(800, 200, 0), fixedEmbedder{}, index)
	composer := rag.NewComposer(fixedEmbedder{}, index, fixedLLM{reply: "A site about testing."})
	manager := NewManager(st, scr, indexer, 5, 50)
	pages := cache.NewLRU[domain.Page](64, nil)
	orch := NewOrchestrator(st, scr, indexer, composer, pages, manager, 0)
	return &testEnv{store: st, index: index, scraper: scr, orch: orch, manager: manager}
}

func rootPage(url, markdown string) domain.Page {
	return domain.Page{ID: "root-1", URL: url, Title: "Root", Markdown: markdown}
}

func collectEvents(events *[]Event) EmitFunc {
	return func(e Event) { *events = append(*events, e) }
}

func TestScrapeFreshPath(t *testing.T) {
	scr := &fakeScraper{site: []domain.Page{rootPage("https://a.test", "Astra indexes sites. It answers questions with citations.")}}
	env := newTestEnv(t, scr)

	var events []Event
	result, err := env.orch.Scrape(context.Background(), ScrapeRequest{URL: "https://a.test", MaxDepth: 1}, collectEvents(&events))
	require.NoError(t, err)
	assert.False(t, result.CacheHit)
	assert.NotEmpty(t, result.CrawlID)
	assert.NotEmpty(t, result.ChatID)
	assert.Equal(t, 1, result.PageCount)

	crawl, err := env.store.GetCrawl(result.CrawlID)
	require.NoError(t, err)
	assert.Equal(t, domain.CrawlCompleted, crawl.Status)
	assert.Equal(t, 1, crawl.PageCount)

	messages, err := env.store.ListMessages(result.ChatID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, domain.RoleAI, messages[0].Role)
	assert.Contains(t, messages[0].Content, "**Indexing Complete**")
	assert.Contains(t, messages[0].Content, "**Indexed Pages:**")
	assert.Contains(t, messages[0].Content, "1. Root")

	chat, err := env.store.GetChat(result.ChatID)
	require.NoError(t, err)
	assert.Equal(t, "Indexed 1 page(s) from https://a.test", chat.Summary)

	assert.Greater(t, env.index.Len(), 0)
	assert.Equal(t, StageComplete, events[len(events)-1].Stage)
}

func TestScrapeCacheHitCreatesNewChat(t *testing.T) {
	scr := &fakeScraper{site: []domain.Page{rootPage("https://a.test", "Astra indexes sites.")}}
	env := newTestEnv(t, scr)

	first, err := env.orch.Scrape(context.Background(), ScrapeRequest{URL: "https://a.test", MaxDepth: 1}, nil)
	require.NoError(t, err)

	second, err := env.orch.Scrape(context.Background(), ScrapeRequest{URL: "https://a.test", MaxDepth: 1}, nil)
	require.NoError(t, err)

	assert.True(t, second.CacheHit)
	assert.Equal(t, first.CrawlID, second.CrawlID)
	assert.NotEqual(t, first.ChatID, second.ChatID)
	// The cached crawl is scraped exactly once.
	assert.Len(t, scr.calls, 1)
}

func TestScrapeForceRefreshSkipsCache(t *testing.T) {
	scr := &fakeScraper{site: []domain.Page{rootPage("https://a.test", "Astra indexes sites.")}}
	env := newTestEnv(t, scr)

	first, err := env.orch.Scrape(context.Background(), ScrapeRequest{URL: "https://a.test", MaxDepth: 1}, nil)
	require.NoError(t, err)
	second, err := env.orch.Scrape(context.Background(), ScrapeRequest{URL: "https://a.test", MaxDepth: 1, ForceRefresh: true}, nil)
	require.NoError(t, err)

	assert.False(t, second.CacheHit)
	assert.NotEqual(t, first.CrawlID, second.CrawlID)
	assert.Len(t, scr.calls, 2)
}

func TestScrapeZeroPagesFails(t *testing.T) {
	scr := &fakeScraper{}
	env := newTestEnv(t, scr)

	var events []Event
	_, err := env.orch.Scrape(context.Background(), ScrapeRequest{URL: "https://empty.test", MaxDepth: 1}, collectEvents(&events))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no pages")
	assert.Equal(t, StageError, events[len(events)-1].Stage)

	crawls, err := env.store.ListCrawls()
	require.NoError(t, err)
	require.Len(t, crawls, 1)
	assert.Equal(t, domain.CrawlFailed, crawls[0].Status)
}

func TestScrapeProgressIsMonotonic(t *testing.T) {
	scr := &fakeScraper{site: []domain.Page{rootPage("https://a.test", "Astra indexes sites.")}}
	env := newTestEnv(t, scr)

	var events []Event
	_, err := env.orch.Scrape(context.Background(), ScrapeRequest{URL: "https://a.test", MaxDepth: 1}, collectEvents(&events))
	require.NoError(t, err)

	last := -1
	for _, e := range events {
		assert.GreaterOrEqual(t, e.Progress, last, "stage %s went backwards", e.Stage)
		last = e.Progress
	}
	assert.Equal(t, 100, last)

	// Cache-hit stream is monotonic too.
	events = events[:0]
	_, err = env.orch.Scrape(context.Background(), ScrapeRequest{URL: "https://a.test", MaxDepth: 1}, collectEvents(&events))
	require.NoError(t, err)
	last = -1
	for _, e := range events {
		assert.GreaterOrEqual(t, e.Progress, last, "stage %s went backwards", e.Stage)
		last = e.Progress
	}
}

func TestIndexingCompleteMessageTruncatesList(t *testing.T) {
	pages := make([]domain.Page, 14)
	for i := range pages {
		pages[i] = domain.Page{Title: fmt.Sprintf("Page %d", i+1)}
	}
	msg := indexingCompleteMessage("About things.", pages)
	assert.Contains(t, msg, "10. Page 10")
	assert.NotContains(t, msg, "11. Page 11")
	assert.Contains(t, msg, "...and 4 more pages")
}
