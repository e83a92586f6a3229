package crawler

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"astra/internal/domain"
	"astra/internal/scraper"
)

// Manager runs deep crawls in the background, one supervised task per
// crawl id. Depth levels are processed strictly in order; pages within
// a level run in fixed-size concurrent batches.
type Manager struct {
	store        domain.SessionStore
	scraper      domain.Scraper
	indexer      *Indexer
	batchSize    int
	pendingLimit int

	mu    sync.Mutex
	tasks map[string]*task
}

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func NewManager(store domain.SessionStore, scr domain.Scraper, indexer *Indexer, batchSize, pendingLimit int) *Manager {
	if batchSize <= 0 {
		batchSize = 5
	}
	if pendingLimit <= 0 {
		pendingLimit = 50
	}
	return &Manager{
		store:        store,
		scraper:      scr,
		indexer:      indexer,
		batchSize:    batchSize,
		pendingLimit: pendingLimit,
		tasks:        make(map[string]*task),
	}
}

// Start launches the deep crawl for a crawl id. A second start while
// the first is still running is a no-op and returns false.
func (m *Manager) Start(crawlID, baseURL string, maxDepth int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, running := m.tasks[crawlID]; running {
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{cancel: cancel, done: make(chan struct{})}
	m.tasks[crawlID] = t

	go func() {
		defer close(t.done)
		defer m.deregister(crawlID)
		m.run(ctx, crawlID, baseURL, maxDepth)
	}()
	return true
}

// Cancel requests cooperative cancellation of a running crawl and
// marks it cancelled. Returns false when no task is running.
func (m *Manager) Cancel(crawlID string) bool {
	m.mu.Lock()
	t, ok := m.tasks[crawlID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	t.cancel()
	if err := m.store.UpdateCrawlStatus(crawlID, domain.CrawlCancelled, 0, 0, 0); err != nil {
		slog.Error("failed to mark crawl cancelled", "crawl_id", crawlID, "err", err)
	}
	return true
}

// Running reports whether a task exists for the crawl id.
func (m *Manager) Running(crawlID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tasks[crawlID]
	return ok
}

// Join blocks until the crawl's task finishes. No-op when none runs.
func (m *Manager) Join(crawlID string) {
	m.mu.Lock()
	t, ok := m.tasks[crawlID]
	m.mu.Unlock()
	if ok {
		<-t.done
	}
}

func (m *Manager) deregister(crawlID string) {
	m.mu.Lock()
	delete(m.tasks, crawlID)
	m.mu.Unlock()
}

func (m *Manager) run(ctx context.Context, crawlID, baseURL string, maxDepth int) {
	log := slog.With("crawl_id", crawlID)
	log.Info("deep crawl started", "base_url", baseURL, "max_depth", maxDepth)

	discovered := newURLSet()
	discovered.add(baseURL)
	if pages, err := m.store.ListPages(crawlID); err == nil {
		for _, p := range pages {
			discovered.add(p.URL)
		}
	}

	var indexedTotal, linksTotal int
	for depth := 2; depth <= maxDepth; depth++ {
		for {
			if ctx.Err() != nil {
				log.Info("deep crawl cancelled", "depth", depth)
				return
			}
			batch, err := m.store.DequeuePendingBatch(crawlID, depth, m.pendingLimit)
			if err != nil {
				log.Error("failed to fetch pending pages", "depth", depth, "err", err)
				m.fail(crawlID)
				return
			}
			if len(batch) == 0 {
				break
			}
			indexed, links := m.processLevel(ctx, crawlID, baseURL, depth, maxDepth, batch, discovered)
			indexedTotal += indexed
			linksTotal += links
			if ctx.Err() != nil {
				log.Info("deep crawl cancelled", "depth", depth)
				return
			}
			if err := m.store.UpdateCrawlStatus(crawlID, domain.CrawlScraping, depth, maxDepth, linksTotal); err != nil {
				log.Error("failed to update crawl progress", "err", err)
			}
		}
	}
	if ctx.Err() != nil {
		return
	}

	if crawl, err := m.store.GetCrawl(crawlID); err == nil {
		if err := m.store.UpdateCrawlPageCount(crawlID, crawl.PageCount+indexedTotal); err != nil {
			log.Error("failed to update page count", "err", err)
		}
	}
	if err := m.store.UpdateCrawlStatus(crawlID, domain.CrawlCompleted, maxDepth, maxDepth, linksTotal); err != nil {
		log.Error("failed to mark crawl completed", "err", err)
	}
	log.Info("deep crawl finished", "pages_indexed", indexedTotal, "links_discovered", linksTotal)
}

// processLevel works through one dequeued page of the frontier in
// fixed-size concurrent batches. Returns pages indexed and new links
// enqueued.
func (m *Manager) processLevel(ctx context.Context, crawlID, baseURL string, depth, maxDepth int, pending []domain.PendingPage, discovered *urlSet) (int, int) {
	var mu sync.Mutex
	var indexed, links int

	for start := 0; start < len(pending); start += m.batchSize {
		if ctx.Err() != nil {
			return indexed, links
		}
		end := start + m.batchSize
		if end > len(pending) {
			end = len(pending)
		}
		var wg sync.WaitGroup
		for _, page := range pending[start:end] {
			wg.Add(1)
			go func(page domain.PendingPage) {
				defer wg.Done()
				ok, found := m.processPage(ctx, crawlID, baseURL, depth, maxDepth, page, discovered)
				mu.Lock()
				if ok {
					indexed++
				}
				links += found
				mu.Unlock()
			}(page)
		}
		wg.Wait()
	}
	return indexed, links
}

// processPage scrapes one frontier entry, enqueues its same-domain
// links when depth budget remains and indexes its content. Returns
// whether the page reached indexed state and how many new links were
// enqueued.
func (m *Manager) processPage(ctx context.Context, crawlID, baseURL string, depth, maxDepth int, pending domain.PendingPage, discovered *urlSet) (bool, int) {
	log := slog.With("crawl_id", crawlID, "url", pending.URL, "depth", depth)

	page, err := m.scraper.ScrapePage(ctx, pending.URL)
	if err != nil {
		log.Warn("scrape failed", "err", err)
		m.mark(pending.ID, domain.PageFailed, "")
		return false, 0
	}
	page.ID = pending.ID
	page.CrawlID = crawlID
	page.BaseURL = baseURL
	m.mark(pending.ID, domain.PageScraped, page.Title)

	links := 0
	if depth < maxDepth {
		for _, link := range scraper.ExtractLinks(page.Markdown, baseURL) {
			if !discovered.add(link) {
				continue
			}
			if _, err := m.store.EnqueuePending(crawlID, link, pending.ID, depth+1); err != nil {
				if !errors.Is(err, domain.ErrDuplicatePage) {
					log.Warn("failed to enqueue discovered link", "link", link, "err", err)
				}
				continue
			}
			links++
		}
	}

	if err := m.indexer.IndexPage(ctx, crawlID, page); err != nil {
		log.Warn("indexing failed", "err", err)
		m.mark(pending.ID, domain.PageFailed, page.Title)
		return false, links
	}
	m.mark(pending.ID, domain.PageIndexed, page.Title)
	return true, links
}

func (m *Manager) mark(pageID string, status domain.PageStatus, title string) {
	if err := m.store.MarkPageStatus(pageID, status, title); err != nil {
		slog.Error("failed to update page status", "page_id", pageID, "err", err)
	}
}

func (m *Manager) fail(crawlID string) {
	if err := m.store.UpdateCrawlStatus(crawlID, domain.CrawlFailed, 0, 0, 0); err != nil {
		slog.Error("failed to mark crawl failed", "crawl_id", crawlID, "err", err)
	}
}

// urlSet is the per-crawl discovered-URL set shared by concurrently
// running page operations within a batch.
type urlSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func newURLSet() *urlSet {
	return &urlSet{seen: make(map[string]struct{})}
}

// add returns true when the URL was not yet in the set.
func (s *urlSet) add(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[url]; ok {
		return false
	}
	s.seen[url] = struct{}{}
	return true
}
