package domain

import "context"

// Chunker splits raw text into bounded, overlapping segments.
type Chunker interface {
	Chunk(text string) []Chunk
}

// Embedder converts text into L2-normalized vectors, one per input and
// in input order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
	EmbedQuery(ctx context.Context, query string) ([]float64, error)
	Dimension() int
}

// SearchScope is the mandatory equality filter applied to every
// similarity search. Exactly one field is set.
type SearchScope struct {
	CrawlID string
	SiteID  string
}

// VectorIndex persists vector records and supports scoped search.
type VectorIndex interface {
	EnsureSchema(ctx context.Context) error
	UpsertBatch(ctx context.Context, records []VectorRecord) error
	Search(ctx context.Context, vector []float64, scope SearchScope, k int) ([]SearchHit, error)
	Delete(ctx context.Context, key string) error
	DeleteSite(ctx context.Context, siteID string) error
}

// Scraper is the crawling collaborator. Multi-page scrapes poll an
// asynchronous job until completion and fall back to a single page.
type Scraper interface {
	ScrapeSite(ctx context.Context, url string, maxDepth int) ([]Page, error)
	ScrapePage(ctx context.Context, url string) (Page, error)
}

// Generator is the language-model collaborator.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
	Model() string
}

// SessionStore is the durable crawl/chat/message/pending-page state.
// Every mutation is written through before the call returns.
type SessionStore interface {
	CreateCrawl(url, crawlID string) (Crawl, error)
	GetCrawl(crawlID string) (Crawl, error)
	FindCrawlByURL(url string) (Crawl, error)
	UpdateCrawlStatus(crawlID string, status CrawlStatus, currentDepth, maxDepth, totalLinks int) error
	UpdateCrawlPageCount(crawlID string, count int) error
	ListCrawls() ([]Crawl, error)

	CreateChat(crawlID string) (Chat, error)
	GetChat(chatID string) (Chat, error)
	UpdateChatSummary(chatID, summary string) error
	ListChats() ([]Chat, error)

	AppendMessage(chatID string, msg Message) error
	ListMessages(chatID string) ([]Message, error)

	StorePage(page PendingPage) error
	EnqueuePending(crawlID, url, discoveredFrom string, depth int) (PendingPage, error)
	DequeuePendingBatch(crawlID string, depth, limit int) ([]PendingPage, error)
	MarkPageStatus(pageID string, status PageStatus, title string) error
	ListPages(crawlID string) ([]PendingPage, error)
}
