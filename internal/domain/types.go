package domain

import "time"

// CrawlStatus tracks the lifecycle of a scraping session.
type CrawlStatus string

const (
	CrawlPending   CrawlStatus = "pending"
	CrawlScraping  CrawlStatus = "scraping"
	CrawlCompleted CrawlStatus = "completed"
	CrawlCancelled CrawlStatus = "cancelled"
	CrawlFailed    CrawlStatus = "failed"
)

// PageStatus tracks a discovered page through the deep-crawl frontier.
type PageStatus string

const (
	PagePending PageStatus = "pending"
	PageScraped PageStatus = "scraped"
	PageIndexed PageStatus = "indexed"
	PageFailed  PageStatus = "failed"
)

// Crawl is one scraping session for a base URL. The URL doubles as the
// cache key: a second scrape of the same URL reuses the crawl.
type Crawl struct {
	ID           string      `json:"crawl_id"`
	URL          string      `json:"url"`
	Status       CrawlStatus `json:"status"`
	PageCount    int         `json:"page_count"`
	CurrentDepth int         `json:"current_depth"`
	MaxDepth     int         `json:"max_depth"`
	TotalLinks   int         `json:"total_links"`
	CreatedAt    time.Time   `json:"created_at"`
}

// Chat is a conversational session bound to exactly one crawl. Several
// chats may share a crawl when the cache-hit path creates new sessions
// over previously indexed content.
type Chat struct {
	ID        string    `json:"chat_id"`
	CrawlID   string    `json:"crawl_id"`
	Summary   string    `json:"summary,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is one turn in a chat, immutable once appended.
type Message struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Sources   []Source       `json:"sources,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

const (
	RoleUser = "user"
	RoleAI   = "ai"
)

// PendingPage is a discovered-but-not-yet-scraped URL in a deep crawl.
// DiscoveredFrom is empty for depth-1 seeds queued off the root page.
type PendingPage struct {
	ID             string     `json:"id"`
	CrawlID        string     `json:"crawl_id"`
	URL            string     `json:"url"`
	Title          string     `json:"title"`
	Depth          int        `json:"depth"`
	DiscoveredFrom string     `json:"discovered_from,omitempty"`
	Status         PageStatus `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Page is a scraped page normalized at the scraper boundary. ParentID
// carries the discovery relationship when known.
type Page struct {
	ID          string `json:"page_id"`
	CrawlID     string `json:"crawl_id,omitempty"`
	URL         string `json:"url"`
	BaseURL     string `json:"base_url,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Markdown    string `json:"markdown"`
	ParentID    string `json:"parent_id,omitempty"`
}

// PageNode is one node of the hierarchical page tree derived per crawl.
type PageNode struct {
	ID       string      `json:"page_id"`
	URL      string      `json:"url"`
	Title    string      `json:"title"`
	Depth    int         `json:"depth"`
	Status   PageStatus  `json:"status"`
	Children []*PageNode `json:"children,omitempty"`
}

// Chunk is a bounded slice of a page's text, derived deterministically
// from the page markdown.
type Chunk struct {
	Text  string `json:"text"`
	Index int    `json:"chunk_index"`
	Total int    `json:"total_chunks"`
}

// VectorPayload is the metadata stored alongside each vector. Exactly
// one of CrawlID or SiteID is set and every search filters on it.
type VectorPayload struct {
	PageID     string `json:"page_id"`
	CrawlID    string `json:"crawl_id,omitempty"`
	SiteID     string `json:"site_id,omitempty"`
	URL        string `json:"url"`
	BaseURL    string `json:"base_url,omitempty"`
	Title      string `json:"title"`
	Markdown   string `json:"markdown"`
	ChunkIndex int    `json:"chunk_index"`
	Total      int    `json:"total_chunks"`
	OriginalID string `json:"original_page_id"`
}

// VectorRecord is the unit stored in the similarity index. Key is the
// logical identity the stable numeric point id is derived from, so
// re-ingesting the same chunk overwrites instead of duplicating.
type VectorRecord struct {
	Key     string
	Vector  []float64
	Payload VectorPayload
}

// SearchHit is one scored result of a scoped similarity search.
type SearchHit struct {
	Payload VectorPayload
	Score   float64
}

// Source is the machine-readable citation attached to an answer.
type Source struct {
	URL   string  `json:"url"`
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

// Answer is the composed response to a retrieval query.
type Answer struct {
	Text     string         `json:"answer"`
	Sources  []Source       `json:"sources"`
	Metadata map[string]any `json:"metadata"`
}
