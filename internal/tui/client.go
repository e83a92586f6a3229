package tui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client is a thin HTTP client for the astra server API, used by the
// terminal chat.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

// ScrapeResponse mirrors the server's scrape result.
type ScrapeResponse struct {
	CrawlID   string `json:"crawl_id"`
	ChatID    string `json:"chat_id"`
	PageCount int    `json:"page_count"`
	CacheHit  bool   `json:"cache_hit"`
	Summary   string `json:"summary"`
}

// Source mirrors one citation entry of a query response.
type Source struct {
	URL   string  `json:"url"`
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

// QueryResponse mirrors the server's query result.
type QueryResponse struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
	ChatID  string   `json:"chat_id"`
	CrawlID string   `json:"crawl_id"`
}

// Scrape indexes a site and returns the chat session bound to it.
func (c *Client) Scrape(url string, maxDepth int) (ScrapeResponse, error) {
	var out ScrapeResponse
	err := c.post("/api/scrape", map[string]any{"url": url, "max_depth": maxDepth}, &out)
	return out, err
}

// Query asks a question in an existing chat.
func (c *Client) Query(chatID, query string, limit int) (QueryResponse, error) {
	var out QueryResponse
	err := c.post("/api/query", map[string]any{"chat_id": chatID, "query": query, "limit": limit}, &out)
	return out, err
}

func (c *Client) post(path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := c.client.Post(c.baseURL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, apiErr.Error)
		}
		return fmt.Errorf("request failed: %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
