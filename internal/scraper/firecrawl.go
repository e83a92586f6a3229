package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"astra/internal/domain"
)

// Client talks to a Firecrawl-style scraping provider. Multi-page
// crawls are asynchronous jobs polled until completion; any failure on
// that path falls back to a single-page scrape. Responses are
// normalized into domain.Page at this boundary so nothing downstream
// branches on provider shapes.
type Client struct {
	baseURL    string
	apiKey     string
	client     *http.Client
	pollEvery  time.Duration
	maxWait    time.Duration
	crawlLimit int
}

type Config struct {
	BaseURL    string
	APIKeyEnv  string
	Timeout    time.Duration
	PollEvery  time.Duration
	MaxWait    time.Duration
	CrawlLimit int
}

func NewClient(cfg Config) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	poll := cfg.PollEvery
	if poll == 0 {
		poll = 2 * time.Second
	}
	maxWait := cfg.MaxWait
	if maxWait == 0 {
		maxWait = 60 * time.Second
	}
	limit := cfg.CrawlLimit
	if limit == 0 {
		limit = 100
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     key,
		client:     &http.Client{Timeout: timeout},
		pollEvery:  poll,
		maxWait:    maxWait,
		crawlLimit: limit,
	}, nil
}

// pageData is the provider's wire shape for one scraped page.
type pageData struct {
	Markdown string `json:"markdown"`
	Metadata struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		SourceURL   string `json:"sourceURL"`
	} `json:"metadata"`
}

// ScrapeSite scrapes a site. Depth above one starts a crawl job and
// polls it; on failure or timeout the single-page path is used.
func (c *Client) ScrapeSite(ctx context.Context, url string, maxDepth int) ([]domain.Page, error) {
	if maxDepth <= 1 {
		page, err := c.ScrapePage(ctx, url)
		if err != nil {
			return nil, err
		}
		return []domain.Page{page}, nil
	}
	pages, err := c.crawl(ctx, url, maxDepth)
	if err != nil || len(pages) == 0 {
		if err != nil {
			slog.Warn("crawl job failed, falling back to single page", "url", url, "err", err)
		}
		page, serr := c.ScrapePage(ctx, url)
		if serr != nil {
			return nil, serr
		}
		return []domain.Page{page}, nil
	}
	return pages, nil
}

// ScrapePage scrapes exactly one URL.
func (c *Client) ScrapePage(ctx context.Context, url string) (domain.Page, error) {
	body := map[string]any{"url": url, "formats": []string{"markdown"}}
	var resp struct {
		Success bool     `json:"success"`
		Data    pageData `json:"data"`
	}
	if err := c.postJSON(ctx, c.baseURL+"/v1/scrape", body, &resp); err != nil {
		return domain.Page{}, domain.Upstream("scraper", err)
	}
	if !resp.Success {
		return domain.Page{}, domain.Upstream("scraper", errors.New("scrape rejected by provider"))
	}
	return c.normalize(resp.Data, url, url), nil
}

func (c *Client) crawl(ctx context.Context, url string, maxDepth int) ([]domain.Page, error) {
	start := map[string]any{
		"url":               url,
		"maxDiscoveryDepth": maxDepth,
		"limit":             c.crawlLimit,
		"scrapeOptions":     map[string]any{"formats": []string{"markdown"}},
	}
	var started struct {
		Success bool   `json:"success"`
		ID      string `json:"id"`
	}
	if err := c.postJSON(ctx, c.baseURL+"/v1/crawl", start, &started); err != nil {
		return nil, err
	}
	if !started.Success || started.ID == "" {
		return nil, errors.New("crawl job rejected by provider")
	}

	deadline := time.Now().Add(c.maxWait)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollEvery):
		}
		var status struct {
			Status string     `json:"status"`
			Data   []pageData `json:"data"`
		}
		if err := c.getJSON(ctx, fmt.Sprintf("%s/v1/crawl/%s", c.baseURL, started.ID), &status); err != nil {
			return nil, err
		}
		switch status.Status {
		case "completed":
			pages := make([]domain.Page, 0, len(status.Data))
			for _, d := range status.Data {
				pages = append(pages, c.normalize(d, d.Metadata.SourceURL, url))
			}
			return pages, nil
		case "failed":
			return nil, errors.New("crawl job failed")
		}
	}
	return nil, errors.New("crawl job timed out")
}

func (c *Client) normalize(d pageData, pageURL, baseURL string) domain.Page {
	if d.Metadata.SourceURL != "" {
		pageURL = d.Metadata.SourceURL
	}
	return domain.Page{
		ID:          uuid.New().String(),
		URL:         pageURL,
		BaseURL:     baseURL,
		Title:       d.Metadata.Title,
		Description: d.Metadata.Description,
		Markdown:    d.Markdown,
	}
}

func (c *Client) postJSON(ctx context.Context, url string, body, out any) error {
	data, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("scraper POST %s failed: %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("scraper GET %s failed: %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
