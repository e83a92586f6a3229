package crawler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astra/internal/domain"
)

func TestDeepCrawlFollowsSameDomainLinks(t *testing.T) {
	rootMarkdown := `Welcome.

[One](https://a.test/one) [Two](/two) [Three](https://a.test/three)
[Elsewhere](https://other.test/away)`

	scr := &fakeScraper{
		site: []domain.Page{rootPage("https://a.test", rootMarkdown)},
		pages: map[string]domain.Page{
			"https://a.test/one":   {ID: "p1", URL: "https://a.test/one", Title: "One", Markdown: "Page one content."},
			"https://a.test/two":   {ID: "p2", URL: "https://a.test/two", Title: "Two", Markdown: "Page two content."},
			"https://a.test/three": {ID: "p3", URL: "https://a.test/three", Title: "Three", Markdown: "Page three content."},
		},
	}
	env := newTestEnv(t, scr)

	result, err := env.orch.Scrape(context.Background(), ScrapeRequest{URL: "https://a.test", MaxDepth: 2}, nil)
	require.NoError(t, err)
	env.manager.Join(result.CrawlID)

	pages, err := env.store.ListPages(result.CrawlID)
	require.NoError(t, err)
	require.Len(t, pages, 4)

	depth2 := 0
	for _, page := range pages {
		assert.NotContains(t, page.URL, "other.test")
		if page.Depth == 2 {
			depth2++
			assert.Equal(t, domain.PageIndexed, page.Status)
			assert.NotEmpty(t, page.DiscoveredFrom)
		}
	}
	assert.Equal(t, 3, depth2)

	crawl, err := env.store.GetCrawl(result.CrawlID)
	require.NoError(t, err)
	assert.Equal(t, domain.CrawlCompleted, crawl.Status)
	assert.Equal(t, 4, crawl.PageCount)
	assert.Equal(t, 3, crawl.TotalLinks)
	assert.Equal(t, 2, crawl.CurrentDepth)
}

func TestDeepCrawlRespectsDepthBudget(t *testing.T) {
	scr := &fakeScraper{
		site: []domain.Page{rootPage("https://a.test", "[One](https://a.test/one)")},
		pages: map[string]domain.Page{
			// A depth-2 page linking further down must not extend the frontier.
			"https://a.test/one": {ID: "p1", URL: "https://a.test/one", Title: "One", Markdown: "[Deeper](https://a.test/deeper)"},
		},
	}
	env := newTestEnv(t, scr)

	result, err := env.orch.Scrape(context.Background(), ScrapeRequest{URL: "https://a.test", MaxDepth: 2}, nil)
	require.NoError(t, err)
	env.manager.Join(result.CrawlID)

	pages, err := env.store.ListPages(result.CrawlID)
	require.NoError(t, err)
	for _, page := range pages {
		assert.NotEqual(t, "https://a.test/deeper", page.URL)
	}
}

func TestDuplicateStartIsNoOp(t *testing.T) {
	scr := &fakeScraper{
		pages: map[string]domain.Page{
			"https://a.test/one": {ID: "p1", URL: "https://a.test/one", Title: "One", Markdown: "Content."},
		},
		block: make(chan struct{}),
	}
	env := newTestEnv(t, scr)

	_, err := env.store.CreateCrawl("https://a.test", "c1")
	require.NoError(t, err)
	_, err = env.store.EnqueuePending("c1", "https://a.test/one", "", 2)
	require.NoError(t, err)

	assert.True(t, env.manager.Start("c1", "https://a.test", 2))
	assert.False(t, env.manager.Start("c1", "https://a.test", 2))
	assert.True(t, env.manager.Running("c1"))

	close(scr.block)
	env.manager.Join("c1")
	assert.False(t, env.manager.Running("c1"))

	// The handle was discarded, so a later start is accepted again.
	assert.True(t, env.manager.Start("c1", "https://a.test", 2))
	env.manager.Join("c1")
}

func TestCancelMarksCrawlCancelled(t *testing.T) {
	scr := &fakeScraper{
		pages: map[string]domain.Page{
			"https://a.test/one": {ID: "p1", URL: "https://a.test/one", Title: "One", Markdown: "Content."},
		},
		block: make(chan struct{}),
	}
	env := newTestEnv(t, scr)

	_, err := env.store.CreateCrawl("https://a.test", "c1")
	require.NoError(t, err)
	_, err = env.store.EnqueuePending("c1", "https://a.test/one", "", 2)
	require.NoError(t, err)

	require.True(t, env.manager.Start("c1", "https://a.test", 2))
	require.True(t, env.manager.Cancel("c1"))
	close(scr.block)
	env.manager.Join("c1")

	crawl, err := env.store.GetCrawl("c1")
	require.NoError(t, err)
	assert.Equal(t, domain.CrawlCancelled, crawl.Status)

	assert.False(t, env.manager.Cancel("missing"))
}
