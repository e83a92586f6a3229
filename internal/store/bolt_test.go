package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astra/internal/domain"
)

func newTestStore(t *testing.T) *Bolt {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "astra.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCrawlRoundTrip(t *testing.T) {
	s := newTestStore(t)
	created, err := s.CreateCrawl("https://a.test", "")
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, domain.CrawlPending, created.Status)

	got, err := s.GetCrawl(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://a.test", got.URL)

	require.NoError(t, s.UpdateCrawlStatus(created.ID, domain.CrawlScraping, 1, 3, 12))
	require.NoError(t, s.UpdateCrawlPageCount(created.ID, 7))
	got, err = s.GetCrawl(created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CrawlScraping, got.Status)
	assert.Equal(t, 1, got.CurrentDepth)
	assert.Equal(t, 3, got.MaxDepth)
	assert.Equal(t, 12, got.TotalLinks)
	assert.Equal(t, 7, got.PageCount)
}

func TestGetCrawlNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetCrawl("missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFindCrawlByURLExactMatch(t *testing.T) {
	s := newTestStore(t)
	created, err := s.CreateCrawl("https://a.test/docs", "c1")
	require.NoError(t, err)

	got, err := s.FindCrawlByURL("https://a.test/docs")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = s.FindCrawlByURL("https://a.test/docs/")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestChatAndMessages(t *testing.T) {
	s := newTestStore(t)
	crawl, err := s.CreateCrawl("https://a.test", "")
	require.NoError(t, err)
	chat, err := s.CreateChat(crawl.ID)
	require.NoError(t, err)

	require.NoError(t, s.AppendMessage(chat.ID, domain.Message{Role: domain.RoleUser, Content: "hello"}))
	require.NoError(t, s.AppendMessage(chat.ID, domain.Message{
		Role:    domain.RoleAI,
		Content: "hi",
		Sources: []domain.Source{{URL: "https://a.test", Title: "A", Score: 0.9}},
	}))

	msgs, err := s.ListMessages(chat.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, domain.RoleAI, msgs[1].Role)
	require.Len(t, msgs[1].Sources, 1)

	require.NoError(t, s.UpdateChatSummary(chat.ID, "Indexed 1 page from https://a.test"))
	got, err := s.GetChat(chat.ID)
	require.NoError(t, err)
	assert.Equal(t, "Indexed 1 page from https://a.test", got.Summary)
}

func TestAppendMessageUnknownChat(t *testing.T) {
	s := newTestStore(t)
	err := s.AppendMessage("nope", domain.Message{Role: domain.RoleUser, Content: "x"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPendingPageUniqueness(t *testing.T) {
	s := newTestStore(t)
	_, err := s.EnqueuePending("c1", "https://a.test/page", "", 1)
	require.NoError(t, err)
	_, err = s.EnqueuePending("c1", "https://a.test/page", "root", 1)
	assert.ErrorIs(t, err, domain.ErrDuplicatePage)

	// Same URL under a different crawl is a separate frontier entry.
	_, err = s.EnqueuePending("c2", "https://a.test/page", "", 1)
	assert.NoError(t, err)
}

func TestDequeuePendingBatchDepthScoped(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 4; i++ {
		_, err := s.EnqueuePending("c1", "https://a.test/d1-"+string(rune('a'+i)), "", 1)
		require.NoError(t, err)
	}
	_, err := s.EnqueuePending("c1", "https://a.test/d2", "", 2)
	require.NoError(t, err)

	batch, err := s.DequeuePendingBatch("c1", 1, 3)
	require.NoError(t, err)
	assert.Len(t, batch, 3)
	for _, p := range batch {
		assert.Equal(t, 1, p.Depth)
		assert.Equal(t, domain.PagePending, p.Status)
	}
}

func TestMarkPageStatusLeavesQueue(t *testing.T) {
	s := newTestStore(t)
	page, err := s.EnqueuePending("c1", "https://a.test/x", "", 1)
	require.NoError(t, err)
	require.NoError(t, s.MarkPageStatus(page.ID, domain.PageIndexed, "Page X"))

	batch, err := s.DequeuePendingBatch("c1", 1, 10)
	require.NoError(t, err)
	assert.Empty(t, batch)

	pages, err := s.ListPages("c1")
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, domain.PageIndexed, pages[0].Status)
	assert.Equal(t, "Page X", pages[0].Title)
}

func TestStorePageRecordsDiscoveryParent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.StorePage(domain.PendingPage{
		ID:      "root",
		CrawlID: "c1",
		URL:     "https://a.test",
		Title:   "Root",
		Status:  domain.PageIndexed,
	}))
	require.NoError(t, s.StorePage(domain.PendingPage{
		CrawlID:        "c1",
		URL:            "https://a.test/child",
		Title:          "Child",
		Depth:          1,
		DiscoveredFrom: "root",
		Status:         domain.PageIndexed,
	}))
	pages, err := s.ListPages("c1")
	require.NoError(t, err)
	require.Len(t, pages, 2)
}
