package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"astra/internal/crawler"
	"astra/internal/domain"
)

func respondError(c *gin.Context, err error) {
	var upstream *domain.UpstreamError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.As(err, &upstream):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (s *Server) scrape(c *gin.Context) {
	var req crawler.ScrapeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.URL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}
	result, err := s.orchestrator.Scrape(c.Request.Context(), req, nil)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// scrapeStream runs the same crawl but emits the progress events as
// SSE records, ending with the terminal complete or error stage.
func (s *Server) scrapeStream(c *gin.Context) {
	var req crawler.ScrapeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.URL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	events := make(chan crawler.Event, 16)
	go func() {
		defer close(events)
		_, _ = s.orchestrator.Scrape(c.Request.Context(), req, func(e crawler.Event) {
			events <- e
		})
	}()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Stream(func(w io.Writer) bool {
		event, ok := <-events
		if !ok {
			return false
		}
		c.SSEvent("progress", event)
		return true
	})
}

func (s *Server) listPages(c *gin.Context) {
	type pageSummary struct {
		ID    string `json:"page_id"`
		URL   string `json:"url"`
		Title string `json:"title"`
	}
	pages := s.pages.Values()
	out := make([]pageSummary, len(pages))
	for i, page := range pages {
		out[i] = pageSummary{ID: page.ID, URL: page.URL, Title: page.Title}
	}
	c.JSON(http.StatusOK, gin.H{"pages": out, "count": len(out)})
}

func (s *Server) getPage(c *gin.Context) {
	page, ok := s.pages.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "page not found"})
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) createChat(c *gin.Context) {
	var req struct {
		CrawlID string `json:"crawl_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.CrawlID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "crawl_id is required"})
		return
	}
	if _, err := s.store.GetCrawl(req.CrawlID); err != nil {
		respondError(c, err)
		return
	}
	chat, err := s.store.CreateChat(req.CrawlID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, chat)
}

// chatView is the enriched chat representation returned by the list
// endpoint: the bare chat plus crawl context and a display name.
type chatView struct {
	domain.Chat
	Name      string `json:"name"`
	URL       string `json:"url,omitempty"`
	PageCount int    `json:"page_count"`
}

func (s *Server) listChats(c *gin.Context) {
	chats, err := s.store.ListChats()
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]chatView, 0, len(chats))
	for _, chat := range chats {
		view := chatView{Chat: chat}
		if crawl, err := s.store.GetCrawl(chat.CrawlID); err == nil {
			view.URL = crawl.URL
			view.PageCount = crawl.PageCount
			view.Name = chatName(s.rootTitle(crawl.ID), crawl.URL)
		}
		out = append(out, view)
	}
	c.JSON(http.StatusOK, gin.H{"chats": out, "count": len(out)})
}

func (s *Server) rootTitle(crawlID string) string {
	pages, err := s.store.ListPages(crawlID)
	if err != nil {
		return ""
	}
	for _, page := range pages {
		if page.DiscoveredFrom == "" && page.Depth == 1 {
			return page.Title
		}
	}
	return ""
}

func (s *Server) getChat(c *gin.Context) {
	chat, err := s.store.GetChat(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, chat)
}

func (s *Server) listMessages(c *gin.Context) {
	chatID := c.Param("id")
	messages, err := s.store.ListMessages(chatID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat_id": chatID, "messages": messages, "count": len(messages)})
}

func (s *Server) chatTree(c *gin.Context) {
	chat, err := s.store.GetChat(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	s.renderTree(c, chat.CrawlID)
}

func (s *Server) listCrawls(c *gin.Context) {
	crawls, err := s.store.ListCrawls()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"crawls": crawls, "count": len(crawls)})
}

func (s *Server) getCrawl(c *gin.Context) {
	crawl, err := s.store.GetCrawl(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, crawl)
}

func (s *Server) crawlTree(c *gin.Context) {
	crawlID := c.Param("id")
	if _, err := s.store.GetCrawl(crawlID); err != nil {
		respondError(c, err)
		return
	}
	s.renderTree(c, crawlID)
}

func (s *Server) renderTree(c *gin.Context, crawlID string) {
	pages, err := s.store.ListPages(crawlID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"crawl_id": crawlID, "tree": buildTree(pages)})
}

func (s *Server) cancelCrawl(c *gin.Context) {
	crawlID := c.Param("id")
	if !s.manager.Cancel(crawlID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no running task for crawl"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"crawl_id": crawlID, "cancelled": true})
}

func (s *Server) query(c *gin.Context) {
	var req struct {
		Query  string `json:"query"`
		ChatID string `json:"chat_id"`
		Limit  int    `json:"limit"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Query == "" || req.ChatID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query and chat_id are required"})
		return
	}

	chat, err := s.store.GetChat(req.ChatID)
	if err != nil {
		respondError(c, err)
		return
	}
	answer, err := s.composer.Answer(c.Request.Context(), req.Query, domain.SearchScope{CrawlID: chat.CrawlID}, req.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := s.store.AppendMessage(chat.ID, domain.Message{Role: domain.RoleUser, Content: req.Query}); err != nil {
		respondError(c, err)
		return
	}
	if err := s.store.AppendMessage(chat.ID, domain.Message{
		Role:     domain.RoleAI,
		Content:  answer.Text,
		Sources:  answer.Sources,
		Metadata: answer.Metadata,
	}); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"answer":   answer.Text,
		"sources":  answer.Sources,
		"chat_id":  chat.ID,
		"crawl_id": chat.CrawlID,
		"metadata": answer.Metadata,
	})
}

func (s *Server) widgetInit(c *gin.Context) {
	var req struct {
		SiteID string   `json:"site_id"`
		URLs   []string `json:"urls"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.SiteID == "" || len(req.URLs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "site_id and urls are required"})
		return
	}
	indexed, err := s.widget.Init(c.Request.Context(), req.SiteID, req.URLs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"site_id": req.SiteID, "pages_indexed": indexed})
}

func (s *Server) widgetRefresh(c *gin.Context) {
	var req struct {
		SiteID string   `json:"site_id"`
		URLs   []string `json:"urls"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.SiteID == "" || len(req.URLs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "site_id and urls are required"})
		return
	}
	indexed, err := s.widget.Refresh(c.Request.Context(), req.SiteID, req.URLs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"site_id": req.SiteID, "pages_indexed": indexed, "refreshed": true})
}

func (s *Server) widgetQuery(c *gin.Context) {
	var req struct {
		SiteID string `json:"site_id"`
		Query  string `json:"query"`
		Limit  int    `json:"limit"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.SiteID == "" || req.Query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "site_id and query are required"})
		return
	}
	answer, err := s.widget.Query(c.Request.Context(), req.SiteID, req.Query, req.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"answer":   answer.Text,
		"sources":  answer.Sources,
		"site_id":  req.SiteID,
		"metadata": answer.Metadata,
	})
}
