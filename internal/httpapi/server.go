package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"astra/internal/cache"
	"astra/internal/config"
	"astra/internal/crawler"
	"astra/internal/domain"
	"astra/internal/rag"
	"astra/internal/widget"
)

// Server wires the HTTP surface over the crawl, retrieval and widget
// services.
type Server struct {
	cfg          config.ServerConfig
	store        domain.SessionStore
	orchestrator *crawler.Orchestrator
	manager      *crawler.Manager
	composer     *rag.Composer
	widget       *widget.Service
	pages        *cache.LRU[domain.Page]
}

func NewServer(cfg config.ServerConfig, store domain.SessionStore, orch *crawler.Orchestrator, manager *crawler.Manager, composer *rag.Composer, widgetSvc *widget.Service, pages *cache.LRU[domain.Page]) *Server {
	return &Server{
		cfg:          cfg,
		store:        store,
		orchestrator: orch,
		manager:      manager,
		composer:     composer,
		widget:       widgetSvc,
		pages:        pages,
	}
}

// Router builds the gin engine with all routes attached.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), corsMiddleware(s.cfg.CORSOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.POST("/scrape", s.scrape)
		api.POST("/scrape/stream", s.scrapeStream)

		api.GET("/pages", s.listPages)
		api.GET("/pages/:id", s.getPage)

		api.POST("/chats", s.createChat)
		api.GET("/chats", s.listChats)
		api.GET("/chats/:id", s.getChat)
		api.GET("/chats/:id/messages", s.listMessages)
		api.GET("/chats/:id/tree", s.chatTree)

		api.GET("/crawls", s.listCrawls)
		api.GET("/crawls/:id", s.getCrawl)
		api.GET("/crawls/:id/tree", s.crawlTree)
		api.DELETE("/crawls/:id/task", s.cancelCrawl)

		api.POST("/query", s.query)

		w := api.Group("/widget", s.widgetAuth)
		{
			w.POST("/init", s.widgetInit)
			w.POST("/refresh", s.widgetRefresh)
			w.POST("/query", s.widgetQuery)
		}
	}
	return r
}

// Run starts the HTTP listener.
func (s *Server) Run() error {
	return s.Router().Run(s.cfg.Addr)
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(origins))
	wildcard := false
	for _, o := range origins {
		if o == "*" {
			wildcard = true
		}
		allowed[o] = struct{}{}
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			if wildcard {
				c.Header("Access-Control-Allow-Origin", "*")
			} else if _, ok := allowed[origin]; ok {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) widgetAuth(c *gin.Context) {
	if err := s.widget.Authorize(c.GetHeader("X-API-Key")); err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
		return
	}
	c.Next()
}
