// Package server exposes the product search over HTTP. One scan session
// serves the whole process: a search arriving while another runs is
// rejected with 409 rather than queued, mirroring the session contract.
package server

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stylescout/stylescout-backend/internal/app"
	"github.com/stylescout/stylescout-backend/internal/config"
	"github.com/stylescout/stylescout-backend/internal/fetch"
	"github.com/stylescout/stylescout-backend/internal/session"
)

// Server handles search requests.
type Server struct {
	cfg      *config.Config
	log      *zap.Logger
	session  *session.Session
	renderer *fetch.Renderer
}

// New builds a Server from cfg. The logger may be nil.
func New(cfg *config.Config, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		cfg:     cfg,
		log:     log,
		session: app.BuildSession(cfg, log),
	}
	if cfg.Fetch.Render {
		s.renderer = fetch.NewRenderer()
	}
	return s
}

// Router returns the configured gin engine.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	api.POST("/search", s.handleSearch)
	return r
}

// Run starts the server on the configured address.
func (s *Server) Run() error {
	s.log.Info("listening", zap.String("addr", s.cfg.Server.Addr))
	return s.Router().Run(s.cfg.Server.Addr)
}

type searchRequest struct {
	URL      string `json:"url" binding:"required"`
	Query    string `json:"query"`
	ImageURL string `json:"imageUrl"`
}

type searchResponse struct {
	Results []session.Result `json:"results"`
	Count   int              `json:"count"`
}

func (s *Server) handleSearch(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if req.Query == "" && req.ImageURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": session.ErrInvalidInput.Error()})
		return
	}

	doc, pageURL, err := s.loadPage(c, req.URL)
	if err != nil {
		s.log.Warn("page fetch failed", zap.String("url", req.URL), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not fetch page: " + err.Error()})
		return
	}

	results, err := s.session.Search(c.Request.Context(), session.Input{
		Query:    req.Query,
		ImageURL: req.ImageURL,
	}, doc, pageURL, func(stage string) {
		s.log.Debug("progress", zap.String("stage", stage))
	})
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, session.ErrInvalidInput):
			status = http.StatusBadRequest
		case errors.Is(err, session.ErrScanInProgress):
			status = http.StatusConflict
		case errors.Is(err, session.ErrTimeout):
			status = http.StatusGatewayTimeout
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, searchResponse{Results: results, Count: len(results)})
}

func (s *Server) loadPage(c *gin.Context, pageURL string) (*goquery.Document, *url.URL, error) {
	if s.renderer != nil {
		return s.renderer.Document(c.Request.Context(), pageURL)
	}
	return fetch.Document(pageURL, s.cfg.FetchTimeout())
}
