// Package api exposes the council over HTTP.
package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/greenstevester/llm-council/internal/config"
	"github.com/greenstevester/llm-council/internal/council"
	"github.com/greenstevester/llm-council/internal/llm"
	"github.com/greenstevester/llm-council/internal/storage"
)

// Council validates and runs sessions
type Council interface {
	NewSession(req council.Request) (*council.Session, error)
	Run(ctx context.Context, s *council.Session, emit council.Emitter) (*council.Outcome, error)
}

// Completer answers a single prompt; used for conversation titles
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// Fetcher extracts readable text from a web page
type Fetcher interface {
	FetchURLContent(ctx context.Context, url string) (string, error)
}

// Deps are the collaborators a Server is built from
type Deps struct {
	Config  *config.Config
	Council Council
	Store   storage.Store
	Titles  Completer
	Fetcher Fetcher
	Logger  *zap.Logger
}

// Server holds the HTTP handlers
type Server struct {
	cfg     *config.Config
	council Council
	store   storage.Store
	titles  Completer
	fetcher Fetcher
	logger  *zap.Logger

	// background tracks title generation that outlives its request
	background sync.WaitGroup
}

// New creates a Server
func New(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := d.Config
	if cfg == nil {
		cfg = config.Default()
	}
	return &Server{
		cfg:     cfg,
		council: d.Council,
		store:   d.Store,
		titles:  d.Titles,
		fetcher: d.Fetcher,
		logger:  logger.With(zap.String("component", "api")),
	}
}

// Handler builds the gin engine with middleware and routes
func (s *Server) Handler() http.Handler {
	router := gin.New()
	router.Use(
		requestLogger(s.logger),
		recovery(s.logger),
		bodyLimit(s.cfg.MaxRequestBodySize),
		corsMiddleware(s.cfg.CORSAllowedOrigins),
	)

	router.GET("/", s.healthCheck)
	router.GET("/api/models", s.listModels)
	router.GET("/api/conversations", s.listConversations)
	router.POST("/api/conversations", s.createConversation)
	router.GET("/api/conversations/:id", s.getConversation)
	router.POST("/api/conversations/:id/message/stream", s.streamCouncil)
	router.POST("/api/council/stream", s.streamCouncil)
	router.POST("/api/fetch-url", s.fetchURL)

	return router
}

// Wait blocks until background title generation has finished
func (s *Server) Wait() {
	s.background.Wait()
}
