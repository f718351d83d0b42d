package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/greenstevester/llm-council/internal/storage"
	"github.com/greenstevester/llm-council/internal/webfetch"
)

// healthCheck returns a simple health check response.
// GET /
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "LLM Council API",
	})
}

// listModels advertises the default council and chairman.
// GET /api/models
func (s *Server) listModels(c *gin.Context) {
	chairman := s.cfg.FallbackChairman
	if len(s.cfg.CouncilModels) > 0 {
		chairman = s.cfg.CouncilModels[0]
	}
	c.JSON(http.StatusOK, gin.H{
		"councilModels":    s.cfg.CouncilModels,
		"chairmanModel":    chairman,
		"fallbackChairman": s.cfg.FallbackChairman,
	})
}

// listConversations lists all conversations with metadata only.
// GET /api/conversations
func (s *Server) listConversations(c *gin.Context) {
	conversations, err := s.store.ListConversations(c.Request.Context())
	if err != nil {
		s.internalError(c, "failed to list conversations", err)
		return
	}
	c.JSON(http.StatusOK, conversations)
}

// createConversation creates an empty conversation.
// POST /api/conversations
func (s *Server) createConversation(c *gin.Context) {
	conversation, err := s.store.CreateConversation(c.Request.Context(), uuid.NewString(), author(c))
	if err != nil {
		s.internalError(c, "failed to create conversation", err)
		return
	}
	c.JSON(http.StatusOK, conversation)
}

// getConversation returns a conversation including every stored message.
// GET /api/conversations/:id
func (s *Server) getConversation(c *gin.Context) {
	conversation, err := s.store.GetConversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.storeError(c, "failed to get conversation", err)
		return
	}
	c.JSON(http.StatusOK, conversation)
}

// fetchURL extracts the readable text of a web page.
// POST /api/fetch-url  {"url": "https://..."}
func (s *Server) fetchURL(c *gin.Context) {
	var request struct {
		URL string `json:"url" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, err)
		return
	}

	content, err := s.fetcher.FetchURLContent(c.Request.Context(), request.URL)
	if errors.Is(err, webfetch.ErrInvalidURL) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		s.logger.Warn("url fetch failed", zap.String("url", request.URL), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to fetch URL content: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"content": content})
}

func badRequest(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
		})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid request: %v", err)})
}

// storeError maps storage errors onto status codes
func (s *Server) storeError(c *gin.Context, msg string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
	case errors.Is(err, storage.ErrInvalidID):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		s.internalError(c, msg, err)
	}
}

func (s *Server) internalError(c *gin.Context, msg string, err error) {
	_ = c.Error(err)
	s.logger.Error(msg, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("%s: %v", msg, err)})
}
