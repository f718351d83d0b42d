package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/greenstevester/llm-council/internal/council"
	"github.com/greenstevester/llm-council/internal/llm"
	"github.com/greenstevester/llm-council/internal/stream"
)

// StreamRequest is the body of both streaming endpoints
type StreamRequest struct {
	Prompt         string   `json:"prompt"`
	SelectedModels []string `json:"selectedModels"`
	ConversationID string   `json:"conversationId,omitempty"`
	ChairmanModel  string   `json:"chairmanModel,omitempty"`
}

// streamCouncil runs a council session and streams its events.
// POST /api/council/stream
// POST /api/conversations/:id/message/stream (the path id wins over the body)
//
// Invalid requests are answered with 400 before any stream is opened.
func (s *Server) streamCouncil(c *gin.Context) {
	var request StreamRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, err)
		return
	}
	if id := c.Param("id"); id != "" {
		request.ConversationID = id
	}
	userID := author(c)

	session, err := s.council.NewSession(council.Request{
		Prompt:         request.Prompt,
		SelectedModels: request.SelectedModels,
		ChairmanModel:  request.ChairmanModel,
		UserID:         userID,
	})
	var invalid *council.ValidationError
	if errors.As(err, &invalid) {
		c.JSON(http.StatusBadRequest, gin.H{"error": invalid.Error()})
		return
	}
	if err != nil {
		s.internalError(c, "failed to start council session", err)
		return
	}

	ctx := c.Request.Context()
	conversationID, history, first, err := s.openConversation(ctx, request.ConversationID, userID)
	if err != nil {
		s.storeError(c, "failed to load conversation", err)
		return
	}

	userMsg, err := s.store.AddUserMessage(ctx, conversationID, userID, session.Prompt)
	if err != nil {
		s.storeError(c, "failed to add user message", err)
		return
	}

	session.ConversationID = conversationID
	session.ReplyTo = userMsg.ID
	session.History = history

	if first {
		s.generateTitleAsync(conversationID, session.Prompt)
	}

	c.Header(ConversationIDHeader, conversationID)
	stream.SetHeaders(c.Writer.Header())
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	logger := s.logger.With(
		zap.String("session_id", session.ID),
		zap.String("conversation_id", conversationID))
	logger.Info("council stream opened",
		zap.Strings("models", session.Models),
		zap.String("chairman", session.Chairman),
		zap.Int("history_turns", len(history)))

	events := stream.NewWriter(c.Writer, logger)
	// a disconnected client does not stop the council; its answers are still stored
	_, err = s.council.Run(context.WithoutCancel(ctx), session, events)
	events.Close()

	if err != nil {
		logger.Warn("council session ended with error", zap.Error(err))
	}
}

// openConversation loads the named conversation or creates a new one. It
// returns the visible history and whether the conversation had no messages yet.
func (s *Server) openConversation(ctx context.Context, id, userID string) (string, []llm.Message, bool, error) {
	if strings.TrimSpace(id) == "" {
		conv, err := s.store.CreateConversation(ctx, uuid.NewString(), userID)
		if err != nil {
			return "", nil, false, err
		}
		return conv.ID, nil, true, nil
	}

	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return "", nil, false, err
	}
	if len(conv.Messages) == 0 {
		return conv.ID, nil, true, nil
	}

	history, err := s.store.History(ctx, id)
	if err != nil {
		return "", nil, false, err
	}
	return conv.ID, history, false, nil
}
