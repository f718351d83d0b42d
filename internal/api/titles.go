package api

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/greenstevester/llm-council/internal/llm"
)

const maxTitleRunes = 50

const titlePrompt = `Generate a very short title (3-5 words maximum) that summarizes the following question.
The title should be concise and descriptive. Do not use quotes or punctuation in the title.

Question: %s

Title:`

// generateTitleAsync names a new conversation without holding up its stream.
// On failure the conversation keeps its default title.
func (s *Server) generateTitleAsync(conversationID, prompt string) {
	if s.titles == nil {
		return
	}

	s.background.Add(1)
	go func() {
		defer s.background.Done()

		ctx := context.Background()
		if s.cfg.TitleGenTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.cfg.TitleGenTimeout)
			defer cancel()
		}

		logger := s.logger.With(zap.String("conversation_id", conversationID))
		title, err := s.generateTitle(ctx, prompt)
		if err != nil {
			logger.Warn("failed to generate title", zap.Error(err))
			return
		}
		if err := s.store.UpdateTitle(ctx, conversationID, title); err != nil {
			logger.Warn("failed to store title", zap.Error(err))
			return
		}
		logger.Debug("conversation titled", zap.String("title", title))
	}()
}

func (s *Server) generateTitle(ctx context.Context, prompt string) (string, error) {
	text, err := s.titles.Complete(ctx, llm.Request{
		Model:     s.cfg.TitleModel,
		Prompt:    fmt.Sprintf(titlePrompt, prompt),
		MaxLength: 200,
	})
	if err != nil {
		return "", fmt.Errorf("title generation failed: %w", err)
	}

	title := cleanTitle(text)
	if title == "" {
		return "", fmt.Errorf("title generation failed: model %s returned no usable title", s.cfg.TitleModel)
	}
	return title, nil
}

// cleanTitle keeps the first line, strips quotes and caps the length
func cleanTitle(raw string) string {
	title := strings.TrimSpace(raw)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = title[:i]
	}
	title = strings.TrimPrefix(title, "Title:")
	title = strings.TrimSpace(strings.Trim(strings.TrimSpace(title), "\"'`*"))

	runes := []rune(title)
	if len(runes) > maxTitleRunes {
		title = strings.TrimSpace(string(runes[:maxTitleRunes-3])) + "..."
	}
	return title
}
