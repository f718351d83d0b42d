// Package storage keeps conversations and the messages councils produce.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/greenstevester/llm-council/internal/config"
	"github.com/greenstevester/llm-council/internal/council"
	"github.com/greenstevester/llm-council/internal/llm"
)

// DefaultTitle is given to conversations until a title is generated
const DefaultTitle = "New Conversation"

var (
	// ErrNotFound means the conversation does not exist
	ErrNotFound = errors.New("conversation not found")

	// ErrInvalidID rejects ids that cannot be stored safely
	ErrInvalidID = errors.New("invalid conversation id")
)

// Message is one stored turn. Council artifacts carry Metadata.
type Message struct {
	ID        string                  `json:"id"`
	Role      string                  `json:"role"`
	Content   string                  `json:"content"`
	Model     string                  `json:"model,omitempty"`
	Primary   bool                    `json:"primary,omitempty"`
	ReplyTo   string                  `json:"reply_to,omitempty"`
	Mode      string                  `json:"mode,omitempty"`
	UserID    string                  `json:"user_id,omitempty"`
	Metadata  *council.RecordMetadata `json:"metadata,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
}

// Hidden reports whether the message is an internal council artifact
func (m Message) Hidden() bool {
	return m.Metadata != nil && m.Metadata.Hidden
}

// Conversation represents a full conversation with all messages
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
}

// ConversationMetadata represents conversation list metadata
type ConversationMetadata struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
}

// Store is the persistence collaborator of the council plus the conversation
// CRUD the HTTP layer needs.
type Store interface {
	council.Sink

	CreateConversation(ctx context.Context, id, userID string) (*Conversation, error)
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversations(ctx context.Context) ([]ConversationMetadata, error)
	AddUserMessage(ctx context.Context, conversationID, userID, content string) (*Message, error)
	UpdateTitle(ctx context.Context, conversationID, title string) error

	// History returns the visible turns of a conversation, oldest first
	History(ctx context.Context, conversationID string) ([]llm.Message, error)

	Close() error
}

// Open builds the backend named in the configuration
func Open(cfg *config.Config, logger *zap.Logger) (Store, error) {
	switch cfg.StorageBackend {
	case config.StorageFile:
		return NewFileStore(cfg.DataDir, logger)
	case config.StorageSQLite:
		return NewSQLiteStore(cfg.DatabasePath, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// validateID rejects ids that could escape the data directory
func validateID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// messageFromRecord converts a council artifact into a stored assistant message
func messageFromRecord(id string, rec council.Record, now time.Time) Message {
	meta := rec.Metadata
	return Message{
		ID:        id,
		Role:      llm.RoleAssistant,
		Content:   rec.Content,
		Model:     rec.Model,
		Primary:   rec.Primary,
		ReplyTo:   rec.ReplyTo,
		Mode:      rec.Mode,
		UserID:    rec.UserID,
		Metadata:  &meta,
		CreatedAt: now,
	}
}

// visibleHistory keeps user turns and non-hidden assistant turns
func visibleHistory(messages []Message) []llm.Message {
	history := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		if m.Hidden() || strings.TrimSpace(m.Content) == "" {
			continue
		}
		history = append(history, llm.Message{Role: m.Role, Content: m.Content})
	}
	return history
}

func countVisible(messages []Message) int {
	n := 0
	for _, m := range messages {
		if !m.Hidden() {
			n++
		}
	}
	return n
}
