package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/greenstevester/llm-council/internal/council"
	"github.com/greenstevester/llm-council/internal/llm"
)

// FileStore keeps one JSON document per conversation. Every read-modify-write
// runs under one mutex because council stages record messages concurrently.
type FileStore struct {
	dir    string
	mu     sync.Mutex
	logger *zap.Logger
}

// NewFileStore creates the data directory if needed
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &FileStore{dir: dir, logger: logger.With(zap.String("component", "file_store"))}, nil
}

// path returns the file path for a conversation
func (s *FileStore) path(conversationID string) string {
	return filepath.Join(s.dir, conversationID+".json")
}

// CreateConversation creates a new conversation with the given ID
func (s *FileStore) CreateConversation(ctx context.Context, id, userID string) (*Conversation, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conversation := &Conversation{
		ID:        id,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
		Title:     DefaultTitle,
		Messages:  []Message{},
	}
	if err := s.save(conversation); err != nil {
		return nil, err
	}
	return conversation, nil
}

// GetConversation loads a conversation by ID
func (s *FileStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(id)
}

// ListConversations lists all conversations, newest first.
// Unreadable or invalid files are skipped.
func (s *FileStore) ListConversations(ctx context.Context) ([]ConversationMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	conversations := make([]ConversationMetadata, 0)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			s.logger.Warn("skipping unreadable conversation file", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}

		var conv Conversation
		if err := json.Unmarshal(data, &conv); err != nil {
			s.logger.Warn("skipping invalid conversation file", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}

		conversations = append(conversations, ConversationMetadata{
			ID:           conv.ID,
			CreatedAt:    conv.CreatedAt,
			Title:        conv.Title,
			MessageCount: countVisible(conv.Messages),
		})
	}

	sort.Slice(conversations, func(i, j int) bool {
		return conversations[i].CreatedAt.After(conversations[j].CreatedAt)
	})
	return conversations, nil
}

// AddUserMessage appends a user turn and returns it
func (s *FileStore) AddUserMessage(ctx context.Context, conversationID, userID, content string) (*Message, error) {
	msg := Message{
		ID:        uuid.NewString(),
		Role:      llm.RoleUser,
		Content:   content,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.update(conversationID, func(c *Conversation) {
		c.Messages = append(c.Messages, msg)
	}); err != nil {
		return nil, err
	}
	return &msg, nil
}

// RecordMessage appends a council artifact
func (s *FileStore) RecordMessage(ctx context.Context, rec council.Record) error {
	msg := messageFromRecord(uuid.NewString(), rec, time.Now().UTC())
	return s.update(rec.ConversationID, func(c *Conversation) {
		c.Messages = append(c.Messages, msg)
	})
}

// UpdateTitle sets the title of a conversation
func (s *FileStore) UpdateTitle(ctx context.Context, conversationID, title string) error {
	return s.update(conversationID, func(c *Conversation) {
		c.Title = title
	})
}

// History returns the visible turns of a conversation, oldest first
func (s *FileStore) History(ctx context.Context, conversationID string) ([]llm.Message, error) {
	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return visibleHistory(conv.Messages), nil
}

// Close is a no-op for the file store
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) update(conversationID string, mutate func(*Conversation)) error {
	if err := validateID(conversationID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.load(conversationID)
	if err != nil {
		return err
	}
	mutate(conv)
	return s.save(conv)
}

// load must be called with mu held
func (s *FileStore) load(id string) (*Conversation, error) {
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation file: %w", err)
	}

	var conversation Conversation
	if err := json.Unmarshal(data, &conversation); err != nil {
		return nil, fmt.Errorf("failed to parse conversation JSON: %w", err)
	}
	return &conversation, nil
}

// save writes through a temp file so a crash never leaves half a document.
// Must be called with mu held.
func (s *FileStore) save(conversation *Conversation) error {
	data, err := json.MarshalIndent(conversation, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}

	path := s.path(conversation.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write conversation file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace conversation file: %w", err)
	}
	return nil
}
