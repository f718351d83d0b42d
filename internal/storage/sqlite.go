package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/greenstevester/llm-council/internal/council"
	"github.com/greenstevester/llm-council/internal/llm"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL DEFAULT '',
	title      TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	seq             INTEGER PRIMARY KEY AUTOINCREMENT,
	id              TEXT NOT NULL UNIQUE,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL,
	model           TEXT NOT NULL DEFAULT '',
	is_primary      INTEGER NOT NULL DEFAULT 0,
	hidden          INTEGER NOT NULL DEFAULT 0,
	reply_to        TEXT NOT NULL DEFAULT '',
	mode            TEXT NOT NULL DEFAULT '',
	user_id         TEXT NOT NULL DEFAULT '',
	metadata        TEXT,
	created_at      INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, seq);
`

// SQLiteStore keeps conversations in a single SQLite database (pure Go driver)
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore opens (and if needed creates) the database at path
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection serializes writers and keeps the pragmas in effect
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		sqliteSchema,
	} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
	}

	return &SQLiteStore{db: db, logger: logger.With(zap.String("component", "sqlite_store"))}, nil
}

// CreateConversation inserts an empty conversation
func (s *SQLiteStore) CreateConversation(ctx context.Context, id, userID string) (*Conversation, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	conv := &Conversation{
		ID:        id,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
		Title:     DefaultTitle,
		Messages:  []Message{},
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, title, created_at) VALUES (?, ?, ?, ?)`,
		conv.ID, conv.UserID, conv.Title, conv.CreatedAt.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

// GetConversation loads a conversation with all its messages
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	var conv Conversation
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, created_at FROM conversations WHERE id = ?`, id).
		Scan(&conv.ID, &conv.UserID, &conv.Title, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	conv.CreatedAt = time.Unix(0, created).UTC()

	conv.Messages, err = s.messages(ctx, id)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListConversations returns metadata for every conversation, newest first
func (s *SQLiteStore) ListConversations(ctx context.Context) ([]ConversationMetadata, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.title, c.created_at,
		       (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id AND m.hidden = 0)
		FROM conversations c
		ORDER BY c.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	conversations := make([]ConversationMetadata, 0)
	for rows.Next() {
		var meta ConversationMetadata
		var created int64
		if err := rows.Scan(&meta.ID, &meta.Title, &created, &meta.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		meta.CreatedAt = time.Unix(0, created).UTC()
		conversations = append(conversations, meta)
	}
	return conversations, rows.Err()
}

// AddUserMessage appends a user turn and returns it
func (s *SQLiteStore) AddUserMessage(ctx context.Context, conversationID, userID, content string) (*Message, error) {
	msg := Message{
		ID:        uuid.NewString(),
		Role:      llm.RoleUser,
		Content:   content,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.insert(ctx, conversationID, msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// RecordMessage appends a council artifact
func (s *SQLiteStore) RecordMessage(ctx context.Context, rec council.Record) error {
	return s.insert(ctx, rec.ConversationID, messageFromRecord(uuid.NewString(), rec, time.Now().UTC()))
}

// UpdateTitle sets the title of a conversation
func (s *SQLiteStore) UpdateTitle(ctx context.Context, conversationID, title string) error {
	if err := validateID(conversationID); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE conversations SET title = ? WHERE id = ?`, title, conversationID)
	if err != nil {
		return fmt.Errorf("failed to update title: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, conversationID)
	}
	return nil
}

// History returns the visible turns of a conversation, oldest first
func (s *SQLiteStore) History(ctx context.Context, conversationID string) ([]llm.Message, error) {
	if err := s.ensureExists(ctx, conversationID); err != nil {
		return nil, err
	}
	msgs, err := s.messages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return visibleHistory(msgs), nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ensureExists(ctx context.Context, conversationID string) error {
	if err := validateID(conversationID); err != nil {
		return err
	}
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM conversations WHERE id = ?`, conversationID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, conversationID)
	}
	if err != nil {
		return fmt.Errorf("failed to look up conversation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) insert(ctx context.Context, conversationID string, msg Message) error {
	if err := s.ensureExists(ctx, conversationID); err != nil {
		return err
	}

	var metadata sql.NullString
	if msg.Metadata != nil {
		data, err := json.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadata = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, model, is_primary, hidden, reply_to, mode, user_id, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, conversationID, msg.Role, msg.Content, msg.Model,
		boolToInt(msg.Primary), boolToInt(msg.Hidden()),
		msg.ReplyTo, msg.Mode, msg.UserID, metadata, msg.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (s *SQLiteStore) messages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, model, is_primary, reply_to, mode, user_id, metadata, created_at
		FROM messages WHERE conversation_id = ? ORDER BY seq`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		var m Message
		var primary int
		var metadata sql.NullString
		var created int64
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &m.Model, &primary, &m.ReplyTo, &m.Mode, &m.UserID, &metadata, &created); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Primary = primary != 0
		m.CreatedAt = time.Unix(0, created).UTC()
		if metadata.Valid {
			var meta council.RecordMetadata
			if err := json.Unmarshal([]byte(metadata.String), &meta); err != nil {
				s.logger.Warn("ignoring unreadable message metadata", zap.String("message_id", m.ID), zap.Error(err))
			} else {
				m.Metadata = &meta
			}
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
