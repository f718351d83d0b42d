package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenstevester/llm-council/internal/config"
	"github.com/greenstevester/llm-council/internal/council"
	"github.com/greenstevester/llm-council/internal/llm"
)

// backends runs fn against every Store implementation
func backends(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("file", func(t *testing.T) {
		s, err := NewFileStore(t.TempDir(), nil)
		require.NoError(t, err)
		fn(t, s)
	})
	t.Run("sqlite", func(t *testing.T) {
		s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "council.db"), nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		fn(t, s)
	})
}

func councilRecord(convID, model string, stage council.Stage, hidden bool) council.Record {
	return council.Record{
		Content:        "text from " + model,
		Model:          model,
		Primary:        !hidden,
		ConversationID: convID,
		ReplyTo:        "user-msg",
		Mode:           council.RecordMode,
		Metadata: council.RecordMetadata{
			Stage:     stage,
			SessionID: "session-1",
			Hidden:    hidden,
		},
	}
}

func TestCreateAndGetConversation(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		created, err := s.CreateConversation(ctx, "conv-1", "alice")
		require.NoError(t, err)
		assert.Equal(t, DefaultTitle, created.Title)
		assert.Empty(t, created.Messages)

		got, err := s.GetConversation(ctx, "conv-1")
		require.NoError(t, err)
		assert.Equal(t, "conv-1", got.ID)
		assert.Equal(t, "alice", got.UserID)
		assert.Equal(t, DefaultTitle, got.Title)
		assert.NotNil(t, got.Messages)
		assert.WithinDuration(t, created.CreatedAt, got.CreatedAt, 0)
	})
}

func TestGetConversationNotFound(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		_, err := s.GetConversation(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = s.AddUserMessage(context.Background(), "missing", "", "hello")
		assert.ErrorIs(t, err, ErrNotFound)

		err = s.RecordMessage(context.Background(), councilRecord("missing", "m1", council.StageCollect, true))
		assert.ErrorIs(t, err, ErrNotFound)

		assert.ErrorIs(t, s.UpdateTitle(context.Background(), "missing", "x"), ErrNotFound)

		_, err = s.History(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestInvalidIDs(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		for _, id := range []string{"", "..", "../etc/passwd", `a\b`, "a/b"} {
			_, err := s.CreateConversation(context.Background(), id, "")
			assert.ErrorIs(t, err, ErrInvalidID, "id %q", id)

			_, err = s.GetConversation(context.Background(), id)
			assert.ErrorIs(t, err, ErrInvalidID, "id %q", id)
		}
	})
}

func TestMessagesAndHistory(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		_, err := s.CreateConversation(ctx, "conv-1", "")
		require.NoError(t, err)

		user, err := s.AddUserMessage(ctx, "conv-1", "alice", "What is Go?")
		require.NoError(t, err)
		assert.NotEmpty(t, user.ID)
		assert.Equal(t, llm.RoleUser, user.Role)

		require.NoError(t, s.RecordMessage(ctx, councilRecord("conv-1", "m1", council.StageCollect, true)))
		require.NoError(t, s.RecordMessage(ctx, councilRecord("conv-1", "m2", council.StageRank, true)))

		final := councilRecord("conv-1", "chair", council.StageSynthesize, false)
		final.Metadata.LabelToModel = map[string]string{"Response A": "m1"}
		final.Metadata.AggregateRankings = []council.AggregateRanking{{Model: "m1", AverageRank: 1, RankingsCount: 1}}
		require.NoError(t, s.RecordMessage(ctx, final))

		conv, err := s.GetConversation(ctx, "conv-1")
		require.NoError(t, err)
		require.Len(t, conv.Messages, 4)

		assert.Equal(t, "alice", conv.Messages[0].UserID)
		assert.True(t, conv.Messages[1].Hidden())
		assert.Equal(t, council.StageRank, conv.Messages[2].Metadata.Stage)

		last := conv.Messages[3]
		assert.Equal(t, llm.RoleAssistant, last.Role)
		assert.Equal(t, "chair", last.Model)
		assert.True(t, last.Primary)
		assert.False(t, last.Hidden())
		assert.Equal(t, council.RecordMode, last.Mode)
		assert.Equal(t, "user-msg", last.ReplyTo)
		require.NotNil(t, last.Metadata)
		assert.Equal(t, "session-1", last.Metadata.SessionID)
		assert.Equal(t, map[string]string{"Response A": "m1"}, last.Metadata.LabelToModel)
		assert.Len(t, last.Metadata.AggregateRankings, 1)

		history, err := s.History(ctx, "conv-1")
		require.NoError(t, err)
		assert.Equal(t, []llm.Message{
			{Role: llm.RoleUser, Content: "What is Go?"},
			{Role: llm.RoleAssistant, Content: "text from chair"},
		}, history)
	})
}

func TestListConversationsAndTitles(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		list, err := s.ListConversations(ctx)
		require.NoError(t, err)
		assert.Empty(t, list)

		_, err = s.CreateConversation(ctx, "older", "")
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
		_, err = s.CreateConversation(ctx, "newer", "")
		require.NoError(t, err)

		_, err = s.AddUserMessage(ctx, "older", "", "hello")
		require.NoError(t, err)
		require.NoError(t, s.RecordMessage(ctx, councilRecord("older", "m1", council.StageCollect, true)))
		require.NoError(t, s.UpdateTitle(ctx, "older", "Greetings"))

		list, err = s.ListConversations(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "newer", list[0].ID)
		assert.Equal(t, "older", list[1].ID)
		assert.Equal(t, "Greetings", list[1].Title)
		assert.Equal(t, 1, list[1].MessageCount, "hidden council messages are not counted")
	})
}

func TestConcurrentRecords(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		_, err := s.CreateConversation(ctx, "conv-1", "")
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, s.RecordMessage(ctx, councilRecord("conv-1", "m", council.StageCollect, true)))
			}()
		}
		wg.Wait()

		conv, err := s.GetConversation(ctx, "conv-1")
		require.NoError(t, err)
		assert.Len(t, conv.Messages, 10, "no write may be lost")
	})
}

func TestFileStoreSkipsInvalidFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, nil)
	require.NoError(t, err)

	_, err = s.CreateConversation(context.Background(), "good", "")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	list, err := s.ListConversations(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "good", list[0].ID)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	cfg := config.Default()
	cfg.DataDir = filepath.Join(dir, "conversations")
	s, err := Open(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	cfg.StorageBackend = config.StorageSQLite
	cfg.DatabasePath = filepath.Join(dir, "db", "council.db")
	s, err = Open(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	cfg.StorageBackend = "postgres"
	_, err = Open(cfg, nil)
	assert.Error(t, err)
}
