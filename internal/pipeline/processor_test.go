package pipeline

import (
	"chat-digest-go/internal/config"
	"chat-digest-go/internal/repository"
	"chat-digest-go/pkg/database"
	"chat-digest-go/pkg/tasks"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) repository.MessageRepository {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "pipeline.db")},
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return repository.NewMessageRepository(db)
}

func TestProcess_StoresMessage(t *testing.T) {
	repo := newTestRepo(t)
	receivedAt := time.Date(2024, 5, 1, 12, 0, 5, 250_000_000, time.UTC)
	p := NewProcessor(repo, time.Second, func() time.Time { return receivedAt })

	err := p.Publish(context.Background(), tasks.InboundMessageTask{
		ChatID:   -100,
		UserID:   7,
		Username: "alice",
		Text:     "hello",
		SentAt:   1700000000,
		Raw:      []byte(`{"message_id":1}`),
	})
	require.NoError(t, err)

	msgs, err := repo.LoadMessagesSince(context.Background(), -100, time.Unix(0, 0))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "alice", msgs[0].Username)
	assert.Equal(t, "hello", msgs[0].Text)
	// 使用入库时刻，而不是平台给出的发送时间
	assert.True(t, msgs[0].SentAt.Equal(receivedAt), "got %v", msgs[0].SentAt)
	assert.JSONEq(t, `{"message_id":1}`, string(msgs[0].Raw))
}

func TestProcess_InvalidTask(t *testing.T) {
	p := NewProcessor(newTestRepo(t), time.Second, nil)

	tests := []struct {
		name string
		task tasks.InboundMessageTask
	}{
		{name: "missing chat", task: tasks.InboundMessageTask{Text: "x", SentAt: 1}},
		{name: "blank text", task: tasks.InboundMessageTask{ChatID: 1, Text: "  ", SentAt: 1}},
		{name: "missing time", task: tasks.InboundMessageTask{ChatID: 1, Text: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, p.Process(context.Background(), tt.task), ErrInvalidTask)
		})
	}
}
