package service

import (
	"chat-digest-go/internal/config"
	"chat-digest-go/internal/model"
	"chat-digest-go/internal/repository"
	"chat-digest-go/pkg/database"
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "service.db")},
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// testClock 是一个可手动推进的时钟。
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func addMessage(t *testing.T, repo repository.MessageRepository, chatID int64, name, text string, at time.Time) {
	t.Helper()
	require.NoError(t, repo.AppendMessage(context.Background(), &model.Message{
		ChatID:   chatID,
		UserID:   1,
		Username: name,
		Text:     text,
		SentAt:   at,
	}))
}

func addRecords(t *testing.T, repo repository.UsageRepository, chatID int64, n int, at time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, repo.AppendSummaryRecord(context.Background(), &model.SummaryRecord{
			ChatID:       chatID,
			UserID:       1,
			SummarizedAt: at,
		}))
	}
}
