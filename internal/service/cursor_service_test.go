package service

import (
	"chat-digest-go/internal/model"
	"chat-digest-go/internal/repository"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveCursor_NoRecords(t *testing.T) {
	resolver := NewCursorResolver(repository.NewUsageRepository(newTestDB(t)))

	since, err := resolver.ResolveCursor(context.Background(), -100)
	require.NoError(t, err)
	assert.True(t, since.Equal(model.Epoch))
}

func TestResolveCursor_Latest(t *testing.T) {
	usageRepo := repository.NewUsageRepository(newTestDB(t))
	addRecords(t, usageRepo, -100, 1, baseTime.Add(-2*time.Hour))
	addRecords(t, usageRepo, -100, 1, baseTime)
	addRecords(t, usageRepo, -100, 1, baseTime.Add(-time.Hour))
	addRecords(t, usageRepo, -200, 1, baseTime.Add(time.Hour))

	since, err := NewCursorResolver(usageRepo).ResolveCursor(context.Background(), -100)
	require.NoError(t, err)
	assert.True(t, since.Equal(baseTime), "got %v", since)
}

func TestResolveCursor_StoreError(t *testing.T) {
	usageRepo := &failingUsageRepo{UsageRepository: repository.NewUsageRepository(newTestDB(t)), failLatest: true}
	_, err := NewCursorResolver(usageRepo).ResolveCursor(context.Background(), -100)
	assert.Error(t, err)
}
