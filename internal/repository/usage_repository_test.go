package repository

import (
	"chat-digest-go/internal/model"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsageRepository_LatestCompletion(t *testing.T) {
	ctx := context.Background()
	repo := NewUsageRepository(newTestDB(t))

	_, found, err := repo.LatestCompletion(ctx, 1)
	require.NoError(t, err)
	assert.False(t, found)

	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for _, ts := range []time.Time{t0, t0.Add(2 * time.Hour), t0.Add(time.Hour)} {
		require.NoError(t, repo.AppendSummaryRecord(ctx, &model.SummaryRecord{ChatID: 1, UserID: 7, SummarizedAt: ts}))
	}
	require.NoError(t, repo.AppendSummaryRecord(ctx, &model.SummaryRecord{ChatID: 2, UserID: 7, SummarizedAt: t0.Add(5 * time.Hour)}))

	latest, found, err := repo.LatestCompletion(ctx, 1)
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, latest.Equal(t0.Add(2*time.Hour)), "got %s", latest)
}

func TestUsageRepository_CountSince(t *testing.T) {
	ctx := context.Background()
	repo := NewUsageRepository(newTestDB(t))
	now := time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)

	for _, age := range []time.Duration{time.Hour, 5 * time.Hour, 23 * time.Hour, 25 * time.Hour, 48 * time.Hour} {
		require.NoError(t, repo.AppendSummaryRecord(ctx, &model.SummaryRecord{ChatID: 1, UserID: 1, SummarizedAt: now.Add(-age)}))
	}
	require.NoError(t, repo.AppendSummaryRecord(ctx, &model.SummaryRecord{ChatID: 9, UserID: 1, SummarizedAt: now}))

	count, err := repo.CountSince(ctx, 1, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	count, err = repo.CountSince(ctx, 3, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, count)
}
