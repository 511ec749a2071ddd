package service

import (
	"chat-digest-go/internal/repository"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuotaGate_Allow(t *testing.T) {
	tests := []struct {
		name     string
		inWindow int
		outside  int
		want     bool
	}{
		{name: "no usage", want: true},
		{name: "one below cap", inWindow: 29, want: true},
		{name: "at cap", inWindow: 30, want: false},
		{name: "old records do not count", inWindow: 29, outside: 10, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usageRepo := repository.NewUsageRepository(newTestDB(t))
			addRecords(t, usageRepo, -100, tt.inWindow, baseTime.Add(-time.Hour))
			addRecords(t, usageRepo, -100, tt.outside, baseTime.Add(-25*time.Hour))
			// 其他会话的用量不影响本会话
			addRecords(t, usageRepo, -200, 40, baseTime.Add(-time.Hour))

			gate := NewQuotaGate(usageRepo, 30, 24*time.Hour, func() time.Time { return baseTime })
			allowed, err := gate.Allow(context.Background(), -100)
			require.NoError(t, err)
			assert.Equal(t, tt.want, allowed)
		})
	}
}

func TestQuotaGate_StoreError(t *testing.T) {
	usageRepo := &failingUsageRepo{UsageRepository: repository.NewUsageRepository(newTestDB(t)), failCount: true}
	gate := NewQuotaGate(usageRepo, 30, 24*time.Hour, nil)

	allowed, err := gate.Allow(context.Background(), -100)
	assert.Error(t, err)
	assert.False(t, allowed)
}
