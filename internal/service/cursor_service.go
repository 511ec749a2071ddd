package service

import (
	"chat-digest-go/internal/model"
	"chat-digest-go/internal/repository"
	"context"
	"time"
)

// CursorResolver 计算“未读”消息的起点。
type CursorResolver interface {
	ResolveCursor(ctx context.Context, chatID int64) (time.Time, error)
}

type cursorResolver struct {
	usageRepo repository.UsageRepository
}

// NewCursorResolver 创建一个新的 CursorResolver。
func NewCursorResolver(usageRepo repository.UsageRepository) CursorResolver {
	return &cursorResolver{usageRepo: usageRepo}
}

// ResolveCursor 返回最近一次成功摘要的时间；从未摘要过时返回 model.Epoch。
func (r *cursorResolver) ResolveCursor(ctx context.Context, chatID int64) (time.Time, error) {
	latest, found, err := r.usageRepo.LatestCompletion(ctx, chatID)
	if err != nil {
		return time.Time{}, err
	}
	if !found {
		return model.Epoch, nil
	}
	return latest, nil
}
