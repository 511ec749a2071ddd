package repository

import (
	"chat-digest-go/internal/model"
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// UsageRepository 是只追加的摘要记录账本。
// 游标和用量都是每次调用时从账本实时计算的，不做任何缓存。
type UsageRepository interface {
	AppendSummaryRecord(ctx context.Context, record *model.SummaryRecord) error
	// LatestCompletion 返回该会话最近一次摘要完成时间；没有记录时 found 为 false。
	LatestCompletion(ctx context.Context, chatID int64) (latest time.Time, found bool, err error)
	// CountSince 统计 summarized_at 晚于 since 的摘要次数。
	CountSince(ctx context.Context, chatID int64, since time.Time) (int64, error)
}

type usageRepository struct {
	db *gorm.DB
}

// NewUsageRepository 创建一个新的 UsageRepository 实例。
func NewUsageRepository(db *gorm.DB) UsageRepository {
	return &usageRepository{db: db}
}

func (r *usageRepository) AppendSummaryRecord(ctx context.Context, record *model.SummaryRecord) error {
	record.SummarizedAt = model.Instant(record.SummarizedAt)
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to append summary record: %w", err)
	}
	return nil
}

// LatestCompletion 使用按时间倒序、限制一行的范围查询，而不是 MAX 聚合，
// 这样两种方言都能直接扫描为 time.Time。
func (r *usageRepository) LatestCompletion(ctx context.Context, chatID int64) (time.Time, bool, error) {
	var record model.SummaryRecord
	res := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("summarized_at desc").
		Limit(1).
		Find(&record)
	if res.Error != nil {
		return time.Time{}, false, fmt.Errorf("failed to load latest summary record: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return time.Time{}, false, nil
	}
	return record.SummarizedAt.UTC(), true, nil
}

func (r *usageRepository) CountSince(ctx context.Context, chatID int64, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.SummaryRecord{}).
		Where("chat_id = ? AND summarized_at > ?", chatID, since.UTC()).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count summary records: %w", err)
	}
	return count, nil
}
