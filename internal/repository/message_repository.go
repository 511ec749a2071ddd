// Package repository 提供了数据访问层的实现。
package repository

import (
	"chat-digest-go/internal/model"
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// MessageRepository 是只追加的聊天消息存储。
type MessageRepository interface {
	AppendMessage(ctx context.Context, msg *model.Message) error
	// LoadMessagesSince 返回 sent_at 严格大于 since 的消息，按时间升序排列。
	LoadMessagesSince(ctx context.Context, chatID int64, since time.Time) ([]model.Message, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository 创建一个新的 MessageRepository 实例。
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

// AppendMessage 写入一条消息，时间统一规范为 UTC 秒级。
func (r *messageRepository) AppendMessage(ctx context.Context, msg *model.Message) error {
	msg.SentAt = model.Instant(msg.SentAt)
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// LoadMessagesSince 加载游标之后的全部消息。同一秒内的消息按写入顺序（id）排列。
func (r *messageRepository) LoadMessagesSince(ctx context.Context, chatID int64, since time.Time) ([]model.Message, error) {
	var messages []model.Message
	err := r.db.WithContext(ctx).
		Where("chat_id = ? AND sent_at > ?", chatID, since.UTC()).
		Order("sent_at asc").
		Order("id asc").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load messages since %s: %w", since.Format(time.RFC3339), err)
	}
	return messages, nil
}
