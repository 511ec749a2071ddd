// Package model 包含了应用的数据模型定义。
package model

import (
	"time"

	"gorm.io/datatypes"
)

// Message 是一条入站聊天消息，写入后不再修改或删除。
type Message struct {
	ID     uint  `gorm:"primaryKey;autoIncrement" json:"id"`
	ChatID int64 `gorm:"not null;index:idx_chat_messages_chat_sent,priority:1" json:"chatId"`
	UserID int64 `gorm:"not null" json:"userId"`
	// Username 保存的是展示名：优先 username，否则为 "名 姓"
	Username string `gorm:"type:varchar(255);not null;default:''" json:"username"`
	Text     string `gorm:"type:text;not null" json:"text"`
	// Raw 原样保存平台下发的消息 JSON，便于后续扩展字段
	Raw datatypes.JSON `json:"raw"`
	// SentAt 是服务端收到并入库的时刻，摘要游标与它比较
	SentAt time.Time `gorm:"not null;index:idx_chat_messages_chat_sent,priority:2" json:"sentAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Message) TableName() string {
	return "chat_messages"
}
