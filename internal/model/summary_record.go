package model

import "time"

// SummaryRecord 记录一次成功完成的摘要。
// 它同时是游标（最近一次摘要时间）和配额统计的数据来源。
type SummaryRecord struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ChatID       int64     `gorm:"not null;index:idx_summary_records_chat_time,priority:1" json:"chatId"`
	UserID       int64     `gorm:"not null" json:"userId"`
	SummarizedAt time.Time `gorm:"not null;index:idx_summary_records_chat_time,priority:2" json:"summarizedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (SummaryRecord) TableName() string {
	return "summary_records"
}
