// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import (
	"encoding/json"
	"strconv"
)

// InboundMessageTask 是一条待落库的入站聊天消息。
type InboundMessageTask struct {
	ChatID   int64           `json:"chat_id"`
	UserID   int64           `json:"user_id"`
	Username string          `json:"username"`
	Text     string          `json:"text"`
	SentAt   int64           `json:"sent_at"` // 平台发送时间，unix 秒
	Raw      json.RawMessage `json:"raw"`
}

// PartitionKey 以会话 ID 作为分区键，保证同一会话内消息的顺序。
func (t InboundMessageTask) PartitionKey() []byte {
	return []byte(strconv.FormatInt(t.ChatID, 10))
}
