package service

import (
	"chat-digest-go/pkg/metrics"
	"chat-digest-go/pkg/tasks"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// MessageSink 接收待落库的消息：直接写库，或投递到 Kafka。
type MessageSink interface {
	Publish(ctx context.Context, task tasks.InboundMessageTask) error
}

// IngestService 把平台消息转换为入站任务并交给 MessageSink。
type IngestService interface {
	// Ingest 返回 stored=false 表示消息没有文本，被有意跳过。
	Ingest(ctx context.Context, msg *tgbotapi.Message) (stored bool, err error)
}

type ingestService struct {
	sink MessageSink
}

// NewIngestService 创建一个新的 IngestService。
func NewIngestService(sink MessageSink) IngestService {
	return &ingestService{sink: sink}
}

func (s *ingestService) Ingest(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	task, ok, err := BuildInboundTask(msg)
	if err != nil {
		metrics.IngestedMessages.WithLabelValues("failed").Inc()
		return false, err
	}
	if !ok {
		metrics.IngestedMessages.WithLabelValues("skipped").Inc()
		return false, nil
	}
	if err := s.sink.Publish(ctx, task); err != nil {
		metrics.IngestedMessages.WithLabelValues("failed").Inc()
		return false, fmt.Errorf("failed to publish inbound message: %w", err)
	}
	return true, nil
}

// BuildInboundTask 提取会话、作者、正文和原始 JSON。没有文本也没有说明文字的消息返回 ok=false。
func BuildInboundTask(msg *tgbotapi.Message) (tasks.InboundMessageTask, bool, error) {
	if msg == nil || msg.Chat == nil {
		return tasks.InboundMessageTask{}, false, nil
	}
	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	if strings.TrimSpace(text) == "" {
		return tasks.InboundMessageTask{}, false, nil
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return tasks.InboundMessageTask{}, false, fmt.Errorf("failed to marshal raw message: %w", err)
	}

	task := tasks.InboundMessageTask{
		ChatID: msg.Chat.ID,
		Text:   text,
		SentAt: int64(msg.Date),
		Raw:    raw,
	}
	if msg.From != nil {
		task.UserID = msg.From.ID
		task.Username = DisplayName(msg.From)
	} else {
		// 以频道或匿名管理员身份发送的消息没有 From
		task.Username = msg.Chat.Title
	}
	return task, true, nil
}

// DisplayName 优先使用 username，否则拼接名和姓。
func DisplayName(user *tgbotapi.User) string {
	if user == nil {
		return ""
	}
	if user.UserName != "" {
		return user.UserName
	}
	return strings.TrimSpace(strings.TrimSpace(user.FirstName) + " " + strings.TrimSpace(user.LastName))
}
