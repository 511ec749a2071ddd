// Package pipeline 定义了入站消息落库的处理流程。
package pipeline

import (
	"chat-digest-go/internal/model"
	"chat-digest-go/internal/repository"
	"chat-digest-go/pkg/log"
	"chat-digest-go/pkg/metrics"
	"chat-digest-go/pkg/tasks"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// ErrInvalidTask 表示任务本身不合法，重试也不会成功。
var ErrInvalidTask = errors.New("invalid inbound message task")

// Processor 把入站消息任务写入消息存储。
// Kafka 消费者和直写模式共用同一个 Processor。
type Processor struct {
	messageRepo  repository.MessageRepository
	storeTimeout time.Duration
	now          func() time.Time
}

// NewProcessor 创建一个新的 Processor 实例。now 为 nil 时使用 time.Now。
func NewProcessor(messageRepo repository.MessageRepository, storeTimeout time.Duration, now func() time.Time) *Processor {
	if now == nil {
		now = time.Now
	}
	return &Processor{
		messageRepo:  messageRepo,
		storeTimeout: storeTimeout,
		now:          now,
	}
}

// Process 校验任务并写入一条消息。
// 消息时间取入库时刻而不是平台发送时间：摘要游标是服务端时钟上的快照时刻，
// 排队晚到的消息必须落在游标之后，才会进入下一次摘要。平台时间保留在 Raw 中。
func (p *Processor) Process(ctx context.Context, task tasks.InboundMessageTask) error {
	if task.ChatID == 0 || strings.TrimSpace(task.Text) == "" || task.SentAt <= 0 {
		return fmt.Errorf("%w: chat=%d sent_at=%d", ErrInvalidTask, task.ChatID, task.SentAt)
	}

	msg := &model.Message{
		ChatID:   task.ChatID,
		UserID:   task.UserID,
		Username: task.Username,
		Text:     task.Text,
		Raw:      datatypes.JSON(task.Raw),
		SentAt:   p.now(),
	}

	if p.storeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.storeTimeout)
		defer cancel()
	}
	if err := p.messageRepo.AppendMessage(ctx, msg); err != nil {
		log.Errorf("[Processor] 消息落库失败, chatId: %d, error: %v", task.ChatID, err)
		return err
	}
	metrics.IngestedMessages.WithLabelValues("stored").Inc()
	return nil
}

// Publish 让 Processor 满足 service.MessageSink，用于不经过 Kafka 的直写模式。
func (p *Processor) Publish(ctx context.Context, task tasks.InboundMessageTask) error {
	return p.Process(ctx, task)
}
