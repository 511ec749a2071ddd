package service

import (
	"chat-digest-go/internal/model"
	"chat-digest-go/internal/repository"
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNothingToSummarize 表示游标之后没有新消息。这是正常结果，不是故障。
var ErrNothingToSummarize = errors.New("nothing to summarize")

// Digest 是发送给模型的未读消息文本。
type Digest struct {
	Text string
	// MessageCount 是截断前加载到的消息条数
	MessageCount int
}

// DigestAssembler 加载游标之后的消息并渲染为有长度上限的文本。
type DigestAssembler interface {
	AssembleDigest(ctx context.Context, chatID int64, since time.Time) (Digest, error)
}

type digestAssembler struct {
	messageRepo repository.MessageRepository
	maxChars    int
}

// NewDigestAssembler 创建一个新的 DigestAssembler，maxChars 以字符（rune）计。
func NewDigestAssembler(messageRepo repository.MessageRepository, maxChars int) DigestAssembler {
	return &digestAssembler{messageRepo: messageRepo, maxChars: maxChars}
}

func (a *digestAssembler) AssembleDigest(ctx context.Context, chatID int64, since time.Time) (Digest, error) {
	messages, err := a.messageRepo.LoadMessagesSince(ctx, chatID, since)
	if err != nil {
		return Digest{}, err
	}
	if len(messages) == 0 {
		return Digest{}, ErrNothingToSummarize
	}
	return Digest{
		Text:         truncateRunes(renderMessages(messages), a.maxChars),
		MessageCount: len(messages),
	}, nil
}

// renderMessages 按 "<展示名>: <正文>" 逐行渲染，保持时间升序。
func renderMessages(messages []model.Message) string {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(m.Username)
		b.WriteString(": ")
		b.WriteString(m.Text)
	}
	return b.String()
}

// truncateRunes 保留前 maxChars 个字符，总是丢弃尾部（最新的）内容。
func truncateRunes(s string, maxChars int) string {
	if maxChars <= 0 || len(s) <= maxChars {
		return s
	}
	count := 0
	for i := range s {
		if count == maxChars {
			return s[:i]
		}
		count++
	}
	return s
}
