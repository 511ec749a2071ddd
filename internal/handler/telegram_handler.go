// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"chat-digest-go/internal/service"
	"chat-digest-go/pkg/log"
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const replySendTimeout = 15 * time.Second

// 固定的回复文案
const (
	replyNothingNew  = "🔄 No new messages to summarize"
	replyGenFailed   = "❌ Failed to generate a summary"
	replyInProgress  = "⏳ A summary for this chat is already being generated"
	replyTechFailure = "⚠️ Technical error. Please try again later"
)

var summaryCommands = map[string]bool{
	"/summarize": true,
	"/summary":   true,
}

// MessageSender 向聊天发送回复。
type MessageSender interface {
	Reply(ctx context.Context, chatID int64, replyTo int, text string, markdown bool) error
}

// TelegramHandler 处理 Telegram webhook：普通消息落库，摘要命令异步执行并回复。
type TelegramHandler struct {
	summaryService service.SummaryService
	ingestService  service.IngestService
	sender         MessageSender
	botUsername    string
	dailyCap       int
	runTimeout     time.Duration

	wg       sync.WaitGroup
	dispatch func(func())
}

// NewTelegramHandler 创建一个新的 TelegramHandler 实例。
func NewTelegramHandler(
	summaryService service.SummaryService,
	ingestService service.IngestService,
	sender MessageSender,
	botUsername string,
	dailyCap int,
	runTimeout time.Duration,
) *TelegramHandler {
	h := &TelegramHandler{
		summaryService: summaryService,
		ingestService:  ingestService,
		sender:         sender,
		botUsername:    botUsername,
		dailyCap:       dailyCap,
		runTimeout:     runTimeout,
	}
	h.dispatch = func(f func()) {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			f()
		}()
	}
	return h
}

// Webhook 接收一条 Update。只要请求体能解析就返回 200，避免 Telegram 重复投递。
func (h *TelegramHandler) Webhook(c *gin.Context) {
	var update tgbotapi.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		log.Warnf("[TelegramHandler] 无法解析 webhook 请求体: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid update"})
		return
	}

	msg := update.Message
	if msg == nil || msg.Chat == nil {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	if IsSummaryCommand(msg.Text, h.botUsername) {
		log.Infof("[TelegramHandler] 收到摘要命令, chatId: %d, messageId: %d", msg.Chat.ID, msg.MessageID)
		h.dispatch(func() { h.summarize(msg) })
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	if _, err := h.ingestService.Ingest(c.Request.Context(), msg); err != nil {
		log.Errorf("[TelegramHandler] 消息入库失败, chatId: %d, messageId: %d, error: %v", msg.Chat.ID, msg.MessageID, err)
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Wait 等待所有进行中的摘要任务结束，用于优雅停机。
func (h *TelegramHandler) Wait() {
	h.wg.Wait()
}

func (h *TelegramHandler) summarize(msg *tgbotapi.Message) {
	var userID int64
	if msg.From != nil {
		userID = msg.From.ID
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.runTimeout)
	outcome := h.summaryService.RunSummarization(ctx, msg.Chat.ID, userID)
	cancel()

	text, markdown := FormatReply(outcome, h.dailyCap)
	replyCtx, cancel := context.WithTimeout(context.Background(), replySendTimeout)
	defer cancel()
	if err := h.sender.Reply(replyCtx, msg.Chat.ID, msg.MessageID, text, markdown); err != nil {
		log.Errorf("[TelegramHandler] 发送摘要回复失败, chatId: %d, outcome: %s, error: %v", msg.Chat.ID, outcome.Kind, err)
	}
}

// IsSummaryCommand 判断文本是否为摘要命令。
// 支持 "/summarize"、"/summary"、"/summarize@botname" 以及开头带 "@botname " 的形式。
func IsSummaryCommand(text, botUsername string) bool {
	text = strings.TrimSpace(text)
	if botUsername != "" {
		mention := "@" + botUsername
		if len(text) > len(mention) && strings.EqualFold(text[:len(mention)], mention) && text[len(mention)] == ' ' {
			text = strings.TrimSpace(text[len(mention):])
		}
	}

	fields := strings.Fields(text)
	if len(fields) != 1 {
		return false
	}
	cmd := fields[0]
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		// 发给其他机器人的命令
		if botUsername != "" && !strings.EqualFold(cmd[i+1:], botUsername) {
			return false
		}
		cmd = cmd[:i]
	}
	return summaryCommands[cmd]
}

// FormatReply 把摘要结果渲染为唯一一条回复，第二个返回值表示是否按 Markdown 发送。
// CommitFailed 仍展示摘要，这批消息下次会被再次摘要。
func FormatReply(outcome service.SummaryOutcome, dailyCap int) (string, bool) {
	switch outcome.Kind {
	case service.OutcomeSuccess, service.OutcomeCommitFailed:
		return fmt.Sprintf("📝 Summary (%d new messages):\n\n```\n%s\n```", outcome.MessageCount, outcome.SummaryText), true
	case service.OutcomeQuotaExceeded:
		return fmt.Sprintf("⚠️ Summary limit reached (%d/day)", dailyCap), false
	case service.OutcomeNothingNew:
		return replyNothingNew, false
	case service.OutcomeSummarizationFailed:
		return replyGenFailed, false
	case service.OutcomeInProgress:
		return replyInProgress, false
	default:
		return replyTechFailure, false
	}
}
