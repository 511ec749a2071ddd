// Package telegram 封装了向 Telegram Bot API 发送回复的功能。
package telegram

import (
	"chat-digest-go/pkg/log"
	"context"
	"fmt"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Client 通过 Bot API 发送消息。
type Client struct {
	api *tgbotapi.BotAPI
}

// NewClient 使用 token 创建客户端，会调用一次 getMe 校验 token。
func NewClient(token string) (*Client, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot api: %w", err)
	}
	log.Infof("Telegram Bot 已授权: @%s", api.Self.UserName)
	return &Client{api: api}, nil
}

// NewClientWithEndpoint 指定 API 地址和 HTTP 客户端，endpoint 形如 "https://host/bot%s/%s"。
func NewClientWithEndpoint(token, endpoint string, httpClient *http.Client) (*Client, error) {
	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot api: %w", err)
	}
	return &Client{api: api}, nil
}

// Username 返回机器人自身的用户名（不含 @）。
func (c *Client) Username() string {
	return c.api.Self.UserName
}

// Reply 发送一条回复。markdown=true 时先按 Markdown 发送，Telegram 拒绝解析时退回纯文本重发。
func (c *Client) Reply(ctx context.Context, chatID int64, replyTo int, text string, markdown bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyTo
	if markdown {
		msg.ParseMode = tgbotapi.ModeMarkdown
		_, err := c.api.Send(msg)
		if err == nil {
			return nil
		}
		log.Warnf("[Telegram] Markdown 回复发送失败，改用纯文本, chatId: %d, error: %v", chatID, err)
		msg.ParseMode = ""
	}

	if _, err := c.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}
