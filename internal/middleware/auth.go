// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"chat-digest-go/pkg/log"
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// TelegramSecretHeader 是 Telegram 在 setWebhook 指定 secret_token 后附带的请求头。
const TelegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookSecret 创建一个 Gin 中间件，校验 webhook 请求携带的 secret。
// secret 为空时不做校验。
func WebhookSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}

		got := c.GetHeader(TelegramSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			log.Warnw("webhook secret 校验失败", "clientIP", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook secret"})
			return
		}
		c.Next()
	}
}
