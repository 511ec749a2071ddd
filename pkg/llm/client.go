// Package llm provides a client for interacting with Large Language Models.
package llm

import (
	"chat-digest-go/internal/config"
	"chat-digest-go/pkg/log"
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ErrEmptyCompletion 表示模型返回了空内容。
var ErrEmptyCompletion = errors.New("llm returned an empty completion")

// Client defines the interface for an LLM client.
type Client interface {
	// Summarize 发送一次完整的请求并返回摘要文本，不使用流式输出。
	Summarize(ctx context.Context, text string) (string, error)
}

type openAICompatibleClient struct {
	cfg    config.LLMConfig
	client *openai.Client
}

// NewClient 创建一个兼容 OpenAI chat/completions 接口的客户端，BaseURL 可指向任意兼容服务。
func NewClient(cfg config.LLMConfig) Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &openAICompatibleClient{
		cfg:    cfg,
		client: openai.NewClientWithConfig(clientCfg),
	}
}

// GenerationParams 控制生成行为
type GenerationParams struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// generationParams 从配置读取非零值。
func (c *openAICompatibleClient) generationParams() GenerationParams {
	var gp GenerationParams
	if c.cfg.Generation.Temperature != 0 {
		t := c.cfg.Generation.Temperature
		gp.Temperature = &t
	}
	if c.cfg.Generation.TopP != 0 {
		p := c.cfg.Generation.TopP
		gp.TopP = &p
	}
	if c.cfg.Generation.MaxTokens != 0 {
		m := c.cfg.Generation.MaxTokens
		gp.MaxTokens = &m
	}
	return gp
}

func (c *openAICompatibleClient) buildRequest(text string) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: c.cfg.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "Chat messages:\n" + text},
		},
	}
	gp := c.generationParams()
	if gp.Temperature != nil {
		req.Temperature = float32(*gp.Temperature)
	}
	if gp.TopP != nil {
		req.TopP = float32(*gp.TopP)
	}
	if gp.MaxTokens != nil {
		req.MaxTokens = *gp.MaxTokens
	}
	return req
}

// Summarize 调用 chat/completions 接口生成摘要。
func (c *openAICompatibleClient) Summarize(ctx context.Context, text string) (string, error) {
	log.Infof("[LLMClient] 开始调用 chat/completions, model: %s, input_len: %d", c.cfg.Model, len(text))
	resp, err := c.client.CreateChatCompletion(ctx, c.buildRequest(text))
	if err != nil {
		return "", fmt.Errorf("failed to call chat api: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	summary := strings.TrimSpace(resp.Choices[0].Message.Content)
	if summary == "" {
		return "", ErrEmptyCompletion
	}
	return summary, nil
}
