// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"chat-digest-go/internal/config"
	"chat-digest-go/internal/pipeline"
	"chat-digest-go/pkg/log"
	"chat-digest-go/pkg/tasks"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

// maxAttempts 是一条消息进入死信归档前允许的最大处理次数。
const maxAttempts = 3

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.InboundMessageTask) error
}

// DeadLetterArchive 保存多次处理失败的原始消息。
type DeadLetterArchive interface {
	Archive(ctx context.Context, key string, payload []byte) error
}

// Producer 把入站消息写入 Kafka，按会话 ID 哈希分区。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	log.Info("Kafka 生产者初始化成功")
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(splitBrokers(cfg.Brokers)...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			// 默认 1s 的攒批等待会直接拖慢 webhook 应答
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Publish 发送一条入站消息任务。
func (p *Producer) Publish(ctx context.Context, task tasks.InboundMessageTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   task.PartitionKey(),
		Value: taskBytes,
	})
}

// Close 刷新并关闭底层 writer。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Consumer 消费入站消息并写库，失败次数记录在 Redis 中以便跨重启累计。
type Consumer struct {
	reader      *kafka.Reader
	processor   TaskProcessor
	deadLetters DeadLetterArchive
	attempts    *redis.Client
	backoff     time.Duration
}

// NewConsumer 创建一个消费者。attempts 为 nil 时失败计数只在本次循环内有效。
func NewConsumer(cfg config.KafkaConfig, processor TaskProcessor, deadLetters DeadLetterArchive, attempts *redis.Client) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  splitBrokers(cfg.Brokers),
			Topic:    cfg.Topic,
			GroupID:  cfg.GroupID,
			MinBytes: 1,
			MaxBytes: 10e6, // 10MB
		}),
		processor:   processor,
		deadLetters: deadLetters,
		attempts:    attempts,
		backoff:     time.Second,
	}
}

// Run 循环消费直到 ctx 被取消。
func (c *Consumer) Run(ctx context.Context) {
	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", c.reader.Config().Topic)
	defer func() {
		if err := c.reader.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				log.Info("Kafka 消费者已停止")
				return
			}
			log.Error("从 Kafka 读取消息失败", err)
			return
		}

		c.handle(ctx, m)

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}
}

// handle 处理单条消息：成功、或重试耗尽后归档到死信，两种情况都会提交 offset。
// 同一分区内后续消息会等待当前消息处理完毕，以保持会话内顺序。
func (c *Consumer) handle(ctx context.Context, m kafka.Message) {
	var task tasks.InboundMessageTask
	if err := json.Unmarshal(m.Value, &task); err != nil {
		log.Errorf("无法解析 Kafka 消息: %v, offset: %d", err, m.Offset)
		c.archive(ctx, m, "undecodable")
		return
	}

	attemptsKey := fmt.Sprintf("kafka:attempts:%s:%d:%d", m.Topic, m.Partition, m.Offset)
	for local := 1; ; local++ {
		err := c.processor.Process(ctx, task)
		if err == nil {
			if c.attempts != nil {
				_ = c.attempts.Del(ctx, attemptsKey).Err()
			}
			return
		}
		log.Errorf("处理入站消息失败: chatId=%d, offset=%d, error: %v", task.ChatID, m.Offset, err)
		if errors.Is(err, pipeline.ErrInvalidTask) {
			c.archive(ctx, m, "invalid")
			return
		}

		attempts := int64(local)
		if c.attempts != nil {
			if n, incErr := c.attempts.Incr(ctx, attemptsKey).Result(); incErr == nil {
				_ = c.attempts.Expire(ctx, attemptsKey, 24*time.Hour).Err()
				attempts = n
			}
		}
		if attempts >= maxAttempts {
			log.Errorf("入站消息多次失败(>=%d)，归档后提交 offset: chatId=%d, offset=%d", maxAttempts, task.ChatID, m.Offset)
			c.archive(ctx, m, "failed")
			if c.attempts != nil {
				_ = c.attempts.Del(ctx, attemptsKey).Err()
			}
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.backoff * time.Duration(attempts)):
		}
	}
}

func (c *Consumer) archive(ctx context.Context, m kafka.Message, reason string) {
	if c.deadLetters == nil {
		log.Warnf("未配置死信归档，丢弃消息: offset=%d", m.Offset)
		return
	}
	key := fmt.Sprintf("%s/%s-%d-%d", reason, m.Topic, m.Partition, m.Offset)
	if err := c.deadLetters.Archive(ctx, key, m.Value); err != nil {
		log.Errorf("死信归档失败: key=%s, error: %v", key, err)
	}
}

func splitBrokers(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
