package database

import (
	"chat-digest-go/internal/config"
	"chat-digest-go/pkg/log"
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

var RDB *redis.Client

// InitRedis 初始化 Redis 客户端连接。未配置地址时返回 false，调用方退回进程内锁。
func InitRedis(cfg config.RedisConfig) bool {
	if cfg.Addr == "" {
		log.Warnf("未配置 Redis 地址，摘要互斥只在单进程内生效")
		return false
	}
	RDB = redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := RDB.Ping(ctx).Err(); err != nil {
		log.Fatal("failed to connect to redis", err)
	}

	log.Info("Redis client connected successfully")
	return true
}
