package repository

import (
	"chat-digest-go/pkg/log"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrLockNotHeld 表示释放锁时发现锁已过期或已被其他持有者获取。
var ErrLockNotHeld = errors.New("chat lock not held")

// ChatLocker 保证同一会话同一时刻最多只有一个摘要流程在执行。
// TryLock 不排队：锁被占用时立即返回 acquired=false。
type ChatLocker interface {
	TryLock(ctx context.Context, chatID int64) (unlock func(), acquired bool, err error)
}

// 只有 token 匹配时才删除，避免误删在 TTL 过期后被别人拿到的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisChatLocker struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewRedisChatLocker 创建基于 Redis 的分布式会话锁，多实例部署时同样生效。
func NewRedisChatLocker(redisClient *redis.Client, ttl time.Duration) ChatLocker {
	return &redisChatLocker{redisClient: redisClient, ttl: ttl}
}

func (l *redisChatLocker) lockKey(chatID int64) string {
	return fmt.Sprintf("summary:lock:%d", chatID)
}

// TryLock 使用 SET NX PX 抢占锁，token 用于安全释放。
func (l *redisChatLocker) TryLock(ctx context.Context, chatID int64) (func(), bool, error) {
	key := l.lockKey(chatID)
	token := uuid.NewString()
	ok, err := l.redisClient.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire chat lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	unlock := func() {
		// 使用独立上下文：即使请求已被取消也要释放锁
		releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := l.release(releaseCtx, key, token); err != nil {
			log.Warnw("释放会话锁失败", "chatId", chatID, "error", err)
		}
	}
	return unlock, true, nil
}

func (l *redisChatLocker) release(ctx context.Context, key, token string) error {
	deleted, err := releaseScript.Run(ctx, l.redisClient, []string{key}, token).Int64()
	if err != nil {
		return fmt.Errorf("failed to release chat lock: %w", err)
	}
	if deleted == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// LocalChatLocker 是进程内的会话锁，用于未配置 Redis 的单实例部署和测试。
type LocalChatLocker struct {
	mu   sync.Mutex
	held map[int64]struct{}
}

// NewLocalChatLocker 创建一个新的进程内会话锁。
func NewLocalChatLocker() *LocalChatLocker {
	return &LocalChatLocker{held: make(map[int64]struct{})}
}

func (l *LocalChatLocker) TryLock(_ context.Context, chatID int64) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[chatID]; busy {
		return nil, false, nil
	}
	l.held[chatID] = struct{}{}
	var once sync.Once
	unlock := func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, chatID)
			l.mu.Unlock()
		})
	}
	return unlock, true, nil
}
