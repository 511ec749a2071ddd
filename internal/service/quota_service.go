// Package service 包含了应用的业务逻辑层。
package service

import (
	"chat-digest-go/internal/repository"
	"context"
	"time"
)

// Clock 返回当前时间，测试中可替换为固定时钟。
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}

// QuotaGate 判断一个会话当前是否还能发起摘要。
type QuotaGate interface {
	Allow(ctx context.Context, chatID int64) (bool, error)
}

type quotaGate struct {
	usageRepo repository.UsageRepository
	dailyCap  int
	window    time.Duration
	clock     Clock
}

// NewQuotaGate 创建配额闸门。窗口以调用时刻为终点向前滚动，不预占名额。
func NewQuotaGate(usageRepo repository.UsageRepository, dailyCap int, window time.Duration, clock Clock) QuotaGate {
	return &quotaGate{
		usageRepo: usageRepo,
		dailyCap:  dailyCap,
		window:    window,
		clock:     clock,
	}
}

// Allow 当窗口内的摘要次数严格小于上限时放行。查询失败时返回错误，由调用方决定拒绝。
func (g *quotaGate) Allow(ctx context.Context, chatID int64) (bool, error) {
	since := g.clock.now().Add(-g.window)
	used, err := g.usageRepo.CountSince(ctx, chatID, since)
	if err != nil {
		return false, err
	}
	return used < int64(g.dailyCap), nil
}
