package service

import (
	"chat-digest-go/internal/model"
	"chat-digest-go/internal/repository"
	"chat-digest-go/pkg/llm"
	"chat-digest-go/pkg/log"
	"chat-digest-go/pkg/metrics"
	"context"
	"errors"
	"fmt"
	"time"
)

// OutcomeKind 标识一次摘要流程的终态。
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeQuotaExceeded
	OutcomeNothingNew
	OutcomeSummarizationFailed
	OutcomeCommitFailed
	OutcomeStoreUnavailable
	OutcomeInProgress
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeQuotaExceeded:
		return "quota_exceeded"
	case OutcomeNothingNew:
		return "nothing_new"
	case OutcomeSummarizationFailed:
		return "summarization_failed"
	case OutcomeCommitFailed:
		return "commit_failed"
	case OutcomeStoreUnavailable:
		return "store_unavailable"
	case OutcomeInProgress:
		return "in_progress"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// SummaryOutcome 携带调用方生成唯一一条回复所需的全部信息。
// SummaryText 与 MessageCount 仅在 Success 和 CommitFailed 时有值；Err 只用于日志。
type SummaryOutcome struct {
	Kind         OutcomeKind
	SummaryText  string
	MessageCount int
	Err          error
}

// SummaryService 是摘要流程的唯一入口，自身不向聊天平台做任何 I/O。
type SummaryService interface {
	RunSummarization(ctx context.Context, chatID, userID int64) SummaryOutcome
}

// SummaryOptions 配置各步骤的超时。
type SummaryOptions struct {
	StoreTimeout time.Duration
	LLMTimeout   time.Duration
	Clock        Clock
}

type summaryService struct {
	locker     repository.ChatLocker
	quota      QuotaGate
	cursor     CursorResolver
	digest     DigestAssembler
	summarizer llm.Client
	usageRepo  repository.UsageRepository
	opts       SummaryOptions
}

// NewSummaryService 创建摘要编排服务。
func NewSummaryService(
	locker repository.ChatLocker,
	quota QuotaGate,
	cursor CursorResolver,
	digest DigestAssembler,
	summarizer llm.Client,
	usageRepo repository.UsageRepository,
	opts SummaryOptions,
) SummaryService {
	return &summaryService{
		locker:     locker,
		quota:      quota,
		cursor:     cursor,
		digest:     digest,
		summarizer: summarizer,
		usageRepo:  usageRepo,
		opts:       opts,
	}
}

// withTimeout 为单个外部调用派生带超时的上下文；d<=0 时不额外限制。
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// RunSummarization 依次执行：会话加锁 → 配额检查 → 解析游标 → 组装摘要文本 → 调用模型 → 写入摘要记录。
// 只有模型返回非空结果后才写记录，失败时游标不前移，下次会重新摘要同一批消息。
// 记录的时间是加载消息前的快照时刻，而不是写入时刻。
func (s *summaryService) RunSummarization(ctx context.Context, chatID, userID int64) SummaryOutcome {
	outcome := s.run(ctx, chatID, userID)
	metrics.SummaryOutcomes.WithLabelValues(outcome.Kind.String()).Inc()

	switch outcome.Kind {
	case OutcomeSuccess:
		log.Infow("摘要完成", "chatId", chatID, "userId", userID, "messageCount", outcome.MessageCount)
	case OutcomeCommitFailed:
		// 摘要已生成但游标未前移，这批消息下次会被重复摘要
		log.Errorw("摘要已生成但写入摘要记录失败", "chatId", chatID, "userId", userID, "messageCount", outcome.MessageCount, "error", outcome.Err)
	case OutcomeStoreUnavailable:
		log.Errorw("摘要流程存储不可用", "chatId", chatID, "userId", userID, "error", outcome.Err)
	case OutcomeSummarizationFailed:
		log.Warnw("模型摘要失败", "chatId", chatID, "userId", userID, "error", outcome.Err)
	default:
		log.Infow("摘要请求结束", "chatId", chatID, "userId", userID, "outcome", outcome.Kind.String())
	}
	return outcome
}

func (s *summaryService) run(ctx context.Context, chatID, userID int64) SummaryOutcome {
	// 0. 同一会话串行执行
	lockCtx, cancel := withTimeout(ctx, s.opts.StoreTimeout)
	unlock, acquired, err := s.locker.TryLock(lockCtx, chatID)
	cancel()
	if err != nil {
		return SummaryOutcome{Kind: OutcomeStoreUnavailable, Err: err}
	}
	if !acquired {
		return SummaryOutcome{Kind: OutcomeInProgress}
	}
	defer unlock()

	// 1. 配额检查；查询失败时按拒绝处理
	quotaCtx, cancel := withTimeout(ctx, s.opts.StoreTimeout)
	allowed, err := s.quota.Allow(quotaCtx, chatID)
	cancel()
	if err != nil {
		return SummaryOutcome{Kind: OutcomeStoreUnavailable, Err: fmt.Errorf("quota check: %w", err)}
	}
	if !allowed {
		return SummaryOutcome{Kind: OutcomeQuotaExceeded}
	}

	// 2. 解析游标
	cursorCtx, cancel := withTimeout(ctx, s.opts.StoreTimeout)
	since, err := s.cursor.ResolveCursor(cursorCtx, chatID)
	cancel()
	if err != nil {
		return SummaryOutcome{Kind: OutcomeStoreUnavailable, Err: fmt.Errorf("resolve cursor: %w", err)}
	}

	// 3. 组装摘要文本。快照时刻在加载消息之前取得，并作为新游标写入：
	// 模型调用期间入库的消息时间晚于快照，下一次摘要会覆盖它们
	snapshot := model.Instant(s.opts.Clock.now())
	digestCtx, cancel := withTimeout(ctx, s.opts.StoreTimeout)
	digest, err := s.digest.AssembleDigest(digestCtx, chatID, since)
	cancel()
	if errors.Is(err, ErrNothingToSummarize) {
		return SummaryOutcome{Kind: OutcomeNothingNew}
	}
	if err != nil {
		return SummaryOutcome{Kind: OutcomeStoreUnavailable, Err: fmt.Errorf("assemble digest: %w", err)}
	}

	// 4. 调用模型；超时、报错、空结果都视为失败
	llmCtx, cancel := withTimeout(ctx, s.opts.LLMTimeout)
	started := time.Now()
	summary, err := s.summarizer.Summarize(llmCtx, digest.Text)
	metrics.LLMLatency.Observe(time.Since(started).Seconds())
	cancel()
	if err == nil && summary == "" {
		err = llm.ErrEmptyCompletion
	}
	if err != nil {
		return SummaryOutcome{Kind: OutcomeSummarizationFailed, MessageCount: digest.MessageCount, Err: err}
	}

	// 5. 写入摘要记录，游标随之前移
	record := &model.SummaryRecord{
		ChatID:       chatID,
		UserID:       userID,
		SummarizedAt: snapshot,
	}
	// 即使请求已被取消，也要尽量保存已经生成的摘要
	commitCtx, cancel := withTimeout(context.WithoutCancel(ctx), s.opts.StoreTimeout)
	err = s.usageRepo.AppendSummaryRecord(commitCtx, record)
	cancel()
	if err != nil {
		return SummaryOutcome{
			Kind:         OutcomeCommitFailed,
			SummaryText:  summary,
			MessageCount: digest.MessageCount,
			Err:          err,
		}
	}

	return SummaryOutcome{Kind: OutcomeSuccess, SummaryText: summary, MessageCount: digest.MessageCount}
}
