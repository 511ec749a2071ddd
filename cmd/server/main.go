// Package main 是应用程序的入口点。
package main

import (
	"chat-digest-go/internal/config"
	"chat-digest-go/internal/handler"
	"chat-digest-go/internal/middleware"
	"chat-digest-go/internal/pipeline"
	"chat-digest-go/internal/repository"
	"chat-digest-go/internal/service"
	"chat-digest-go/pkg/database"
	"chat-digest-go/pkg/kafka"
	"chat-digest-go/pkg/llm"
	"chat-digest-go/pkg/log"
	"chat-digest-go/pkg/metrics"
	"chat-digest-go/pkg/storage"
	"chat-digest-go/pkg/telegram"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	if cfg.Telegram.Token == "" {
		log.Fatalf("未配置 telegram.token（TELEGRAM_TOKEN）")
	}

	// 3. 初始化数据库和 Redis
	database.InitDB(cfg.Database)
	redisEnabled := database.InitRedis(cfg.Database.Redis)

	// 4. 初始化 Repository
	messageRepo := repository.NewMessageRepository(database.DB)
	usageRepo := repository.NewUsageRepository(database.DB)
	var chatLocker repository.ChatLocker
	if redisEnabled {
		chatLocker = repository.NewRedisChatLocker(database.RDB, cfg.Summary.LockTTL)
	} else {
		chatLocker = repository.NewLocalChatLocker()
	}

	// 5. 初始化入站消息管道
	processor := pipeline.NewProcessor(messageRepo, cfg.Summary.StoreTimeout, nil)
	var sink service.MessageSink = processor

	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()
	var producer *kafka.Producer
	consumerDone := make(chan struct{})
	if cfg.Ingest.Mode == config.IngestModeKafka {
		var deadLetters kafka.DeadLetterArchive
		if storage.InitMinIO(cfg.MinIO) {
			deadLetters = storage.NewDeadLetterStore(storage.MinioClient, cfg.MinIO.BucketName)
		}
		producer = kafka.NewProducer(cfg.Kafka)
		sink = producer

		// 6. 启动后台 Kafka 消费者
		consumer := kafka.NewConsumer(cfg.Kafka, processor, deadLetters, database.RDB)
		go func() {
			defer close(consumerDone)
			consumer.Run(consumerCtx)
		}()
	} else {
		close(consumerDone)
	}

	// 7. 初始化 Service (依赖注入)
	llmClient := llm.NewClient(cfg.LLM)
	ingestService := service.NewIngestService(sink)
	summaryService := service.NewSummaryService(
		chatLocker,
		service.NewQuotaGate(usageRepo, cfg.Summary.DailyCap, cfg.Summary.RollingWindow(), nil),
		service.NewCursorResolver(usageRepo),
		service.NewDigestAssembler(messageRepo, cfg.Summary.DigestMaxChars),
		llmClient,
		usageRepo,
		service.SummaryOptions{
			StoreTimeout: cfg.Summary.StoreTimeout,
			LLMTimeout:   cfg.LLM.Timeout,
		},
	)

	bot, err := telegram.NewClient(cfg.Telegram.Token)
	if err != nil {
		log.Fatal("初始化 Telegram 客户端失败", err)
	}
	botUsername := cfg.Telegram.BotUsername
	if botUsername == "" {
		botUsername = bot.Username()
	}

	// 整个摘要流程的上限：加锁、查询与写入各占一次存储超时，另加一次模型调用
	telegramHandler := handler.NewTelegramHandler(summaryService, ingestService, bot, botUsername, cfg.Summary.DailyCap, cfg.SummaryRunTimeout())
	healthHandler := handler.NewHealthHandler(healthChecks(redisEnabled))

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 9. 注册路由
	r.POST("/telegram/webhook", middleware.WebhookSecret(cfg.Telegram.WebhookSecret), telegramHandler.Webhook)
	r.GET("/healthz", healthHandler.Healthz)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	// 等待进行中的摘要完成并回复
	telegramHandler.Wait()

	stopConsumer()
	<-consumerDone
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Errorf("关闭 Kafka 生产者失败: %v", err)
		}
	}
	log.Info("服务已优雅关闭")
}

func healthChecks(redisEnabled bool) map[string]handler.HealthCheck {
	checks := map[string]handler.HealthCheck{
		"database": func(ctx context.Context) error {
			sqlDB, err := database.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if redisEnabled {
		checks["redis"] = func(ctx context.Context) error {
			return database.RDB.Ping(ctx).Err()
		}
	}
	return checks
}
