// Package config 负责加载和管理应用程序的配置。
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Summary  SummaryConfig  `mapstructure:"summary"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	// Driver 取值 mysql 或 sqlite
	Driver string       `mapstructure:"driver"`
	MySQL  MySQLConfig  `mapstructure:"mysql"`
	SQLite SQLiteConfig `mapstructure:"sqlite"`
	Redis  RedisConfig  `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// SQLiteConfig 存储本地 SQLite 数据库的配置，主要用于开发环境。
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	APIKey       string              `mapstructure:"api_key"`
	BaseURL      string              `mapstructure:"base_url"`
	Model        string              `mapstructure:"model"`
	SystemPrompt string              `mapstructure:"system_prompt"`
	Timeout      time.Duration       `mapstructure:"timeout"`
	Generation   LLMGenerationConfig `mapstructure:"generation"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// TelegramConfig 存储 Telegram 机器人的配置。
type TelegramConfig struct {
	Token         string `mapstructure:"token"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	BotUsername   string `mapstructure:"bot_username"`
}

// SummaryConfig 控制摘要配额与摘要文本的大小。
// 配额窗口是以当前时刻为终点的滚动窗口，而不是自然日。
type SummaryConfig struct {
	DailyCap           int           `mapstructure:"daily_cap"`
	RollingWindowHours int           `mapstructure:"rolling_window_hours"`
	DigestMaxChars     int           `mapstructure:"digest_max_chars"`
	StoreTimeout       time.Duration `mapstructure:"store_timeout"`
	LockTTL            time.Duration `mapstructure:"lock_ttl"`
}

// RollingWindow 返回配额统计窗口的时长。
func (c SummaryConfig) RollingWindow() time.Duration {
	return time.Duration(c.RollingWindowHours) * time.Hour
}

// SummaryRunTimeout 是一次摘要在后台运行的总时限：模型调用加上各次存储访问。
func (c Config) SummaryRunTimeout() time.Duration {
	return c.LLM.Timeout + 5*c.Summary.StoreTimeout
}

// IngestConfig 决定入站消息的落库方式：direct 直接写库，kafka 经由消息队列。
type IngestConfig struct {
	Mode string `mapstructure:"mode"`
}

const (
	IngestModeDirect = "direct"
	IngestModeKafka  = "kafka"
)

// SetDefaults 注册所有可选配置项的默认值。
func SetDefaults(v *viper.Viper) {
	// 空字符串默认值也要注册，否则 AutomaticEnv 无法在 Unmarshal 时覆盖这些键
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.mysql.dsn", "")
	v.SetDefault("database.sqlite.path", "chat-digest.db")
	v.SetDefault("database.redis.addr", "")
	v.SetDefault("database.redis.password", "")
	v.SetDefault("database.redis.db", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_path", "")
	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic", "chat-messages")
	v.SetDefault("kafka.group_id", "chat-digest-go-consumer")
	v.SetDefault("minio.endpoint", "")
	v.SetDefault("minio.access_key_id", "")
	v.SetDefault("minio.secret_access_key", "")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket_name", "chat-digest-dead-letters")
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.webhook_secret", "")
	v.SetDefault("telegram.bot_username", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.generation.temperature", 0.0)
	v.SetDefault("llm.generation.top_p", 0.0)
	v.SetDefault("llm.generation.max_tokens", 0)
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.system_prompt", DefaultSystemPrompt)
	v.SetDefault("summary.daily_cap", 30)
	v.SetDefault("summary.rolling_window_hours", 24)
	v.SetDefault("summary.digest_max_chars", 6000)
	v.SetDefault("summary.store_timeout", 5*time.Second)
	v.SetDefault("summary.lock_ttl", 3*time.Minute)
	v.SetDefault("ingest.mode", IngestModeDirect)
}

// DefaultSystemPrompt 是未配置时使用的系统提示词。
const DefaultSystemPrompt = `Analyse the chat messages and write a structured summary:
1. List the main topics of discussion and their conclusions
2. Name the key participants and their positions
3. Point out important decisions or agreements
4. Keep a neutral tone
5. Use bullet lists for readability`

// Load 从指定路径读取配置（文件不存在时只使用默认值与环境变量）。
func Load(configPath string) (Config, error) {
	// .env 只是本地开发的便利手段，不存在时忽略
	_ = godotenv.Load()

	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	// 兼容旧部署中的 MAX_CALLS 环境变量
	if _, ok := os.LookupEnv("SUMMARY_DAILY_CAP"); !ok {
		if legacy, ok := os.LookupEnv("MAX_CALLS"); ok {
			v.Set("summary.daily_cap", legacy)
		}
	}

	var conf Config
	if err := v.Unmarshal(&conf); err != nil {
		return Config{}, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return Config{}, err
	}
	return conf, nil
}

// Init 初始化配置加载，并将结果写入全局 Conf 变量。
func Init(configPath string) {
	conf, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = conf
}

// Validate 校验配置中会直接影响配额与摘要行为的字段。
func (c Config) Validate() error {
	if c.Summary.DailyCap <= 0 {
		return fmt.Errorf("summary.daily_cap 必须为正数, 当前值: %d", c.Summary.DailyCap)
	}
	if c.Summary.RollingWindowHours <= 0 {
		return fmt.Errorf("summary.rolling_window_hours 必须为正数, 当前值: %d", c.Summary.RollingWindowHours)
	}
	if c.Summary.DigestMaxChars <= 0 {
		return fmt.Errorf("summary.digest_max_chars 必须为正数, 当前值: %d", c.Summary.DigestMaxChars)
	}
	if c.Summary.StoreTimeout <= 0 || c.LLM.Timeout <= 0 {
		return fmt.Errorf("summary.store_timeout 与 llm.timeout 必须为正数")
	}
	// 锁必须比一次摘要活得更久，否则同一会话可能并发执行两次摘要
	if c.Summary.LockTTL <= c.SummaryRunTimeout() {
		return fmt.Errorf("summary.lock_ttl (%s) 必须大于 llm.timeout + 5*summary.store_timeout (%s)",
			c.Summary.LockTTL, c.SummaryRunTimeout())
	}
	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("不支持的 database.driver: %q", c.Database.Driver)
	}
	switch c.Ingest.Mode {
	case IngestModeDirect, IngestModeKafka:
	default:
		return fmt.Errorf("不支持的 ingest.mode: %q", c.Ingest.Mode)
	}
	return nil
}
