// Package storage提供了与对象存储服务（如 MinIO）交互的功能。
package storage

import (
	"bytes"
	"chat-digest-go/internal/config"
	"chat-digest-go/pkg/log"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioClient 是一个全局的 MinIO 客户端实例。
var MinioClient *minio.Client

// InitMinIO 初始化 MinIO 客户端并确保指定的存储桶存在。
// Endpoint 为空时返回 false，表示不启用死信归档。
func InitMinIO(cfg config.MinIOConfig) bool {
	if cfg.Endpoint == "" {
		log.Warnf("未配置 MinIO endpoint，死信消息将只记录日志")
		return false
	}

	var err error

	// 1. 初始化 MinIO 客户端
	MinioClient, err = minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		log.Fatal("初始化 MinIO 客户端失败", err)
	}

	log.Info("MinIO 客户端初始化成功")

	// 2. 检查存储桶 (Bucket) 是否存在，如果不存在则创建
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	bucketName := cfg.BucketName
	exists, err := MinioClient.BucketExists(ctx, bucketName)
	if err != nil {
		log.Fatal("检查 MinIO 存储桶失败", err)
	}

	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", bucketName)
		err = MinioClient.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{})
		if err != nil {
			log.Fatal("创建 MinIO 存储桶失败", err)
		}
		log.Infof("存储桶 '%s' 创建成功", bucketName)
	} else {
		log.Infof("存储桶 '%s' 已存在", bucketName)
	}
	return true
}

// objectPutter 是 *minio.Client 的最小子集，方便测试替换。
type objectPutter interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// DeadLetterStore 把无法处理的入站消息原样保存到对象存储。
type DeadLetterStore struct {
	client objectPutter
	bucket string
	now    func() time.Time
}

// NewDeadLetterStore 基于已初始化的 MinIO 客户端创建死信存储。
func NewDeadLetterStore(client *minio.Client, bucket string) *DeadLetterStore {
	return &DeadLetterStore{client: client, bucket: bucket, now: time.Now}
}

// Archive 以 dead-letters/<日期>/<key>.json 为对象名写入 payload。
func (s *DeadLetterStore) Archive(ctx context.Context, key string, payload []byte) error {
	name := objectName(s.now(), key)
	_, err := s.client.PutObject(ctx, s.bucket, name, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("put dead letter %s: %w", name, err)
	}
	log.Infof("死信消息已归档: bucket=%s, object=%s", s.bucket, name)
	return nil
}

func objectName(at time.Time, key string) string {
	key = strings.Trim(key, "/")
	return fmt.Sprintf("dead-letters/%s/%s.json", at.UTC().Format("2006-01-02"), key)
}
