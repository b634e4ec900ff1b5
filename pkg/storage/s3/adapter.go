package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"zarrvault/pkg/storage"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const S3StoreType = "S3Store"

// Adapter 实现了 storage.Store 接口
// 每个 chunk key 对应 bucket 中 prefix 下的一个对象
type Adapter struct {
	client *s3.Client
	cfg    Config
}

var (
	_ storage.Store     = (*Adapter)(nil)
	_ storage.Describer = (*Adapter)(nil)
)

// Config 用于初始化 Adapter
type Config struct {
	Endpoint string
	Region   string
	Bucket   string
	Prefix   string // 数组在 bucket 中的路径，例如 "arrays/temperature.zarr"
	// 密钥不会被写进文档描述符；为空时走 SDK 默认凭证链 (环境变量、~/.aws 等)
	AccessKeyID     string
	SecretAccessKey string
}

// NewAdapter 初始化 S3 客户端 (适配 AWS SDK v2 最新规范)
func NewAdapter(ctx context.Context, cfg Config) (*Adapter, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	// 1. 加载基础配置 (Region 和 Credentials)
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	// 2. 创建 S3 客户端时，注入特定于 S3 的配置
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// 如果指定了 Endpoint (比如 MinIO 的 localhost:9000)，则覆盖默认值
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		// MinIO 必须强制使用 Path Style
		o.UsePathStyle = true
	})

	cfg.Prefix = strings.Trim(cfg.Prefix, "/")
	return &Adapter{
		client: client,
		cfg:    cfg,
	}, nil
}

func (s *Adapter) Type() string { return S3StoreType }

// EnsureBucket 检查 bucket 是否存在，不存在则尝试创建
// 生产环境建议手动管理 Bucket，这里主要服务于本地 MinIO
func (s *Adapter) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.cfg.Bucket)})
	if err == nil {
		return nil
	}
	if _, err := s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.cfg.Bucket)}); err != nil {
		return fmt.Errorf("failed to ensure bucket exists: %w", err)
	}
	return nil
}

// objectKey 将 chunk key 转换为 S3 Key
// Logic: prefix "arr.zarr" + key "0.1" -> "arr.zarr/0.1"
func (s *Adapter) objectKey(key string) string {
	if s.cfg.Prefix == "" {
		return key
	}
	return s.cfg.Prefix + "/" + key
}

// Get 下载对象
func (s *Adapter) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		// 将 AWS 的 NoSuchKey 错误映射为我们自己的 ErrKeyNotFound
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%w: %s", storage.ErrKeyNotFound, key)
		}
		return nil, fmt.Errorf("s3 get failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read body failed: %w", err)
	}
	return data, nil
}

// Set 上传对象
func (s *Adapter) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(s.objectKey(key)),
		Body:        bytes.NewReader(value),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("s3 put failed: %w", err)
	}
	return nil
}

// Delete 删除对象 (S3 对不存在的 key 也返回成功)
func (s *Adapter) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return fmt.Errorf("s3 delete failed: %w", err)
	}
	return nil
}

// Keys 利用 ListObjectsV2 分页列出 prefix 下的所有 key
func (s *Adapter) Keys(ctx context.Context) ([]string, error) {
	listPrefix := ""
	if s.cfg.Prefix != "" {
		listPrefix = s.cfg.Prefix + "/"
	}

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.cfg.Bucket),
		Prefix: aws.String(listPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list failed: %w", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, strings.TrimPrefix(aws.ToString(obj.Key), listPrefix))
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Describe 只记录定位信息，不记录密钥
func (s *Adapter) Describe() (storage.Descriptor, error) {
	return storage.Descriptor{
		"bucket":   s.cfg.Bucket,
		"prefix":   s.cfg.Prefix,
		"region":   s.cfg.Region,
		"endpoint": s.cfg.Endpoint,
	}, nil
}

func decodeAdapter(ctx context.Context, d storage.Descriptor) (storage.Store, error) {
	bucket, err := d.String("bucket")
	if err != nil {
		return nil, err
	}
	cfg := Config{
		Bucket:   bucket,
		Prefix:   d.StringOr("prefix", ""),
		Region:   d.StringOr("region", ""),
		Endpoint: d.StringOr("endpoint", ""),
	}
	slog.Debug("decoding s3 store", slog.String("bucket", cfg.Bucket), slog.String("prefix", cfg.Prefix))
	return NewAdapter(ctx, cfg)
}

func init() {
	storage.RegisterDecoder(S3StoreType, decodeAdapter)
}
