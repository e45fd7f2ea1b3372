package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// objectAPI 是 r2Store 用到的 S3 子集，测试中可替换为假实现。
type objectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// R2Options 描述连接 Cloudflare R2 所需的账号与桶信息。
type R2Options struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	// Endpoint 为空时按 AccountID 推导 https://<account>.r2.cloudflarestorage.com。
	Endpoint string
}

// EndpointURL 返回实际使用的 S3 endpoint。
func (o R2Options) EndpointURL() string {
	if ep := strings.TrimSpace(o.Endpoint); ep != "" {
		return ep
	}
	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", o.AccountID)
}

// NewR2Store 构建基于 S3 API 的 R2 存储，客户端在启动时创建一次并复用。
func NewR2Store(ctx context.Context, opts R2Options) (Store, error) {
	if opts.Bucket == "" {
		return nil, errors.New("r2 bucket required")
	}
	if opts.AccessKeyID == "" || opts.SecretAccessKey == "" {
		return nil, errors.New("r2 credentials required")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load r2 client config: %w", err)
	}

	endpoint := opts.EndpointURL()
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})
	return newR2Store(client, opts.Bucket), nil
}

func newR2Store(api objectAPI, bucket string) *r2Store {
	return &r2Store{api: api, bucket: bucket}
}

type r2Store struct {
	api    objectAPI
	bucket string
}

func (s *r2Store) Get(ctx context.Context, key string) (Lookup, error) {
	if err := ValidateKey(key); err != nil {
		return Lookup{}, storageError("get", key, err)
	}

	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return Miss(), nil
		}
		return Lookup{}, storageError("get", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return Lookup{}, storageError("read", key, err)
	}

	contentType := defaultContentType
	if out.ContentType != nil && *out.ContentType != "" {
		contentType = *out.ContentType
	}
	return HitOf(Object{Data: data, ContentType: contentType}), nil
}

func (s *r2Store) Put(ctx context.Context, key string, obj Object) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	contentType := obj.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}

	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(obj.Data),
		ContentLength: aws.Int64(int64(len(obj.Data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// isNotFound 识别 NoSuchKey 以及 HEAD 风格的 NotFound 错误码。
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
