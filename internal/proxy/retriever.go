package proxy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mls-proxy/mls-proxy/internal/cache"
	"github.com/mls-proxy/mls-proxy/internal/imagename"
	"github.com/mls-proxy/mls-proxy/internal/metrics"
	"github.com/mls-proxy/mls-proxy/internal/origin"
)

const (
	// CacheControl 对外声明一年的强缓存；图片名不可变，同名内容不会变化。
	CacheControl = "public, max-age=31536000"
	// ContentType 是所有成功响应使用的类型。
	ContentType = "image/jpeg"

	defaultPutTimeout = 30 * time.Second
)

var (
	// ErrInvalidName 对应 400：图片名不合法，未做任何 I/O。
	ErrInvalidName = imagename.ErrInvalidName
	// ErrNotFound 对应 404：存储未命中且回源失败。
	ErrNotFound = errors.New("image not found")
	// ErrStorage 对应 500：存储读取失败（非“键不存在”）。
	ErrStorage = cache.ErrStorage
)

// Fetcher 是回源能力的抽象，*origin.Fetcher 实现了该接口。
type Fetcher interface {
	Fetch(ctx context.Context, name imagename.Name) origin.Result
}

// Image 是最终返回给 HTTP 层的图片及其缓存元数据。
type Image struct {
	Data         []byte
	ContentType  string
	CacheControl string
	Name         imagename.Name
	Key          string
	CacheHit     bool
}

// Retriever 实现 cache-aside 读取：先查存储，未命中则回源并尽力回写。
// 并发请求之间不做任何协调，同一个键的并发未命中可能重复回源与写入。
type Retriever struct {
	store      cache.Store
	fetcher    Fetcher
	logger     *logrus.Logger
	metrics    *metrics.Metrics
	putTimeout time.Duration
}

// NewRetriever constructs a Retriever; metrics may be nil.
func NewRetriever(store cache.Store, fetcher Fetcher, logger *logrus.Logger, m *metrics.Metrics) (*Retriever, error) {
	if store == nil {
		return nil, errors.New("cache store is required")
	}
	if fetcher == nil {
		return nil, errors.New("origin fetcher is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Retriever{
		store:      store,
		fetcher:    fetcher,
		logger:     logger,
		metrics:    m,
		putTimeout: defaultPutTimeout,
	}, nil
}

// Retrieve 根据原始路径尾部返回图片。返回的错误可用 errors.Is 区分
// ErrInvalidName、ErrNotFound 与 ErrStorage。
func (r *Retriever) Retrieve(ctx context.Context, raw string) (*Image, error) {
	name, err := imagename.Parse(raw)
	if err != nil {
		return nil, err
	}
	key := name.StorageKey()

	lookup, err := r.store.Get(ctx, key)
	if err != nil {
		r.metrics.CacheLookup("error")
		if !errors.Is(err, cache.ErrStorage) {
			err = fmt.Errorf("%w: %v", cache.ErrStorage, err)
		}
		return nil, err
	}

	if lookup.Hit {
		r.metrics.CacheLookup("hit")
		return newImage(name, key, lookup.Object.Data, true), nil
	}
	r.metrics.CacheLookup("miss")

	result := r.fetcher.Fetch(ctx, name)
	if !result.OK() {
		return nil, fmt.Errorf("%w: %s (origin %s)", ErrNotFound, name, result.Miss)
	}

	r.fill(ctx, name, key, result.Image)
	return newImage(name, key, result.Image.Data, false), nil
}

// fill 将回源结果写入存储，失败只记录日志，不影响本次响应。
// 写入脱离请求的取消信号，客户端断开后仍尽量完成回填。
func (r *Retriever) fill(ctx context.Context, name imagename.Name, key string, img *origin.Image) {
	putCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.putTimeout)
	defer cancel()

	err := r.store.Put(putCtx, key, cache.Object{Data: img.Data, ContentType: ContentType})
	if err != nil {
		r.metrics.StoreWrite("error")
		r.logger.WithError(err).WithFields(logrus.Fields{
			"action": "cache_put",
			"name":   name.String(),
			"key":    key,
			"bytes":  len(img.Data),
		}).Error("cache_put_failed")
		return
	}
	r.metrics.StoreWrite("ok")
}

func newImage(name imagename.Name, key string, data []byte, hit bool) *Image {
	return &Image{
		Data:         data,
		ContentType:  ContentType,
		CacheControl: CacheControl,
		Name:         name,
		Key:          key,
		CacheHit:     hit,
	}
}
