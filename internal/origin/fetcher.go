package origin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	// 注册可识别的栅格格式，供 image.DecodeConfig 校验正文。
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/mls-proxy/mls-proxy/internal/imagename"
	"github.com/mls-proxy/mls-proxy/internal/metrics"
)

const (
	DefaultBaseURL  = "http://images.realtyserver.com/photo_server.php"
	DefaultAction   = "GetPhoto"
	DefaultBoard    = "panama"
	DefaultTimeout  = 30 * time.Second
	DefaultMinBytes = 100
	DefaultMaxBytes = 32 << 20

	// ServedContentType 是回源成功后对外声明的类型，与实际解码格式无关。
	ServedContentType = "image/jpeg"
)

// MissReason 描述回源失败的原因，仅用于日志与指标。
type MissReason string

const (
	MissNone        MissReason = ""
	MissRequest     MissReason = "request"
	MissTransport   MissReason = "transport"
	MissTimeout     MissReason = "timeout"
	MissStatus      MissReason = "status"
	MissTooSmall    MissReason = "too_small"
	MissTooLarge    MissReason = "too_large"
	MissContentType MissReason = "content_type"
	MissDecode      MissReason = "decode"
)

// Image 是通过校验的回源图片。
type Image struct {
	Data        []byte
	ContentType string
	// Format 是 image.DecodeConfig 识别出的格式名，例如 jpeg、png。
	Format string
	Width  int
	Height int
}

// Result 是一次回源的结果：成功时 Image 非空，否则 Miss 给出原因。
type Result struct {
	Image *Image
	Miss  MissReason
}

// OK reports whether the fetch produced an image.
func (r Result) OK() bool {
	return r.Image != nil
}

// Options 控制回源地址、固定参数与校验阈值。
type Options struct {
	BaseURL  string
	Action   string
	Board    string
	Timeout  time.Duration
	MinBytes int
	MaxBytes int64
}

func (o *Options) applyDefaults() {
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	if o.Action == "" {
		o.Action = DefaultAction
	}
	if o.Board == "" {
		o.Board = DefaultBoard
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MinBytes <= 0 {
		o.MinBytes = DefaultMinBytes
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = DefaultMaxBytes
	}
}

// Fetcher 负责向 MLS 图片服务器发起单次回源请求，客户端与 logger 由调用方注入。
type Fetcher struct {
	client  *http.Client
	logger  *logrus.Logger
	metrics *metrics.Metrics
	base    *url.URL
	opts    Options
}

// NewFetcher constructs a Fetcher; metrics may be nil.
func NewFetcher(client *http.Client, logger *logrus.Logger, m *metrics.Metrics, opts Options) (*Fetcher, error) {
	if client == nil {
		return nil, errors.New("http client is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	opts.applyDefaults()

	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid origin url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid origin url scheme: %q", base.Scheme)
	}

	return &Fetcher{
		client:  client,
		logger:  logger,
		metrics: m,
		base:    base,
		opts:    opts,
	}, nil
}

// RequestURL 返回某个图片名对应的回源地址。
func (f *Fetcher) RequestURL(name imagename.Name) string {
	u := *f.base
	q := u.Query()
	q.Set("btnSubmit", f.opts.Action)
	q.Set("board", f.opts.Board)
	q.Set("name", name.String())
	u.RawQuery = q.Encode()
	return u.String()
}

// Fetch 执行回源。任何失败都会被记录日志并以 Miss 返回，不会向上抛错。
func (f *Fetcher) Fetch(ctx context.Context, name imagename.Name) Result {
	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	target := f.RequestURL(name)
	fields := logrus.Fields{
		"action":   "origin_fetch",
		"name":     name.String(),
		"upstream": f.base.Host,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return f.miss(started, MissRequest, fields, err)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return f.miss(started, transportReason(err), fields, err)
	}
	defer resp.Body.Close()

	fields["status"] = resp.StatusCode
	if resp.StatusCode != http.StatusOK {
		return f.miss(started, MissStatus, fields, nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBytes+1))
	if err != nil {
		return f.miss(started, transportReason(err), fields, err)
	}
	fields["bytes"] = len(body)
	if int64(len(body)) > f.opts.MaxBytes {
		return f.miss(started, MissTooLarge, fields, nil)
	}
	if len(body) < f.opts.MinBytes {
		return f.miss(started, MissTooSmall, fields, nil)
	}

	if contentType := resp.Header.Get("Content-Type"); contentType != "" {
		fields["content_type"] = contentType
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/") {
			return f.miss(started, MissContentType, fields, nil)
		}
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(body))
	if err != nil {
		return f.miss(started, MissDecode, fields, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return f.miss(started, MissDecode, fields, fmt.Errorf("invalid dimensions %dx%d", cfg.Width, cfg.Height))
	}

	if format != "jpeg" {
		fields["format"] = format
		fields["detected"] = mimetype.Detect(body).String()
		f.logger.WithFields(fields).Warn("origin_format_mismatch")
	}

	f.metrics.OriginFetch("ok", time.Since(started).Seconds())
	f.logger.WithFields(fields).WithField("duration_ms", time.Since(started).Milliseconds()).Debug("origin_fetch_ok")

	return Result{Image: &Image{
		Data:        body,
		ContentType: ServedContentType,
		Format:      format,
		Width:       cfg.Width,
		Height:      cfg.Height,
	}}
}

func (f *Fetcher) miss(started time.Time, reason MissReason, fields logrus.Fields, err error) Result {
	elapsed := time.Since(started)
	f.metrics.OriginFetch(string(reason), elapsed.Seconds())

	entry := f.logger.WithFields(fields).WithFields(logrus.Fields{
		"reason":      string(reason),
		"duration_ms": elapsed.Milliseconds(),
	})
	if err != nil {
		entry = entry.WithError(err)
	}
	if reason == MissStatus {
		entry.Info("origin_fetch_miss")
	} else {
		entry.Warn("origin_fetch_miss")
	}
	return Result{Miss: reason}
}

func transportReason(err error) MissReason {
	if errors.Is(err, context.DeadlineExceeded) {
		return MissTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return MissTimeout
	}
	return MissTransport
}
