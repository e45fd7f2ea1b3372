package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}

	switch g.StoreBackend {
	case BackendR2:
		if err := c.R2.validate(); err != nil {
			return err
		}
	case BackendFilesystem:
		if g.StoragePath == "" {
			return newFieldError("Global.StoragePath", "filesystem 后端不能为空")
		}
	default:
		return newFieldError("Global.StoreBackend", "仅支持 r2|filesystem")
	}

	return c.Origin.validate()
}

func (r R2Config) validate() error {
	if r.AccountID == "" {
		return requiredField("R2.AccountID", "R2_ACCOUNT_ID")
	}
	if r.AccessKeyID == "" {
		return requiredField("R2.AccessKeyID", "R2_ACCESS_KEY_ID")
	}
	if r.SecretAccessKey == "" {
		return requiredField("R2.SecretAccessKey", "R2_SECRET_ACCESS_KEY")
	}
	if r.BucketName == "" {
		return requiredField("R2.BucketName", "R2_BUCKET_NAME")
	}
	if r.Endpoint != "" {
		if err := validateUpstream(r.Endpoint); err != nil {
			return fmt.Errorf("R2.Endpoint: %w", err)
		}
	}
	return nil
}

func (o OriginConfig) validate() error {
	if err := validateUpstream(o.URL); err != nil {
		return fmt.Errorf("Origin.URL: %w", err)
	}
	if strings.TrimSpace(o.Action) == "" {
		return newFieldError("Origin.Action", "不能为空")
	}
	if strings.TrimSpace(o.Board) == "" {
		return newFieldError("Origin.Board", "不能为空")
	}
	if o.Timeout.DurationValue() <= 0 {
		return newFieldError("Origin.Timeout", "必须大于 0")
	}
	if o.MinImageBytes < 0 {
		return newFieldError("Origin.MinImageBytes", "不能为负数")
	}
	if o.MaxImageBytes <= int64(o.MinImageBytes) {
		return newFieldError("Origin.MaxImageBytes", "必须大于 MinImageBytes")
	}
	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，地址: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("地址缺少 Host: %s", raw)
	}
	return nil
}
