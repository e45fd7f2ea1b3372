package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if seconds, err := time.ParseDuration(raw); err == nil {
		*d = Duration(seconds)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

const (
	BackendR2         = "r2"
	BackendFilesystem = "filesystem"
)

// GlobalConfig 描述监听、日志与存储后端等进程级参数。
type GlobalConfig struct {
	ListenPort    int    `mapstructure:"ListenPort"`
	LogLevel      string `mapstructure:"LogLevel"`
	LogFilePath   string `mapstructure:"LogFilePath"`
	LogMaxSize    int    `mapstructure:"LogMaxSize"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups"`
	LogCompress   bool   `mapstructure:"LogCompress"`
	StoreBackend  string `mapstructure:"StoreBackend"`
	StoragePath   string `mapstructure:"StoragePath"`
}

// R2Config 是 Cloudflare R2 的连接参数，StoreBackend 为 r2 时四个必填项缺一不可。
type R2Config struct {
	AccountID       string `mapstructure:"R2AccountID"`
	AccessKeyID     string `mapstructure:"R2AccessKeyID"`
	SecretAccessKey string `mapstructure:"R2SecretAccessKey"`
	BucketName      string `mapstructure:"R2BucketName"`
	Endpoint        string `mapstructure:"R2Endpoint"`
}

// OriginConfig 决定如何向 MLS 图片服务器回源。
type OriginConfig struct {
	URL           string   `mapstructure:"OriginURL"`
	Action        string   `mapstructure:"OriginAction"`
	Board         string   `mapstructure:"OriginBoard"`
	Timeout       Duration `mapstructure:"OriginTimeout"`
	MinImageBytes int      `mapstructure:"MinImageBytes"`
	MaxImageBytes int64    `mapstructure:"MaxImageBytes"`
}

// Config 是配置文件与环境变量合并后的整体结构，所有键都位于顶层。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	R2     R2Config     `mapstructure:",squash"`
	Origin OriginConfig `mapstructure:",squash"`
}

// HasCredentials 表示是否配置了完整的 R2 访问凭证。
func (r R2Config) HasCredentials() bool {
	return r.AccessKeyID != "" && r.SecretAccessKey != ""
}

// Redacted 返回可写入日志的摘要，隐藏密钥。
func (r R2Config) Redacted() map[string]string {
	secret := ""
	if r.SecretAccessKey != "" {
		secret = "***"
	}
	return map[string]string{
		"account_id":    r.AccountID,
		"access_key_id": r.AccessKeyID,
		"secret":        secret,
		"bucket":        r.BucketName,
		"endpoint":      r.Endpoint,
	}
}
