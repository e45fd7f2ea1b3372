package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// envBindings 将配置键映射到环境变量，环境变量优先级高于配置文件。
var envBindings = map[string][]string{
	"ListenPort":        {"PORT", "LISTEN_PORT"},
	"LogLevel":          {"LOG_LEVEL"},
	"LogFilePath":       {"LOG_FILE_PATH"},
	"LogMaxSize":        {"LOG_MAX_SIZE"},
	"LogMaxBackups":     {"LOG_MAX_BACKUPS"},
	"LogCompress":       {"LOG_COMPRESS"},
	"StoreBackend":      {"STORE_BACKEND"},
	"StoragePath":       {"STORAGE_PATH"},
	"R2AccountID":       {"R2_ACCOUNT_ID"},
	"R2AccessKeyID":     {"R2_ACCESS_KEY_ID"},
	"R2SecretAccessKey": {"R2_SECRET_ACCESS_KEY"},
	"R2BucketName":      {"R2_BUCKET_NAME"},
	"R2Endpoint":        {"R2_ENDPOINT"},
	"OriginURL":         {"ORIGIN_URL"},
	"OriginAction":      {"ORIGIN_ACTION"},
	"OriginBoard":       {"ORIGIN_BOARD"},
	"OriginTimeout":     {"ORIGIN_TIMEOUT"},
	"MinImageBytes":     {"MIN_IMAGE_BYTES"},
	"MaxImageBytes":     {"MAX_IMAGE_BYTES"},
}

// Load 合并 .env、可选的 TOML 配置文件与环境变量，注入默认值并校验。
// path 为空时仅依赖环境变量。
func Load(path string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Global.StoreBackend == BackendFilesystem {
		absStorage, err := filepath.Abs(cfg.Global.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("无法解析缓存目录: %w", err)
		}
		cfg.Global.StoragePath = absStorage
	}

	return &cfg, nil
}

// loadDotEnv 将 .env（或 ENV_FILE 指定的文件）注入进程环境，已存在的变量不会被覆盖。
func loadDotEnv() error {
	path := os.Getenv("ENV_FILE")
	explicit := path != ""
	if !explicit {
		path = ".env"
	}

	if _, err := os.Stat(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("读取 env 文件失败: %w", err)
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("解析 env 文件失败: %w", err)
	}
	return nil
}

func bindEnv(v *viper.Viper) error {
	for key, envs := range envBindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("绑定环境变量 %s 失败: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 8000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("StoreBackend", BackendR2)
	v.SetDefault("StoragePath", "./storage")
	v.SetDefault("OriginURL", "http://images.realtyserver.com/photo_server.php")
	v.SetDefault("OriginAction", "GetPhoto")
	v.SetDefault("OriginBoard", "panama")
	v.SetDefault("OriginTimeout", "30s")
	v.SetDefault("MinImageBytes", 100)
	v.SetDefault("MaxImageBytes", 32<<20)
}

func applyDefaults(cfg *Config) {
	g := &cfg.Global
	if g.ListenPort == 0 {
		g.ListenPort = 8000
	}
	g.StoreBackend = strings.ToLower(strings.TrimSpace(g.StoreBackend))
	if g.StoreBackend == "" {
		g.StoreBackend = BackendR2
	}

	o := &cfg.Origin
	if o.Timeout.DurationValue() == 0 {
		o.Timeout = Duration(30 * time.Second)
	}

	r := &cfg.R2
	r.AccountID = strings.TrimSpace(r.AccountID)
	r.BucketName = strings.TrimSpace(r.BucketName)
	r.Endpoint = strings.TrimSpace(r.Endpoint)
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
