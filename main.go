package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mls-proxy/mls-proxy/internal/cache"
	"github.com/mls-proxy/mls-proxy/internal/config"
	"github.com/mls-proxy/mls-proxy/internal/logging"
	"github.com/mls-proxy/mls-proxy/internal/metrics"
	"github.com/mls-proxy/mls-proxy/internal/origin"
	"github.com/mls-proxy/mls-proxy/internal/proxy"
	"github.com/mls-proxy/mls-proxy/internal/server"
	"github.com/mls-proxy/mls-proxy/internal/version"
)

const defaultConfigFile = "config.toml"

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["store_backend"] = cfg.Global.StoreBackend
		if cfg.Global.StoreBackend == config.BackendR2 {
			fields["r2"] = cfg.R2.Redacted()
		}
		fields["origin"] = cfg.Origin.URL
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动顺序：配置 → 存储后端 → 回源 Fetcher → Retriever → Fiber server，
	// 所有请求共享同一个存储与 http.Client 实例。
	store, err := buildStore(cfg)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化存储失败: %v\n", err)
		return 1
	}

	m := metrics.New()
	fetcher, err := origin.NewFetcher(server.NewOriginClient(cfg), logger, m, origin.Options{
		BaseURL:  cfg.Origin.URL,
		Action:   cfg.Origin.Action,
		Board:    cfg.Origin.Board,
		Timeout:  cfg.Origin.Timeout.DurationValue(),
		MinBytes: cfg.Origin.MinImageBytes,
		MaxBytes: cfg.Origin.MaxImageBytes,
	})
	if err != nil {
		fmt.Fprintf(stdErr, "初始化回源失败: %v\n", err)
		return 1
	}

	retriever, err := proxy.NewRetriever(store, fetcher, logger, m)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化 Retriever 失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["store_backend"] = cfg.Global.StoreBackend
	fields["origin"] = cfg.Origin.URL
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(cfg, proxy.NewHandler(retriever, logger, m), m, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// buildStore 按 StoreBackend 选择 R2 或本地磁盘存储。
func buildStore(cfg *config.Config) (cache.Store, error) {
	switch cfg.Global.StoreBackend {
	case config.BackendR2:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return cache.NewR2Store(ctx, cache.R2Options{
			AccountID:       cfg.R2.AccountID,
			AccessKeyID:     cfg.R2.AccessKeyID,
			SecretAccessKey: cfg.R2.SecretAccessKey,
			Bucket:          cfg.R2.BucketName,
			Endpoint:        cfg.R2.Endpoint,
		})
	case config.BackendFilesystem:
		return cache.NewFileStore(cfg.Global.StoragePath)
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.Global.StoreBackend)
	}
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
// 未显式指定且 ./config.toml 不存在时返回空路径，仅使用环境变量。
func parseCLIFlags(args []string) (cliOptions, error) {
	flags := flag.NewFlagSet("mls-proxy", flag.ContinueOnError)
	flags.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	flags.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 MLS_PROXY_CONFIG 覆盖）")
	flags.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	flags.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := flags.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("MLS_PROXY_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" && fileExists(defaultConfigFile) {
		path = defaultConfigFile
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func startHTTPServer(cfg *config.Config, images server.ImageHandler, m *metrics.Metrics, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:  logger,
		Images:  images,
		Metrics: m.Handler(),
	})
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
