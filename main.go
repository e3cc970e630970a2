package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/immich-hub/immich-hub/internal/cache"
	"github.com/immich-hub/immich-hub/internal/config"
	"github.com/immich-hub/immich-hub/internal/immich"
	"github.com/immich-hub/immich-hub/internal/logging"
	"github.com/immich-hub/immich-hub/internal/server"
	"github.com/immich-hub/immich-hub/internal/server/routes"
	"github.com/immich-hub/immich-hub/internal/version"
)

// assetCacheDirName 是 StoragePath 下缓存目录的固定名称，每个会话启动时重建。
const assetCacheDirName = "immich_cache"

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
		fields["cache"] = cfg.Global.CacheMode()
		fields["variant"] = string(cfg.Global.PictureVariant)
		fields["warm_albums"] = len(cfg.WarmAlbums)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动遵循“配置 → Immich 客户端 → 磁盘缓存 → 预热 → Fiber server”顺序，
	// 保证所有请求共享同一份客户端与缓存实例。
	httpClient := immich.NewHTTPClient(cfg)
	client, err := immich.NewClient(cfg, httpClient, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "构建 Immich 客户端失败: %v\n", err)
		return 1
	}

	if code := verifyCredentials(client, logger); code != 0 {
		return code
	}

	assetCache, err := cache.New(cache.Options{
		Enabled:   cfg.Global.CacheEnabled,
		Directory: filepath.Join(cfg.Global.StoragePath, assetCacheDirName),
		Variant:   cfg.Global.PictureVariant,
	}, client, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "构建资产缓存失败: %v\n", err)
		return 1
	}
	assetCache.Initialize()

	fields := logging.BaseFields("startup", opts.configPath)
	fields["cache"] = cfg.Global.CacheMode()
	fields["variant"] = string(cfg.Global.PictureVariant)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["warm_albums"] = len(cfg.WarmAlbums)
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	go warmConfiguredAlbums(context.Background(), logger, client, assetCache, cfg.WarmAlbums)

	if err := startHTTPServer(cfg, client, assetCache, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// verifyCredentials 启动时做一次 API Key 校验：密钥无效直接退出；
// 上游暂时不可达只告警，等待其恢复。
func verifyCredentials(client *immich.Client, logger *logrus.Logger) int {
	ok, err := client.ValidateToken(context.Background())
	if err != nil {
		logger.WithFields(logrus.Fields{"action": "validate_token"}).
			Warnf("上游暂不可达，跳过启动校验: %v", err)
		return 0
	}
	if !ok {
		fmt.Fprintln(stdErr, "API Key 校验失败，请检查 Server.APIKey")
		return 1
	}
	return 0
}

// warmConfiguredAlbums 逐相册拉取资产列表并预热，单个相册失败不影响其余相册。
func warmConfiguredAlbums(
	ctx context.Context,
	logger *logrus.Logger,
	client *immich.Client,
	assetCache *cache.Cache,
	albumIDs []string,
) {
	if !assetCache.Enabled() || len(albumIDs) == 0 {
		return
	}

	for _, albumID := range albumIDs {
		assets, err := client.AlbumAssets(ctx, albumID)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"action":   "warm_startup",
				"album_id": albumID,
			}).Errorf("获取相册资产失败: %v", err)
			continue
		}

		ids := make([]string, len(assets))
		for i, asset := range assets {
			ids[i] = asset.ID
		}
		assetCache.Warm(ctx, ids)

		logger.WithFields(logrus.Fields{
			"action":   "warm_startup",
			"album_id": albumID,
			"assets":   len(ids),
		}).Info("warm_complete")
	}
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("immich-hub", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 IMMICH_HUB_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("IMMICH_HUB_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

func startHTTPServer(cfg *config.Config, client *immich.Client, assetCache *cache.Cache, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Assets:     assetCache,
		Library:    client,
		ListenPort: port,
	})
	if err != nil {
		return err
	}
	routes.Register(app, routes.Handlers{
		Logger:  logger,
		Assets:  assetCache,
		Library: client,
	})

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
