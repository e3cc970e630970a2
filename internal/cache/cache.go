package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/immich-hub/immich-hub/internal/config"
	"github.com/immich-hub/immich-hub/internal/logging"
)

// ThumbnailFetcher 是缓存对上游客户端的最小依赖，*immich.Client 实现该接口。
// 测试中可注入可计数的假实现。
type ThumbnailFetcher interface {
	Thumbnail(ctx context.Context, assetID string, variant config.PictureVariant) ([]byte, error)
}

// Options 描述一份缓存实例的全部外部输入，修改任一项需重建实例。
type Options struct {
	Enabled   bool
	Directory string
	Variant   config.PictureVariant
}

// Cache 独占管理缓存目录的生命周期（创建、清空），并在未命中时回源。
type Cache struct {
	enabled   bool
	directory string
	variant   config.PictureVariant
	fetcher   ThumbnailFetcher
	logger    *logrus.Logger
}

// New 构建缓存实例；directory 不能为空，fetcher 不能为 nil。
func New(opts Options, fetcher ThumbnailFetcher, logger *logrus.Logger) (*Cache, error) {
	if opts.Directory == "" {
		return nil, errors.New("cache directory required")
	}
	if fetcher == nil {
		return nil, errors.New("thumbnail fetcher required")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	abs, err := filepath.Abs(opts.Directory)
	if err != nil {
		return nil, fmt.Errorf("resolve cache directory: %w", err)
	}

	variant := opts.Variant
	if variant == "" {
		variant = config.VariantThumbnail
	}

	return &Cache{
		enabled:   opts.Enabled,
		directory: abs,
		variant:   variant,
		fetcher:   fetcher,
		logger:    logger,
	}, nil
}

// Enabled 返回缓存写入是否开启。
func (c *Cache) Enabled() bool {
	return c.enabled
}

// Directory 返回缓存目录绝对路径，供诊断接口展示。
func (c *Cache) Directory() string {
	return c.directory
}

// Initialize 执行冷启动失效：删除旧目录，开启缓存时重建。
// 所有文件系统错误只记录日志，后续操作按缺目录降级（查找落空、写入跳过）。
func (c *Cache) Initialize() {
	if info, err := os.Stat(c.directory); err == nil && info.IsDir() {
		if err := os.RemoveAll(c.directory); err != nil {
			c.logger.WithFields(logrus.Fields{
				"action": "cache_init",
				"dir":    c.directory,
			}).Errorf("清空缓存目录失败: %v", err)
		} else {
			c.logger.WithFields(logrus.Fields{
				"action": "cache_init",
				"dir":    c.directory,
			}).Info("cache_cleared")
		}
	}

	if !c.enabled {
		return
	}

	if err := os.MkdirAll(c.directory, 0o755); err != nil {
		c.logger.WithFields(logrus.Fields{
			"action": "cache_init",
			"dir":    c.directory,
		}).Errorf("创建缓存目录失败: %v", err)
	}
}

// Lookup 读取本地缓存，未命中或任何读错误均返回 nil，绝不向调用方抛错。
func (c *Cache) Lookup(assetID string) []byte {
	path, err := c.entryPath(assetID)
	if err != nil {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return nil
	}

	body, err := os.ReadFile(path)
	if err != nil {
		c.logger.WithFields(logging.AssetFields(assetID, string(c.variant), false)).
			Errorf("读取缓存失败: %v", err)
		return nil
	}

	c.logger.WithFields(logging.AssetFields(assetID, string(c.variant), true)).
		Debug("cache_hit")
	return body
}

// Get 先查本地缓存，未命中时回源下载。该路径不写缓存，只有 Warm 负责落盘。
// 上游连接失败原样向上传递，资产不可用表现为 (nil, nil)。
func (c *Cache) Get(ctx context.Context, assetID string) ([]byte, error) {
	if body := c.Lookup(assetID); body != nil {
		return body, nil
	}
	return c.fetcher.Thumbnail(ctx, assetID, c.variant)
}

// entryPath 把资产 ID 映射为缓存文件路径，拒绝会逃出缓存目录的 ID。
// 被拒绝的 ID 仍可走网络路径，只是永远不落盘。
func (c *Cache) entryPath(assetID string) (string, error) {
	if assetID == "" {
		return "", errors.New("asset id required")
	}
	path := filepath.Join(c.directory, assetID)
	if filepath.Dir(path) != c.directory {
		return "", fmt.Errorf("unsafe asset id: %q", assetID)
	}
	return path, nil
}

// exists reports whether the cache entry is already a regular file.
func (c *Cache) exists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.WithFields(logrus.Fields{"action": "cache_stat", "path": path}).
				Warnf("stat 缓存文件失败: %v", err)
		}
		return false
	}
	return info.Mode().IsRegular()
}
