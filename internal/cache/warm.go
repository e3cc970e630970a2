package cache

import (
	"context"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/immich-hub/immich-hub/internal/logging"
)

// Warm 按输入顺序逐个预热资产：已缓存的跳过，其余回源下载并落盘。
// 单个资产的下载或写入失败只记录日志，批次继续；缓存关闭时整体 no-op。
func (c *Cache) Warm(ctx context.Context, assetIDs []string) {
	if !c.enabled {
		return
	}

	for _, assetID := range assetIDs {
		if err := ctx.Err(); err != nil {
			c.logger.WithFields(logrus.Fields{"action": "warm"}).
				Warnf("预热中止: %v", err)
			return
		}
		c.warmOne(ctx, assetID)
	}
}

func (c *Cache) warmOne(ctx context.Context, assetID string) {
	path, err := c.entryPath(assetID)
	if err != nil {
		c.logger.WithFields(logrus.Fields{"action": "warm", "asset_id": assetID}).
			Warnf("跳过不安全的资产 ID: %v", err)
		return
	}

	if c.exists(path) {
		return
	}

	body, err := c.fetcher.Thumbnail(ctx, assetID, c.variant)
	if err != nil {
		c.logger.WithFields(logging.AssetFields(assetID, string(c.variant), false)).
			Errorf("预热下载失败: %v", err)
		return
	}
	if body == nil {
		c.logger.WithFields(logging.AssetFields(assetID, string(c.variant), false)).
			Warn("warm_asset_unavailable")
		return
	}

	if err := c.writeEntry(path, body); err != nil {
		c.logger.WithFields(logging.AssetFields(assetID, string(c.variant), false)).
			Errorf("写入缓存失败: %v", err)
		return
	}

	c.logger.WithFields(logging.AssetFields(assetID, string(c.variant), false)).
		Info("asset_cached")
}

// writeEntry 通过临时文件 + rename 落盘，保证并发 Lookup 只会看到完整文件。
func (c *Cache) writeEntry(path string, body []byte) error {
	tempFile, err := os.CreateTemp(filepath.Dir(path), ".cache-*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = tempFile.Write(body)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return err
	}

	if err := os.Rename(tempName, path); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}
