package routes

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/immich-hub/immich-hub/internal/immich"
	"github.com/immich-hub/immich-hub/internal/logging"
	"github.com/immich-hub/immich-hub/internal/server"
	"github.com/immich-hub/immich-hub/internal/version"
)

// warmTimeout 限制单次后台预热的总时长，避免慢上游占用 goroutine 不放。
const warmTimeout = 10 * time.Minute

// Handlers 汇总路由依赖，便于在测试中注入假实现。
type Handlers struct {
	Logger  *logrus.Logger
	Assets  server.AssetStore
	Library server.Library
}

// Register 挂载全部业务路由与诊断路由。
func Register(app *fiber.App, h Handlers) {
	app.Get("/api/photos/:id", h.servePhoto)
	app.Get("/api/albums", h.listAlbums)
	app.Get("/api/albums/:id/photos", h.listAlbumPhotos)
	app.Get("/api/favorites", h.listFavorites)
	app.Post("/api/albums/:id/warm", h.warmAlbum)
	app.Get("/-/healthz", h.healthz)
}

// servePhoto 执行“缓存命中 → 回源”的单资产读取，并回写命中标记。
func (h Handlers) servePhoto(c fiber.Ctx) error {
	started := time.Now()
	assetID := c.Params("id")
	requestID := server.RequestID(c)

	body := h.Assets.Lookup(assetID)
	cacheHit := body != nil
	if !cacheHit {
		var err error
		body, err = h.Assets.Get(requestContext(c), assetID)
		if err != nil {
			h.logPhoto(assetID, requestID, cacheHit, started, err)
			if errors.Is(err, immich.ErrUpstreamUnreachable) {
				return writeError(c, fiber.StatusBadGateway, "upstream_unreachable")
			}
			return writeError(c, fiber.StatusBadGateway, "upstream_failed")
		}
	}

	if body == nil {
		h.logPhoto(assetID, requestID, cacheHit, started, nil)
		return writeError(c, fiber.StatusNotFound, "asset_unavailable")
	}

	c.Set("Content-Type", http.DetectContentType(body))
	c.Set("X-Immich-Hub-Cache-Hit", boolHeader(cacheHit))
	h.logPhoto(assetID, requestID, cacheHit, started, nil)
	return c.Send(body)
}

func (h Handlers) listAlbums(c fiber.Ctx) error {
	albums, err := h.Library.Albums(requestContext(c))
	if err != nil {
		return h.writeUpstreamError(c, "list_albums", err)
	}
	return c.JSON(albums)
}

func (h Handlers) listAlbumPhotos(c fiber.Ctx) error {
	assets, err := h.Library.AlbumAssets(requestContext(c), c.Params("id"))
	if err != nil {
		return h.writeUpstreamError(c, "album_photos", err)
	}
	return c.JSON(assets)
}

func (h Handlers) listFavorites(c fiber.Ctx) error {
	assets, err := h.Library.Favorites(requestContext(c))
	if err != nil {
		return h.writeUpstreamError(c, "favorites", err)
	}
	return c.JSON(assets)
}

// warmAlbum 异步预热相册全部图片：请求立即返回 202，落盘进度只体现在日志中。
func (h Handlers) warmAlbum(c fiber.Ctx) error {
	albumID := c.Params("id")
	requestID := server.RequestID(c)

	if !h.Assets.Enabled() {
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "cache_disabled"})
	}

	go h.warmAlbumAssets(albumID, requestID)

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "warming"})
}

// warmAlbumAssets 在请求生命周期之外执行，因此使用独立的超时 context。
func (h Handlers) warmAlbumAssets(albumID, requestID string) {
	ctx, cancel := context.WithTimeout(context.Background(), warmTimeout)
	defer cancel()

	assets, err := h.Library.AlbumAssets(ctx, albumID)
	if err != nil {
		h.Logger.WithFields(logrus.Fields{
			"action":     "warm_album",
			"album_id":   albumID,
			"request_id": requestID,
		}).Errorf("获取相册资产失败: %v", err)
		return
	}

	ids := make([]string, len(assets))
	for i, asset := range assets {
		ids[i] = asset.ID
	}
	h.Assets.Warm(ctx, ids)

	h.Logger.WithFields(logrus.Fields{
		"action":     "warm_album",
		"album_id":   albumID,
		"assets":     len(ids),
		"request_id": requestID,
	}).Info("warm_complete")
}

func (h Handlers) healthz(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"version":   version.Full(),
		"cache":     h.Assets.Enabled(),
		"cache_dir": h.Assets.Directory(),
	})
}

func (h Handlers) writeUpstreamError(c fiber.Ctx, action string, err error) error {
	h.Logger.WithFields(logrus.Fields{
		"action":     action,
		"request_id": server.RequestID(c),
		"error":      err.Error(),
	}).Error("upstream_failed")

	if errors.Is(err, immich.ErrUpstreamUnreachable) {
		return writeError(c, fiber.StatusBadGateway, "upstream_unreachable")
	}
	var apiErr *immich.APIError
	if errors.As(err, &apiErr) {
		return writeError(c, fiber.StatusBadGateway, "upstream_error")
	}
	return writeError(c, fiber.StatusInternalServerError, "internal_error")
}

func (h Handlers) logPhoto(assetID, requestID string, cacheHit bool, started time.Time, err error) {
	fields := logging.AssetFields(assetID, "", cacheHit)
	fields["action"] = "photo"
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if requestID != "" {
		fields["request_id"] = requestID
	}
	if err != nil {
		fields["error"] = err.Error()
		h.Logger.WithFields(fields).Error("photo_failed")
		return
	}
	h.Logger.WithFields(fields).Info("photo_complete")
}

func writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func boolHeader(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

func requestContext(c fiber.Ctx) context.Context {
	if ctx := c.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
