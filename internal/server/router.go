package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/immich-hub/immich-hub/internal/immich"
)

// AssetStore describes the cache-backed asset source the photo routes depend
// on. It allows injecting fake stores during tests.
type AssetStore interface {
	Lookup(assetID string) []byte
	Get(ctx context.Context, assetID string) ([]byte, error)
	Warm(ctx context.Context, assetIDs []string)
	Enabled() bool
	Directory() string
}

// Library describes the Immich listing endpoints consumed by the routes.
type Library interface {
	Albums(ctx context.Context) ([]immich.Album, error)
	AlbumAssets(ctx context.Context, albumID string) ([]immich.Asset, error)
	Favorites(ctx context.Context) ([]immich.Asset, error)
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger     *logrus.Logger
	Assets     AssetStore
	Library    Library
	ListenPort int
}

const contextKeyRequestID = "_immichhub_request_id"

// NewApp builds a Fiber application with request-id middleware and structured
// error handling. Route registration lives in the routes package.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Assets == nil {
		return nil, errors.New("asset store is required")
	}
	if opts.Library == nil {
		return nil, errors.New("library is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware())

	return app, nil
}

// requestContextMiddleware 负责为每个请求生成 request ID 并写回响应头。
func requestContextMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}
