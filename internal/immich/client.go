package immich

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/immich-hub/immich-hub/internal/config"
	"github.com/immich-hub/immich-hub/internal/logging"
)

const headerAPIKey = "x-api-key"

// allowedMimeTypes 限定缩略图接口可接受的正文类型，其余一律按“无图”处理。
var allowedMimeTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
}

// Client 封装单个 Immich 实例的访问：host + API Key + 共享 http.Client。
// Client 本身无持久状态，可在多个 goroutine 间安全共享。
type Client struct {
	host   *url.URL
	apiKey string
	http   *http.Client
	logger *logrus.Logger
}

// NewClient 依据配置构建客户端；host 必须是合法的 http/https 地址。
func NewClient(cfg *config.Config, httpClient *http.Client, logger *logrus.Logger) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if httpClient == nil {
		httpClient = NewHTTPClient(cfg)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	host, err := url.Parse(cfg.Server.Host)
	if err != nil {
		return nil, fmt.Errorf("解析上游地址失败: %w", err)
	}

	return &Client{
		host:   host,
		apiKey: cfg.Server.APIKey,
		http:   httpClient,
		logger: logger,
	}, nil
}

// Thumbnail 下载指定资产的缩略图正文。
//
// 返回值遵循三态约定：
//   - (bytes, nil)：上游返回 200 且正文为 PNG/JPEG；
//   - (nil, nil)：上游可达但该资产当前没有可用图片（非 200 或不支持的类型），仅记录日志；
//   - (nil, err)：传输层失败，err 可通过 errors.Is(err, ErrUpstreamUnreachable) 识别。
//
// 单次请求，无重试，超时依赖共享 http.Client 的配置。
func (c *Client) Thumbnail(ctx context.Context, assetID string, variant config.PictureVariant) ([]byte, error) {
	endpoint := c.endpoint("/api/assets/" + assetID + "/thumbnail")
	endpoint.RawQuery = url.Values{"size": {string(variant)}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set(headerAPIKey, c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logConnectFailure("thumbnail", endpoint, err)
		return nil, connectError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.WithFields(logging.UpstreamFields("thumbnail", endpoint.Path, resp.StatusCode)).
			Error("asset_unavailable")
		return nil, nil
	}

	if !isAllowedMime(resp.Header.Get("Content-Type")) {
		c.logger.WithFields(logrus.Fields{
			"action":       "thumbnail",
			"asset_id":     assetID,
			"content_type": resp.Header.Get("Content-Type"),
		}).Error("unsupported_mime_type")
		return nil, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, connectError(err)
	}
	return body, nil
}

// endpoint 以 host 为基准拼接 API 路径，等价于 urljoin 语义。
func (c *Client) endpoint(apiPath string) *url.URL {
	ref := &url.URL{Path: apiPath}
	return c.host.ResolveReference(ref)
}

func (c *Client) logConnectFailure(action string, endpoint *url.URL, err error) {
	c.logger.WithFields(logrus.Fields{
		"action":   action,
		"endpoint": endpoint.Path,
		"error":    err.Error(),
	}).Error("upstream_connect_failed")
}

func isAllowedMime(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.ToLower(contentType))
	}
	_, ok := allowedMimeTypes[mediaType]
	return ok
}
