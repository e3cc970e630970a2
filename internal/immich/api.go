package immich

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/immich-hub/immich-hub/internal/logging"
)

// maxErrorBodyBytes 限制错误正文截取长度，避免把大响应写进日志。
const maxErrorBodyBytes = 1024

// ValidateToken 调用 /api/auth/validateToken 验证 API Key 是否有效。
// 鉴权失败（非 200 或 authStatus=false）返回 false 而非错误；只有传输层失败才返回 error。
func (c *Client) ValidateToken(ctx context.Context) (bool, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/api/auth/validateToken", nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logAPIFailure("validate_token", resp)
		return false, nil
	}

	var result struct {
		AuthStatus bool `json:"authStatus"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		c.logger.WithFields(logging.UpstreamFields("validate_token", "/api/auth/validateToken", resp.StatusCode)).
			Error("decode_failed")
		return false, nil
	}
	return result.AuthStatus, nil
}

// Me 返回当前 API Key 对应的用户信息。
func (c *Client) Me(ctx context.Context) (*User, error) {
	var user User
	if err := c.getJSON(ctx, "/api/users/me", "me", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// AssetInfo 返回单个资产的元数据。
func (c *Client) AssetInfo(ctx context.Context, assetID string) (*Asset, error) {
	var asset Asset
	path := "/api/assets/" + assetID
	if err := c.getJSON(ctx, path, "asset_info", &asset); err != nil {
		return nil, err
	}
	return &asset, nil
}

// Albums 列出全部相册。
func (c *Client) Albums(ctx context.Context) ([]Album, error) {
	var albums []Album
	if err := c.getJSON(ctx, "/api/albums", "list_albums", &albums); err != nil {
		return nil, err
	}
	return albums, nil
}

// AlbumAssets 返回相册内全部 IMAGE 资产。
func (c *Client) AlbumAssets(ctx context.Context, albumID string) ([]Asset, error) {
	var album Album
	path := "/api/albums/" + albumID
	if err := c.getJSON(ctx, path, "album_assets", &album); err != nil {
		return nil, err
	}
	return filterImages(album.Assets), nil
}

// Favorites 通过 metadata 搜索接口列出全部收藏的 IMAGE 资产。
func (c *Client) Favorites(ctx context.Context) ([]Asset, error) {
	payload := map[string]any{"isFavorite": true}
	resp, err := c.doJSON(ctx, http.MethodPost, "/api/search/metadata", payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.apiError("favorites", resp)
	}

	var result struct {
		Assets struct {
			Items []Asset `json:"items"`
		} `json:"assets"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return filterImages(result.Assets.Items), nil
}

// getJSON 执行 GET 并把 200 响应解码到 out，非 200 统一转为 *APIError。
func (c *Client) getJSON(ctx context.Context, path, action string, out any) error {
	resp, err := c.doJSON(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.apiError(action, resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// doJSON 构造带 x-api-key 头的 JSON 请求；传输层失败返回包装后的连接错误。
func (c *Client) doJSON(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	endpoint := c.endpoint(path)

	var body io.Reader = http.NoBody
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(headerAPIKey, c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logConnectFailure(method+" "+path, endpoint, err)
		return nil, connectError(err)
	}
	return resp, nil
}

// apiError 读取错误正文片段并记录日志，返回 *APIError。
func (c *Client) apiError(action string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	apiErr := &APIError{
		Status: resp.StatusCode,
		Body:   strings.TrimSpace(string(snippet)),
	}
	c.logger.WithFields(logging.UpstreamFields(action, resp.Request.URL.Path, resp.StatusCode)).
		Error(apiErr.Error())
	return apiErr
}

func (c *Client) logAPIFailure(action string, resp *http.Response) {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	c.logger.WithFields(logging.UpstreamFields(action, resp.Request.URL.Path, resp.StatusCode)).
		Errorf("上游返回错误: body=%s", strings.TrimSpace(string(snippet)))
}
