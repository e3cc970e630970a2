package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/immich-hub/immich-hub/internal/immich"
	"github.com/immich-hub/immich-hub/internal/server"
)

// pngHeader 足够让 http.DetectContentType 识别为 image/png。
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

type fakeStore struct {
	mu      sync.Mutex
	cached  map[string][]byte
	remote  map[string][]byte
	getErr  error
	enabled bool
	warmed  [][]string
	warmCh  chan struct{}
}

func (f *fakeStore) Lookup(assetID string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cached[assetID]
}

func (f *fakeStore) Get(_ context.Context, assetID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	if body, ok := f.cached[assetID]; ok {
		return body, nil
	}
	return f.remote[assetID], nil
}

func (f *fakeStore) Warm(_ context.Context, assetIDs []string) {
	f.mu.Lock()
	f.warmed = append(f.warmed, assetIDs)
	f.mu.Unlock()
	if f.warmCh != nil {
		f.warmCh <- struct{}{}
	}
}

func (f *fakeStore) Enabled() bool     { return f.enabled }
func (f *fakeStore) Directory() string { return "/tmp/immich_cache" }

type fakeLibrary struct {
	albums    []immich.Album
	assets    map[string][]immich.Asset
	favorites []immich.Asset
	err       error
}

func (f *fakeLibrary) Albums(context.Context) ([]immich.Album, error) {
	return f.albums, f.err
}

func (f *fakeLibrary) AlbumAssets(_ context.Context, albumID string) ([]immich.Asset, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.assets[albumID], nil
}

func (f *fakeLibrary) Favorites(context.Context) ([]immich.Asset, error) {
	return f.favorites, f.err
}

func newTestApp(t *testing.T, store *fakeStore, library *fakeLibrary) *fiber.App {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Assets:     store,
		Library:    library,
		ListenPort: 5000,
	})
	if err != nil {
		t.Fatalf("NewApp 返回错误: %v", err)
	}
	Register(app, Handlers{Logger: logger, Assets: store, Library: library})
	return app
}

func TestServePhotoCacheHit(t *testing.T) {
	store := &fakeStore{cached: map[string][]byte{"asset-1": pngHeader}, enabled: true}
	app := newTestApp(t, store, &fakeLibrary{})

	resp, err := app.Test(httptest.NewRequest("GET", "/api/photos/asset-1", nil))
	if err != nil {
		t.Fatalf("app.Test 返回错误: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("期望 200，得到 %d", resp.StatusCode)
	}
	if hit := resp.Header.Get("X-Immich-Hub-Cache-Hit"); hit != "true" {
		t.Fatalf("命中标记错误: %s", hit)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("Content-Type 应被嗅探为 image/png，得到 %s", ct)
	}
}

func TestServePhotoMissFetches(t *testing.T) {
	store := &fakeStore{remote: map[string][]byte{"asset-1": pngHeader}, enabled: true}
	app := newTestApp(t, store, &fakeLibrary{})

	resp, err := app.Test(httptest.NewRequest("GET", "/api/photos/asset-1", nil))
	if err != nil {
		t.Fatalf("app.Test 返回错误: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("期望 200，得到 %d", resp.StatusCode)
	}
	if hit := resp.Header.Get("X-Immich-Hub-Cache-Hit"); hit != "false" {
		t.Fatalf("未命中标记错误: %s", hit)
	}
}

func TestServePhotoUnavailable(t *testing.T) {
	store := &fakeStore{enabled: true}
	app := newTestApp(t, store, &fakeLibrary{})

	resp, err := app.Test(httptest.NewRequest("GET", "/api/photos/missing", nil))
	if err != nil {
		t.Fatalf("app.Test 返回错误: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("无图资产应返回 404，得到 %d", resp.StatusCode)
	}
}

func TestServePhotoUpstreamUnreachable(t *testing.T) {
	store := &fakeStore{getErr: fmt.Errorf("%w: dial refused", immich.ErrUpstreamUnreachable)}
	app := newTestApp(t, store, &fakeLibrary{})

	resp, err := app.Test(httptest.NewRequest("GET", "/api/photos/asset-1", nil))
	if err != nil {
		t.Fatalf("app.Test 返回错误: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusBadGateway {
		t.Fatalf("上游不可达应返回 502，得到 %d", resp.StatusCode)
	}
	var payload map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if payload["error"] != "upstream_unreachable" {
		t.Fatalf("错误码不一致: %v", payload)
	}
}

func TestListAlbums(t *testing.T) {
	library := &fakeLibrary{albums: []immich.Album{{ID: "a1", AlbumName: "Holiday"}}}
	app := newTestApp(t, &fakeStore{}, library)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/albums", nil))
	if err != nil {
		t.Fatalf("app.Test 返回错误: %v", err)
	}
	defer resp.Body.Close()

	var albums []immich.Album
	if err := json.NewDecoder(resp.Body).Decode(&albums); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if len(albums) != 1 || albums[0].AlbumName != "Holiday" {
		t.Fatalf("相册列表不一致: %+v", albums)
	}
}

func TestListAlbumsUpstreamError(t *testing.T) {
	library := &fakeLibrary{err: &immich.APIError{Status: 500}}
	app := newTestApp(t, &fakeStore{}, library)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/albums", nil))
	if err != nil {
		t.Fatalf("app.Test 返回错误: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusBadGateway {
		t.Fatalf("上游错误应返回 502，得到 %d", resp.StatusCode)
	}
}

func TestWarmAlbumDisabled(t *testing.T) {
	store := &fakeStore{enabled: false}
	app := newTestApp(t, store, &fakeLibrary{})

	resp, err := app.Test(httptest.NewRequest("POST", "/api/albums/a1/warm", nil))
	if err != nil {
		t.Fatalf("app.Test 返回错误: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("期望 202，得到 %d", resp.StatusCode)
	}
	var payload map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if payload["status"] != "cache_disabled" {
		t.Fatalf("关闭缓存时状态应为 cache_disabled: %v", payload)
	}
	if len(store.warmed) != 0 {
		t.Fatalf("关闭缓存时不应触发预热")
	}
}

func TestWarmAlbumTriggersWarm(t *testing.T) {
	store := &fakeStore{enabled: true, warmCh: make(chan struct{}, 1)}
	library := &fakeLibrary{assets: map[string][]immich.Asset{
		"a1": {{ID: "img-1", Type: "IMAGE"}, {ID: "img-2", Type: "IMAGE"}},
	}}
	app := newTestApp(t, store, library)

	resp, err := app.Test(httptest.NewRequest("POST", "/api/albums/a1/warm", nil))
	if err != nil {
		t.Fatalf("app.Test 返回错误: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("期望 202，得到 %d", resp.StatusCode)
	}

	select {
	case <-store.warmCh:
	case <-time.After(2 * time.Second):
		t.Fatalf("预热 goroutine 未执行")
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.warmed) != 1 || len(store.warmed[0]) != 2 {
		t.Fatalf("预热参数不一致: %+v", store.warmed)
	}
}

func TestHealthz(t *testing.T) {
	store := &fakeStore{enabled: true}
	app := newTestApp(t, store, &fakeLibrary{})

	resp, err := app.Test(httptest.NewRequest("GET", "/-/healthz", nil))
	if err != nil {
		t.Fatalf("app.Test 返回错误: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("期望 200，得到 %d", resp.StatusCode)
	}
	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if payload["status"] != "ok" || payload["cache"] != true {
		t.Fatalf("健康检查字段不一致: %v", payload)
	}
}
