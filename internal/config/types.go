package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// PictureVariant 对应 Immich 缩略图接口的 size 参数取值。
type PictureVariant string

const (
	VariantThumbnail PictureVariant = "thumbnail"
	VariantPreview   PictureVariant = "preview"
	VariantFullsize  PictureVariant = "fullsize"
)

// GlobalConfig 描述全局运行时行为，进程内所有组件共享同一份参数。
type GlobalConfig struct {
	ListenPort      int            `mapstructure:"ListenPort"`
	LogLevel        string         `mapstructure:"LogLevel"`
	LogFilePath     string         `mapstructure:"LogFilePath"`
	LogMaxSize      int            `mapstructure:"LogMaxSize"`
	LogMaxBackups   int            `mapstructure:"LogMaxBackups"`
	LogCompress     bool           `mapstructure:"LogCompress"`
	StoragePath     string         `mapstructure:"StoragePath"`
	CacheEnabled    bool           `mapstructure:"CacheEnabled"`
	PictureVariant  PictureVariant `mapstructure:"PictureVariant"`
	UpstreamTimeout Duration       `mapstructure:"UpstreamTimeout"`
}

// ServerConfig 决定如何访问上游 Immich 实例。
type ServerConfig struct {
	Host   string `mapstructure:"Host"`
	APIKey string `mapstructure:"APIKey"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global     GlobalConfig `mapstructure:",squash"`
	Server     ServerConfig `mapstructure:"Server"`
	WarmAlbums []string     `mapstructure:"WarmAlbums"`
}

// HasCredentials 表示是否配置了完整的上游访问凭证。
func (s ServerConfig) HasCredentials() bool {
	return s.Host != "" && s.APIKey != ""
}

// CacheMode 输出 `enabled` 或 `disabled`，供日志字段使用。
func (g GlobalConfig) CacheMode() string {
	if g.CacheEnabled {
		return "enabled"
	}
	return "disabled"
}
