package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var supportedVariants = map[PictureVariant]struct{}{
	VariantThumbnail: {},
	VariantPreview:   {},
	VariantFullsize:  {},
}

const supportedVariantList = "thumbnail|preview|fullsize"

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if _, ok := supportedVariants[g.PictureVariant]; !ok {
		return newFieldError("Global.PictureVariant", "仅支持 "+supportedVariantList)
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}

	if c.Server.Host == "" {
		return newFieldError("Server.Host", "缺少上游地址")
	}
	if err := validateHost(c.Server.Host); err != nil {
		return fmt.Errorf("Server.Host: %w", err)
	}
	if c.Server.APIKey == "" {
		return newFieldError("Server.APIKey", "不能为空")
	}

	for i, album := range c.WarmAlbums {
		if strings.TrimSpace(album) == "" {
			return newFieldError(fmt.Sprintf("WarmAlbums[%d]", i), "不能为空")
		}
	}

	return nil
}

func validateHost(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	return nil
}
