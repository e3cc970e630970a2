package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// AssetFields 提供 asset/variant/命中状态字段，供资产请求日志复用。
func AssetFields(assetID, variant string, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"asset_id":  assetID,
		"variant":   variant,
		"cache_hit": cacheHit,
	}
}

// UpstreamFields 描述一次上游 Immich 调用，供客户端日志复用。
func UpstreamFields(action, endpoint string, status int) logrus.Fields {
	return logrus.Fields{
		"action":          action,
		"endpoint":        endpoint,
		"upstream_status": status,
	}
}
