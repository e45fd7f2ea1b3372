package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供请求 ID、图片名/存储键与命中状态字段，供图片请求日志复用。
func RequestFields(requestID, route, name, key string, cacheHit bool) logrus.Fields {
	fields := logrus.Fields{
		"action":    "image",
		"route":     route,
		"name":      name,
		"key":       key,
		"cache_hit": cacheHit,
	}
	if requestID != "" {
		fields["request_id"] = requestID
	}
	return fields
}
