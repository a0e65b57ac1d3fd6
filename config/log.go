package config

import "strings"

// LogConfig 日志配置
//
// 仅在环境变量 MDNS_LOG_LEVEL / MDNS_LOG_FORMAT 未设置时生效。
type LogConfig struct {
	// Level 日志级别配置，格式同 MDNS_LOG_LEVEL
	Level string `json:"level,omitempty"`

	// Format text 或 json
	Format string `json:"format,omitempty"`

	// File 日志文件路径，为空输出到 stderr
	File string `json:"file,omitempty"`
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:  "info",
		Format: "text",
	}
}

// Validate 校验日志配置
func (c LogConfig) Validate() error {
	switch strings.ToLower(c.Format) {
	case "", "text", "json":
		return nil
	}
	return invalid("log.format", "unknown format %q", c.Format)
}
