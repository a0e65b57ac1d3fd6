// Package logger 子系统日志
//
// 环境变量：
//   - MDNS_LOG_LEVEL: 子系统=级别,...,默认级别
//     示例: cache=debug,engine=warn,info
//   - MDNS_LOG_FORMAT: text 或 json
//   - MDNS_LOG_ADD_SOURCE: true 或 false
package logger

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

// 环境变量名
const (
	EnvLevel     = "MDNS_LOG_LEVEL"
	EnvFormat    = "MDNS_LOG_FORMAT"
	EnvAddSource = "MDNS_LOG_ADD_SOURCE"
)

// Format 输出格式
type Format int

const (
	// FormatText 文本格式（默认）
	FormatText Format = iota
	// FormatJSON JSON 格式
	FormatJSON
)

// Config 日志配置
type Config struct {
	// DefaultLevel 未单独配置的子系统使用的级别
	DefaultLevel slog.Level
	// Subsystems 子系统级别
	Subsystems map[string]slog.Level
	Format     Format
	AddSource  bool
}

// LevelFor 返回子系统的级别
//
// 子系统名按 "/" 分段，逐级向上匹配：core/cache 未配置时使用 core 的级别，
// 最后回落到末段名 cache，再回落到默认级别。
func (c *Config) LevelFor(subsystem string) slog.Level {
	for s := subsystem; s != ""; {
		if lvl, ok := c.Subsystems[s]; ok {
			return lvl
		}
		i := strings.LastIndexByte(s, '/')
		if i < 0 {
			break
		}
		s = s[:i]
	}
	if i := strings.LastIndexByte(subsystem, '/'); i >= 0 {
		if lvl, ok := c.Subsystems[subsystem[i+1:]]; ok {
			return lvl
		}
	}
	return c.DefaultLevel
}

var (
	envConfig     *Config
	envConfigOnce sync.Once
)

// ConfigFromEnv 从环境变量读取配置（进程内只解析一次）
func ConfigFromEnv() *Config {
	envConfigOnce.Do(func() {
		envConfig = ParseConfig(os.Getenv(EnvLevel), os.Getenv(EnvFormat), os.Getenv(EnvAddSource))
	})
	return envConfig
}

// ParseConfig 解析三个环境变量的取值
func ParseConfig(level, format, addSource string) *Config {
	cfg := &Config{
		DefaultLevel: slog.LevelInfo,
		Subsystems:   make(map[string]slog.Level),
	}

	for _, part := range strings.Split(level, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, lvlName, found := strings.Cut(part, "=")
		if !found {
			if lvl, ok := ParseLevel(name); ok {
				cfg.DefaultLevel = lvl
			}
			continue
		}
		if lvl, ok := ParseLevel(strings.TrimSpace(lvlName)); ok {
			cfg.Subsystems[strings.TrimSpace(name)] = lvl
		}
	}

	if strings.EqualFold(strings.TrimSpace(format), "json") {
		cfg.Format = FormatJSON
	}

	switch strings.ToLower(strings.TrimSpace(addSource)) {
	case "1", "true", "yes":
		cfg.AddSource = true
	}
	return cfg
}

// ParseLevel 解析级别名
func ParseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

// ResetConfig 丢弃缓存的环境配置（仅用于测试）
func ResetConfig() {
	envConfigOnce = sync.Once{}
	envConfig = nil
}
