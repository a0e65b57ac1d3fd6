package logger

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	mu       sync.Mutex
	loggers  = make(map[string]*slog.Logger)
	handlers = make(map[string]*levelHandler)
)

// Logger 返回子系统的 Logger，同名多次调用返回同一实例
//
//	var log = logger.Logger("core/cache")
//	log.Debug("插入记录", "key", key)
func Logger(subsystem string) *slog.Logger {
	mu.Lock()
	defer mu.Unlock()

	if l, ok := loggers[subsystem]; ok {
		return l
	}
	h := newHandler(subsystem, ConfigFromEnv())
	l := slog.New(h)
	loggers[subsystem] = l
	handlers[subsystem] = h
	return l
}

// SetLevel 运行时调整子系统级别；子系统尚未创建时先创建
func SetLevel(subsystem string, lvl slog.Level) {
	Logger(subsystem)
	mu.Lock()
	handlers[subsystem].level.Set(lvl)
	mu.Unlock()
}

// SetAllLevels 调整所有已创建子系统的级别
func SetAllLevels(lvl slog.Level) {
	mu.Lock()
	defer mu.Unlock()
	for _, h := range handlers {
		h.level.Set(lvl)
	}
}

// Configure 以配置文件中的取值作为环境变量的后备
//
// 环境变量已设置的项优先。已创建的子系统只更新级别，格式对之后创建的子系统生效。
func Configure(level, format string) {
	if v := os.Getenv(EnvLevel); v != "" {
		level = v
	}
	if v := os.Getenv(EnvFormat); v != "" {
		format = v
	}
	ConfigFromEnv()
	cfg := ParseConfig(level, format, os.Getenv(EnvAddSource))

	mu.Lock()
	defer mu.Unlock()
	envConfig = cfg
	for name, h := range handlers {
		h.level.Set(cfg.LevelFor(name))
	}
}

// SetOutput 切换全部子系统的输出目标，已创建的 Logger 同样生效
func SetOutput(w io.Writer) {
	outputMu.Lock()
	output = w
	outputMu.Unlock()
}

// Discard 返回丢弃所有日志的 Logger（测试用）
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}
