// Package log 组件日志入口
//
// 组件在包级变量中声明 Logger，日志调用时才解析到子系统 Logger，
// 因此运行时调整级别或输出目标对已声明的 Logger 同样生效。
//
//	var logger = log.Logger("core/cache")
//	logger.Debug("刷新记录", "key", key)
//
// 级别与格式由 MDNS_LOG_LEVEL / MDNS_LOG_FORMAT 环境变量控制。
package log

import (
	"context"
	"io"
	"log/slog"

	"github.com/dep2p/go-mdns/internal/util/logger"
)

// 日志级别
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// LazyLogger 懒加载组件 Logger
type LazyLogger struct {
	component string
}

// Logger 返回组件的 LazyLogger
func Logger(component string) *LazyLogger {
	return &LazyLogger{component: component}
}

func (l *LazyLogger) get() *slog.Logger {
	return logger.Logger(l.component)
}

// Component 返回组件名
func (l *LazyLogger) Component() string { return l.component }

// Debug 输出 Debug 级别日志
func (l *LazyLogger) Debug(msg string, args ...any) { l.get().Debug(msg, args...) }

// Info 输出 Info 级别日志
func (l *LazyLogger) Info(msg string, args ...any) { l.get().Info(msg, args...) }

// Warn 输出 Warn 级别日志
func (l *LazyLogger) Warn(msg string, args ...any) { l.get().Warn(msg, args...) }

// Error 输出 Error 级别日志
func (l *LazyLogger) Error(msg string, args ...any) { l.get().Error(msg, args...) }

// DebugContext 带 context 的 Debug 日志
func (l *LazyLogger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.get().DebugContext(ctx, msg, args...)
}

// InfoContext 带 context 的 Info 日志
func (l *LazyLogger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.get().InfoContext(ctx, msg, args...)
}

// Enabled 级别是否启用，用于跳过昂贵的日志参数构造
func (l *LazyLogger) Enabled(level slog.Level) bool {
	return l.get().Enabled(context.Background(), level)
}

// With 返回带附加属性的 slog.Logger
func (l *LazyLogger) With(args ...any) *slog.Logger {
	return l.get().With(args...)
}

// SetLevel 调整组件级别
func SetLevel(component string, level slog.Level) {
	logger.SetLevel(component, level)
}

// Configure 应用配置文件中的级别与格式，环境变量优先
//
//	log.Configure("cache=debug,info", "json")
func Configure(level, format string) {
	logger.Configure(level, format)
}

// SetAllLevels 调整所有已创建组件的级别
func SetAllLevels(level slog.Level) {
	logger.SetAllLevels(level)
}

// SetOutput 切换日志输出目标
//
//	file, _ := os.OpenFile("mdnsd.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
//	log.SetOutput(file)
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}
