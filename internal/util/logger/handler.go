package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	output   io.Writer = os.Stderr
	outputMu sync.RWMutex
)

// swappableWriter 每次写入时读取当前输出目标
type swappableWriter struct{}

func (swappableWriter) Write(p []byte) (int, error) {
	outputMu.RLock()
	w := output
	outputMu.RUnlock()
	return w.Write(p)
}

// levelHandler 带独立可调级别的 slog.Handler
type levelHandler struct {
	level *slog.LevelVar
	inner slog.Handler
}

func newHandler(subsystem string, cfg *Config) *levelHandler {
	lv := new(slog.LevelVar)
	lv.Set(cfg.LevelFor(subsystem))

	opts := &slog.HandlerOptions{
		Level:     lv,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.TimeKey:
				a.Key = "ts"
			case slog.LevelKey:
				if lvl, ok := a.Value.Any().(slog.Level); ok {
					a.Value = slog.StringValue(levelName(lvl))
				}
			}
			return a
		},
	}

	var inner slog.Handler
	if cfg.Format == FormatJSON {
		inner = slog.NewJSONHandler(swappableWriter{}, opts)
	} else {
		inner = slog.NewTextHandler(swappableWriter{}, opts)
	}
	return &levelHandler{
		level: lv,
		inner: inner.WithAttrs([]slog.Attr{slog.String("subsystem", subsystem)}),
	}
}

func (h *levelHandler) Enabled(_ context.Context, lvl slog.Level) bool {
	return lvl >= h.level.Level()
}

func (h *levelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.inner.Handle(ctx, r)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{level: h.level, inner: h.inner.WithAttrs(attrs)}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{level: h.level, inner: h.inner.WithGroup(name)}
}

func levelName(lvl slog.Level) string {
	switch {
	case lvl < slog.LevelInfo:
		return "debug"
	case lvl < slog.LevelWarn:
		return "info"
	case lvl < slog.LevelError:
		return "warn"
	default:
		return "error"
	}
}

// discardHandler 丢弃所有日志
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
