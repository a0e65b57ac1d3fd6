package engine

import (
	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-mdns/config"
	"github.com/dep2p/go-mdns/internal/core/metrics"
	pkgif "github.com/dep2p/go-mdns/pkg/interfaces"
)

// Module 是引擎的 Fx 模块
var Module = fx.Module("core/engine",
	fx.Provide(ProvideEngine),
)

// ModuleInput Fx 输入参数
type ModuleInput struct {
	fx.In

	Sender     pkgif.Sender
	UnifiedCfg *config.Config   `optional:"true"`
	Clock      clock.Clock      `optional:"true"`
	Grower     pkgif.Grower     `optional:"true"`
	Metrics    metrics.Reporter `optional:"true"`
	Transport  pkgif.Transport  `optional:"true"` // 提供查询目标接口
}

// ProvideEngine 提供引擎
func ProvideEngine(in ModuleInput) (*Engine, error) {
	opts := Options{
		Clock:   in.Clock,
		Sender:  in.Sender,
		Grower:  in.Grower,
		Metrics: in.Metrics,
	}
	if in.UnifiedCfg != nil {
		opts.Config = in.UnifiedCfg.Engine
	}
	if in.Transport != nil {
		opts.Interfaces = in.Transport.Interfaces()
	}
	return New(opts)
}
