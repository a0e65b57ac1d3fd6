package introspect

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-mdns/config"
	"github.com/dep2p/go-mdns/internal/core/engine"
	"github.com/dep2p/go-mdns/internal/core/session"
)

// ModuleInput 模块输入
type ModuleInput struct {
	fx.In

	Engine     *engine.Engine
	Sessions   *session.Manager    `optional:"true"`
	Gatherer   prometheus.Gatherer `optional:"true"`
	UnifiedCfg *config.Config      `optional:"true"`
}

// ModuleOutput 模块输出
type ModuleOutput struct {
	fx.Out

	Server *Server
}

// ProvideServer 提供自省服务
func ProvideServer(in ModuleInput) ModuleOutput {
	cfg := Config{
		Engine:   in.Engine,
		Gatherer: in.Gatherer,
	}
	if in.Sessions != nil {
		cfg.Sessions = in.Sessions
	}
	if in.UnifiedCfg != nil {
		cfg.Addr = in.UnifiedCfg.Introspect.Addr
	}
	return ModuleOutput{Server: New(cfg)}
}

// Module 返回 introspect fx 模块
func Module() fx.Option {
	return fx.Module("introspect",
		fx.Provide(ProvideServer),
		fx.Invoke(func(lc fx.Lifecycle, s *Server) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					return s.Start(ctx)
				},
				OnStop: func(context.Context) error {
					return s.Stop()
				},
			})
		}),
	)
}
