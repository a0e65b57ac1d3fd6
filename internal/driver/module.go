package driver

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-mdns/config"
	"github.com/dep2p/go-mdns/internal/core/engine"
	pkgif "github.com/dep2p/go-mdns/pkg/interfaces"
)

// Module 是驱动的 Fx 模块
var Module = fx.Module("driver",
	fx.Provide(ProvideDriver),
	fx.Invoke(registerLifecycle),
)

// ModuleInput Fx 输入参数
type ModuleInput struct {
	fx.In

	Engine     *engine.Engine
	Transport  pkgif.Transport
	UnifiedCfg *config.Config `optional:"true"`
}

// ProvideDriver 提供驱动
func ProvideDriver(in ModuleInput) *Driver {
	size := 0
	if in.UnifiedCfg != nil {
		size = in.UnifiedCfg.Transport.ReceiveQueue
	}
	return New(in.Engine, in.Transport, size)
}

type lifecycleInput struct {
	fx.In

	LC     fx.Lifecycle
	Driver *Driver
}

func registerLifecycle(in lifecycleInput) {
	in.LC.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return in.Driver.Start()
		},
		OnStop: func(ctx context.Context) error {
			return in.Driver.Stop(ctx)
		},
	})
}
