package session

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-mdns/internal/core/engine"
	"github.com/dep2p/go-mdns/internal/core/service"
)

// Module 是会话管理的 Fx 模块
var Module = fx.Module("core/session",
	fx.Provide(ProvideManager),
	fx.Invoke(registerLifecycle),
)

// ModuleInput Fx 输入参数
type ModuleInput struct {
	fx.In

	Engine   *engine.Engine
	Registry *service.Registry
	Clock    clock.Clock `optional:"true"`
}

// ProvideManager 提供会话登记表
func ProvideManager(in ModuleInput) *Manager {
	return NewManager(in.Engine, in.Registry, in.Clock)
}

// registerLifecycle 停止时关闭全部会话，记录的 goodbye 在传输关闭前发出
func registerLifecycle(lc fx.Lifecycle, m *Manager) {
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return m.Close()
		},
	})
}
