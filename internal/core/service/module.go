package service

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-mdns/internal/core/engine"
)

// Module 是服务层的 Fx 模块
var Module = fx.Module("core/service",
	fx.Provide(ProvideRegistry),
)

// ProvideRegistry 提供服务注册表
func ProvideRegistry(e *engine.Engine) *Registry {
	return NewRegistry(e)
}
