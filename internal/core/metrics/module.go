package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-mdns/config"
)

// ConfigFromUnified 从统一配置创建指标配置
func ConfigFromUnified(cfg *config.Config) Config {
	if cfg == nil {
		return DefaultConfig()
	}
	return Config{
		Enabled:   cfg.Metrics.Enabled,
		Namespace: cfg.Metrics.Namespace,
	}
}

// Params Metrics 依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config        `optional:"true"`
	Registerer prometheus.Registerer `optional:"true"`
}

// Module 是 metrics 的 Fx 模块
var Module = fx.Module("metrics",
	fx.Provide(NewFromParams),
)

// NewFromParams 从参数创建 Reporter
func NewFromParams(p Params) (Reporter, error) {
	reg := p.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return New(ConfigFromUnified(p.UnifiedCfg), reg)
}
