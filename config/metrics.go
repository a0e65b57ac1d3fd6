package config

// MetricsConfig 指标配置
type MetricsConfig struct {
	// Enabled 是否注册 Prometheus 指标
	Enabled bool `json:"enabled"`

	// Namespace 指标名前缀
	Namespace string `json:"namespace,omitempty"`
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "mdns",
	}
}

// Validate 校验指标配置
func (c MetricsConfig) Validate() error {
	if c.Enabled && c.Namespace == "" {
		return invalid("metrics.namespace", "required when metrics are enabled")
	}
	return nil
}
