package config

import "net"

// IntrospectConfig 本地自省 HTTP 服务配置
type IntrospectConfig struct {
	// Enabled 是否启动自省服务
	Enabled bool `json:"enabled"`

	// Addr 监听地址，默认只绑定回环地址
	Addr string `json:"addr,omitempty"`
}

// DefaultIntrospectConfig 返回默认自省配置
func DefaultIntrospectConfig() IntrospectConfig {
	return IntrospectConfig{
		Addr: "127.0.0.1:6060",
	}
}

// Validate 校验自省配置
func (c IntrospectConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return invalid("introspect.addr", "%v", err)
	}
	return nil
}
