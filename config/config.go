// Package config 提供 go-mdns 的统一配置
//
// 主 Config 由各组件的子配置组成，每个子配置在独立文件中定义，
// 各自提供 DefaultXxxConfig() 与 Validate()。
//
//	cfg := config.NewConfig()
//	cfg.Engine.CacheCapacity = 1024
//
//	cfg, err := config.LoadFile("/etc/mdnsd.json")
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrInvalidConfig 配置无效
var ErrInvalidConfig = errors.New("config: invalid")

// Config go-mdns 完整配置
type Config struct {
	// Engine 记录生命周期与缓存引擎
	Engine EngineConfig `json:"engine"`

	// Transport 组播收发
	Transport TransportConfig `json:"transport"`

	// Metrics Prometheus 指标
	Metrics MetricsConfig `json:"metrics"`

	// Log 日志
	Log LogConfig `json:"log"`

	// Introspect 本地自省服务
	Introspect IntrospectConfig `json:"introspect"`
}

// NewConfig 返回默认配置
func NewConfig() *Config {
	return &Config{
		Engine:     DefaultEngineConfig(),
		Transport:  DefaultTransportConfig(),
		Metrics:    DefaultMetricsConfig(),
		Log:        DefaultLogConfig(),
		Introspect: DefaultIntrospectConfig(),
	}
}

// Validate 校验全部子配置
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	if err := c.Transport.Validate(); err != nil {
		return err
	}
	if err := c.Metrics.Validate(); err != nil {
		return err
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}
	return c.Introspect.Validate()
}

// FromJSON 在默认配置之上解析 JSON，未出现的字段保持默认值
func FromJSON(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile 读取 JSON 配置文件
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return FromJSON(data)
}

// ToJSON 序列化为带缩进的 JSON
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// invalid 构造带字段名的校验错误
func invalid(field, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidConfig, field, fmt.Sprintf(format, args...))
}
