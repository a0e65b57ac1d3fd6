package mdns

import (
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/dep2p/go-mdns/config"
	pkgif "github.com/dep2p/go-mdns/pkg/interfaces"
)

// Option 用户配置选项函数
type Option func(*options) error

// options 内部选项结构
type options struct {
	// 配置来源，两者都未设置时使用默认配置
	config     *config.Config
	configFile string

	// 覆盖项
	interfaces []string
	introspect string

	clock      clock.Clock
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer

	// 替换组播收发，测试使用
	transport pkgif.Transport

	// Fx 事件日志，为空时丢弃
	fxLogger *zap.Logger

	userFxOptions []fx.Option
}

func newOptions() *options {
	return &options{}
}

// buildConfig 合并配置来源与覆盖项并校验
func (o *options) buildConfig() (*config.Config, error) {
	var cfg *config.Config
	switch {
	case o.config != nil && o.configFile != "":
		return nil, errors.New("WithConfig and WithConfigFile are mutually exclusive")
	case o.configFile != "":
		loaded, err := config.LoadFile(o.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	case o.config != nil:
		copied := *o.config
		cfg = &copied
	default:
		cfg = config.NewConfig()
	}

	if len(o.interfaces) > 0 {
		cfg.Transport.Interfaces = append([]string(nil), o.interfaces...)
	}
	if o.introspect != "" {
		cfg.Introspect.Enabled = true
		cfg.Introspect.Addr = o.introspect
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              配置来源
// ════════════════════════════════════════════════════════════════════════════

// WithConfig 使用给定配置（复制后使用，调用方之后的修改不生效）
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return errors.New("config cannot be nil")
		}
		o.config = cfg
		return nil
	}
}

// WithConfigFile 从 JSON 文件加载配置
func WithConfigFile(path string) Option {
	return func(o *options) error {
		if path == "" {
			return errors.New("config file path cannot be empty")
		}
		o.configFile = path
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              覆盖项
// ════════════════════════════════════════════════════════════════════════════

// WithInterfaces 限定参与收发的网卡
//
// 示例：
//
//	mdns.WithInterfaces("eth0", "wlan0")
func WithInterfaces(names ...string) Option {
	return func(o *options) error {
		for _, n := range names {
			if n == "" {
				return errors.New("interface name cannot be empty")
			}
		}
		o.interfaces = names
		return nil
	}
}

// WithIntrospect 启用本地自省 HTTP 服务
func WithIntrospect(addr string) Option {
	return func(o *options) error {
		if addr == "" {
			return errors.New("introspect address cannot be empty")
		}
		o.introspect = addr
		return nil
	}
}

// WithClock 替换时间源，测试中配合 clock.NewMock 使用
func WithClock(clk clock.Clock) Option {
	return func(o *options) error {
		if clk == nil {
			return errors.New("clock cannot be nil")
		}
		o.clock = clk
		return nil
	}
}

// WithRegisterer 指标注册到给定的 Registerer
//
// 传入 *prometheus.Registry 时，自省服务的 /metrics 同样读取它。
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) error {
		if reg == nil {
			return errors.New("registerer cannot be nil")
		}
		o.registerer = reg
		if g, ok := reg.(prometheus.Gatherer); ok {
			o.gatherer = g
		}
		return nil
	}
}

// WithTransport 替换组播收发
func WithTransport(t pkgif.Transport) Option {
	return func(o *options) error {
		if t == nil {
			return errors.New("transport cannot be nil")
		}
		o.transport = t
		return nil
	}
}

// WithFxLogger 输出 Fx 内部事件
func WithFxLogger(l *zap.Logger) Option {
	return func(o *options) error {
		o.fxLogger = l
		return nil
	}
}

// WithFxOptions 追加自定义 Fx 选项
func WithFxOptions(opts ...fx.Option) Option {
	return func(o *options) error {
		o.userFxOptions = append(o.userFxOptions, opts...)
		return nil
	}
}
