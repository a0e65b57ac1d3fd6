package mdns

import (
	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-mdns/config"
	"github.com/dep2p/go-mdns/internal/core/engine"
	"github.com/dep2p/go-mdns/internal/core/introspect"
	"github.com/dep2p/go-mdns/internal/core/metrics"
	"github.com/dep2p/go-mdns/internal/core/service"
	"github.com/dep2p/go-mdns/internal/core/session"
	"github.com/dep2p/go-mdns/internal/driver"
	"github.com/dep2p/go-mdns/internal/transport"
	pkgif "github.com/dep2p/go-mdns/pkg/interfaces"
)

// components 从 Fx 容器取出的组件
type components struct {
	engine   *engine.Engine
	registry *service.Registry
	sessions *session.Manager
	driver   *driver.Driver
}

// buildFxApp 构建 Fx 应用
//
// 模块顺序决定停止顺序（逆序）：会话先于驱动停止，撤销记录的 goodbye
// 在收发器关闭之前发出。
func buildFxApp(cfg *config.Config, o *options, out *components) *fx.App {
	fxOpts := []fx.Option{
		fx.Supply(cfg),
	}

	if o.clock != nil {
		clk := o.clock
		fxOpts = append(fxOpts, fx.Provide(func() clock.Clock { return clk }))
	}

	// 每个实例默认使用独立的 Registry，同进程多实例互不冲突
	reg, gatherer := o.registerer, o.gatherer
	if reg == nil {
		r := prometheus.NewRegistry()
		reg, gatherer = r, r
	}
	fxOpts = append(fxOpts, fx.Provide(func() prometheus.Registerer { return reg }))
	if gatherer != nil {
		fxOpts = append(fxOpts, fx.Provide(func() prometheus.Gatherer { return gatherer }))
	}

	fxOpts = append(fxOpts, metrics.Module)

	if o.transport != nil {
		t := o.transport
		fxOpts = append(fxOpts, fx.Provide(
			func() pkgif.Transport { return t },
			func() pkgif.Sender { return t },
		))
	} else {
		fxOpts = append(fxOpts, transport.Module)
	}

	fxOpts = append(fxOpts,
		engine.Module,
		service.Module,
		driver.Module,
		session.Module,
	)

	if cfg.Introspect.Enabled {
		fxOpts = append(fxOpts, introspect.Module())
	}

	fxOpts = append(fxOpts, o.userFxOptions...)

	fxOpts = append(fxOpts, fx.Populate(
		&out.engine,
		&out.registry,
		&out.sessions,
		&out.driver,
	))

	fxLogger := o.fxLogger
	if fxLogger == nil {
		fxLogger = zap.NewNop()
	}
	fxOpts = append(fxOpts, fx.WithLogger(func() fxevent.Logger {
		return &fxevent.ZapLogger{Logger: fxLogger}
	}))

	return fx.New(fxOpts...)
}
