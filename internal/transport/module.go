package transport

import (
	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-mdns/config"
	"github.com/dep2p/go-mdns/internal/core/engine"
	pkgif "github.com/dep2p/go-mdns/pkg/interfaces"
)

// Module 是组播收发的 Fx 模块
var Module = fx.Module("transport",
	fx.Provide(ProvideTransport),
	fx.Invoke(bindEngine),
)

// ModuleInput Fx 输入参数
type ModuleInput struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
	Clock      clock.Clock    `optional:"true"`
}

// ModuleOutput Fx 输出
type ModuleOutput struct {
	fx.Out

	Transport *Transport
	Generic   pkgif.Transport
	Sender    pkgif.Sender
}

// ProvideTransport 提供收发器
func ProvideTransport(in ModuleInput) (ModuleOutput, error) {
	cfg := config.DefaultTransportConfig()
	if in.UnifiedCfg != nil {
		cfg = in.UnifiedCfg.Transport
	}
	var opts []Option
	if in.Clock != nil {
		opts = append(opts, WithClock(in.Clock))
	}
	t, err := New(cfg, opts...)
	if err != nil {
		return ModuleOutput{}, err
	}
	return ModuleOutput{Transport: t, Generic: t, Sender: t}, nil
}

// bindEngine 发送失败交给引擎处理
func bindEngine(t *Transport, e *engine.Engine) {
	t.OnSendError(e.ReportSendError)
}
