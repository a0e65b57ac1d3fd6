package engine

import (
	"math/rand"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-mdns/config"
	"github.com/dep2p/go-mdns/internal/core/metrics"
	"github.com/dep2p/go-mdns/pkg/interfaces"
	"github.com/dep2p/go-mdns/pkg/types"
)

// Options 引擎构造参数
//
// 除 Sender 外均可为零值。
type Options struct {
	Config config.EngineConfig

	// Clock 时间源，默认 clock.New()
	Clock clock.Clock

	Sender  interfaces.Sender
	Waker   interfaces.Waker
	Grower  interfaces.Grower
	Metrics metrics.Reporter

	// Interfaces 任意接口问题的查询目标接口，空表示交给发送协作者广播
	Interfaces []types.InterfaceID

	// Rand 探测延迟、刷新抖动与随机改名后缀的随机源
	Rand *rand.Rand
}

func (o *Options) fill() {
	if o.Config == (config.EngineConfig{}) {
		o.Config = config.DefaultEngineConfig()
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.Metrics == nil {
		o.Metrics = metrics.Nop{}
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewSource(o.Clock.Now().UnixNano())) //nolint:gosec // 抖动不需要加密级随机
	}
}
