package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-mdns/config"
)

// TestModule_Provides 模块提供 Reporter 并注册到给定 Registerer
func TestModule_Provides(t *testing.T) {
	reg := prometheus.NewRegistry()
	var reporter Reporter

	app := fxtest.New(t,
		fx.Provide(func() prometheus.Registerer { return reg }),
		Module,
		fx.Populate(&reporter),
	)
	defer app.RequireStart().RequireStop()

	require.NotNil(t, reporter)
	_, ok := reporter.(*Collector)
	assert.True(t, ok)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

// TestModule_Disabled 配置关闭时提供 Nop
func TestModule_Disabled(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Metrics.Enabled = false
	var reporter Reporter

	app := fxtest.New(t,
		fx.Supply(cfg),
		fx.Provide(func() prometheus.Registerer { return prometheus.NewRegistry() }),
		Module,
		fx.Populate(&reporter),
	)
	defer app.RequireStart().RequireStop()

	assert.Equal(t, Nop{}, reporter)
}
