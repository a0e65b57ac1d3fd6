package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-mdns/pkg/lib/rr"
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	r, err := New(Config{Enabled: true, Namespace: "test"}, reg)
	require.NoError(t, err)
	c, ok := r.(*Collector)
	require.True(t, ok)
	return c, reg
}

// TestCollector_Counters 计数器按标签累加
func TestCollector_Counters(t *testing.T) {
	c, _ := newTestCollector(t)

	c.PacketReceived(true)
	c.PacketReceived(true)
	c.PacketReceived(false)
	c.MessageSent(rr.MessageProbe)
	c.SendError()
	c.Cache(CacheNew, 3)
	c.Cache(CacheExpired, 0)
	c.Suppressed(SuppressKnownAnswer)
	c.Conflict()
	c.Delivered(true)
	c.Delivered(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.packets.WithLabelValues("query")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.packets.WithLabelValues("response")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.sent.WithLabelValues("probe")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.sendErrors))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.cache.WithLabelValues("new")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.suppressed.WithLabelValues("known_answer")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.conflicts))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.delivered.WithLabelValues("true")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.cache), "数量为 0 的事件不产生序列")
}

// TestCollector_Gauges 规模指标
func TestCollector_Gauges(t *testing.T) {
	c, _ := newTestCollector(t)
	c.Gauges(10, 2, 3)

	assert.Equal(t, 10.0, testutil.ToFloat64(c.cacheEntries))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.records))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.questions))
}

// TestNew_Disabled 关闭时返回 Nop
func TestNew_Disabled(t *testing.T) {
	r, err := New(Config{}, prometheus.NewRegistry())
	require.NoError(t, err)
	assert.Equal(t, Nop{}, r)
}

// TestNew_DuplicateRegistration 重复注册返回错误
func TestNew_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(DefaultConfig(), reg)
	require.NoError(t, err)

	_, err = New(DefaultConfig(), reg)
	assert.Error(t, err)
}
