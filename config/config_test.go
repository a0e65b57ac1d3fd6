package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewConfig 默认配置有效
func TestNewConfig(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 3, cfg.Engine.ProbeCount)
	assert.Equal(t, 250*time.Millisecond, cfg.Engine.ProbeInterval.Duration())
	assert.Equal(t, 8, cfg.Engine.AnnounceCount)
	assert.Equal(t, time.Hour, cfg.Engine.MaxQueryInterval.Duration())
	assert.Equal(t, 5353, cfg.Transport.Port)
	assert.False(t, cfg.Introspect.Enabled)
}

// TestFromJSON 部分字段覆盖默认值
func TestFromJSON(t *testing.T) {
	cfg, err := FromJSON([]byte(`{
		"engine": {"cache_capacity": 64, "probe_interval": "100ms"},
		"transport": {"enable_ipv6": false}
	}`))
	require.NoError(t, err)

	assert.Equal(t, 64, cfg.Engine.CacheCapacity)
	assert.Equal(t, 100*time.Millisecond, cfg.Engine.ProbeInterval.Duration())
	assert.Equal(t, 3, cfg.Engine.ProbeCount, "未出现的字段保持默认")
	assert.True(t, cfg.Transport.EnableIPv4)
	assert.False(t, cfg.Transport.EnableIPv6)
}

// TestFromJSON_Invalid 校验失败
func TestFromJSON_Invalid(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"负容量", `{"engine": {"cache_capacity": -1}}`},
		{"零探测", `{"engine": {"probe_count": 0}}`},
		{"通告上限过小", `{"engine": {"announce_interval": "2s", "max_announce_interval": "1s"}}`},
		{"无地址族", `{"transport": {"enable_ipv4": false, "enable_ipv6": false}}`},
		{"端口越界", `{"transport": {"port": 70000}}`},
		{"日志格式", `{"log": {"format": "xml"}}`},
		{"接收队列", `{"transport": {"receive_queue": 0}}`},
		{"自省地址", `{"introspect": {"enabled": true, "addr": "6060"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromJSON([]byte(tt.json))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
		})
	}
}

// TestDuration_JSON 字符串与纳秒两种格式
func TestDuration_JSON(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`"1m30s"`)))
	assert.Equal(t, 90*time.Second, d.Duration())

	require.NoError(t, d.UnmarshalJSON([]byte(`1000`)))
	assert.Equal(t, time.Microsecond, d.Duration())

	assert.Error(t, d.UnmarshalJSON([]byte(`"soon"`)))
	assert.Error(t, d.UnmarshalJSON([]byte(`true`)))

	out, err := Duration(250 * time.Millisecond).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"250ms"`, string(out))
}

// TestLoadFile 从文件加载
func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mdnsd.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"metrics": {"enabled": false}}`), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.False(t, cfg.Metrics.Enabled)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
