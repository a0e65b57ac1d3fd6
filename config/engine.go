package config

import "time"

// EngineConfig 引擎配置
//
// 默认值取自组播 DNS 的常规取值：探测 3 次、间隔 250ms；
// 通告 8 次、从 1s 起翻倍；查询退避从 1s 翻倍到 60min。
type EngineConfig struct {
	// CacheCapacity 缓存条目上限，0 表示不缓存
	CacheCapacity int `json:"cache_capacity"`

	// ProbeCount 唯一记录的探测次数
	ProbeCount int `json:"probe_count"`

	// ProbeInterval 探测间隔
	ProbeInterval Duration `json:"probe_interval"`

	// AnnounceCount 通告次数
	AnnounceCount int `json:"announce_count"`

	// AnnounceInterval 第一次与第二次通告之间的间隔，之后翻倍
	AnnounceInterval Duration `json:"announce_interval"`

	// MaxAnnounceInterval 通告间隔上限
	MaxAnnounceInterval Duration `json:"max_announce_interval"`

	// InitialQueryInterval 查询初始间隔
	InitialQueryInterval Duration `json:"initial_query_interval"`

	// MaxQueryInterval 查询退避上限
	MaxQueryInterval Duration `json:"max_query_interval"`

	// RecentSendersRing 每个问题记录的"他人已问"条目数
	RecentSendersRing int `json:"recent_senders_ring"`

	// ResponseRateLimit 同一记录在同一接口上组播应答的最小间隔
	ResponseRateLimit Duration `json:"response_rate_limit"`

	// ResponseLimiterSize 应答限速表容量
	ResponseLimiterSize int `json:"response_limiter_size"`

	// MaxRenameAttempts 自动改名时跳过本地已占用名字的最大尝试次数
	MaxRenameAttempts int `json:"max_rename_attempts"`
}

// DefaultEngineConfig 返回默认引擎配置
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		CacheCapacity:        512,
		ProbeCount:           3,
		ProbeInterval:        Duration(250 * time.Millisecond),
		AnnounceCount:        8,
		AnnounceInterval:     Duration(time.Second),
		MaxAnnounceInterval:  Duration(time.Minute),
		InitialQueryInterval: Duration(time.Second),
		MaxQueryInterval:     Duration(time.Hour),
		RecentSendersRing:    8,
		ResponseRateLimit:    Duration(time.Second),
		ResponseLimiterSize:  1024,
		MaxRenameAttempts:    32,
	}
}

// Validate 校验引擎配置
func (c EngineConfig) Validate() error {
	switch {
	case c.CacheCapacity < 0:
		return invalid("engine.cache_capacity", "must not be negative")
	case c.ProbeCount < 1:
		return invalid("engine.probe_count", "must be at least 1")
	case c.ProbeInterval <= 0:
		return invalid("engine.probe_interval", "must be positive")
	case c.AnnounceCount < 1:
		return invalid("engine.announce_count", "must be at least 1")
	case c.AnnounceInterval <= 0:
		return invalid("engine.announce_interval", "must be positive")
	case c.MaxAnnounceInterval < c.AnnounceInterval:
		return invalid("engine.max_announce_interval", "must not be below announce_interval")
	case c.InitialQueryInterval <= 0:
		return invalid("engine.initial_query_interval", "must be positive")
	case c.MaxQueryInterval < c.InitialQueryInterval:
		return invalid("engine.max_query_interval", "must not be below initial_query_interval")
	case c.RecentSendersRing < 1:
		return invalid("engine.recent_senders_ring", "must be at least 1")
	case c.ResponseRateLimit < 0:
		return invalid("engine.response_rate_limit", "must not be negative")
	case c.ResponseLimiterSize < 1:
		return invalid("engine.response_limiter_size", "must be at least 1")
	case c.MaxRenameAttempts < 1:
		return invalid("engine.max_rename_attempts", "must be at least 1")
	}
	return nil
}
