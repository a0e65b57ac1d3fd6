package cache

import (
	"net/netip"
	"time"

	"github.com/dep2p/go-mdns/pkg/lib/rr"
	"github.com/dep2p/go-mdns/pkg/types"
)

// refreshPoints 主动刷新查询的时间点（原始 TTL 的比例）
var refreshPoints = [...]float64{0.80, 0.85, 0.90, 0.95}

// maxRefreshJitter 刷新时间点的随机抖动上限（原始 TTL 的比例）
const maxRefreshJitter = 0.02

// Entry 缓存条目
//
// Record.TTL 保存最近一次收到的原始 TTL。
type Entry struct {
	Record    rr.Record
	Interface types.InterfaceID
	Source    netip.AddrPort
	Received  time.Time

	// CacheFlush 最近一次收到时是否带 cache-flush 位
	CacheFlush bool

	// Question 负责刷新该条目的活动问题，0 表示没有
	Question uint64

	// Unanswered 已发出但尚未得到应答的刷新查询数
	Unanswered int
	// LastUnanswered Unanswered 最近一次增加的时间
	LastUnanswered time.Time

	UseCount int
	LastUsed time.Time

	packet      uint64
	refreshStep int
	jitter      float64
	final       bool // 收到 goodbye，不再刷新
	removed     bool
}

// OriginalTTL 原始 TTL
func (e *Entry) OriginalTTL() time.Duration {
	return time.Duration(e.Record.TTL) * time.Second
}

// Expires 过期时刻
func (e *Entry) Expires() time.Time {
	return e.Received.Add(e.OriginalTTL())
}

// Remaining 剩余 TTL
func (e *Entry) Remaining(now time.Time) time.Duration {
	elapsed := now.Sub(e.Received)
	if elapsed < 0 {
		elapsed = 0
	}
	if r := e.OriginalTTL() - elapsed; r > 0 {
		return r
	}
	return 0
}

// RemainingTTL 剩余 TTL（整秒，向下取整）
func (e *Entry) RemainingTTL(now time.Time) uint32 {
	return uint32(e.Remaining(now) / time.Second)
}

// Expired 是否已过期
func (e *Entry) Expired(now time.Time) bool {
	return !now.Before(e.Expires())
}

// Packet 最近一次刷新所在的包序号
func (e *Entry) Packet() uint64 { return e.packet }

// Final 是否已收到 goodbye
func (e *Entry) Final() bool { return e.final }

// Removed 是否已从缓存移除
func (e *Entry) Removed() bool { return e.removed }

// RecordWithTTL 返回带当前剩余 TTL 的记录，用于已知答案
func (e *Entry) RecordWithTTL(now time.Time) rr.Record {
	return e.Record.WithTTL(e.RemainingTTL(now))
}

// nextRefresh 下一次刷新查询的时刻
func (e *Entry) nextRefresh() (time.Time, bool) {
	if e.final || e.Question == 0 || e.refreshStep >= len(refreshPoints) {
		return time.Time{}, false
	}
	frac := refreshPoints[e.refreshStep] + e.jitter
	return e.Received.Add(time.Duration(float64(e.OriginalTTL()) * frac)), true
}

// matches 身份、数据、接口完全一致
func (e *Entry) matches(rec rr.Record, iface types.InterfaceID) bool {
	return e.Interface == iface && e.Record.Identical(rec)
}
