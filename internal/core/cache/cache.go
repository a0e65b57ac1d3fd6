package cache

import (
	"fmt"
	"math/rand"
	"net/netip"
	"time"

	pkgif "github.com/dep2p/go-mdns/pkg/interfaces"
	"github.com/dep2p/go-mdns/pkg/lib/log"
	"github.com/dep2p/go-mdns/pkg/lib/rr"
	"github.com/dep2p/go-mdns/pkg/types"
)

var logger = log.Logger("core/cache")

// HashSlots 哈希槽数
const HashSlots = 499

// ============================================================================
//                              配置与结果
// ============================================================================

// Config 缓存配置
type Config struct {
	// Capacity 条目上限，0 表示不缓存
	Capacity int
	// Grower 扩容协作者，可为 nil
	Grower pkgif.Grower
	// Rand 刷新抖动的随机源，nil 时使用时间种子
	Rand *rand.Rand
}

// Incoming 一条待入缓存的记录
type Incoming struct {
	Record     rr.Record
	Interface  types.InterfaceID
	Source     netip.AddrPort
	Packet     uint64
	CacheFlush bool
}

// Kind 插入结果
type Kind int

const (
	// KindIgnored 未改变缓存（未知记录的 goodbye）
	KindIgnored Kind = iota
	// KindNew 新条目
	KindNew
	// KindRefreshed 已有条目被刷新
	KindRefreshed
	// KindGoodbye 已有条目收到 goodbye，剩余 1 秒
	KindGoodbye
)

// String 返回结果名
func (k Kind) String() string {
	switch k {
	case KindNew:
		return "new"
	case KindRefreshed:
		return "refreshed"
	case KindGoodbye:
		return "goodbye"
	default:
		return "ignored"
	}
}

// Result InsertOrRefresh 的结果
type Result struct {
	Kind  Kind
	Entry *Entry
	// Removed 被 cache-flush 删除的条目
	Removed []*Entry
}

// Flushed 是否发生了 cache-flush 删除
func (r Result) Flushed() bool { return len(r.Removed) > 0 }

// TickResult Tick 的结果
type TickResult struct {
	// Expired 已过期并移除的条目
	Expired []*Entry
	// Refresh 到达刷新时间点、需要为其负责问题发送查询的条目
	Refresh []*Entry
	// Next 下一次需要 Tick 的时刻，零值表示无
	Next time.Time
}

// ============================================================================
//                              Cache
// ============================================================================

// group 同名条目组
type group struct {
	name    rr.Name
	entries []*Entry
}

// Cache 资源记录缓存
//
// 不是并发安全的，由引擎在锁内调用。
type Cache struct {
	slots    [HashSlots][]*group
	size     int
	capacity int
	grower   pkgif.Grower
	rnd      *rand.Rand
}

// New 创建缓存
func New(cfg Config) *Cache {
	rnd := cfg.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // 抖动不需要加密级随机
	}
	return &Cache{
		capacity: cfg.Capacity,
		grower:   cfg.Grower,
		rnd:      rnd,
	}
}

// Len 当前条目数
func (c *Cache) Len() int { return c.size }

// Capacity 当前容量
func (c *Cache) Capacity() int { return c.capacity }

// Enabled 是否允许缓存
func (c *Cache) Enabled() bool { return c.capacity > 0 }

func (c *Cache) slot(name rr.Name) int {
	return int(name.Hash() % HashSlots)
}

func (c *Cache) findGroup(name rr.Name) *group {
	for _, g := range c.slots[c.slot(name)] {
		if g.name.Equal(name) {
			return g
		}
	}
	return nil
}

// Lookup 返回同名组的全部条目（副本）
func (c *Cache) Lookup(name rr.Name) []*Entry {
	g := c.findGroup(name)
	if g == nil {
		return nil
	}
	return append([]*Entry(nil), g.entries...)
}

// Match 返回能回答问题 q 的未过期条目
//
// iface 为 InterfaceAny 时匹配所有接口。
func (c *Cache) Match(q rr.Key, iface types.InterfaceID, now time.Time) []*Entry {
	g := c.findGroup(q.Name)
	if g == nil {
		return nil
	}
	var out []*Entry
	for _, e := range g.entries {
		if e.Record.Answers(q) && iface.Matches(e.Interface) && !e.Expired(now) {
			out = append(out, e)
		}
	}
	return out
}

// Find 查找身份、数据、接口完全一致的条目
func (c *Cache) Find(rec rr.Record, iface types.InterfaceID) *Entry {
	g := c.findGroup(rec.Name)
	if g == nil {
		return nil
	}
	for _, e := range g.entries {
		if e.matches(rec, iface) {
			return e
		}
	}
	return nil
}

// Each 遍历全部条目，fn 返回 false 时停止
func (c *Cache) Each(fn func(*Entry) bool) {
	for i := range c.slots {
		for _, g := range c.slots[i] {
			for _, e := range g.entries {
				if !fn(e) {
					return
				}
			}
		}
	}
}

// Touch 记录一次使用
func (c *Cache) Touch(e *Entry, now time.Time) {
	e.UseCount++
	e.LastUsed = now
}

// ============================================================================
//                              插入、刷新、flush
// ============================================================================

// Refresh 精确匹配时原地刷新
//
// 没有匹配条目时返回 (nil, KindIgnored)。
func (c *Cache) Refresh(in Incoming, now time.Time) (*Entry, Kind) {
	e := c.Find(in.Record, in.Interface)
	if e == nil {
		return nil, KindIgnored
	}

	e.Received = now
	e.Source = in.Source
	e.packet = in.Packet
	e.CacheFlush = in.CacheFlush

	if in.Record.TTL == 0 {
		// goodbye：剩余 1 秒，给其他主机反对的机会，不再发刷新查询
		e.Record = in.Record.WithTTL(1)
		e.final = true
		logger.Debug("收到 goodbye", "record", e.Record.Key, "iface", e.Interface)
		return e, KindGoodbye
	}

	e.Record = in.Record
	e.final = false
	e.refreshStep = 0
	e.jitter = c.rnd.Float64() * maxRefreshJitter
	e.Unanswered = 0
	return e, KindRefreshed
}

// Flush 删除与 in 同身份、同接口、但未在本包刷新过的条目
func (c *Cache) Flush(in Incoming) []*Entry {
	g := c.findGroup(in.Record.Name)
	if g == nil {
		return nil
	}
	var removed []*Entry
	for _, e := range g.entries {
		if e.Interface != in.Interface || !e.Record.Key.Equal(in.Record.Key) {
			continue
		}
		if e.packet == in.Packet || e.Record.Data.Equal(in.Record.Data) {
			continue
		}
		removed = append(removed, e)
	}
	for _, e := range removed {
		c.Remove(e)
	}
	if len(removed) > 0 {
		logger.Debug("cache-flush 删除", "key", in.Record.Key, "count", len(removed))
	}
	return removed
}

// Insert 插入新条目；已存在时等同 Refresh
func (c *Cache) Insert(in Incoming, now time.Time) (*Entry, Kind, error) {
	if e, kind := c.Refresh(in, now); e != nil {
		return e, kind, nil
	}
	if in.Record.TTL == 0 {
		return nil, KindIgnored, nil
	}
	if c.capacity == 0 {
		return nil, KindIgnored, types.ErrNoCache
	}
	if c.size >= c.capacity && !c.grow() {
		return nil, KindIgnored, fmt.Errorf("%w: %d entries, growth declined", types.ErrNoCache, c.size)
	}

	e := &Entry{
		Record:     in.Record,
		Interface:  in.Interface,
		Source:     in.Source,
		Received:   now,
		CacheFlush: in.CacheFlush,
		packet:     in.Packet,
		jitter:     c.rnd.Float64() * maxRefreshJitter,
	}
	g := c.findGroup(in.Record.Name)
	if g == nil {
		g = &group{name: in.Record.Name}
		s := c.slot(in.Record.Name)
		c.slots[s] = append(c.slots[s], g)
	}
	g.entries = append(g.entries, e)
	c.size++
	return e, KindNew, nil
}

// grow 向 Grower 申请容量
func (c *Cache) grow() bool {
	if c.grower == nil {
		logger.Debug("缓存已满，没有扩容协作者", "size", c.size)
		return false
	}
	extra := c.grower.GrowCache(c.capacity)
	if extra <= 0 {
		logger.Debug("缓存已满，扩容被拒绝", "size", c.size)
		return false
	}
	c.capacity += extra
	logger.Info("缓存扩容", "capacity", c.capacity)
	return true
}

// InsertOrRefresh 处理单条记录：精确匹配刷新，否则按需 flush 后插入
func (c *Cache) InsertOrRefresh(in Incoming, now time.Time) (Result, error) {
	if e, kind := c.Refresh(in, now); e != nil {
		res := Result{Kind: kind, Entry: e}
		if in.CacheFlush && kind == KindRefreshed {
			res.Removed = c.Flush(in)
		}
		return res, nil
	}
	if in.Record.TTL == 0 {
		return Result{Kind: KindIgnored}, nil
	}
	var removed []*Entry
	if in.CacheFlush {
		removed = c.Flush(in)
	}
	e, kind, err := c.Insert(in, now)
	return Result{Kind: kind, Entry: e, Removed: removed}, err
}

// Remove 移除条目
func (c *Cache) Remove(e *Entry) {
	if e == nil || e.removed {
		return
	}
	s := c.slot(e.Record.Name)
	groups := c.slots[s]
	for gi, g := range groups {
		if !g.name.Equal(e.Record.Name) {
			continue
		}
		for i, x := range g.entries {
			if x != e {
				continue
			}
			g.entries = append(g.entries[:i], g.entries[i+1:]...)
			e.removed = true
			c.size--
			break
		}
		if len(g.entries) == 0 {
			c.slots[s] = append(groups[:gi], groups[gi+1:]...)
		}
		return
	}
}

// PurgeInterface 移除某接口上的全部条目
func (c *Cache) PurgeInterface(id types.InterfaceID) []*Entry {
	var purged []*Entry
	c.Each(func(e *Entry) bool {
		if e.Interface == id {
			purged = append(purged, e)
		}
		return true
	})
	for _, e := range purged {
		c.Remove(e)
	}
	return purged
}

// ============================================================================
//                              Tick
// ============================================================================

// Tick 移除过期条目，找出到达刷新时间点的条目，并计算下一次 Tick 时刻
func (c *Cache) Tick(now time.Time) TickResult {
	var res TickResult

	c.Each(func(e *Entry) bool {
		if e.Expired(now) {
			res.Expired = append(res.Expired, e)
			return true
		}
		if at, ok := e.nextRefresh(); ok && !at.After(now) {
			for {
				e.refreshStep++
				at, ok = e.nextRefresh()
				if !ok || at.After(now) {
					break
				}
			}
			e.Unanswered++
			e.LastUnanswered = now
			res.Refresh = append(res.Refresh, e)
		}
		return true
	})

	for _, e := range res.Expired {
		c.Remove(e)
	}

	c.Each(func(e *Entry) bool {
		res.Next = earliest(res.Next, e.Expires())
		if at, ok := e.nextRefresh(); ok {
			res.Next = earliest(res.Next, at)
		}
		return true
	})
	return res
}

// earliest 返回较早的非零时刻
func earliest(a, b time.Time) time.Time {
	if a.IsZero() || (!b.IsZero() && b.Before(a)) {
		return b
	}
	return a
}
