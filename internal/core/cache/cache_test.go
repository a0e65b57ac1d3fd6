package cache

import (
	"errors"
	"math/rand"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgif "github.com/dep2p/go-mdns/pkg/interfaces"
	"github.com/dep2p/go-mdns/pkg/lib/rr"
	"github.com/dep2p/go-mdns/pkg/types"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newCache(capacity int) *Cache {
	return New(Config{Capacity: capacity, Rand: rand.New(rand.NewSource(1))})
}

func aRecord(t *testing.T, name, addr string, ttl uint32) rr.Record {
	t.Helper()
	r, err := rr.NewA(name, netip.MustParseAddr(addr), ttl)
	require.NoError(t, err)
	return r
}

func incoming(r rr.Record, packet uint64, flush bool) Incoming {
	return Incoming{Record: r, Interface: 1, Packet: packet, CacheFlush: flush}
}

// TestCache_InsertAndLookup 同名记录落在同一组
func TestCache_InsertAndLookup(t *testing.T) {
	c := newCache(16)

	res, err := c.InsertOrRefresh(incoming(aRecord(t, "host.local", "192.0.2.1", 120), 1, false), t0)
	require.NoError(t, err)
	assert.Equal(t, KindNew, res.Kind)

	res, err = c.InsertOrRefresh(incoming(aRecord(t, "HOST.local", "192.0.2.2", 120), 1, false), t0)
	require.NoError(t, err)
	assert.Equal(t, KindNew, res.Kind)

	assert.Len(t, c.Lookup(rr.MustName("host.LOCAL")), 2)
	assert.Equal(t, 2, c.Len())
	assert.Empty(t, c.Lookup(rr.MustName("other.local")))
}

// TestCache_RefreshInPlace 精确匹配原地刷新
func TestCache_RefreshInPlace(t *testing.T) {
	c := newCache(16)
	r := aRecord(t, "host.local", "192.0.2.1", 120)

	first, err := c.InsertOrRefresh(incoming(r, 1, false), t0)
	require.NoError(t, err)

	later := t0.Add(60 * time.Second)
	res, err := c.InsertOrRefresh(incoming(r.WithTTL(240), 2, false), later)
	require.NoError(t, err)

	assert.Equal(t, KindRefreshed, res.Kind)
	assert.Same(t, first.Entry, res.Entry)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, later, res.Entry.Received)
	assert.Equal(t, 240*time.Second, res.Entry.Remaining(later))
}

// TestCache_TTLMonotonic 两次刷新之间剩余 TTL 单调不增
func TestCache_TTLMonotonic(t *testing.T) {
	c := newCache(16)
	res, err := c.InsertOrRefresh(incoming(aRecord(t, "host.local", "192.0.2.1", 10), 1, false), t0)
	require.NoError(t, err)
	e := res.Entry

	prev := e.Remaining(t0)
	assert.Equal(t, 10*time.Second, prev)
	for step := 1; step <= 30; step++ {
		now := t0.Add(time.Duration(step) * 500 * time.Millisecond)
		cur := e.Remaining(now)
		assert.LessOrEqual(t, cur, prev)
		prev = cur
	}
	assert.Zero(t, prev)
	assert.True(t, e.Expired(t0.Add(10*time.Second)))

	// 时钟回拨不会让剩余 TTL 超过原始 TTL
	assert.Equal(t, 10*time.Second, e.Remaining(t0.Add(-time.Hour)))
}

// TestCache_FlushCorrectness A、B、C 在缓存中，一个包带来 A 与新的 D
func TestCache_FlushCorrectness(t *testing.T) {
	c := newCache(16)
	a := aRecord(t, "host.local", "192.0.2.1", 120)
	b := aRecord(t, "host.local", "192.0.2.2", 120)
	cc := aRecord(t, "host.local", "192.0.2.3", 120)
	d := aRecord(t, "host.local", "192.0.2.4", 120)

	for _, r := range []rr.Record{a, b, cc} {
		_, err := c.InsertOrRefresh(incoming(r, 1, false), t0)
		require.NoError(t, err)
	}

	now := t0.Add(time.Second)
	// 引擎的两遍处理：先刷新，再 flush + 插入
	e, kind := c.Refresh(incoming(a, 2, true), now)
	require.NotNil(t, e)
	assert.Equal(t, KindRefreshed, kind)

	removed := c.Flush(incoming(d, 2, true))
	_, kind, err := c.Insert(incoming(d, 2, true), now)
	require.NoError(t, err)
	assert.Equal(t, KindNew, kind)

	assert.Len(t, removed, 2)
	assert.NotNil(t, c.Find(a, 1))
	assert.NotNil(t, c.Find(d, 1))
	assert.Nil(t, c.Find(b, 1))
	assert.Nil(t, c.Find(cc, 1))
	assert.Equal(t, 2, c.Len())
}

// TestCache_FlushSamePacketCoexist 同一包内多条带 flush 位的应答共存
func TestCache_FlushSamePacketCoexist(t *testing.T) {
	c := newCache(16)
	old := aRecord(t, "host.local", "192.0.2.9", 120)
	_, err := c.InsertOrRefresh(incoming(old, 1, false), t0)
	require.NoError(t, err)

	x := aRecord(t, "host.local", "192.0.2.1", 120)
	y := aRecord(t, "host.local", "192.0.2.2", 120)
	for _, r := range []rr.Record{x, y} {
		_, err := c.InsertOrRefresh(incoming(r, 7, true), t0)
		require.NoError(t, err)
	}

	assert.Nil(t, c.Find(old, 1))
	assert.NotNil(t, c.Find(x, 1))
	assert.NotNil(t, c.Find(y, 1))
}

// TestCache_FlushScope flush 不影响其他类型与其他接口
func TestCache_FlushScope(t *testing.T) {
	c := newCache(16)
	a := aRecord(t, "host.local", "192.0.2.1", 120)
	txt, err := rr.NewTXT("host.local", 120, "k=v")
	require.NoError(t, err)

	_, err = c.InsertOrRefresh(incoming(a, 1, false), t0)
	require.NoError(t, err)
	_, err = c.InsertOrRefresh(incoming(txt, 1, false), t0)
	require.NoError(t, err)
	_, err = c.InsertOrRefresh(Incoming{Record: a, Interface: 2, Packet: 1}, t0)
	require.NoError(t, err)

	res, err := c.InsertOrRefresh(incoming(aRecord(t, "host.local", "192.0.2.5", 120), 2, true), t0)
	require.NoError(t, err)

	require.Len(t, res.Removed, 1)
	assert.Equal(t, types.InterfaceID(1), res.Removed[0].Interface)
	assert.NotNil(t, c.Find(txt, 1))
	assert.NotNil(t, c.Find(a, 2))
}

// TestCache_Goodbye 已知记录的 goodbye 剩余 1 秒，未知记录的 goodbye 被忽略
func TestCache_Goodbye(t *testing.T) {
	c := newCache(16)
	a := aRecord(t, "host.local", "192.0.2.1", 120)
	_, err := c.InsertOrRefresh(incoming(a, 1, false), t0)
	require.NoError(t, err)

	now := t0.Add(10 * time.Second)
	res, err := c.InsertOrRefresh(incoming(a.WithTTL(0), 2, false), now)
	require.NoError(t, err)
	assert.Equal(t, KindGoodbye, res.Kind)
	assert.Equal(t, time.Second, res.Entry.Remaining(now))
	assert.True(t, res.Entry.Final())

	res, err = c.InsertOrRefresh(incoming(aRecord(t, "nobody.local", "192.0.2.7", 0), 2, false), now)
	require.NoError(t, err)
	assert.Equal(t, KindIgnored, res.Kind)
	assert.Equal(t, 1, c.Len())

	tick := c.Tick(now.Add(time.Second))
	assert.Len(t, tick.Expired, 1)
	assert.Zero(t, c.Len())
}

// TestCache_Capacity 满时询问 Grower，拒绝时插入失败且不淘汰
func TestCache_Capacity(t *testing.T) {
	var asked []int
	grant := 0
	c := New(Config{
		Capacity: 1,
		Rand:     rand.New(rand.NewSource(1)),
		Grower: pkgif.GrowerFunc(func(current int) int {
			asked = append(asked, current)
			return grant
		}),
	})

	a := aRecord(t, "a.local", "192.0.2.1", 120)
	b := aRecord(t, "b.local", "192.0.2.2", 120)
	d := aRecord(t, "d.local", "192.0.2.4", 120)

	_, err := c.InsertOrRefresh(incoming(a, 1, false), t0)
	require.NoError(t, err)

	_, err = c.InsertOrRefresh(incoming(b, 1, false), t0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNoCache))
	assert.NotNil(t, c.Find(a, 1), "已有条目不被淘汰")

	// 刷新已有条目不受容量影响
	res, err := c.InsertOrRefresh(incoming(a, 2, false), t0)
	require.NoError(t, err)
	assert.Equal(t, KindRefreshed, res.Kind)

	grant = 4
	_, err = c.InsertOrRefresh(incoming(d, 3, false), t0)
	require.NoError(t, err)
	assert.Equal(t, 5, c.Capacity())
	assert.Equal(t, []int{1, 1}, asked)
}

// TestCache_ZeroCapacity 容量为 0 时不缓存
func TestCache_ZeroCapacity(t *testing.T) {
	c := newCache(0)
	assert.False(t, c.Enabled())
	_, err := c.InsertOrRefresh(incoming(aRecord(t, "a.local", "192.0.2.1", 120), 1, false), t0)
	assert.ErrorIs(t, err, types.ErrNoCache)
}

// TestCache_RefreshPoints 只有被问题负责的条目才产生刷新查询
func TestCache_RefreshPoints(t *testing.T) {
	c := New(Config{Capacity: 16, Rand: rand.New(rand.NewSource(42))})

	watched, err := c.InsertOrRefresh(incoming(aRecord(t, "w.local", "192.0.2.1", 100), 1, false), t0)
	require.NoError(t, err)
	watched.Entry.Question = 7
	_, err = c.InsertOrRefresh(incoming(aRecord(t, "u.local", "192.0.2.2", 100), 1, false), t0)
	require.NoError(t, err)

	res := c.Tick(t0.Add(79 * time.Second))
	assert.Empty(t, res.Refresh)
	assert.False(t, res.Next.Before(t0.Add(80*time.Second)))
	assert.True(t, res.Next.Before(t0.Add(82*time.Second)))

	var refreshes int
	for s := 80; s < 100; s++ {
		res = c.Tick(t0.Add(time.Duration(s) * time.Second))
		for _, e := range res.Refresh {
			assert.Same(t, watched.Entry, e)
			refreshes++
		}
	}
	assert.Equal(t, 4, refreshes, "80/85/90/95% 各一次")
	assert.Equal(t, 4, watched.Entry.Unanswered)

	res = c.Tick(t0.Add(100 * time.Second))
	assert.Len(t, res.Expired, 2)
	assert.True(t, res.Next.IsZero())
}

// TestCache_LateTickCollapsesRefresh 迟到的 Tick 只产生一次刷新
func TestCache_LateTickCollapsesRefresh(t *testing.T) {
	c := newCache(16)
	res, err := c.InsertOrRefresh(incoming(aRecord(t, "w.local", "192.0.2.1", 100), 1, false), t0)
	require.NoError(t, err)
	res.Entry.Question = 1

	tick := c.Tick(t0.Add(93 * time.Second))
	assert.Len(t, tick.Refresh, 1)
	assert.Equal(t, 1, res.Entry.Unanswered)
}

// TestCache_Match 问题匹配（ANY 类型、CNAME、接口作用域）
func TestCache_Match(t *testing.T) {
	c := newCache(16)
	a := aRecord(t, "host.local", "192.0.2.1", 120)
	cname, err := rr.NewCNAME("host.local", "real.local", 120)
	require.NoError(t, err)
	for _, r := range []rr.Record{a, cname} {
		_, err := c.InsertOrRefresh(incoming(r, 1, false), t0)
		require.NoError(t, err)
	}

	q := rr.Key{Name: rr.MustName("host.local"), Type: rr.TypeAAAA, Class: rr.ClassINET}
	got := c.Match(q, types.InterfaceAny, t0)
	require.Len(t, got, 1)
	assert.Equal(t, rr.TypeCNAME, got[0].Record.Type)

	q.Type = rr.TypeANY
	assert.Len(t, c.Match(q, types.InterfaceAny, t0), 2)
	assert.Len(t, c.Match(q, 1, t0), 2)
	assert.Empty(t, c.Match(q, 2, t0))
	assert.Empty(t, c.Match(q, 1, t0.Add(120*time.Second)), "过期条目不匹配")
}

// TestCache_PurgeInterface 按接口清除
func TestCache_PurgeInterface(t *testing.T) {
	c := newCache(16)
	a := aRecord(t, "host.local", "192.0.2.1", 120)
	_, err := c.InsertOrRefresh(Incoming{Record: a, Interface: 1, Packet: 1}, t0)
	require.NoError(t, err)
	_, err = c.InsertOrRefresh(Incoming{Record: a, Interface: 2, Packet: 1}, t0)
	require.NoError(t, err)

	purged := c.PurgeInterface(1)
	require.Len(t, purged, 1)
	assert.True(t, purged[0].Removed())
	assert.Equal(t, 1, c.Len())
	assert.NotNil(t, c.Find(a, 2))
}
