package question

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-mdns/pkg/lib/rr"
	"github.com/dep2p/go-mdns/pkg/types"
)

func ptrKey() rr.Key {
	return rr.Key{Name: rr.MustName("_ipp._tcp.local"), Type: rr.TypePTR, Class: rr.ClassINET}
}

func ptr(t *testing.T, target string) rr.Record {
	t.Helper()
	r, err := rr.NewPTR("_ipp._tcp.local", target, 4500)
	require.NoError(t, err)
	return r
}

// TestStart_BadParam 非法问题被拒绝
func TestStart_BadParam(t *testing.T) {
	s := NewSet(DefaultConfig())
	_, err := s.Start(Spec{}, t0)
	assert.ErrorIs(t, err, types.ErrBadParam)
	_, err = s.Start(Spec{Key: ptrKey(), Kind: types.QuestionKind(9)}, t0)
	assert.ErrorIs(t, err, types.ErrBadParam)
	assert.Zero(t, s.Len())
}

// TestBackoff 从 1s 翻倍，上限 60 分钟
func TestBackoff(t *testing.T) {
	s := NewSet(DefaultConfig())
	q, err := s.Start(Spec{Key: ptrKey()}, t0)
	require.NoError(t, err)
	assert.Equal(t, []*Question{q}, s.Due(t0))

	now := t0
	var intervals []time.Duration
	for i := 0; i < 15; i++ {
		s.MarkSent(q, now)
		intervals = append(intervals, q.Interval())
		now = q.Next()
	}
	assert.Equal(t, time.Second, intervals[0])
	assert.Equal(t, 2*time.Second, intervals[1])
	assert.Equal(t, 2048*time.Second, intervals[11])
	assert.Equal(t, time.Hour, intervals[12])
	assert.Equal(t, time.Hour, intervals[14])
}

// TestDefer 已有答案的问题推迟首次查询
func TestDefer(t *testing.T) {
	s := NewSet(DefaultConfig())
	q, err := s.Start(Spec{Key: ptrKey()}, t0)
	require.NoError(t, err)
	s.Defer(q, t0)

	assert.Empty(t, s.Due(t0))
	assert.Equal(t, t0.Add(time.Second), s.NextWake())
}

// TestDeliver_Existence 存在型问题只在 0→1、1→0 时触发
func TestDeliver_Existence(t *testing.T) {
	s := NewSet(DefaultConfig())
	q, err := s.Start(Spec{Key: ptrKey(), Kind: types.QuestionExistence}, t0)
	require.NoError(t, err)

	a, b := ptr(t, "a._ipp._tcp.local"), ptr(t, "b._ipp._tcp.local")

	var fired []bool
	deliver := func(r rr.Record, added bool) {
		if ev, ok := s.Deliver(q, r, 1, added, t0); ok {
			fired = append(fired, ev.Added)
		}
	}

	deliver(a, true)
	deliver(a, true) // 第二个来源
	deliver(b, true)
	deliver(a, false)
	deliver(b, false)
	deliver(a, false)
	deliver(b, false) // 未知记录
	deliver(b, true)

	assert.Equal(t, []bool{true, false, true}, fired)
	assert.Equal(t, 1, q.Current())
}

// TestDeliver_ExistencePairsPerRecord 存在式问题的移除事件撤回当初投递的那条记录
func TestDeliver_ExistencePairsPerRecord(t *testing.T) {
	s := NewSet(DefaultConfig())
	q, err := s.Start(Spec{Key: ptrKey(), Kind: types.QuestionExistence}, t0)
	require.NoError(t, err)

	a, b := ptr(t, "a._ipp._tcp.local"), ptr(t, "b._ipp._tcp.local")

	perRecord := map[string][]bool{}
	deliver := func(r rr.Record, added bool) {
		if ev, ok := s.Deliver(q, r, 1, added, t0); ok {
			perRecord[ev.Record.ID()] = append(perRecord[ev.Record.ID()], ev.Added)
		}
	}

	deliver(a, true)
	deliver(b, true)
	deliver(a, false)
	deliver(b, false)
	deliver(a, true)

	assert.Equal(t, []bool{true, false, true}, perRecord[a.ID()])
	assert.Empty(t, perRecord[b.ID()])
}

// TestDeliver_Enumerate 枚举型问题每条不同记录各触发一次，不会连续两次 Added
func TestDeliver_Enumerate(t *testing.T) {
	s := NewSet(DefaultConfig())
	q, err := s.Start(Spec{Key: ptrKey(), Kind: types.QuestionEnumerate, Context: "ctx"}, t0)
	require.NoError(t, err)

	a, b := ptr(t, "a._ipp._tcp.local"), ptr(t, "b._ipp._tcp.local")
	var events []Event
	deliver := func(r rr.Record, added bool) {
		if ev, ok := s.Deliver(q, r, 1, added, t0); ok {
			events = append(events, ev)
		}
	}

	deliver(a, true)
	deliver(ptr(t, "A._ipp._tcp.local"), true) // 名字数据大小写不敏感
	deliver(b, true)
	deliver(a, false)
	deliver(a, false)

	require.Len(t, events, 3)
	assert.True(t, events[0].Added)
	assert.True(t, events[1].Added)
	assert.False(t, events[2].Added)
	assert.Equal(t, "ctx", events[0].Context)
	assert.Equal(t, q.ID(), events[0].ID)
	assert.Equal(t, 1, q.Current())
	assert.Equal(t, 2, q.Ever())
}

// TestDeliver_Stopped 已停止的问题不再投递
func TestDeliver_Stopped(t *testing.T) {
	s := NewSet(DefaultConfig())
	q, err := s.Start(Spec{Key: ptrKey()}, t0)
	require.NoError(t, err)
	_, err = s.Stop(q.ID())
	require.NoError(t, err)

	_, ok := s.Deliver(q, ptr(t, "a._ipp._tcp.local"), 1, true, t0)
	assert.False(t, ok)

	_, err = s.Stop(q.ID())
	assert.ErrorIs(t, err, types.ErrBadReference)
}

// TestBurstReset 查询后 1 秒内的第二条应答重置退避
func TestBurstReset(t *testing.T) {
	s := NewSet(DefaultConfig())
	q, err := s.Start(Spec{Key: ptrKey()}, t0)
	require.NoError(t, err)

	now := t0
	for i := 0; i < 4; i++ {
		s.MarkSent(q, now)
		now = q.Next()
	}
	require.Equal(t, 8*time.Second, q.Interval())
	sent := q.LastQuery()

	s.Deliver(q, ptr(t, "a._ipp._tcp.local"), 1, true, sent.Add(100*time.Millisecond))
	assert.Equal(t, 8*time.Second, q.Interval(), "单条应答不重置")

	s.Deliver(q, ptr(t, "b._ipp._tcp.local"), 1, true, sent.Add(200*time.Millisecond))
	assert.Equal(t, time.Second, q.Interval())
	assert.Equal(t, sent.Add(time.Second), q.Next())
}

// TestBurstReset_OutsideWindow 窗口外的应答不影响退避
func TestBurstReset_OutsideWindow(t *testing.T) {
	s := NewSet(DefaultConfig())
	q, err := s.Start(Spec{Key: ptrKey()}, t0)
	require.NoError(t, err)
	s.MarkSent(q, t0)
	s.MarkSent(q, t0.Add(time.Second))
	s.MarkSent(q, t0.Add(3*time.Second))
	require.Equal(t, 4*time.Second, q.Interval())

	late := t0.Add(5 * time.Second)
	s.Deliver(q, ptr(t, "a._ipp._tcp.local"), 1, true, late)
	s.Deliver(q, ptr(t, "b._ipp._tcp.local"), 1, true, late)
	assert.Equal(t, 4*time.Second, q.Interval())
}

// TestDuplicate_Heir 相同流量的问题成为副本，主问题停止后由副本接替
func TestDuplicate_Heir(t *testing.T) {
	s := NewSet(DefaultConfig())
	p, err := s.Start(Spec{Key: ptrKey()}, t0)
	require.NoError(t, err)
	d1, err := s.Start(Spec{Key: ptrKey()}, t0)
	require.NoError(t, err)
	d2, err := s.Start(Spec{Key: ptrKey(), Kind: types.QuestionExistence}, t0)
	require.NoError(t, err)
	other, err := s.Start(Spec{Key: ptrKey(), Interface: 2}, t0)
	require.NoError(t, err)

	assert.True(t, d1.Duplicate())
	assert.Equal(t, p.ID(), d1.Primary())
	assert.Equal(t, p.ID(), d2.Primary())
	assert.False(t, other.Duplicate(), "接口不同不是副本")
	assert.Equal(t, []*Question{p, other}, s.Due(t0))

	s.MarkSent(p, t0)
	s.MarkSent(p, t0.Add(time.Second))
	s.ObserveQuery(ptrKey(), 1, netip.MustParseAddr("192.0.2.9"), t0.Add(time.Second))

	_, err = s.Stop(p.ID())
	require.NoError(t, err)

	assert.False(t, d1.Duplicate())
	assert.Equal(t, 2*time.Second, d1.Interval())
	assert.Equal(t, t0.Add(3*time.Second), d1.Next())
	assert.Equal(t, 1, d1.Ring().Len())
	assert.Equal(t, d1.ID(), d2.Primary())
	assert.Equal(t, 3, s.Len())
}

// TestSuppression 他人在窗口内问过相同问题时本方视为已发送
func TestSuppression(t *testing.T) {
	s := NewSet(DefaultConfig())
	q, err := s.Start(Spec{Key: ptrKey()}, t0)
	require.NoError(t, err)
	s.MarkSent(q, t0)
	s.MarkSent(q, t0.Add(time.Second))
	require.Equal(t, 2*time.Second, s.SuppressionWindow(q))

	src := netip.MustParseAddr("192.0.2.7")
	n := s.ObserveQuery(ptrKey(), 3, src, t0.Add(2*time.Second))
	assert.Equal(t, 1, n)

	now := t0.Add(3 * time.Second)
	assert.True(t, s.Suppressed(q, 3, now))
	assert.False(t, s.Suppressed(q, 4, now), "其他接口未被问过")
	assert.False(t, s.Suppressed(q, 3, t0.Add(5*time.Second)), "窗口已过")

	other := rr.Key{Name: rr.MustName("_http._tcp.local"), Type: rr.TypePTR, Class: rr.ClassINET}
	assert.Zero(t, s.ObserveQuery(other, 3, src, now))
}

// TestMatching 记录匹配问题：接口、类型与单播目标
func TestMatching(t *testing.T) {
	s := NewSet(DefaultConfig())
	wild, err := s.Start(Spec{Key: ptrKey()}, t0)
	require.NoError(t, err)
	if1, err := s.Start(Spec{Key: ptrKey(), Interface: 1}, t0)
	require.NoError(t, err)
	target := netip.MustParseAddrPort("192.0.2.50:5353")
	uni, err := s.Start(Spec{Key: ptrKey(), Target: target}, t0)
	require.NoError(t, err)

	rec := ptr(t, "a._ipp._tcp.local")
	assert.Equal(t, []*Question{wild, if1, uni}, s.Matching(rec, 1, netip.Addr{}))
	assert.Equal(t, []*Question{wild}, s.Matching(rec, 2, netip.MustParseAddr("192.0.2.51")))
	assert.Equal(t, []*Question{wild, uni}, s.Matching(rec, 2, target.Addr()))

	assert.Equal(t, wild, s.Responsible(rec, 1, 0))
	assert.Equal(t, if1, s.Responsible(rec, 1, wild.ID()))
	assert.Equal(t, uni, s.Responsible(rec, 2, wild.ID()))
}

// TestRequeryNow 缓存刷新提前的查询不推进退避
func TestRequeryNow(t *testing.T) {
	s := NewSet(DefaultConfig())
	q, err := s.Start(Spec{Key: ptrKey()}, t0)
	require.NoError(t, err)
	s.MarkSent(q, t0)
	s.MarkSent(q, t0.Add(time.Second))
	require.Equal(t, t0.Add(3*time.Second), q.Next())

	at := t0.Add(2 * time.Second)
	s.RequeryNow(q, at)
	assert.Equal(t, []*Question{q}, s.Due(at))

	s.MarkSent(q, at)
	assert.Equal(t, 2*time.Second, q.Interval())
	assert.Equal(t, t0.Add(3*time.Second), q.Next())
	assert.Equal(t, at, q.LastQuery())
}

// TestRequeryNow_Duplicate 副本的刷新落到主问题上
func TestRequeryNow_Duplicate(t *testing.T) {
	s := NewSet(DefaultConfig())
	p, err := s.Start(Spec{Key: ptrKey()}, t0)
	require.NoError(t, err)
	d, err := s.Start(Spec{Key: ptrKey()}, t0)
	require.NoError(t, err)
	s.MarkSent(p, t0)

	at := t0.Add(500 * time.Millisecond)
	s.RequeryNow(d, at)
	assert.Equal(t, at, p.Next())
	assert.True(t, d.Next().IsZero())
}
