package service

import (
	"math/rand"
	"net/netip"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-mdns/config"
	"github.com/dep2p/go-mdns/internal/core/engine"
	"github.com/dep2p/go-mdns/pkg/lib/rr"
	"github.com/dep2p/go-mdns/pkg/types"
	"github.com/dep2p/go-mdns/tests/mocks"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

var peer = netip.MustParseAddrPort("192.0.2.200:5353")

// ============================================================================
// 测试辅助
// ============================================================================

type harness struct {
	t      *testing.T
	clk    *clock.Mock
	sender *mocks.MockSender
	e      *engine.Engine
	reg    *Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(t0)
	sender := mocks.NewMockSender()
	e, err := engine.New(engine.Options{
		Config:     config.DefaultEngineConfig(),
		Clock:      clk,
		Sender:     sender,
		Interfaces: []types.InterfaceID{1},
		Rand:       rand.New(rand.NewSource(1)),
	})
	require.NoError(t, err)
	reg := NewRegistry(e)
	reg.rnd = rand.New(rand.NewSource(1))
	return &harness{t: t, clk: clk, sender: sender, e: e, reg: reg}
}

func (h *harness) run(total time.Duration) {
	for elapsed := time.Duration(0); elapsed < total; elapsed += 50 * time.Millisecond {
		h.clk.Add(50 * time.Millisecond)
		h.e.Tick()
	}
}

func (h *harness) response(recs ...rr.Record) {
	pkt := &rr.Packet{Source: peer, Interface: 1}
	for _, r := range recs {
		pkt.Records = append(pkt.Records, rr.PacketRecord{Record: r, CacheFlush: true})
	}
	h.e.Receive(pkt)
}

func printer() Instance {
	return Instance{
		Name:     "Office Printer",
		Service:  "_ipp._tcp",
		Host:     "host.local.",
		Port:     631,
		Text:     []string{"rp=queue"},
		Subtypes: []string{"_universal"},
	}
}

type eventLog struct {
	events []Event
}

func (l *eventLog) callback(ev Event) { l.events = append(l.events, ev) }

func (l *eventLog) statuses() []types.Status {
	out := make([]types.Status, 0, len(l.events))
	for _, ev := range l.events {
		out = append(out, ev.Status)
	}
	return out
}

// ptrSent 统计消息中应答段与附加段的 PTR 记录数
func ptrSent(msgs []*rr.Message) int {
	n := 0
	for _, m := range msgs {
		for _, sec := range [][]rr.OutRecord{m.Answers, m.Additional} {
			for _, r := range sec {
				if r.Type == rr.TypePTR {
					n++
				}
			}
		}
	}
	return n
}

func recordsOf(e *engine.Engine, t rr.Type) []engine.RecordInfo {
	var out []engine.RecordInfo
	for _, info := range e.Records() {
		if info.Record.Type == t {
			out = append(out, info)
		}
	}
	return out
}

// ============================================================================
// 命名
// ============================================================================

// TestInstanceName 实例名中的点被转义
func TestInstanceName(t *testing.T) {
	assert.Equal(t, "_ipp._tcp.local.", ServiceName("_ipp._tcp", ""))
	assert.Equal(t, "_ipp._tcp.example.", ServiceName("_ipp._tcp.", "example."))
	assert.Equal(t, `a\.b._http._tcp.local.`, InstanceName("a.b", "_http._tcp", ""))
	assert.Equal(t, "_services._dns-sd._udp.local.", EnumerationName(""))
}

// TestUnescapeLabel 还原转义
func TestUnescapeLabel(t *testing.T) {
	assert.Equal(t, "Office Printer", UnescapeLabel(`Office\ Printer`))
	assert.Equal(t, "a.b", UnescapeLabel(`a\.b`))
	assert.Equal(t, "café", UnescapeLabel(`caf\195\169`))
	assert.Equal(t, "plain", UnescapeLabel("plain"))
}

// TestInstance_Validate 缺少必要字段时拒绝
func TestInstance_Validate(t *testing.T) {
	assert.NoError(t, printer().Validate())

	bad := printer()
	bad.Name = ""
	assert.ErrorIs(t, bad.Validate(), ErrInvalidInstance)

	bad = printer()
	bad.Service = "ipp._tcp"
	assert.ErrorIs(t, bad.Validate(), ErrInvalidInstance)

	bad = printer()
	bad.Host = ""
	assert.ErrorIs(t, bad.Validate(), ErrInvalidInstance)
}

// TestInstance_Records SRV 与 TXT 为唯一记录，共享 PTR 在后
func TestInstance_Records(t *testing.T) {
	recs, policies, err := printer().records("Office Printer")
	require.NoError(t, err)
	require.Len(t, recs, 4)

	assert.Equal(t, rr.TypeSRV, recs[srvIndex].Type)
	assert.Equal(t, rr.TypeTXT, recs[txtIndex].Type)
	assert.Equal(t, rr.TypePTR, recs[2].Type)
	assert.Equal(t, "_ipp._tcp.local.", recs[2].Name.String())
	assert.Equal(t, "_universal._sub._ipp._tcp.local.", recs[3].Name.String())
	assert.Equal(t, []types.RecordPolicy{types.PolicyUnique, types.PolicyUnique, types.PolicyShared, types.PolicyShared}, policies)

	port, target, ok := recs[srvIndex].SRVTarget()
	require.True(t, ok)
	assert.Equal(t, uint16(631), port)
	assert.Equal(t, "host.local.", target.String())
	assert.Equal(t, DefaultHostTTL, recs[srvIndex].TTL)
	assert.Equal(t, []string{"rp=queue"}, recs[txtIndex].TXTStrings())
	assert.True(t, recs[2].Data.EmbeddedName().Equal(recs[srvIndex].Name))
}

// ============================================================================
// 注册
// ============================================================================

// TestRegister_Verified 全部唯一记录探测通过后回调一次 Verified
func TestRegister_Verified(t *testing.T) {
	h := newHarness(t)
	var log eventLog
	g, err := h.reg.Register(printer(), log.callback)
	require.NoError(t, err)

	h.run(2 * time.Second)

	require.Equal(t, []types.Status{types.StatusVerified}, log.statuses())
	assert.Equal(t, "Office Printer", log.events[0].Name)
	assert.Equal(t, `Office\ Printer._ipp._tcp.local.`, rr.MustName(g.FullName()).String())
	// 服务 PTR、子类型 PTR、枚举 PTR
	assert.Len(t, recordsOf(h.e, rr.TypePTR), 3)
	assert.Len(t, recordsOf(h.e, rr.TypeSRV), 1)
}

// TestRegister_PointersWaitForVerified SRV 与 TXT 探测期间不通告也不应答任何 PTR
func TestRegister_PointersWaitForVerified(t *testing.T) {
	h := newHarness(t)
	var log eventLog
	_, err := h.reg.Register(printer(), log.callback)
	require.NoError(t, err)

	key, err := rr.NewKey("_ipp._tcp.local.", rr.TypePTR, rr.ClassINET)
	require.NoError(t, err)
	h.e.Receive(&rr.Packet{Query: true, Source: peer, Interface: 1, Questions: []rr.Question{{Key: key}}})

	var before, after int
	for elapsed := time.Duration(0); elapsed < 3*time.Second; elapsed += 10 * time.Millisecond {
		h.clk.Add(10 * time.Millisecond)
		h.e.Tick()
		n := ptrSent(h.sender.Take())
		if len(log.events) == 0 {
			before += n
		} else {
			after += n
		}
	}

	require.Equal(t, []types.Status{types.StatusVerified}, log.statuses())
	assert.Zero(t, before, "唯一记录仍在探测时发出了 PTR")
	assert.Positive(t, after, "验证之后 PTR 开始通告")
	for _, info := range recordsOf(h.e, rr.TypePTR) {
		assert.Positive(t, info.Announced, "record %s", info.Record.Key)
	}
}

// TestRegister_ConflictRenames SRV 冲突时整组撤销并以新名字重新注册
func TestRegister_ConflictRenames(t *testing.T) {
	h := newHarness(t)
	var log eventLog
	g, err := h.reg.Register(printer(), log.callback)
	require.NoError(t, err)

	theirs, err := rr.NewSRV(InstanceName("Office Printer", "_ipp._tcp", ""), 0, 0, 631, "other.local.", 120)
	require.NoError(t, err)
	h.response(theirs)

	require.Len(t, log.events, 1)
	ev := log.events[0]
	assert.Equal(t, types.StatusNameConflict, ev.Status)
	assert.Equal(t, "Office Printer", ev.Previous)
	assert.Equal(t, "Office Printer (2)", ev.Name)
	assert.NoError(t, ev.Err)
	assert.Equal(t, "Office Printer (2)", g.Name())

	h.run(2 * time.Second)
	require.Equal(t, []types.Status{types.StatusNameConflict, types.StatusVerified}, log.statuses())
	assert.Equal(t, "Office Printer (2)", log.events[1].Name)

	srv := recordsOf(h.e, rr.TypeSRV)
	require.Len(t, srv, 1)
	assert.True(t, srv[0].Record.Name.Equal(rr.MustName(InstanceName("Office Printer (2)", "_ipp._tcp", ""))))
	assert.Len(t, recordsOf(h.e, rr.TypeTXT), 1)
	assert.Len(t, recordsOf(h.e, rr.TypePTR), 3)
}

// TestRegister_LocalDuplicate 本机已占用的实例名直接改名，枚举 PTR 共用
func TestRegister_LocalDuplicate(t *testing.T) {
	h := newHarness(t)
	first, err := h.reg.Register(printer(), nil)
	require.NoError(t, err)
	second, err := h.reg.Register(printer(), nil)
	require.NoError(t, err)

	assert.Equal(t, "Office Printer", first.Name())
	assert.Equal(t, "Office Printer (2)", second.Name())
	// 两个服务 PTR、两个子类型 PTR、一个枚举 PTR
	assert.Len(t, recordsOf(h.e, rr.TypePTR), 5)

	require.NoError(t, first.Close())
	assert.Len(t, recordsOf(h.e, rr.TypePTR), 3)
	require.NoError(t, second.Close())
	assert.Empty(t, h.e.Records())
}

// TestRegistration_Close 关闭后回调一次 MemFree，重复关闭报错
func TestRegistration_Close(t *testing.T) {
	h := newHarness(t)
	var log eventLog
	g, err := h.reg.Register(printer(), log.callback)
	require.NoError(t, err)
	h.run(2 * time.Second)
	h.sender.Take()

	require.NoError(t, g.Close())
	assert.Equal(t, []types.Status{types.StatusVerified, types.StatusMemFree}, log.statuses())
	assert.Empty(t, h.e.Records())
	assert.NotZero(t, h.sender.Count(), "共享与已验证记录应发送 goodbye")

	assert.ErrorIs(t, g.Close(), ErrClosed)
	assert.ErrorIs(t, g.SetText("x=1"), ErrClosed)
}

// TestRegistration_SetText 替换 TXT 数据
func TestRegistration_SetText(t *testing.T) {
	h := newHarness(t)
	g, err := h.reg.Register(printer(), nil)
	require.NoError(t, err)
	h.run(2 * time.Second)

	require.NoError(t, g.SetText("rp=other", "note=2F"))
	txt := recordsOf(h.e, rr.TypeTXT)
	require.Len(t, txt, 1)
	assert.Equal(t, []string{"rp=other", "note=2F"}, txt[0].Record.TXTStrings())
}

// hinfo 测试用的额外记录类型
const hinfo = rr.Type(13)

// TestRegistration_AddRecord 额外记录在验证后通告，随整组改名与撤销
func TestRegistration_AddRecord(t *testing.T) {
	h := newHarness(t)
	var log eventLog
	g, err := h.reg.Register(printer(), log.callback)
	require.NoError(t, err)
	h.run(2 * time.Second)

	rdata := []byte{3, 'a', 'r', 'm', 5, 'l', 'i', 'n', 'u', 'x'}
	x, err := g.AddRecord(hinfo, rdata, 0)
	require.NoError(t, err)
	got := recordsOf(h.e, hinfo)
	require.Len(t, got, 1)
	assert.True(t, got[0].Record.Name.Equal(rr.MustName(g.FullName())))
	assert.Equal(t, DefaultTTL, got[0].Record.TTL)
	assert.Equal(t, types.StateUnique, got[0].State)

	sib, err := h.e.Siblings(x.handle)
	require.NoError(t, err)
	assert.Len(t, sib, 4, "SRV、TXT、服务 PTR、子类型 PTR")

	_, err = g.AddRecord(hinfo, rdata, 0)
	assert.ErrorIs(t, err, types.ErrAlreadyRegistered)

	h.run(2 * time.Second)
	got = recordsOf(h.e, hinfo)
	require.Len(t, got, 1)
	assert.Equal(t, types.StateVerified, got[0].State)
	assert.Positive(t, got[0].Announced)

	theirs, err := rr.NewSRV(InstanceName("Office Printer", "_ipp._tcp", ""), 0, 0, 631, "other.local.", 120)
	require.NoError(t, err)
	h.response(theirs)
	h.run(2 * time.Second)

	got = recordsOf(h.e, hinfo)
	require.Len(t, got, 1)
	assert.True(t, got[0].Record.Name.Equal(rr.MustName(InstanceName("Office Printer (2)", "_ipp._tcp", ""))))
	assert.Equal(t, types.StateVerified, got[0].State)
	assert.Equal(t, rdata, got[0].Record.Data.Bytes())

	require.NoError(t, g.RemoveRecord(x))
	assert.Empty(t, recordsOf(h.e, hinfo))
	assert.ErrorIs(t, g.RemoveRecord(x), ErrUnknownRecord)

	require.NoError(t, g.Close())
	assert.Equal(t, []types.Status{types.StatusVerified, types.StatusNameConflict, types.StatusVerified, types.StatusMemFree}, log.statuses())
	assert.Empty(t, h.e.Records())
	_, err = g.AddRecord(hinfo, rdata, 0)
	assert.ErrorIs(t, err, ErrClosed)
}

// TestRegistration_AddRecordWithdrawnWithGroup 关闭注册时额外记录一并撤销
func TestRegistration_AddRecordWithdrawnWithGroup(t *testing.T) {
	h := newHarness(t)
	var log eventLog
	g, err := h.reg.Register(printer(), log.callback)
	require.NoError(t, err)

	_, err = g.AddRecord(hinfo, []byte{1, 'x', 1, 'y'}, 60)
	require.NoError(t, err)
	got := recordsOf(h.e, hinfo)
	require.Len(t, got, 1)
	assert.EqualValues(t, 60, got[0].Record.TTL)

	require.NoError(t, g.Close())
	assert.Empty(t, h.e.Records())
	assert.Equal(t, []types.Status{types.StatusMemFree}, log.statuses())
}

// ============================================================================
// 解析与浏览
// ============================================================================

// TestResolve SRV/TXT 得到答案后解析目标地址
func TestResolve(t *testing.T) {
	h := newHarness(t)
	var got []Resolved
	r, err := Resolve(h.e, `Office\ Printer._ipp._tcp.local.`, types.InterfaceAny, func(res Resolved) {
		got = append(got, res)
	})
	require.NoError(t, err)

	instance := InstanceName("Office Printer", "_ipp._tcp", "")
	srv, err := rr.NewSRV(instance, 0, 0, 631, "host.local.", 120)
	require.NoError(t, err)
	txt, err := rr.NewTXT(instance, 4500, "rp=queue")
	require.NoError(t, err)
	a1, err := rr.NewA("host.local.", netip.MustParseAddr("192.0.2.7"), 120)
	require.NoError(t, err)

	h.response(srv, txt, a1)
	require.Len(t, got, 1)
	assert.Equal(t, uint16(631), got[0].Port)
	assert.Equal(t, "host.local.", got[0].Host.String())
	assert.Equal(t, []string{"rp=queue"}, got[0].Text)
	assert.Equal(t, []netip.Addr{netip.MustParseAddr("192.0.2.7")}, got[0].Addrs)
	assert.EqualValues(t, 1, got[0].Interface)

	// 同样的内容不重复回调
	h.response(srv, txt, a1)
	assert.Len(t, got, 1)

	a2, err := rr.NewA("host.local.", netip.MustParseAddr("192.0.2.8"), 120)
	require.NoError(t, err)
	pkt := &rr.Packet{Source: peer, Interface: 1, Records: []rr.PacketRecord{{Record: a2}}}
	h.e.Receive(pkt)
	require.Len(t, got, 2)
	assert.Len(t, got[1].Addrs, 2)

	require.NoError(t, r.Stop())
	assert.ErrorIs(t, r.Stop(), ErrClosed)
}

// TestBrowse 实例出现与消失
func TestBrowse(t *testing.T) {
	h := newHarness(t)
	var got []BrowseEvent
	b, err := Browse(h.e, "_ipp._tcp", "", types.InterfaceAny, func(ev BrowseEvent) {
		got = append(got, ev)
	})
	require.NoError(t, err)

	ptr, err := rr.NewPTR("_ipp._tcp.local.", InstanceName("Office Printer", "_ipp._tcp", ""), 4500)
	require.NoError(t, err)
	pkt := &rr.Packet{Source: peer, Interface: 1, Records: []rr.PacketRecord{{Record: ptr}}}
	h.e.Receive(pkt)

	require.Len(t, got, 1)
	assert.True(t, got[0].Added)
	assert.Equal(t, "Office Printer", got[0].Name)

	pkt = &rr.Packet{Source: peer, Interface: 1, Records: []rr.PacketRecord{{Record: ptr.WithTTL(0)}}}
	h.e.Receive(pkt)
	h.run(2 * time.Second)

	require.Len(t, got, 2)
	assert.False(t, got[1].Added)

	require.NoError(t, b.Stop())
	assert.ErrorIs(t, b.Stop(), ErrClosed)
}
