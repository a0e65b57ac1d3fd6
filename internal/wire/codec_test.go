package wire

import (
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-mdns/pkg/lib/rr"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

var src = netip.MustParseAddrPort("192.0.2.9:5353")

func hostA(t *testing.T) rr.Record {
	t.Helper()
	r, err := rr.NewA("host.local.", netip.MustParseAddr("192.0.2.1"), 120)
	require.NoError(t, err)
	return r
}

func decodeOne(t *testing.T, msg *rr.Message) *dns.Msg {
	t.Helper()
	out, err := Encode(msg, 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	m, err := Decode(out[0])
	require.NoError(t, err)
	return m
}

// TestEncode_ResponseFlags 应答带 QR/AA 位，cache-flush 写入类别最高位
func TestEncode_ResponseFlags(t *testing.T) {
	m := decodeOne(t, &rr.Message{
		Kind:    rr.MessageResponse,
		Answers: []rr.OutRecord{{Record: hostA(t), CacheFlush: true}},
	})

	assert.True(t, m.Response)
	assert.True(t, m.Authoritative)
	assert.Zero(t, m.Id)
	require.Len(t, m.Answer, 1)
	assert.Equal(t, uint16(dns.ClassINET)|classTopBit, m.Answer[0].Header().Class)
}

// TestEncode_Probe 探测包是查询，拟注册记录在权威段
func TestEncode_Probe(t *testing.T) {
	a := hostA(t)
	m := decodeOne(t, &rr.Message{
		Kind:      rr.MessageProbe,
		Questions: []rr.Question{{Key: rr.Key{Name: a.Name, Type: rr.TypeANY, Class: rr.ClassINET}, UnicastResponse: true}},
		Authority: []rr.OutRecord{{Record: a}},
	})

	assert.False(t, m.Response)
	require.Len(t, m.Question, 1)
	assert.Equal(t, uint16(dns.ClassINET)|classTopBit, m.Question[0].Qclass)
	require.Len(t, m.Ns, 1)
	assert.Equal(t, uint16(dns.ClassINET), m.Ns[0].Header().Class)
}

// TestToPacket_StripsTopBit 解码时剥离 QU 与 cache-flush 位
func TestToPacket_StripsTopBit(t *testing.T) {
	a := hostA(t)
	out, err := Encode(&rr.Message{
		Kind:      rr.MessageQuery,
		Questions: []rr.Question{{Key: a.Key, UnicastResponse: true}},
		Answers:   []rr.OutRecord{{Record: a, CacheFlush: true}},
	}, 0)
	require.NoError(t, err)

	pkt, err := Parse(out[0], src, 3, t0, 7)
	require.NoError(t, err)

	assert.True(t, pkt.Query)
	assert.Equal(t, src, pkt.Source)
	assert.EqualValues(t, 3, pkt.Interface)
	assert.Equal(t, uint64(7), pkt.Number)
	assert.Equal(t, t0, pkt.ReceivedAt)

	require.Len(t, pkt.Questions, 1)
	assert.True(t, pkt.Questions[0].UnicastResponse)
	assert.Equal(t, rr.ClassINET, pkt.Questions[0].Class)

	require.Len(t, pkt.Records, 1)
	got := pkt.Records[0]
	assert.True(t, got.CacheFlush)
	assert.Equal(t, rr.SectionAnswer, got.Section)
	assert.True(t, got.Identical(a))
	assert.Equal(t, uint32(120), got.TTL)
}

// TestToPacket_Sections 三个段分别映射
func TestToPacket_Sections(t *testing.T) {
	a := hostA(t)
	ptr, err := rr.NewPTR("_http._tcp.local.", "web._http._tcp.local.", 4500)
	require.NoError(t, err)
	srv, err := rr.NewSRV("web._http._tcp.local.", 0, 0, 80, "host.local.", 120)
	require.NoError(t, err)

	out, err := Encode(&rr.Message{
		Kind:       rr.MessageResponse,
		Answers:    []rr.OutRecord{{Record: ptr}},
		Authority:  []rr.OutRecord{{Record: srv}},
		Additional: []rr.OutRecord{{Record: a, CacheFlush: true}},
	}, 0)
	require.NoError(t, err)
	pkt, err := Parse(out[0], src, 1, t0, 1)
	require.NoError(t, err)

	require.Len(t, pkt.Records, 3)
	assert.Equal(t, rr.SectionAnswer, pkt.Records[0].Section)
	assert.Equal(t, rr.SectionAuthority, pkt.Records[1].Section)
	assert.Equal(t, rr.SectionAdditional, pkt.Records[2].Section)
	assert.False(t, pkt.Query)
	assert.True(t, pkt.Records[1].Identical(srv))
}

// TestToPacket_SkipsOPT EDNS 伪记录不进入包元组
func TestToPacket_SkipsOPT(t *testing.T) {
	m := new(dns.Msg)
	m.Response = true
	m.Answer = []dns.RR{&dns.A{
		Hdr: dns.RR_Header{Name: "host.local.", Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 120},
		A:   netip.MustParseAddr("192.0.2.1").AsSlice(),
	}}
	m.SetEdns0(1440, false)
	b, err := m.Pack()
	require.NoError(t, err)

	pkt, err := Parse(b, src, 1, t0, 1)
	require.NoError(t, err)
	require.Len(t, pkt.Records, 1)
	assert.Equal(t, rr.TypeA, pkt.Records[0].Type)
}

// TestToPacket_Ignored 操作码或响应码非 0 的报文被丢弃
func TestToPacket_Ignored(t *testing.T) {
	m := new(dns.Msg)
	m.Opcode = dns.OpcodeUpdate
	_, err := ToPacket(m, src, 1, t0, 1)
	assert.ErrorIs(t, err, ErrIgnored)

	m = new(dns.Msg)
	m.Response = true
	m.Rcode = dns.RcodeNameError
	_, err = ToPacket(m, src, 1, t0, 1)
	assert.ErrorIs(t, err, ErrIgnored)
}

// TestDecode_Malformed 截断的报文返回 ErrMalformed
func TestDecode_Malformed(t *testing.T) {
	_, err := Decode([]byte{0, 0, 0x84})
	assert.ErrorIs(t, err, ErrMalformed)
}

// TestEncode_Split 超长消息按记录拆分，每个包都不超过上限
func TestEncode_Split(t *testing.T) {
	a := hostA(t)
	msg := &rr.Message{
		Kind:      rr.MessageQuery,
		Questions: []rr.Question{{Key: rr.Key{Name: a.Name, Type: rr.TypeTXT, Class: rr.ClassINET}}},
	}
	for i := 0; i < 5; i++ {
		txt, err := rr.NewTXT("host.local.", 120, strings.Repeat(string(rune('a'+i)), 200))
		require.NoError(t, err)
		msg.Answers = append(msg.Answers, rr.OutRecord{Record: txt})
	}

	out, err := Encode(msg, 512)
	require.NoError(t, err)
	require.Greater(t, len(out), 1)

	records := 0
	for i, b := range out {
		assert.LessOrEqual(t, len(b), 512)
		m, err := Decode(b)
		require.NoError(t, err)
		records += len(m.Answer)
		if i == 0 {
			assert.Len(t, m.Question, 1)
			assert.True(t, m.Truncated)
		} else {
			assert.Empty(t, m.Question)
		}
	}
	assert.Equal(t, 5, records)
}

// TestEncode_TooLarge 单条记录超过上限时报错
func TestEncode_TooLarge(t *testing.T) {
	big := strings.Repeat("x", 250)
	txt, err := rr.NewTXT("host.local.", 120, big, big, big)
	require.NoError(t, err)

	_, err = Encode(&rr.Message{Kind: rr.MessageResponse, Answers: []rr.OutRecord{{Record: txt}}}, 512)
	assert.ErrorIs(t, err, ErrTooLarge)
}
