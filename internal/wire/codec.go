package wire

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/miekg/dns"

	"github.com/dep2p/go-mdns/pkg/lib/log"
	"github.com/dep2p/go-mdns/pkg/lib/rr"
	"github.com/dep2p/go-mdns/pkg/types"
)

var logger = log.Logger("wire")

// classTopBit 问题中的 QU 位 / 记录中的 cache-flush 位
const classTopBit uint16 = 1 << 15

// ============================================================================
//                              错误定义
// ============================================================================

var (
	// ErrMalformed 报文无法解析
	ErrMalformed = errors.New("wire: malformed message")
	// ErrIgnored 报文合法但按 mDNS 规则应丢弃
	ErrIgnored = errors.New("wire: message ignored")
	// ErrTooLarge 单条记录也放不进一个包
	ErrTooLarge = errors.New("wire: record exceeds packet size")
)

// ============================================================================
//                              编码
// ============================================================================

// Encode 把出站消息编码为一个或多个 DNS 报文
//
// 编码结果超过 maxSize 时按记录拆分；maxSize 为 0 表示不限制。
func Encode(msg *rr.Message, maxSize int) ([][]byte, error) {
	m, err := toDNS(msg)
	if err != nil {
		return nil, err
	}
	return pack(m, maxSize)
}

// toDNS 出站消息转 dns.Msg
func toDNS(msg *rr.Message) (*dns.Msg, error) {
	m := new(dns.Msg)
	m.Compress = true
	if msg.Kind == rr.MessageResponse {
		m.Response = true
		m.Authoritative = true
	}

	for _, q := range msg.Questions {
		class := uint16(q.Class)
		if q.UnicastResponse {
			class |= classTopBit
		}
		m.Question = append(m.Question, dns.Question{Name: q.Name.String(), Qtype: uint16(q.Type), Qclass: class})
	}

	var err error
	if m.Answer, err = toRRs(msg.Answers); err != nil {
		return nil, err
	}
	if m.Ns, err = toRRs(msg.Authority); err != nil {
		return nil, err
	}
	if m.Extra, err = toRRs(msg.Additional); err != nil {
		return nil, err
	}
	return m, nil
}

func toRRs(list []rr.OutRecord) ([]dns.RR, error) {
	if len(list) == 0 {
		return nil, nil
	}
	out := make([]dns.RR, 0, len(list))
	for _, r := range list {
		d, err := r.ToDNS()
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", r.Key, err)
		}
		if r.CacheFlush {
			d.Header().Class |= classTopBit
		}
		out = append(out, d)
	}
	return out, nil
}

// pack 打包，超长时把记录最多的段一分为二
func pack(m *dns.Msg, maxSize int) ([][]byte, error) {
	if maxSize <= 0 || m.Len() <= maxSize {
		b, err := m.Pack()
		if err != nil {
			return nil, fmt.Errorf("pack: %w", err)
		}
		return [][]byte{b}, nil
	}

	first, second, ok := split(m)
	if !ok {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooLarge, m.Len(), maxSize)
	}
	a, err := pack(first, maxSize)
	if err != nil {
		return nil, err
	}
	b, err := pack(second, maxSize)
	if err != nil {
		return nil, err
	}
	return append(a, b...), nil
}

// split 按记录顺序对半拆分，问题只留在前一半
//
// 查询被拆分时前一半带 TC 位，表示已知答案在后续包中。
func split(m *dns.Msg) (*dns.Msg, *dns.Msg, bool) {
	total := len(m.Answer) + len(m.Ns) + len(m.Extra)
	if total < 2 {
		return nil, nil, false
	}
	half := total / 2

	a, b := new(dns.Msg), new(dns.Msg)
	a.MsgHdr, b.MsgHdr = m.MsgHdr, m.MsgHdr
	a.Compress, b.Compress = m.Compress, m.Compress
	a.Question = m.Question
	if !m.Response {
		a.Truncated = true
	}

	i := 0
	place := func(list []dns.RR, section func(*dns.Msg) *[]dns.RR) {
		for _, r := range list {
			dst := b
			if i < half {
				dst = a
			}
			s := section(dst)
			*s = append(*s, r)
			i++
		}
	}
	place(m.Answer, func(x *dns.Msg) *[]dns.RR { return &x.Answer })
	place(m.Ns, func(x *dns.Msg) *[]dns.RR { return &x.Ns })
	place(m.Extra, func(x *dns.Msg) *[]dns.RR { return &x.Extra })
	return a, b, true
}

// ============================================================================
//                              解码
// ============================================================================

// Decode 解析 DNS 报文
func Decode(b []byte) (*dns.Msg, error) {
	m := new(dns.Msg)
	if err := m.Unpack(b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return m, nil
}

// ToPacket 把解析后的报文转换为引擎的包元组
//
// 无法表示的单条记录（如 OPT）被跳过，不影响其余记录。
func ToPacket(m *dns.Msg, src netip.AddrPort, iface types.InterfaceID, at time.Time, number uint64) (*rr.Packet, error) {
	if m.Opcode != dns.OpcodeQuery {
		return nil, fmt.Errorf("%w: opcode %d", ErrIgnored, m.Opcode)
	}
	if m.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("%w: rcode %d", ErrIgnored, m.Rcode)
	}

	pkt := &rr.Packet{
		Query:      !m.Response,
		Source:     src,
		Interface:  iface,
		ReceivedAt: at,
		Number:     number,
	}

	for _, q := range m.Question {
		name, err := rr.ParseName(q.Name)
		if err != nil {
			logger.Debug("跳过非法问题", "name", q.Name, "err", err)
			continue
		}
		pkt.Questions = append(pkt.Questions, rr.Question{
			Key:             rr.Key{Name: name, Type: rr.Type(q.Qtype), Class: rr.Class(q.Qclass &^ classTopBit)},
			UnicastResponse: q.Qclass&classTopBit != 0,
		})
	}

	add := func(list []dns.RR, section rr.Section) {
		for _, d := range list {
			if d.Header().Rrtype == dns.TypeOPT {
				continue
			}
			flush := d.Header().Class&classTopBit != 0
			if flush {
				d = dns.Copy(d)
				d.Header().Class &^= classTopBit
			}
			rec, err := rr.FromDNS(d)
			if err != nil {
				logger.Debug("跳过无法表示的记录", "rr", d.Header().Name, "type", d.Header().Rrtype, "err", err)
				continue
			}
			pkt.Records = append(pkt.Records, rr.PacketRecord{Record: rec, CacheFlush: flush, Section: section})
		}
	}
	add(m.Answer, rr.SectionAnswer)
	add(m.Ns, rr.SectionAuthority)
	add(m.Extra, rr.SectionAdditional)
	return pkt, nil
}

// Parse Decode 与 ToPacket 的组合
func Parse(b []byte, src netip.AddrPort, iface types.InterfaceID, at time.Time, number uint64) (*rr.Packet, error) {
	m, err := Decode(b)
	if err != nil {
		return nil, err
	}
	return ToPacket(m, src, iface, at, number)
}
