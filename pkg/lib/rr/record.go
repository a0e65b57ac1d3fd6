package rr

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/miekg/dns"

	"github.com/dep2p/go-mdns/pkg/types"
)

// ============================================================================
//                              Key - 记录身份
// ============================================================================

// Key 记录身份 (name, type, class)
type Key struct {
	Name  Name
	Type  Type
	Class Class
}

// Equal 身份相等
func (k Key) Equal(o Key) bool {
	return k.Type == o.Type && k.Class == o.Class && k.Name.Equal(o.Name)
}

// Answers 判断具有该身份的记录能否回答问题 q
//
// 问题类型 ANY 匹配所有类型，CNAME 记录匹配所有问题类型，类别 ANY 匹配所有类别。
func (k Key) Answers(q Key) bool {
	if k.Type != q.Type && q.Type != TypeANY && k.Type != TypeCNAME {
		return false
	}
	if k.Class != q.Class && q.Class != ClassANY {
		return false
	}
	return k.Name.Equal(q.Name)
}

// String 返回 "name/TYPE/CLASS"
func (k Key) String() string {
	return k.Name.String() + "/" + k.Type.String() + "/" + k.Class.String()
}

// NewKey 构造身份
func NewKey(name string, t Type, c Class) (Key, error) {
	n, err := ParseName(name)
	if err != nil {
		return Key{}, err
	}
	return Key{Name: n, Type: t, Class: c}, nil
}

// ============================================================================
//                              Record
// ============================================================================

// Record 一条资源记录 (name, type, class, data, ttl)
type Record struct {
	Key
	Data Data
	TTL  uint32
}

// Identical 身份与数据均相同（TTL 可以不同）
func (r Record) Identical(o Record) bool {
	return r.Key.Equal(o.Key) && r.Data.Equal(o.Data)
}

// WithTTL 返回修改了 TTL 的副本
func (r Record) WithTTL(ttl uint32) Record {
	r.TTL = ttl
	return r
}

// ID 返回身份加数据的字符串指纹，用于集合去重
func (r Record) ID() string {
	var b strings.Builder
	b.WriteString(r.Name.Canonical())
	fmt.Fprintf(&b, "/%d/%d/", r.Type, r.Class)
	b.Write(r.Data.canon)
	return b.String()
}

// String 返回展示形式
func (r Record) String() string {
	d, err := r.ToDNS()
	if err != nil {
		return fmt.Sprintf("%s ttl=%d rdlen=%d", r.Key, r.TTL, r.Data.Len())
	}
	return d.String()
}

// FromDNS 从 miekg/dns 记录构造
//
// 调用方负责事先剥离 mDNS 的 cache-flush 位。
func FromDNS(d dns.RR) (Record, error) {
	if d == nil {
		return Record{}, fmt.Errorf("%w: nil record", types.ErrBadParam)
	}
	h := d.Header()
	name, err := ParseName(h.Name)
	if err != nil {
		return Record{}, err
	}

	buf := make([]byte, dns.Len(d)+64)
	end, err := dns.PackRR(d, buf, 0, nil, false)
	if err != nil {
		return Record{}, fmt.Errorf("%w: pack record: %v", types.ErrBadParam, err)
	}
	nameLen, err := dns.PackDomainName(h.Name, make([]byte, 256), 0, nil, false)
	if err != nil {
		return Record{}, fmt.Errorf("%w: pack name: %v", types.ErrBadParam, err)
	}
	// 头部 = 名字 + type(2) + class(2) + ttl(4) + rdlength(2)
	rdata := buf[nameLen+10 : end]

	data, err := newData(Type(h.Rrtype), rdata, embeddedName(d))
	if err != nil {
		return Record{}, err
	}
	return Record{
		Key:  Key{Name: name, Type: Type(h.Rrtype), Class: Class(h.Class)},
		Data: data,
		TTL:  h.Ttl,
	}, nil
}

// embeddedName 取出名字类记录中的目标名
func embeddedName(d dns.RR) string {
	switch v := d.(type) {
	case *dns.PTR:
		return v.Ptr
	case *dns.CNAME:
		return v.Target
	case *dns.NS:
		return v.Ns
	case *dns.DNAME:
		return v.Target
	case *dns.SRV:
		return v.Target
	default:
		return ""
	}
}

// ToDNS 转换为 miekg/dns 记录
func (r Record) ToDNS() (dns.RR, error) {
	h := dns.RR_Header{
		Name:     r.Name.String(),
		Rrtype:   uint16(r.Type),
		Class:    uint16(r.Class),
		Ttl:      r.TTL,
		Rdlength: uint16(r.Data.Len()),
	}
	d, _, err := dns.UnpackRRWithHeader(h, r.Data.wire, 0)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", r.Key, err)
	}
	return d, nil
}

// ============================================================================
//                              常用构造函数
// ============================================================================

func header(name string, t uint16, ttl uint32) dns.RR_Header {
	return dns.RR_Header{Name: dns.Fqdn(name), Rrtype: t, Class: dns.ClassINET, Ttl: ttl}
}

// NewA 构造 A 记录
func NewA(name string, addr netip.Addr, ttl uint32) (Record, error) {
	if !addr.Is4() {
		return Record{}, fmt.Errorf("%w: %s is not an IPv4 address", types.ErrBadParam, addr)
	}
	return FromDNS(&dns.A{Hdr: header(name, dns.TypeA, ttl), A: addr.AsSlice()})
}

// NewAAAA 构造 AAAA 记录
func NewAAAA(name string, addr netip.Addr, ttl uint32) (Record, error) {
	if !addr.Is6() || addr.Is4In6() {
		return Record{}, fmt.Errorf("%w: %s is not an IPv6 address", types.ErrBadParam, addr)
	}
	return FromDNS(&dns.AAAA{Hdr: header(name, dns.TypeAAAA, ttl), AAAA: addr.AsSlice()})
}

// NewAddr 按地址族构造 A 或 AAAA 记录
func NewAddr(name string, addr netip.Addr, ttl uint32) (Record, error) {
	if addr.Is4() || addr.Is4In6() {
		return NewA(name, addr.Unmap(), ttl)
	}
	return NewAAAA(name, addr, ttl)
}

// NewPTR 构造 PTR 记录
func NewPTR(name, target string, ttl uint32) (Record, error) {
	return FromDNS(&dns.PTR{Hdr: header(name, dns.TypePTR, ttl), Ptr: dns.Fqdn(target)})
}

// NewCNAME 构造 CNAME 记录
func NewCNAME(name, target string, ttl uint32) (Record, error) {
	return FromDNS(&dns.CNAME{Hdr: header(name, dns.TypeCNAME, ttl), Target: dns.Fqdn(target)})
}

// NewSRV 构造 SRV 记录
func NewSRV(name string, priority, weight, port uint16, target string, ttl uint32) (Record, error) {
	return FromDNS(&dns.SRV{
		Hdr:      header(name, dns.TypeSRV, ttl),
		Priority: priority,
		Weight:   weight,
		Port:     port,
		Target:   dns.Fqdn(target),
	})
}

// NewTXT 构造 TXT 记录；没有字符串时写入单个空串
func NewTXT(name string, ttl uint32, txt ...string) (Record, error) {
	if len(txt) == 0 {
		txt = []string{""}
	}
	return FromDNS(&dns.TXT{Hdr: header(name, dns.TypeTXT, ttl), Txt: txt})
}

// NewRecord 由类型与未压缩的线格式数据构造任意类型的记录
func NewRecord(name string, t Type, rdata []byte, ttl uint32) (Record, error) {
	if t == 0 || t == TypeANY {
		return Record{}, fmt.Errorf("%w: invalid type %s", types.ErrBadParam, t)
	}
	h := header(name, uint16(t), ttl)
	h.Rdlength = uint16(len(rdata))
	d, off, err := dns.UnpackRRWithHeader(h, rdata, 0)
	if err != nil {
		return Record{}, fmt.Errorf("%w: unpack %s rdata: %v", types.ErrBadParam, t, err)
	}
	if off != len(rdata) {
		return Record{}, fmt.Errorf("%w: trailing %s rdata", types.ErrBadParam, t)
	}
	return FromDNS(d)
}

// Addr 从 A/AAAA 记录中取出地址
func (r Record) Addr() (netip.Addr, bool) {
	switch r.Type {
	case TypeA, TypeAAAA:
		return netip.AddrFromSlice(r.Data.wire)
	default:
		return netip.Addr{}, false
	}
}

// SRVTarget 从 SRV 记录中取出端口和目标名
func (r Record) SRVTarget() (uint16, Name, bool) {
	if r.Type != TypeSRV || r.Data.Len() < srvPrefixLen {
		return 0, Name{}, false
	}
	port := uint16(r.Data.wire[4])<<8 | uint16(r.Data.wire[5])
	return port, r.Data.name, true
}

// TXTStrings 从 TXT 记录中取出字符串
func (r Record) TXTStrings() []string {
	if r.Type != TypeTXT {
		return nil
	}
	d, err := r.ToDNS()
	if err != nil {
		return nil
	}
	if t, ok := d.(*dns.TXT); ok {
		return t.Txt
	}
	return nil
}
