package rr

import (
	"bytes"
	"fmt"

	"github.com/miekg/dns"

	"github.com/dep2p/go-mdns/pkg/types"
)

// ============================================================================
//                              类型与类别
// ============================================================================

// Type 记录类型（与 DNS 类型编号一致）
type Type uint16

// 常用记录类型
const (
	TypeA     = Type(dns.TypeA)
	TypeNS    = Type(dns.TypeNS)
	TypeCNAME = Type(dns.TypeCNAME)
	TypePTR   = Type(dns.TypePTR)
	TypeHINFO = Type(dns.TypeHINFO)
	TypeTXT   = Type(dns.TypeTXT)
	TypeAAAA  = Type(dns.TypeAAAA)
	TypeSRV   = Type(dns.TypeSRV)
	TypeDNAME = Type(dns.TypeDNAME)
	TypeNSEC  = Type(dns.TypeNSEC)
	TypeANY   = Type(dns.TypeANY)
)

// String 返回类型助记符
func (t Type) String() string { return dns.Type(t).String() }

// Class 记录类别
type Class uint16

// 常用类别
const (
	ClassINET = Class(dns.ClassINET)
	ClassANY  = Class(dns.ClassANY)
)

// String 返回类别助记符
func (c Class) String() string { return dns.Class(c).String() }

// ============================================================================
//                              数据比较方式
// ============================================================================

// DataKind 记录数据的比较方式，由记录类型声明，不从内容推断
type DataKind int

const (
	// DataRaw 按原始字节比较
	DataRaw DataKind = iota
	// DataName 数据本身就是一个域名，按名字相等比较
	DataName
	// DataSRV 6 字节 (priority, weight, port) 前缀加目标名
	DataSRV
)

// KindOf 返回记录类型声明的数据比较方式
func KindOf(t Type) DataKind {
	switch t {
	case TypePTR, TypeCNAME, TypeNS, TypeDNAME:
		return DataName
	case TypeSRV:
		return DataSRV
	default:
		return DataRaw
	}
}

// srvPrefixLen SRV 数据中目标名之前的定长部分
const srvPrefixLen = 6

// ============================================================================
//                              数据大小级别
// ============================================================================

// SizeClass 记录数据的大小级别
type SizeClass int

const (
	// SizeStandard 标准大小（绝大多数记录）
	SizeStandard SizeClass = iota
	// SizeLarge 大记录（长 TXT 等）
	SizeLarge
)

const (
	// MaxStandardData 标准级别的最大数据长度
	MaxStandardData = 264
	// MaxLargeData 大记录级别的最大数据长度
	MaxLargeData = 8192
)

// ============================================================================
//                              Data
// ============================================================================

// Data 不透明的记录数据容器
type Data struct {
	wire  []byte   // 未压缩线格式
	canon []byte   // 用于排序比较的规范形式（内嵌名字小写化）
	name  Name     // DataName / DataSRV 的内嵌名字
	kind  DataKind // 比较方式
}

// newData 构造数据容器并校验大小
func newData(t Type, wire []byte, embedded string) (Data, error) {
	if len(wire) > MaxLargeData {
		return Data{}, fmt.Errorf("%w: rdata too large (%d bytes)", types.ErrBadParam, len(wire))
	}
	d := Data{
		wire: append([]byte(nil), wire...),
		kind: KindOf(t),
	}
	d.canon = d.wire

	if d.kind == DataRaw {
		return d, nil
	}

	n, err := ParseName(embedded)
	if err != nil {
		return Data{}, err
	}
	d.name = n

	packed := make([]byte, 256)
	off, err := dns.PackDomainName(n.Canonical(), packed, 0, nil, false)
	if err != nil {
		return Data{}, fmt.Errorf("%w: pack embedded name: %v", types.ErrBadParam, err)
	}
	if d.kind == DataSRV {
		if len(wire) < srvPrefixLen {
			return Data{}, fmt.Errorf("%w: short SRV rdata", types.ErrBadParam)
		}
		d.canon = append(append([]byte(nil), wire[:srvPrefixLen]...), packed[:off]...)
	} else {
		d.canon = packed[:off]
	}
	return d, nil
}

// Bytes 返回未压缩线格式（调用方不得修改）
func (d Data) Bytes() []byte { return d.wire }

// Len 返回数据长度
func (d Data) Len() int { return len(d.wire) }

// Kind 返回比较方式
func (d Data) Kind() DataKind { return d.kind }

// EmbeddedName 返回内嵌名字（DataRaw 返回零值）
func (d Data) EmbeddedName() Name { return d.name }

// SizeClass 返回数据大小级别
func (d Data) SizeClass() SizeClass {
	if len(d.wire) > MaxStandardData {
		return SizeLarge
	}
	return SizeStandard
}

// Equal 按声明的比较方式判断数据是否相同
func (d Data) Equal(o Data) bool {
	if d.kind != o.kind {
		return false
	}
	switch d.kind {
	case DataName:
		return d.name.Equal(o.name)
	case DataSRV:
		return bytes.Equal(d.wire[:srvPrefixLen], o.wire[:srvPrefixLen]) && d.name.Equal(o.name)
	default:
		return bytes.Equal(d.wire, o.wire)
	}
}

// Compare 按规范形式做字典序比较，用于同时探测的裁决
func (d Data) Compare(o Data) int {
	return bytes.Compare(d.canon, o.canon)
}
