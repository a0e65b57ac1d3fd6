package rr

import (
	"net/netip"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-mdns/pkg/types"
)

func alwaysZero(int) int { return 0 }

// ============================================================================
// Name
// ============================================================================

// TestParseName_CaseInsensitive 大小写不敏感，保留展示形式
func TestParseName_CaseInsensitive(t *testing.T) {
	a := MustName("Host.Local")
	b := MustName("host.local.")

	assert.True(t, a.Equal(b))
	assert.Equal(t, "Host.Local.", a.String())
	assert.Equal(t, "host.local.", a.Canonical())
	assert.Equal(t, a.Hash(), b.Hash())
}

// TestParseName_EscapeForms 不同的转义写法是同一个名字
func TestParseName_EscapeForms(t *testing.T) {
	a := MustName("Office Printer._ipp._tcp.local.")
	b := MustName(`Office\ Printer._ipp._tcp.local.`)
	c := MustName(`Office\032Printer._ipp._tcp.local.`)

	assert.True(t, a.Equal(b))
	assert.True(t, a.Equal(c))
	assert.Equal(t, `Office\ Printer`, a.FirstLabel())
}

// TestParseName_Invalid 空名字与超长标签被拒绝
func TestParseName_Invalid(t *testing.T) {
	_, err := ParseName("")
	assert.ErrorIs(t, err, types.ErrBadParam)

	long := make([]byte, MaxLabelLength+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err = ParseName(string(long) + ".local.")
	assert.ErrorIs(t, err, types.ErrBadParam)

	assert.True(t, Name{}.IsZero())
}

// TestName_WithFirstLabel 替换第一个标签
func TestName_WithFirstLabel(t *testing.T) {
	n := MustName("host.local.")
	renamed, err := n.WithFirstLabel("host-2")
	require.NoError(t, err)
	assert.Equal(t, "host-2.local.", renamed.String())
	assert.Equal(t, []string{"host-2", "local"}, renamed.Labels())
}

// ============================================================================
// IncrementLabelSuffix
// ============================================================================

// TestIncrementLabelSuffix_Plain 主机名风格
func TestIncrementLabelSuffix_Plain(t *testing.T) {
	cases := map[string]string{
		"host":     "host-2",
		"host-2":   "host-3",
		"host-8":   "host-9",
		"host-9":   "host-10",
		"host-1":   "host-1-2",
		"my-host":  "my-host-2",
		"host-abc": "host-abc-2",
	}
	for in, want := range cases {
		assert.Equal(t, want, IncrementLabelSuffix(in, false, alwaysZero), in)
	}
	assert.Equal(t, "host-100", IncrementLabelSuffix("host-42", false, alwaysZero))
	assert.Equal(t, "host-1000", IncrementLabelSuffix("host-420", false, alwaysZero))
}

// TestIncrementLabelSuffix_RichText 服务实例名风格
func TestIncrementLabelSuffix_RichText(t *testing.T) {
	assert.Equal(t, "Office Printer (2)", IncrementLabelSuffix("Office Printer", true, alwaysZero))
	assert.Equal(t, "Office Printer (3)", IncrementLabelSuffix("Office Printer (2)", true, alwaysZero))
	assert.Equal(t, "Printer (x) (2)", IncrementLabelSuffix("Printer (x)", true, alwaysZero))
}

// TestIncrementLabelSuffix_Truncate 结果不超过标签长度上限
func TestIncrementLabelSuffix_Truncate(t *testing.T) {
	long := ""
	for len(long) < MaxLabelLength {
		long += "é"
	}
	long = long[:MaxLabelLength-1]

	got := IncrementLabelSuffix(long, true, alwaysZero)
	assert.LessOrEqual(t, len(got), MaxLabelLength)
	assert.Contains(t, got, " (2)")
	assert.True(t, len(got) > len(" (2)"))
}

// ============================================================================
// Record / Data
// ============================================================================

// TestNewSRV 端口与目标名
func TestNewSRV(t *testing.T) {
	r, err := NewSRV("svc._http._tcp.local.", 0, 0, 8080, "Host.local.", 120)
	require.NoError(t, err)

	port, target, ok := r.SRVTarget()
	require.True(t, ok)
	assert.Equal(t, uint16(8080), port)
	assert.True(t, target.Equal(MustName("host.local.")))
	assert.Equal(t, DataSRV, r.Data.Kind())

	_, _, ok = mustTXT(t).SRVTarget()
	assert.False(t, ok)
}

func mustTXT(t *testing.T) Record {
	t.Helper()
	r, err := NewTXT("svc._http._tcp.local.", 4500, "a=1", "b=2")
	require.NoError(t, err)
	return r
}

// TestNewTXT 字符串往返；空集合写入单个空串
func TestNewTXT(t *testing.T) {
	assert.Equal(t, []string{"a=1", "b=2"}, mustTXT(t).TXTStrings())

	empty, err := NewTXT("x.local.", 120)
	require.NoError(t, err)
	assert.Equal(t, []string{""}, empty.TXTStrings())
	assert.Equal(t, 1, empty.Data.Len())
}

// TestNewRecord 任意类型由线格式数据构造，名字类数据保留内嵌名字
func TestNewRecord(t *testing.T) {
	hinfo, err := NewRecord("x.local.", Type(dns.TypeHINFO), []byte{3, 'a', 'r', 'm', 5, 'l', 'i', 'n', 'u', 'x'}, 120)
	require.NoError(t, err)
	assert.Equal(t, Type(dns.TypeHINFO), hinfo.Type)
	assert.Equal(t, 10, hinfo.Data.Len())
	assert.Equal(t, DataRaw, hinfo.Data.Kind())

	ptr, err := NewRecord("_x._tcp.local.", TypePTR, []byte{1, 'a', 5, 'l', 'o', 'c', 'a', 'l', 0}, 4500)
	require.NoError(t, err)
	assert.Equal(t, "a.local.", ptr.Data.EmbeddedName().String())

	_, err = NewRecord("x.local.", TypeA, []byte{192, 0, 2}, 120)
	assert.ErrorIs(t, err, types.ErrBadParam)
	_, err = NewRecord("x.local.", TypeANY, []byte{1}, 120)
	assert.ErrorIs(t, err, types.ErrBadParam)
}

// TestNewAddr 按地址族选择类型
func TestNewAddr(t *testing.T) {
	a, err := NewAddr("host.local.", netip.MustParseAddr("::ffff:192.0.2.1"), 120)
	require.NoError(t, err)
	assert.Equal(t, TypeA, a.Type)
	got, ok := a.Addr()
	require.True(t, ok)
	assert.Equal(t, netip.MustParseAddr("192.0.2.1"), got)

	aaaa, err := NewAddr("host.local.", netip.MustParseAddr("fe80::1"), 120)
	require.NoError(t, err)
	assert.Equal(t, TypeAAAA, aaaa.Type)

	_, err = NewA("host.local.", netip.MustParseAddr("fe80::1"), 120)
	assert.ErrorIs(t, err, types.ErrBadParam)
}

// TestData_NameCompare 名字类数据大小写不敏感
func TestData_NameCompare(t *testing.T) {
	a, err := NewPTR("_http._tcp.local.", "Web._http._tcp.local.", 4500)
	require.NoError(t, err)
	b, err := NewPTR("_http._tcp.local.", "web._http._tcp.local.", 4500)
	require.NoError(t, err)
	c, err := NewPTR("_http._tcp.local.", "abc._http._tcp.local.", 4500)
	require.NoError(t, err)

	assert.True(t, a.Identical(b))
	assert.Equal(t, 0, a.Data.Compare(b.Data))
	assert.False(t, a.Identical(c))
	assert.Equal(t, a.ID(), b.ID())
	assert.NotEqual(t, a.ID(), c.ID())
	// "abc" < "web"
	assert.Positive(t, a.Data.Compare(c.Data))
}

// TestData_SRVCompare SRV 定长前缀参与比较
func TestData_SRVCompare(t *testing.T) {
	a, err := NewSRV("svc._http._tcp.local.", 0, 0, 80, "HOST.local.", 120)
	require.NoError(t, err)
	b, err := NewSRV("svc._http._tcp.local.", 0, 0, 80, "host.local.", 120)
	require.NoError(t, err)
	c, err := NewSRV("svc._http._tcp.local.", 0, 0, 81, "host.local.", 120)
	require.NoError(t, err)

	assert.True(t, a.Data.Equal(b.Data))
	assert.False(t, b.Data.Equal(c.Data))
	assert.Negative(t, b.Data.Compare(c.Data))
}

// TestData_SizeClass 长 TXT 属于大记录
func TestData_SizeClass(t *testing.T) {
	assert.Equal(t, SizeStandard, mustTXT(t).Data.SizeClass())

	long := make([]byte, 250)
	for i := range long {
		long[i] = 'x'
	}
	big, err := NewTXT("x.local.", 120, string(long), string(long))
	require.NoError(t, err)
	assert.Equal(t, SizeLarge, big.Data.SizeClass())
}

// TestFromDNS_RoundTrip 与 miekg/dns 记录互转
func TestFromDNS_RoundTrip(t *testing.T) {
	in, err := dns.NewRR("svc._http._tcp.local. 120 IN SRV 1 2 8080 host.local.")
	require.NoError(t, err)

	r, err := FromDNS(in)
	require.NoError(t, err)
	assert.Equal(t, uint32(120), r.TTL)
	assert.Equal(t, ClassINET, r.Class)

	out, err := r.ToDNS()
	require.NoError(t, err)
	srv, ok := out.(*dns.SRV)
	require.True(t, ok)
	assert.Equal(t, uint16(1), srv.Priority)
	assert.Equal(t, uint16(2), srv.Weight)
	assert.Equal(t, "host.local.", srv.Target)

	_, err = FromDNS(nil)
	assert.ErrorIs(t, err, types.ErrBadParam)
}

// ============================================================================
// Key
// ============================================================================

// TestKey_Answers 问题匹配规则
func TestKey_Answers(t *testing.T) {
	a, err := NewKey("host.local.", TypeA, ClassINET)
	require.NoError(t, err)
	cname, err := NewKey("host.local.", TypeCNAME, ClassINET)
	require.NoError(t, err)

	assert.True(t, a.Answers(Key{Name: MustName("HOST.local."), Type: TypeA, Class: ClassINET}))
	assert.True(t, a.Answers(Key{Name: a.Name, Type: TypeANY, Class: ClassINET}))
	assert.True(t, a.Answers(Key{Name: a.Name, Type: TypeA, Class: ClassANY}))
	assert.False(t, a.Answers(Key{Name: a.Name, Type: TypeAAAA, Class: ClassINET}))
	assert.True(t, cname.Answers(Key{Name: a.Name, Type: TypeAAAA, Class: ClassINET}))
	assert.False(t, a.Answers(Key{Name: MustName("other.local."), Type: TypeA, Class: ClassINET}))
}
