package rr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/miekg/dns"
	"github.com/spaolacci/murmur3"

	"github.com/dep2p/go-mdns/pkg/types"
)

// MaxLabelLength 单个标签最大长度
const MaxLabelLength = 63

// Name 大小写不敏感的域名
//
// 零值表示空名字，不能用于任何记录。
type Name struct {
	text  string // 展示形式（FQDN，保留原始大小写）
	canon string // 规范形式（小写 FQDN）
	hash  uint32 // canon 的 murmur3 哈希
}

// ParseName 解析并校验域名
func ParseName(s string) (Name, error) {
	if s == "" {
		return Name{}, fmt.Errorf("%w: empty name", types.ErrBadParam)
	}
	fq := dns.Fqdn(s)
	if _, ok := dns.IsDomainName(fq); !ok {
		return Name{}, fmt.Errorf("%w: invalid name %q", types.ErrBadParam, s)
	}
	// 经线格式往返一次，统一转义写法："a b" 与 "a\ b" 是同一个名字
	buf := make([]byte, 256)
	off, err := dns.PackDomainName(fq, buf, 0, nil, false)
	if err != nil {
		return Name{}, fmt.Errorf("%w: invalid name %q: %v", types.ErrBadParam, s, err)
	}
	if fq, _, err = dns.UnpackDomainName(buf[:off], 0); err != nil {
		return Name{}, fmt.Errorf("%w: invalid name %q: %v", types.ErrBadParam, s, err)
	}
	canon := dns.CanonicalName(fq)
	return Name{
		text:  fq,
		canon: canon,
		hash:  murmur3.Sum32([]byte(canon)),
	}, nil
}

// MustName 解析域名，失败时 panic（仅用于常量与测试）
func MustName(s string) Name {
	n, err := ParseName(s)
	if err != nil {
		panic(err)
	}
	return n
}

// String 返回展示形式
func (n Name) String() string { return n.text }

// Canonical 返回小写规范形式
func (n Name) Canonical() string { return n.canon }

// Hash 返回预计算的 32 位名字哈希
func (n Name) Hash() uint32 { return n.hash }

// IsZero 是否为空名字
func (n Name) IsZero() bool { return n.canon == "" }

// Equal 大小写不敏感比较
func (n Name) Equal(o Name) bool {
	return n.hash == o.hash && n.canon == o.canon
}

// Labels 返回标签列表
func (n Name) Labels() []string {
	return dns.SplitDomainName(n.text)
}

// FirstLabel 返回第一个标签
func (n Name) FirstLabel() string {
	labels := n.Labels()
	if len(labels) == 0 {
		return ""
	}
	return labels[0]
}

// WithFirstLabel 替换第一个标签
func (n Name) WithFirstLabel(label string) (Name, error) {
	labels := n.Labels()
	if len(labels) == 0 {
		return Name{}, fmt.Errorf("%w: root name has no label", types.ErrBadParam)
	}
	labels[0] = label
	return ParseName(strings.Join(labels, "."))
}

// ============================================================================
//                              冲突改名
// ============================================================================

// IncrementLabelSuffix 为冲突的标签生成下一个候选名
//
// "foo" → "foo-2" → ... → "foo-9"，之后依次尝试随机的两位、三位、四位后缀。
// richText 为 true 时使用服务实例名风格 "Foo (2)"。
// rnd(n) 返回 [0, n) 内的随机数。
func IncrementLabelSuffix(label string, richText bool, rnd func(n int) int) string {
	base, val := splitLabelSuffix(label, richText)

	switch {
	case val == 0:
		val = 2
	case val < 9:
		val++
	case val < 10:
		val = rnd(89) + 10
	case val < 100:
		val = rnd(899) + 100
	default:
		val = rnd(8999) + 1000
	}

	var suffix string
	if richText {
		suffix = " (" + strconv.Itoa(val) + ")"
		base = strings.TrimRight(base, " ")
	} else {
		suffix = "-" + strconv.Itoa(val)
	}

	if len(base)+len(suffix) > MaxLabelLength {
		base = base[:MaxLabelLength-len(suffix)]
		// 截断点落在多字节字符中间时回退
		for len(base) > 0 && !utf8.ValidString(base) {
			base = base[:len(base)-1]
		}
	}
	return base + suffix
}

// splitLabelSuffix 拆出已有的数字后缀；无后缀时 val 为 0
func splitLabelSuffix(label string, richText bool) (string, int) {
	if richText {
		if !strings.HasSuffix(label, ")") {
			return label, 0
		}
		open := strings.LastIndex(label, " (")
		if open < 0 {
			return label, 0
		}
		digits := label[open+2 : len(label)-1]
		val, ok := parseSuffix(digits)
		if !ok {
			return label, 0
		}
		return label[:open], val
	}

	dash := strings.LastIndexByte(label, '-')
	if dash <= 0 {
		return label, 0
	}
	val, ok := parseSuffix(label[dash+1:])
	if !ok || val < 2 {
		return label, 0
	}
	return label[:dash], val
}

func parseSuffix(digits string) (int, bool) {
	if digits == "" || len(digits) > 9 {
		return 0, false
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return 0, false
		}
	}
	val, err := strconv.Atoi(digits)
	return val, err == nil
}
