package rr

import (
	"net/netip"
	"time"

	"github.com/dep2p/go-mdns/pkg/types"
)

// ============================================================================
//                              入站：协作者解码后的包
// ============================================================================

// Section 记录所在的报文段
type Section int

const (
	// SectionAnswer 答案段（查询包中为已知答案）
	SectionAnswer Section = iota
	// SectionAuthority 权威段（探测包中为拟注册的记录）
	SectionAuthority
	// SectionAdditional 附加段
	SectionAdditional
)

// PacketRecord 包中的一条记录
type PacketRecord struct {
	Record
	// CacheFlush 应答方声明这是该名字/类型/类别的完整集合
	CacheFlush bool
	Section    Section
}

// Question 包中的一个问题
type Question struct {
	Key
	// UnicastResponse 提问方请求单播应答（QU 位）
	UnicastResponse bool
}

// Packet 协议解码层交给引擎的已校验元组
type Packet struct {
	// Query 为 true 表示查询包，否则为应答包
	Query     bool
	Questions []Question
	Records   []PacketRecord

	Source     netip.AddrPort
	Interface  types.InterfaceID
	ReceivedAt time.Time
	// Number 单调递增的包序号；为 0 时由引擎分配
	Number uint64
}

// ============================================================================
//                              出站：引擎交给发送协作者的消息
// ============================================================================

// MessageKind 出站消息种类
type MessageKind int

const (
	// MessageQuery 普通查询（可携带已知答案）
	MessageQuery MessageKind = iota
	// MessageProbe 探测：ANY 问题 + 权威段
	MessageProbe
	// MessageResponse 应答/通告/goodbye
	MessageResponse
)

// String 返回消息种类名
func (k MessageKind) String() string {
	switch k {
	case MessageQuery:
		return "query"
	case MessageProbe:
		return "probe"
	case MessageResponse:
		return "response"
	default:
		return "unknown"
	}
}

// OutRecord 出站记录；TTL 为 0 即 goodbye
type OutRecord struct {
	Record
	CacheFlush bool
}

// Message 一条出站消息
type Message struct {
	Kind      MessageKind
	Interface types.InterfaceID
	// Destination 零值表示组播组
	Destination netip.AddrPort

	Questions  []Question
	Answers    []OutRecord
	Authority  []OutRecord
	Additional []OutRecord
}

// Empty 消息是否没有任何内容
func (m *Message) Empty() bool {
	return len(m.Questions) == 0 && len(m.Answers) == 0 && len(m.Authority) == 0 && len(m.Additional) == 0
}
