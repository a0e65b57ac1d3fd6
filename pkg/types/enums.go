package types

import "strconv"

// ============================================================================
//                              InterfaceID - 网络接口
// ============================================================================

// InterfaceID 网络接口标识
//
// 零值 InterfaceAny 表示"任意接口"：记录在所有接口上发布，
// 问题在所有接口上查询。非零值由接口枚举协作者分配。
type InterfaceID uint32

// InterfaceAny 任意接口
const InterfaceAny InterfaceID = 0

// String 返回接口标识的字符串表示
func (id InterfaceID) String() string {
	if id == InterfaceAny {
		return "any"
	}
	return "if" + strconv.FormatUint(uint64(id), 10)
}

// Matches 判断两个接口作用域是否相容（任一为 any 即相容）
func (id InterfaceID) Matches(other InterfaceID) bool {
	return id == InterfaceAny || other == InterfaceAny || id == other
}

// ============================================================================
//                              RecordPolicy - 记录类型策略
// ============================================================================

// RecordPolicy 权威记录声明的类型策略
//
// 策略决定记录是否需要唯一性探测、撤销时是否发送 goodbye、
// 以及唯一性是否由外部保证。
type RecordPolicy int

const (
	// PolicyShared 共享记录：名字不要求唯一（如 PTR），撤销时发送 goodbye
	PolicyShared RecordPolicy = iota
	// PolicyAdvisory 建议记录：类似共享记录，但撤销时不发送 goodbye
	PolicyAdvisory
	// PolicyUnique 唯一记录：注册后先探测，通过后进入 Verified
	PolicyUnique
	// PolicyKnownUnique 已知唯一：唯一性由外部保证，跳过探测
	PolicyKnownUnique
)

// String 返回策略名
func (p RecordPolicy) String() string {
	switch p {
	case PolicyShared:
		return "shared"
	case PolicyAdvisory:
		return "advisory"
	case PolicyUnique:
		return "unique"
	case PolicyKnownUnique:
		return "known-unique"
	default:
		return "unknown"
	}
}

// IsUnique 是否属于唯一类（参与冲突检测）
func (p RecordPolicy) IsUnique() bool {
	return p == PolicyUnique || p == PolicyKnownUnique
}

// ============================================================================
//                              RecordState - 权威记录状态
// ============================================================================

// RecordState 权威记录生命周期状态
//
//	Unregistered → {Shared, Advisory, Unique, KnownUnique} → Deregistering → Unregistered
//	Unique → Verified（探测完成）
type RecordState int

const (
	// StateUnregistered 未注册（初始/终止状态）
	StateUnregistered RecordState = iota
	// StateShared 共享记录已激活
	StateShared
	// StateAdvisory 建议记录已激活
	StateAdvisory
	// StateUnique 唯一记录探测中
	StateUnique
	// StateVerified 唯一记录已通过探测
	StateVerified
	// StateKnownUnique 已知唯一记录已激活
	StateKnownUnique
	// StateDeregistering 撤销中（goodbye 待发送）
	StateDeregistering
)

// String 返回状态名
func (s RecordState) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateShared:
		return "shared"
	case StateAdvisory:
		return "advisory"
	case StateUnique:
		return "probing"
	case StateVerified:
		return "verified"
	case StateKnownUnique:
		return "known-unique"
	case StateDeregistering:
		return "deregistering"
	default:
		return "unknown"
	}
}

// Active 记录是否处于可以回答查询的状态
func (s RecordState) Active() bool {
	switch s {
	case StateShared, StateAdvisory, StateVerified, StateKnownUnique:
		return true
	default:
		return false
	}
}

// ============================================================================
//                              QuestionKind - 问题投递方式
// ============================================================================

// QuestionKind 问题的答案投递方式
type QuestionKind int

const (
	// QuestionEnumerate 枚举式：每条不同的匹配记录都单独投递 add/remove
	QuestionEnumerate QuestionKind = iota
	// QuestionExistence 存在式：仅在匹配数 0→1 与 1→0 时投递
	QuestionExistence
)

// String 返回投递方式名
func (k QuestionKind) String() string {
	switch k {
	case QuestionEnumerate:
		return "enumerate"
	case QuestionExistence:
		return "existence"
	default:
		return "unknown"
	}
}
