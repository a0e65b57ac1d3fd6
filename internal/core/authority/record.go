package authority

import (
	"time"

	"github.com/dep2p/go-mdns/pkg/lib/rr"
	"github.com/dep2p/go-mdns/pkg/types"
)

// Spec 注册参数
type Spec struct {
	Record    rr.Record
	Policy    types.RecordPolicy
	Interface types.InterfaceID

	// AutoRename 冲突时自动递增名字后缀并重新探测
	AutoRename bool
	// RichTextRename 改名使用 "Name (2)" 形式，用于服务实例名
	RichTextRename bool

	// DependsOn 依赖的记录；全部可见之前本记录不通告也不应答
	DependsOn []Handle
	// After 同一 RegisterSet 内前序记录的下标，注册时解析为 DependsOn
	After []int

	Callback Callback
	Context  any
}

// Record 一条权威记录
type Record struct {
	handle Handle
	rec    rr.Record
	policy types.RecordPolicy
	state  types.RecordState
	iface  types.InterfaceID

	autoRename bool
	richText   bool

	probesLeft    int
	announcesLeft int
	announced     int
	interval      time.Duration
	next          time.Time

	siblings []Handle
	deps     []Handle
	// held 依赖尚未全部可见
	held bool
	// orphaned 依赖因冲突被撤销，直到本记录撤销前都不可见
	orphaned bool

	callback Callback
	ctx      any
}

// Handle 返回句柄
func (r *Record) Handle() Handle { return r.handle }

// Record 返回当前记录内容
func (r *Record) Record() rr.Record { return r.rec }

// Policy 返回类型策略
func (r *Record) Policy() types.RecordPolicy { return r.policy }

// State 返回生命周期状态
func (r *Record) State() types.RecordState { return r.state }

// Interface 返回接口作用域
func (r *Record) Interface() types.InterfaceID { return r.iface }

// Announced 已发出的通告次数
func (r *Record) Announced() int { return r.announced }

// Next 下一次需要处理的时刻，零值表示空闲
func (r *Record) Next() time.Time { return r.next }

// Context 返回注册时的上下文
func (r *Record) Context() any { return r.ctx }

// Visible 是否对查询可见（探测中或等待依赖的记录不可见）
func (r *Record) Visible() bool { return r.state.Active() && !r.held && !r.orphaned }

// Held 是否在等待依赖记录
func (r *Record) Held() bool { return r.held || r.orphaned }

// DependsOn 返回依赖的句柄
func (r *Record) DependsOn() []Handle { return r.deps }

// needsGoodbye 撤销时是否需要发送 goodbye
func (r *Record) needsGoodbye() bool {
	if r.announced == 0 || r.policy == types.PolicyAdvisory {
		return false
	}
	switch r.state {
	case types.StateShared, types.StateVerified, types.StateKnownUnique:
		return true
	}
	return false
}
