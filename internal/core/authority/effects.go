package authority

import (
	"github.com/dep2p/go-mdns/pkg/lib/rr"
	"github.com/dep2p/go-mdns/pkg/types"
)

// SendKind 出站发送种类
type SendKind int

const (
	// SendProbe 探测
	SendProbe SendKind = iota
	// SendAnnounce 通告
	SendAnnounce
	// SendGoodbye TTL 为 0 的撤销声明
	SendGoodbye
)

// String 返回发送种类名
func (k SendKind) String() string {
	switch k {
	case SendProbe:
		return "probe"
	case SendAnnounce:
		return "announce"
	case SendGoodbye:
		return "goodbye"
	default:
		return "unknown"
	}
}

// Send 一条待发送的记录
type Send struct {
	Kind       SendKind
	Record     rr.Record
	Interface  types.InterfaceID
	CacheFlush bool
}

// Event 完成回调事件
type Event struct {
	Handle  Handle
	Status  types.Status
	Record  rr.Record
	Context any
	// Final 句柄已失效（MemFree，或未改名的冲突撤销）
	Final bool

	Callback Callback
}

// Callback 记录完成回调
//
// 回调在引擎释放锁之后执行，可以重新进入引擎。
// 收到 StatusMemFree 之后句柄失效。
type Callback func(Event)

// Change 记录对本地问题的可见性变化
type Change struct {
	Record    rr.Record
	Interface types.InterfaceID
	Added     bool
}

// Effects 一次操作产生的副作用，按发生顺序排列
type Effects struct {
	Sends   []Send
	Events  []Event
	Changes []Change
}

// Empty 是否没有任何副作用
func (fx *Effects) Empty() bool {
	return len(fx.Sends) == 0 && len(fx.Events) == 0 && len(fx.Changes) == 0
}

// Reset 清空，保留底层数组
func (fx *Effects) Reset() {
	fx.Sends = fx.Sends[:0]
	fx.Events = fx.Events[:0]
	fx.Changes = fx.Changes[:0]
}

func (fx *Effects) send(kind SendKind, r *Record, rec rr.Record) {
	fx.Sends = append(fx.Sends, Send{
		Kind:       kind,
		Record:     rec,
		Interface:  r.iface,
		CacheFlush: kind != SendProbe && r.policy.IsUnique(),
	})
}

func (fx *Effects) event(r *Record, status types.Status, rec rr.Record, final bool) {
	fx.Events = append(fx.Events, Event{
		Handle:   r.handle,
		Status:   status,
		Record:   rec,
		Context:  r.ctx,
		Final:    final,
		Callback: r.callback,
	})
}

func (fx *Effects) change(r *Record, rec rr.Record, added bool) {
	fx.Changes = append(fx.Changes, Change{Record: rec, Interface: r.iface, Added: added})
}
