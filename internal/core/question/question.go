package question

import (
	"net/netip"
	"time"

	"github.com/dep2p/go-mdns/pkg/lib/rr"
	"github.com/dep2p/go-mdns/pkg/types"
)

// ID 问题标识，0 无效
type ID uint64

// Spec 问题参数
type Spec struct {
	Key       rr.Key
	Interface types.InterfaceID
	// Target 单播目标，零值表示组播
	Target netip.AddrPort
	Kind   types.QuestionKind

	Callback Callback
	Context  any
}

// Event 应答事件
type Event struct {
	ID        ID
	Record    rr.Record
	Interface types.InterfaceID
	Added     bool
	Context   any

	Callback Callback
}

// Callback 应答回调，在引擎释放锁之后执行
type Callback func(Event)

type answer struct {
	rec  rr.Record
	refs int
}

// Question 一个活动问题
type Question struct {
	id   ID
	spec Spec

	lastQuery time.Time
	next      time.Time
	interval  time.Duration
	ring      *Ring
	// resume 非零表示当前到期仅为缓存刷新，发送后恢复到该时刻
	resume time.Time

	answers       map[string]*answer
	ever          int
	// reported 存在式问题在 0→1 时投递的记录，1→0 时原样撤回
	reported rr.Record
	recentAnswers int

	primary ID
	stopped bool
}

// ID 返回标识
func (q *Question) ID() ID { return q.id }

// Key 返回问题 key
func (q *Question) Key() rr.Key { return q.spec.Key }

// Interface 返回接口作用域
func (q *Question) Interface() types.InterfaceID { return q.spec.Interface }

// Target 返回单播目标
func (q *Question) Target() netip.AddrPort { return q.spec.Target }

// Kind 返回投递方式
func (q *Question) Kind() types.QuestionKind { return q.spec.Kind }

// Context 返回启动时的上下文
func (q *Question) Context() any { return q.spec.Context }

// LastQuery 最近一次（视为）发送查询的时间
func (q *Question) LastQuery() time.Time { return q.lastQuery }

// Next 下一次查询时间
func (q *Question) Next() time.Time { return q.next }

// Interval 当前退避间隔
func (q *Question) Interval() time.Duration { return q.interval }

// Ring 返回"他人已问"环
func (q *Question) Ring() *Ring { return q.ring }

// Current 当前匹配的不同记录数
func (q *Question) Current() int { return len(q.answers) }

// Ever 曾经匹配过的记录数
func (q *Question) Ever() int { return q.ever }

// Duplicate 是否为其他本地问题的副本（不发送查询）
func (q *Question) Duplicate() bool { return q.primary != 0 }

// Primary 副本所依附的主问题，主问题返回自身
func (q *Question) Primary() ID {
	if q.primary != 0 {
		return q.primary
	}
	return q.id
}

// Stopped 是否已停止
func (q *Question) Stopped() bool { return q.stopped }

// Answers 返回当前匹配的记录
func (q *Question) Answers() []rr.Record {
	out := make([]rr.Record, 0, len(q.answers))
	for _, a := range q.answers {
		out = append(out, a.rec)
	}
	return out
}

// sameTraffic 两个问题的网络流量是否相同
func (q *Question) sameTraffic(o *Question) bool {
	return q.spec.Key.Equal(o.spec.Key) &&
		q.spec.Interface == o.spec.Interface &&
		q.spec.Target == o.spec.Target
}

// Matches 记录能否回答本问题
//
// src 为记录来源，零值表示本地记录，不受单播目标限制。
func (q *Question) Matches(rec rr.Record, iface types.InterfaceID, src netip.Addr) bool {
	if !rec.Answers(q.spec.Key) || !q.spec.Interface.Matches(iface) {
		return false
	}
	if q.spec.Target.IsValid() && src.IsValid() && src != q.spec.Target.Addr() {
		return false
	}
	return true
}
