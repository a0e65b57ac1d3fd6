package question

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/dep2p/go-mdns/pkg/lib/log"
	"github.com/dep2p/go-mdns/pkg/lib/rr"
	"github.com/dep2p/go-mdns/pkg/types"
)

var logger = log.Logger("core/question")

// burstWindow 查询发出后用于判定应答突发的窗口
const burstWindow = time.Second

// Config 问题集合参数
type Config struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	RingSize        int
}

// DefaultConfig 返回默认参数
func DefaultConfig() Config {
	return Config{
		InitialInterval: time.Second,
		MaxInterval:     time.Hour,
		RingSize:        8,
	}
}

// Set 活动问题集合
//
// 不是并发安全的，由引擎在锁内调用。
type Set struct {
	cfg    Config
	byID   map[ID]*Question
	order  []*Question
	nextID ID
}

// NewSet 创建问题集合
func NewSet(cfg Config) *Set {
	return &Set{cfg: cfg, byID: make(map[ID]*Question)}
}

// Len 活动问题数
func (s *Set) Len() int { return len(s.order) }

// Get 按标识查找
func (s *Set) Get(id ID) (*Question, error) {
	q, ok := s.byID[id]
	if !ok {
		return nil, types.ErrBadReference
	}
	return q, nil
}

// Questions 返回活动问题快照（按启动顺序）
func (s *Set) Questions() []*Question {
	return append([]*Question(nil), s.order...)
}

// Start 启动问题，立即到期
//
// 与已有问题的网络流量相同时成为其副本，不单独发送查询。
func (s *Set) Start(spec Spec, now time.Time) (*Question, error) {
	switch {
	case spec.Key.Name.IsZero():
		return nil, fmt.Errorf("%w: empty question name", types.ErrBadParam)
	case spec.Key.Type == 0 || spec.Key.Class == 0:
		return nil, fmt.Errorf("%w: invalid question type/class", types.ErrBadParam)
	case spec.Kind != types.QuestionEnumerate && spec.Kind != types.QuestionExistence:
		return nil, fmt.Errorf("%w: unknown question kind %d", types.ErrBadParam, spec.Kind)
	}

	s.nextID++
	q := &Question{
		id:      s.nextID,
		spec:    spec,
		next:    now,
		ring:    NewRing(s.cfg.RingSize),
		answers: make(map[string]*answer),
	}
	for _, p := range s.order {
		if !p.Duplicate() && p.sameTraffic(q) {
			q.primary = p.id
			q.next = time.Time{}
			break
		}
	}
	s.byID[q.id] = q
	s.order = append(s.order, q)

	logger.Debug("启动问题", "id", q.id, "key", spec.Key, "iface", spec.Interface, "duplicate", q.Duplicate())
	return q, nil
}

// Defer 已被本地答案满足的新问题，首次查询推迟一个初始间隔
func (s *Set) Defer(q *Question, now time.Time) {
	if q.Duplicate() {
		return
	}
	q.interval = s.cfg.InitialInterval
	q.next = now.Add(q.interval)
}

// Stop 停止问题
//
// 主问题停止时由第一个副本接替，继承查询时间、退避与"他人已问"环。
func (s *Set) Stop(id ID) (*Question, error) {
	q, ok := s.byID[id]
	if !ok {
		return nil, types.ErrBadReference
	}
	delete(s.byID, id)
	for i, x := range s.order {
		if x == q {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	q.stopped = true

	if !q.Duplicate() {
		var heir *Question
		for _, d := range s.order {
			if d.primary != id {
				continue
			}
			if heir == nil {
				heir = d
				d.primary = 0
				d.lastQuery, d.next, d.interval, d.ring, d.resume = q.lastQuery, q.next, q.interval, q.ring, q.resume
				continue
			}
			d.primary = heir.id
		}
	}

	logger.Debug("停止问题", "id", id, "key", q.spec.Key)
	return q, nil
}

// Matching 返回能被 rec 回答的活动问题（含副本）
//
// src 为记录来源，本地记录传零值。
func (s *Set) Matching(rec rr.Record, iface types.InterfaceID, src netip.Addr) []*Question {
	var out []*Question
	for _, q := range s.order {
		if q.Matches(rec, iface, src) {
			out = append(out, q)
		}
	}
	return out
}

// Responsible 返回负责刷新某缓存条目的首选问题，没有时返回 nil
func (s *Set) Responsible(rec rr.Record, iface types.InterfaceID, exclude ID) *Question {
	for _, q := range s.order {
		if q.id != exclude && !q.Duplicate() && q.Matches(rec, iface, netip.Addr{}) {
			return q
		}
	}
	return nil
}

// ============================================================================
//                              查询调度
// ============================================================================

// Due 到期需要发送查询的主问题
func (s *Set) Due(now time.Time) []*Question {
	var out []*Question
	for _, q := range s.order {
		if !q.Duplicate() && !q.next.IsZero() && !q.next.After(now) {
			out = append(out, q)
		}
	}
	return out
}

// NextWake 最早的查询时间，零值表示无
func (s *Set) NextWake() time.Time {
	var next time.Time
	for _, q := range s.order {
		if q.Duplicate() || q.next.IsZero() {
			continue
		}
		if next.IsZero() || q.next.Before(next) {
			next = q.next
		}
	}
	return next
}

// MarkSent 记录一次（视为）发送，推进退避
//
// 仅为缓存刷新而提前的发送不推进退避，恢复原来的下一次查询时刻。
func (s *Set) MarkSent(q *Question, now time.Time) {
	q.lastQuery = now
	q.recentAnswers = 0
	if !q.resume.IsZero() {
		q.next = q.resume
		q.resume = time.Time{}
		if !q.next.After(now) {
			q.next = now.Add(q.interval)
		}
		return
	}
	if q.interval == 0 {
		q.interval = s.cfg.InitialInterval
	} else {
		q.interval *= 2
		if q.interval > s.cfg.MaxInterval {
			q.interval = s.cfg.MaxInterval
		}
	}
	q.next = now.Add(q.interval)
}

// RequeryNow 让主问题立即到期（缓存刷新查询）
func (s *Set) RequeryNow(q *Question, now time.Time) {
	if q.Duplicate() {
		if p, ok := s.byID[q.primary]; ok {
			q = p
		}
	}
	if q.next.IsZero() || !q.next.After(now) || q.interval == 0 {
		return
	}
	if q.resume.IsZero() {
		q.resume = q.next
	}
	q.next = now
}

// SuppressionWindow 他人提问视为本方已发送的窗口
func (s *Set) SuppressionWindow(q *Question) time.Duration {
	if q.interval < time.Second {
		return time.Second
	}
	return q.interval
}

// Suppressed 接口上窗口内是否已有人问过相同问题
func (s *Set) Suppressed(q *Question, iface types.InterfaceID, now time.Time) bool {
	return q.ring.SeenSince(iface, now.Add(-s.SuppressionWindow(q)))
}

// ObserveQuery 记录他人发出的问题
func (s *Set) ObserveQuery(key rr.Key, iface types.InterfaceID, src netip.Addr, now time.Time) int {
	n := 0
	for _, q := range s.order {
		if q.Duplicate() || !q.spec.Key.Equal(key) || !q.spec.Interface.Matches(iface) {
			continue
		}
		q.ring.Record(iface, src, now)
		n++
	}
	return n
}

// ============================================================================
//                              投递
// ============================================================================

// Deliver 投递一次记录增减，返回需要触发的事件
//
// 同一记录的多份来源（多个接口、本地与缓存）按引用计数合并。
func (s *Set) Deliver(q *Question, rec rr.Record, iface types.InterfaceID, added bool, now time.Time) (Event, bool) {
	if q.stopped {
		return Event{}, false
	}
	id := rec.ID()

	if added {
		if a, ok := q.answers[id]; ok {
			a.refs++
			return Event{}, false
		}
		q.answers[id] = &answer{rec: rec, refs: 1}
		q.ever++
		s.noteAnswer(q, now)
		if q.spec.Kind == types.QuestionExistence {
			if len(q.answers) != 1 {
				return Event{}, false
			}
			q.reported = rec
		}
		return s.event(q, rec, iface, true), true
	}

	a, ok := q.answers[id]
	if !ok {
		return Event{}, false
	}
	a.refs--
	if a.refs > 0 {
		return Event{}, false
	}
	delete(q.answers, id)
	if q.spec.Kind == types.QuestionExistence {
		if len(q.answers) != 0 {
			return Event{}, false
		}
		gone := q.reported
		q.reported = rr.Record{}
		return s.event(q, gone, iface, false), true
	}
	return s.event(q, a.rec, iface, false), true
}

func (s *Set) event(q *Question, rec rr.Record, iface types.InterfaceID, added bool) Event {
	return Event{
		ID:        q.id,
		Record:    rec,
		Interface: iface,
		Added:     added,
		Context:   q.spec.Context,
		Callback:  q.spec.Callback,
	}
}

// noteAnswer 查询后 1 秒内的第二条应答重置退避
func (s *Set) noteAnswer(q *Question, now time.Time) {
	p := q
	if q.Duplicate() {
		var ok bool
		if p, ok = s.byID[q.primary]; !ok {
			return
		}
	}
	if p.lastQuery.IsZero() || now.Sub(p.lastQuery) >= burstWindow {
		return
	}
	p.recentAnswers++
	if p.recentAnswers > 1 && p.interval > s.cfg.InitialInterval {
		logger.Debug("应答突发，重置查询退避", "id", p.id, "key", p.spec.Key)
		p.interval = s.cfg.InitialInterval
		p.next = p.lastQuery.Add(p.interval)
	}
}
