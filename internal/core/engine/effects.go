package engine

import (
	"net/netip"
	"time"

	"github.com/dep2p/go-mdns/internal/core/authority"
	"github.com/dep2p/go-mdns/internal/core/cache"
	"github.com/dep2p/go-mdns/internal/core/question"
	"github.com/dep2p/go-mdns/pkg/lib/rr"
	"github.com/dep2p/go-mdns/pkg/types"
)

// ============================================================================
//                              出站队列
// ============================================================================

type outKey struct {
	kind  rr.MessageKind
	iface types.InterfaceID
	dst   netip.AddrPort
}

// outbox 按 (种类, 接口, 目的地) 合并的出站消息
type outbox struct {
	msgs  []*rr.Message
	index map[outKey]*rr.Message
}

func (o *outbox) message(kind rr.MessageKind, iface types.InterfaceID, dst netip.AddrPort) *rr.Message {
	k := outKey{kind: kind, iface: iface, dst: dst}
	if m, ok := o.index[k]; ok {
		return m
	}
	if o.index == nil {
		o.index = make(map[outKey]*rr.Message)
	}
	m := &rr.Message{Kind: kind, Interface: iface, Destination: dst}
	o.index[k] = m
	o.msgs = append(o.msgs, m)
	return m
}

func (o *outbox) take() []*rr.Message {
	out := o.msgs[:0:0]
	for _, m := range o.msgs {
		if !m.Empty() {
			out = append(out, m)
		}
	}
	o.msgs = nil
	o.index = nil
	return out
}

// putRecord 追加记录；已有相同记录时以后者为准（goodbye 覆盖通告）
func putRecord(list []rr.OutRecord, r rr.OutRecord) []rr.OutRecord {
	for i, x := range list {
		if x.Identical(r.Record) {
			list[i] = r
			return list
		}
	}
	return append(list, r)
}

// hasRecord 列表中是否已有相同记录
func hasRecord(list []rr.OutRecord, rec rr.Record) bool {
	for _, x := range list {
		if x.Identical(rec) {
			return true
		}
	}
	return false
}

// ============================================================================
//                              权威记录副作用
// ============================================================================

// applyEffects 把权威记录部件产生的副作用转换为出站消息、问题投递与回调
func (e *Engine) applyEffects(now time.Time) {
	fx := &e.fx
	if fx.Empty() {
		return
	}

	for _, s := range fx.Sends {
		switch s.Kind {
		case authority.SendProbe:
			m := e.out.message(rr.MessageProbe, s.Interface, netip.AddrPort{})
			q := rr.Question{Key: rr.Key{Name: s.Record.Name, Type: rr.TypeANY, Class: s.Record.Class}}
			if !hasQuestion(m.Questions, q.Key) {
				m.Questions = append(m.Questions, q)
			}
			m.Authority = append(m.Authority, rr.OutRecord{Record: s.Record})
		default:
			m := e.out.message(rr.MessageResponse, s.Interface, netip.AddrPort{})
			m.Answers = putRecord(m.Answers, rr.OutRecord{Record: s.Record, CacheFlush: s.CacheFlush})
			if s.Kind == authority.SendAnnounce {
				e.limiter.Add(limitKey{id: s.Record.ID(), iface: s.Interface}, now)
			}
		}
	}

	for _, c := range fx.Changes {
		for _, q := range e.questions.Matching(c.Record, c.Interface, netip.Addr{}) {
			e.deliver(q, c.Record, c.Interface, c.Added, now)
		}
	}

	for _, ev := range fx.Events {
		if ev.Status == types.StatusNameConflict {
			e.metrics.Conflict()
		}
		if ev.Callback == nil {
			continue
		}
		ev := ev
		e.pending = append(e.pending, func() { ev.Callback(ev) })
	}

	fx.Reset()
}

func hasQuestion(list []rr.Question, k rr.Key) bool {
	for _, q := range list {
		if q.Key.Equal(k) {
			return true
		}
	}
	return false
}

// ============================================================================
//                              问题投递
// ============================================================================

// deliver 唯一的投递入口
//
// 回调执行前重新检查问题是否仍然活动。
func (e *Engine) deliver(q *question.Question, rec rr.Record, iface types.InterfaceID, added bool, now time.Time) {
	ev, ok := e.questions.Deliver(q, rec, iface, added, now)
	if !ok {
		return
	}
	e.metrics.Delivered(added)
	if ev.Callback == nil {
		return
	}
	e.pending = append(e.pending, func() {
		if !e.questionLive(ev.ID) {
			return
		}
		ev.Callback(ev)
	})
}

func (e *Engine) questionLive(id question.ID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.questions.Get(id)
	return err == nil
}

// entryAdded 新缓存条目：投递 add，设置负责刷新的问题
func (e *Engine) entryAdded(entry *cache.Entry, now time.Time) {
	for _, q := range e.questions.Matching(entry.Record, entry.Interface, entry.Source.Addr()) {
		e.deliver(q, entry.Record, entry.Interface, true, now)
		if entry.Question == 0 {
			entry.Question = uint64(q.Primary())
		}
	}
}

// entryGone 缓存条目被移除：向匹配的问题投递 remove
func (e *Engine) entryGone(entry *cache.Entry, now time.Time) {
	for _, q := range e.questions.Matching(entry.Record, entry.Interface, entry.Source.Addr()) {
		e.deliver(q, entry.Record, entry.Interface, false, now)
	}
}
