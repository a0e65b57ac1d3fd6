package engine

import (
	"time"

	"github.com/dep2p/go-mdns/internal/core/metrics"
	"github.com/dep2p/go-mdns/internal/core/question"
	"github.com/dep2p/go-mdns/pkg/lib/rr"
	"github.com/dep2p/go-mdns/pkg/types"
)

// ============================================================================
//                              定时推进
// ============================================================================

// expire 移除过期缓存条目，为到达刷新点的条目安排刷新查询
func (e *Engine) expire(now time.Time) {
	res := e.cache.Tick(now)
	for _, entry := range res.Expired {
		e.entryGone(entry, now)
	}
	e.metrics.Cache(metrics.CacheExpired, len(res.Expired))

	for _, entry := range res.Refresh {
		if entry.Final() {
			continue
		}
		q := e.responsible(entry.Question, entry.Record, entry.Interface)
		if q == nil {
			entry.Question = 0
			continue
		}
		entry.Question = uint64(q.ID())
		e.questions.RequeryNow(q, now)
	}
	e.cacheNext = res.Next
}

// responsible 返回仍然活动的负责问题，必要时重新指派
func (e *Engine) responsible(id uint64, rec rr.Record, iface types.InterfaceID) *question.Question {
	if id != 0 {
		if q, err := e.questions.Get(question.ID(id)); err == nil {
			return q
		}
	}
	return e.questions.Responsible(rec, iface, 0)
}

// advance 推进全部定时工作
func (e *Engine) advance(now time.Time) {
	e.expire(now)
	e.auth.Tick(now, &e.fx)
	e.applyEffects(now)
	e.sendQueries(now)
	e.metrics.Gauges(e.cache.Len(), e.auth.Len(), e.questions.Len())
}

// ============================================================================
//                              查询发送
// ============================================================================

// sendQueries 为到期的问题组装查询
//
// 某接口上他人刚问过相同问题时视为已发送。组播查询携带剩余 TTL 超过一半的
// 缓存记录作为已知答案。
func (e *Engine) sendQueries(now time.Time) {
	for _, q := range e.questions.Due(now) {
		for _, iface := range e.queryInterfaces(q) {
			if e.questions.Suppressed(q, iface, now) {
				e.metrics.Suppressed(metrics.SuppressDuplicateQuestion)
				logger.Debug("他人刚问过，跳过查询", "id", q.ID(), "key", q.Key(), "iface", iface)
				continue
			}
			m := e.out.message(rr.MessageQuery, iface, q.Target())
			if !hasQuestion(m.Questions, q.Key()) {
				m.Questions = append(m.Questions, rr.Question{Key: q.Key()})
			}
			if q.Target().IsValid() {
				continue
			}
			for _, entry := range e.cache.Match(q.Key(), iface, now) {
				if entry.Remaining(now) <= entry.OriginalTTL()/2 {
					continue
				}
				rec := entry.RecordWithTTL(now)
				if !hasRecord(m.Answers, rec) {
					m.Answers = append(m.Answers, rr.OutRecord{Record: rec})
				}
			}
		}
		e.questions.MarkSent(q, now)
	}
}

// queryInterfaces 问题的查询接口：指定接口，或引擎已知的全部接口
func (e *Engine) queryInterfaces(q *question.Question) []types.InterfaceID {
	if q.Interface() != types.InterfaceAny || len(e.ifaces) == 0 {
		return []types.InterfaceID{q.Interface()}
	}
	return e.ifaces
}
