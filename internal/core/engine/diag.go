package engine

import (
	"sort"
	"time"

	"github.com/dep2p/go-mdns/internal/core/cache"
	"github.com/dep2p/go-mdns/pkg/lib/rr"
	"github.com/dep2p/go-mdns/pkg/types"
)

// ============================================================================
//                              诊断快照
// ============================================================================

// QuestionInfo 活动问题快照
type QuestionInfo struct {
	ID        QuestionID
	Key       rr.Key
	Interface types.InterfaceID
	Kind      types.QuestionKind
	Answers   int
	Interval  time.Duration
	Next      time.Time
	// Duplicate 与更早的同类问题共用查询流量
	Duplicate bool
}

// Questions 返回活动问题快照，按启动顺序
func (e *Engine) Questions() []QuestionInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	qs := e.questions.Questions()
	out := make([]QuestionInfo, 0, len(qs))
	for _, q := range qs {
		out = append(out, QuestionInfo{
			ID:        q.ID(),
			Key:       q.Key(),
			Interface: q.Interface(),
			Kind:      q.Kind(),
			Answers:   q.Current(),
			Interval:  q.Interval(),
			Next:      q.Next(),
			Duplicate: q.Duplicate(),
		})
	}
	return out
}

// CacheDump 返回全部缓存记录快照，按名字与类型排序
func (e *Engine) CacheDump() []CachedRecord {
	e.mu.Lock()
	now := e.clk.Now()
	var out []CachedRecord
	e.cache.Each(func(entry *cache.Entry) bool {
		out = append(out, CachedRecord{
			Record:    entry.RecordWithTTL(now),
			Interface: entry.Interface,
			Source:    entry.Source.String(),
			Remaining: entry.Remaining(now),
		})
		return true
	})
	e.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Record, out[j].Record
		if a.Name.Canonical() != b.Name.Canonical() {
			return a.Name.Canonical() < b.Name.Canonical()
		}
		return a.Type < b.Type
	})
	return out
}
