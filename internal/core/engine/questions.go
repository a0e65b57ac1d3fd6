package engine

import (
	"fmt"

	"github.com/dep2p/go-mdns/internal/core/cache"
	"github.com/dep2p/go-mdns/internal/core/question"
	"github.com/dep2p/go-mdns/pkg/lib/rr"
	"github.com/dep2p/go-mdns/pkg/types"
)

type (
	// QuestionID 问题标识
	QuestionID = question.ID
	// QuestionSpec 问题参数
	QuestionSpec = question.Spec
	// QuestionEvent 问题投递事件
	QuestionEvent = question.Event
	// QuestionCallback 问题回调
	QuestionCallback = question.Callback
)

// StartQuestion 启动一个活动问题
//
// 先用缓存与本地权威记录回答；已有答案的问题推迟首次查询，
// 没有答案的问题立即查询。缓存容量为 0 时返回 ErrNoCache。
func (e *Engine) StartQuestion(spec QuestionSpec) (QuestionID, error) {
	now := e.lock()
	if !e.cache.Enabled() {
		e.unlock(now)
		return 0, fmt.Errorf("%w: question %s needs a cache", types.ErrNoCache, spec.Key)
	}
	q, err := e.questions.Start(spec, now)
	if err != nil {
		e.unlock(now)
		return 0, err
	}

	for _, entry := range e.cache.Match(spec.Key, spec.Interface, now) {
		if !q.Matches(entry.Record, entry.Interface, entry.Source.Addr()) {
			continue
		}
		e.cache.Touch(entry, now)
		e.deliver(q, entry.Record, entry.Interface, true, now)
		if entry.Question == 0 {
			entry.Question = uint64(q.Primary())
		}
	}
	for _, r := range e.auth.Answer(spec.Key, spec.Interface) {
		e.deliver(q, r.Record(), r.Interface(), true, now)
	}
	if q.Current() > 0 {
		e.questions.Defer(q, now)
	}

	id := q.ID()
	logger.Debug("问题已启动", "id", id, "key", spec.Key, "answers", q.Current())
	e.unlock(now)
	return id, nil
}

// StopQuestion 停止问题
//
// 问题立即失效，尚未执行的回调不再投递。它负责刷新的缓存条目改由其他活动问题负责，
// 没有时自然过期。
func (e *Engine) StopQuestion(id QuestionID) error {
	now := e.lock()
	if _, err := e.questions.Stop(id); err != nil {
		e.unlock(now)
		return err
	}
	e.cache.Each(func(entry *cache.Entry) bool {
		if entry.Question != uint64(id) {
			return true
		}
		entry.Question = 0
		if q := e.questions.Responsible(entry.Record, entry.Interface, id); q != nil {
			entry.Question = uint64(q.ID())
		}
		return true
	})
	e.unlock(now)
	return nil
}

// Answers 返回问题当前匹配的记录
func (e *Engine) Answers(id QuestionID) ([]rr.Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	q, err := e.questions.Get(id)
	if err != nil {
		return nil, err
	}
	return q.Answers(), nil
}
