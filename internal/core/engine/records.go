package engine

import (
	"fmt"

	"github.com/dep2p/go-mdns/internal/core/authority"
	"github.com/dep2p/go-mdns/pkg/lib/rr"
	"github.com/dep2p/go-mdns/pkg/types"
)

type (
	// Handle 权威记录句柄
	Handle = authority.Handle
	// RecordSpec 注册参数
	RecordSpec = authority.Spec
	// RecordEvent 记录完成回调事件
	RecordEvent = authority.Event
	// RecordCallback 记录完成回调
	RecordCallback = authority.Callback
)

// RecordInfo 权威记录快照
type RecordInfo struct {
	Handle    Handle
	Record    rr.Record
	Policy    types.RecordPolicy
	State     types.RecordState
	Interface types.InterfaceID
	Announced int
	// Held 等待依赖记录可见
	Held bool
}

func infoOf(r *authority.Record) RecordInfo {
	return RecordInfo{
		Handle:    r.Handle(),
		Record:    r.Record(),
		Policy:    r.Policy(),
		State:     r.State(),
		Interface: r.Interface(),
		Announced: r.Announced(),
		Held:      r.Held(),
	}
}

// ============================================================================
//                              注册
// ============================================================================

// Register 注册一条权威记录
//
// 共享与建议记录立即开始通告；唯一记录先探测，通过后回调 StatusVerified；
// 已知唯一记录跳过探测并回调 StatusKnownUnique。
func (e *Engine) Register(spec RecordSpec) (Handle, error) {
	now := e.lock()
	h, err := e.auth.Register(spec, now, &e.fx)
	e.unlock(now)
	if err != nil {
		logger.Debug("注册失败", "record", spec.Record.Key, "err", err)
	}
	return h, err
}

// RegisterSet 在一次进入内注册一组互为兄弟的记录
//
// spec.After 引用同组内前序记录的下标，解析后追加到 DependsOn。
// 任一记录失败时整组回滚，不产生任何回调或发送。
func (e *Engine) RegisterSet(specs ...RecordSpec) ([]Handle, error) {
	now := e.lock()
	sends, events, changes := len(e.fx.Sends), len(e.fx.Events), len(e.fx.Changes)

	handles := make([]Handle, 0, len(specs))
	for i, spec := range specs {
		spec, err := resolveAfter(spec, i, handles)
		var h Handle
		if err == nil {
			h, err = e.auth.Register(spec, now, &e.fx)
		}
		if err != nil {
			for _, done := range handles {
				_ = e.auth.Deregister(done, &e.fx)
			}
			e.fx.Sends = e.fx.Sends[:sends]
			e.fx.Events = e.fx.Events[:events]
			e.fx.Changes = e.fx.Changes[:changes]
			e.unlock(now)
			logger.Debug("记录组注册失败，已回滚", "record", spec.Record.Key, "err", err)
			return nil, err
		}
		handles = append(handles, h)
	}
	if err := e.auth.Link(handles...); err != nil {
		e.unlock(now)
		return nil, err
	}
	e.unlock(now)
	return handles, nil
}

func resolveAfter(spec RecordSpec, i int, handles []Handle) (RecordSpec, error) {
	if len(spec.After) == 0 {
		return spec, nil
	}
	deps := append([]Handle(nil), spec.DependsOn...)
	for _, idx := range spec.After {
		if idx < 0 || idx >= i {
			return spec, fmt.Errorf("%w: record %d depends on %d", types.ErrBadParam, i, idx)
		}
		deps = append(deps, handles[idx])
	}
	spec.DependsOn, spec.After = deps, nil
	return spec, nil
}

// Link 把已注册的记录加入同一兄弟集合
func (e *Engine) Link(handles ...Handle) error {
	now := e.lock()
	err := e.auth.Link(handles...)
	e.unlock(now)
	return err
}

// Update 替换记录数据并重新通告
func (e *Engine) Update(h Handle, rec rr.Record) error {
	now := e.lock()
	err := e.auth.Update(h, rec, now, &e.fx)
	e.unlock(now)
	return err
}

// Deregister 撤销记录
//
// 需要时先发送 goodbye；StatusMemFree 回调在 goodbye 交给发送协作者之后投递。
func (e *Engine) Deregister(h Handle) error {
	now := e.lock()
	err := e.auth.Deregister(h, &e.fx)
	e.unlock(now)
	return err
}

// DeregisterSet 撤销记录及其全部兄弟
func (e *Engine) DeregisterSet(h Handle) error {
	now := e.lock()
	siblings, err := e.auth.Siblings(h)
	if err != nil {
		e.unlock(now)
		return err
	}
	for _, s := range append(siblings, h) {
		_ = e.auth.Deregister(s, &e.fx)
	}
	e.unlock(now)
	return nil
}

// Siblings 返回仍然存活的兄弟句柄
func (e *Engine) Siblings(h Handle) ([]Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.auth.Siblings(h)
}

// Record 返回记录快照
func (e *Engine) Record(h Handle) (RecordInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, err := e.auth.Get(h)
	if err != nil {
		return RecordInfo{}, err
	}
	return infoOf(r), nil
}

// Records 返回全部权威记录快照
func (e *Engine) Records() []RecordInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	recs := e.auth.Records()
	out := make([]RecordInfo, 0, len(recs))
	for _, r := range recs {
		out = append(out, infoOf(r))
	}
	return out
}
