package authority

import (
	"time"

	"github.com/dep2p/go-mdns/pkg/lib/rr"
	"github.com/dep2p/go-mdns/pkg/types"
)

// HandleIncoming 把一条入站记录与权威记录比对
//
//   - 同身份同数据、TTL 不足我方一半：立即重新通告（TTL 防御）
//   - 同身份不同数据的应答：唯一记录冲突
//   - 他人探测与我方探测同名：按 (class, type, rdata) 字典序裁决，
//     我方较小则推迟 1 秒重新探测
//
// 共享与建议记录从不冲突。
func (a *Authority) HandleIncoming(in Incoming, now time.Time, fx *Effects) {
	for _, r := range a.arena.each() {
		if r.state == types.StateDeregistering || r.state == types.StateUnregistered {
			continue
		}
		if !r.iface.Matches(in.Interface) || !r.rec.Key.Equal(in.Record.Key) {
			continue
		}
		same := r.rec.Data.Equal(in.Record.Data)

		if in.Probe {
			if !same && r.state == types.StateUnique && compareRecords(r.rec, in.Record) < 0 {
				logger.Info("同时探测裁决失败，推迟重新探测", "record", r.rec.Key)
				r.probesLeft = a.cfg.ProbeCount
				r.next = now.Add(probeDeferOnLoss)
			}
			continue
		}

		if same {
			if r.Visible() && in.Record.TTL < r.rec.TTL/2 {
				logger.Debug("TTL 防御，重新通告", "record", r.rec.Key, "theirs", in.Record.TTL, "ours", r.rec.TTL)
				if r.announcesLeft < 1 {
					r.announcesLeft = 1
				}
				r.next = now
			}
			continue
		}

		if !r.policy.IsUnique() {
			continue
		}
		a.conflict(r, now, fx)
	}
}

// conflict 处理冲突：撤销，需要时先发 goodbye，按需改名重新探测
func (a *Authority) conflict(r *Record, now time.Time, fx *Effects) {
	old := r.rec
	if r.needsGoodbye() {
		fx.send(SendGoodbye, r, old.WithTTL(0))
	}
	if r.Visible() {
		fx.change(r, old, false)
	}

	if r.autoRename {
		if name, ok := a.renameFor(r); ok {
			r.rec.Name = name
			fx.event(r, types.StatusNameConflict, old, false)
			a.start(r, now, fx)
			logger.Info("名字冲突，自动改名", "handle", r.handle, "old", old.Name, "new", name)
			return
		}
		logger.Warn("名字冲突，无可用的新名字", "record", old.Key)
	}

	h := r.handle
	a.orphan(r)
	a.unlink(r)
	fx.event(r, types.StatusNameConflict, old, true)
	logger.Info("名字冲突，撤销记录", "handle", h, "record", old.Key)
}

// renameFor 找到第一个本地未占用的候选名
func (a *Authority) renameFor(r *Record) (rr.Name, bool) {
	name := r.rec.Name
	for i := 0; i < a.cfg.MaxRenameAttempts; i++ {
		next, err := name.WithFirstLabel(rr.IncrementLabelSuffix(name.FirstLabel(), r.richText, a.rnd.Intn))
		if err != nil {
			return rr.Name{}, false
		}
		name = next
		candidate := r.rec
		candidate.Name = name
		if a.checkDuplicate(candidate, r.policy, r.iface, r.handle) == nil {
			return name, true
		}
	}
	return rr.Name{}, false
}

// compareRecords 按 class、type、rdata 字典序比较
func compareRecords(ours, theirs rr.Record) int {
	switch {
	case ours.Class != theirs.Class:
		if ours.Class < theirs.Class {
			return -1
		}
		return 1
	case ours.Type != theirs.Type:
		if ours.Type < theirs.Type {
			return -1
		}
		return 1
	}
	return ours.Data.Compare(theirs.Data)
}
