package authority

import (
	"fmt"

	"github.com/dep2p/go-mdns/pkg/types"
)

// Handle 记录句柄
//
// 零值无效。记录释放后句柄永久失效，槽位复用时代际递增。
type Handle struct {
	slot uint32
	gen  uint32
}

// IsZero 是否为零值句柄
func (h Handle) IsZero() bool { return h.gen == 0 }

// String 返回 "slot#gen"
func (h Handle) String() string { return fmt.Sprintf("%d#%d", h.slot, h.gen) }

// arena 带代际校验的记录存储
type arena struct {
	slots []arenaSlot
	free  []uint32
	live  int
}

type arenaSlot struct {
	gen uint32
	rec *Record
}

func (a *arena) alloc(r *Record) Handle {
	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		a.slots = append(a.slots, arenaSlot{})
		idx = uint32(len(a.slots) - 1)
	}
	s := &a.slots[idx]
	s.gen++
	s.rec = r
	a.live++
	r.handle = Handle{slot: idx, gen: s.gen}
	return r.handle
}

func (a *arena) get(h Handle) (*Record, error) {
	if h.gen == 0 || int(h.slot) >= len(a.slots) {
		return nil, types.ErrBadReference
	}
	s := a.slots[h.slot]
	if s.gen != h.gen || s.rec == nil {
		return nil, types.ErrBadReference
	}
	return s.rec, nil
}

func (a *arena) release(h Handle) {
	if _, err := a.get(h); err != nil {
		return
	}
	a.slots[h.slot].rec = nil
	a.free = append(a.free, h.slot)
	a.live--
}

// each 按槽位顺序遍历存活记录的快照
func (a *arena) each() []*Record {
	out := make([]*Record, 0, a.live)
	for _, s := range a.slots {
		if s.rec != nil {
			out = append(out, s.rec)
		}
	}
	return out
}
