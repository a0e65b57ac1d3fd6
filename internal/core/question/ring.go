package question

import (
	"net/netip"
	"time"

	"github.com/dep2p/go-mdns/pkg/types"
)

// Asker 他人发出相同问题的记录
type Asker struct {
	Interface types.InterfaceID
	Addr      netip.Addr
	At        time.Time
}

// Ring 固定大小的"他人已问"环
//
// 条目按最近一次出现排序，满时淘汰最旧的一条。
type Ring struct {
	size    int
	entries []Asker
}

// NewRing 创建容量为 size 的环
func NewRing(size int) *Ring {
	if size < 1 {
		size = 1
	}
	return &Ring{size: size, entries: make([]Asker, 0, size)}
}

// Record 记录一次他人提问；同一来源再次出现时移到最新位置
func (r *Ring) Record(iface types.InterfaceID, addr netip.Addr, at time.Time) {
	for i, e := range r.entries {
		if e.Interface == iface && e.Addr == addr {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			break
		}
	}
	if len(r.entries) == r.size {
		r.entries = append(r.entries[:0], r.entries[1:]...)
	}
	r.entries = append(r.entries, Asker{Interface: iface, Addr: addr, At: at})
}

// SeenSince 接口上在 since 之后（含）是否有人问过
func (r *Ring) SeenSince(iface types.InterfaceID, since time.Time) bool {
	for _, e := range r.entries {
		if iface.Matches(e.Interface) && !e.At.Before(since) {
			return true
		}
	}
	return false
}

// Len 当前条目数
func (r *Ring) Len() int { return len(r.entries) }

// Entries 返回从旧到新的条目副本
func (r *Ring) Entries() []Asker {
	return append([]Asker(nil), r.entries...)
}
