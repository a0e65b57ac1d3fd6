package transport

import (
	"net/netip"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spaolacci/murmur3"
)

const (
	echoSize   = 64
	echoWindow = 2 * time.Second
)

// echoFilter 识别本机发出后经组播回环收到的包
type echoFilter struct {
	mu    sync.Mutex
	sent  *lru.Cache[uint64, time.Time]
	local map[netip.Addr]struct{}
}

func newEchoFilter(local map[netip.Addr]struct{}) *echoFilter {
	sent, _ := lru.New[uint64, time.Time](echoSize)
	return &echoFilter{sent: sent, local: local}
}

// setLocal 更新本机地址集合
func (f *echoFilter) setLocal(local map[netip.Addr]struct{}) {
	f.mu.Lock()
	f.local = local
	f.mu.Unlock()
}

// remember 记录一个已发出的包
func (f *echoFilter) remember(b []byte, now time.Time) {
	f.sent.Add(murmur3.Sum64(b), now)
}

// isEcho 来源是本机地址，且内容与窗口内发出的包相同
func (f *echoFilter) isEcho(b []byte, src netip.Addr, now time.Time) bool {
	f.mu.Lock()
	_, local := f.local[src.Unmap().WithZone("")]
	f.mu.Unlock()
	if !local {
		return false
	}
	at, ok := f.sent.Get(murmur3.Sum64(b))
	return ok && now.Sub(at) < echoWindow
}
