package service

import (
	"strconv"
	"strings"
	"sync"

	"github.com/dep2p/go-mdns/internal/core/engine"
	"github.com/dep2p/go-mdns/pkg/lib/rr"
	"github.com/dep2p/go-mdns/pkg/types"
)

// BrowseEvent 服务实例出现或消失
type BrowseEvent struct {
	// Instance 实例完整域名，可直接交给 Resolve
	Instance rr.Name
	// Name 实例名（未转义）
	Name      string
	Interface types.InterfaceID
	Added     bool
}

// Browser 服务实例浏览
type Browser struct {
	e  Engine
	id engine.QuestionID

	mu      sync.Mutex
	stopped bool
}

// Browse 浏览某服务类型的实例；service 为 "_services._dns-sd._udp" 时枚举服务类型
func Browse(e Engine, service, domain string, iface types.InterfaceID, cb func(BrowseEvent)) (*Browser, error) {
	name, err := rr.ParseName(ServiceName(service, domain))
	if err != nil {
		return nil, err
	}
	b := &Browser{e: e}
	id, err := e.StartQuestion(engine.QuestionSpec{
		Key:       rr.Key{Name: name, Type: rr.TypePTR, Class: rr.ClassINET},
		Interface: iface,
		Callback: func(ev engine.QuestionEvent) {
			target := ev.Record.Data.EmbeddedName()
			if target.IsZero() {
				return
			}
			b.mu.Lock()
			stopped := b.stopped
			b.mu.Unlock()
			if stopped {
				return
			}
			cb(BrowseEvent{
				Instance:  target,
				Name:      UnescapeLabel(target.FirstLabel()),
				Interface: ev.Interface,
				Added:     ev.Added,
			})
		},
	})
	if err != nil {
		return nil, err
	}
	b.id = id
	logger.Debug("开始浏览服务", "service", name)
	return b, nil
}

// Stop 停止浏览
func (b *Browser) Stop() error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return ErrClosed
	}
	b.stopped = true
	b.mu.Unlock()
	return b.e.StopQuestion(b.id)
}

// UnescapeLabel 还原展示形式标签中的 \X 与 \DDD 转义
func UnescapeLabel(label string) string {
	if !strings.Contains(label, `\`) {
		return label
	}
	var sb strings.Builder
	for i := 0; i < len(label); i++ {
		c := label[i]
		if c != '\\' || i+1 >= len(label) {
			sb.WriteByte(c)
			continue
		}
		if i+3 < len(label) && isDigit(label[i+1]) && isDigit(label[i+2]) && isDigit(label[i+3]) {
			if v, err := strconv.Atoi(label[i+1 : i+4]); err == nil && v < 256 {
				sb.WriteByte(byte(v))
				i += 3
				continue
			}
		}
		sb.WriteByte(label[i+1])
		i++
	}
	return sb.String()
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
