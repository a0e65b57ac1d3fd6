package mdns

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"

	"go.uber.org/multierr"

	"github.com/dep2p/go-mdns/internal/core/engine"
	"github.com/dep2p/go-mdns/internal/core/service"
	"github.com/dep2p/go-mdns/internal/core/session"
	"github.com/dep2p/go-mdns/pkg/lib/rr"
	"github.com/dep2p/go-mdns/pkg/types"
)

type (
	// Service 服务实例描述
	Service = service.Instance
	// ServiceEvent 服务注册状态变化
	ServiceEvent = service.Event
	// BrowseEvent 浏览到的实例增减
	BrowseEvent = service.BrowseEvent
	// Resolved 完整的解析结果
	Resolved = service.Resolved
	// ExtraRecord 附加在服务实例名下的记录
	ExtraRecord = service.ExtraRecord
)

// Answer 查询到的记录增减
type Answer struct {
	Record    rr.Record
	Interface types.InterfaceID
	Added     bool
}

// HostEvent 主机地址记录的状态变化
type HostEvent struct {
	Status types.Status
	// Record 当前记录，改名后为新名字
	Record rr.Record
	Err    error
}

// ════════════════════════════════════════════════════════════════════════════
//                              服务注册
// ════════════════════════════════════════════════════════════════════════════

// Registration 一次服务注册
type Registration struct {
	sess   *session.Session
	g      *service.Registration
	events *stream[ServiceEvent]
}

// Register 注册服务实例
//
// 实例名冲突时自动改名为 "Name (2)" 并重新探测。
// Events 在收到 StatusMemFree 或放弃注册后关闭。
func (r *Responder) Register(svc Service) (*Registration, error) {
	sess, err := r.session()
	if err != nil {
		return nil, err
	}
	events := newStream[ServiceEvent]("register", 0)
	g, err := sess.RegisterService(svc, func(ev ServiceEvent) {
		if ev.Status == types.StatusMemFree || (ev.Status == types.StatusNameConflict && ev.Err != nil) {
			events.finish(ev)
			return
		}
		events.pushMust(ev)
	})
	if err != nil {
		events.close()
		return nil, fmt.Errorf("register %q: %w", svc.Name, err)
	}
	return &Registration{sess: sess, g: g, events: events}, nil
}

// Events 注册状态变化
func (g *Registration) Events() <-chan ServiceEvent { return g.events.C() }

// Name 当前实例名
func (g *Registration) Name() string { return g.g.Name() }

// FullName 当前实例的完整域名
func (g *Registration) FullName() string { return g.g.FullName() }

// SetText 替换 TXT 数据
func (g *Registration) SetText(text ...string) error { return g.g.SetText(text...) }

// AddRecord 在实例名下附加一条记录，ttl 为 0 时使用服务 TTL
func (g *Registration) AddRecord(t rr.Type, rdata []byte, ttl uint32) (*ExtraRecord, error) {
	x, err := g.g.AddRecord(t, rdata, ttl)
	if errors.Is(err, service.ErrClosed) {
		return nil, ErrClosed
	}
	return x, err
}

// RemoveRecord 撤销附加的记录
func (g *Registration) RemoveRecord(x *ExtraRecord) error {
	err := g.g.RemoveRecord(x)
	if errors.Is(err, service.ErrClosed) {
		return ErrClosed
	}
	return err
}

// Close 撤销注册并发送 goodbye
func (g *Registration) Close() error {
	err := g.sess.CloseService(g.g)
	if errors.Is(err, session.ErrClosed) || errors.Is(err, session.ErrNotOwned) {
		return ErrClosed
	}
	return err
}

// ════════════════════════════════════════════════════════════════════════════
//                              主机地址
// ════════════════════════════════════════════════════════════════════════════

// Host 发布的主机地址记录
type Host struct {
	sess   *session.Session
	events *stream[HostEvent]

	mu      sync.Mutex
	handles []engine.Handle
	live    int
	closed  bool
}

// PublishHost 发布主机名的 A/AAAA 记录
//
// 每个地址族最多一个地址；记录按唯一记录探测，冲突时自动改名。
func (r *Responder) PublishHost(host string, addrs ...netip.Addr) (*Host, error) {
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: no address for %q", types.ErrBadParam, host)
	}
	var have4, have6 bool
	recs := make([]rr.Record, 0, len(addrs))
	for _, a := range addrs {
		a = a.Unmap()
		if a.Is4() {
			if have4 {
				return nil, fmt.Errorf("%w: more than one IPv4 address for %q", types.ErrBadParam, host)
			}
			have4 = true
		} else {
			if have6 {
				return nil, fmt.Errorf("%w: more than one IPv6 address for %q", types.ErrBadParam, host)
			}
			have6 = true
		}
		rec, err := rr.NewAddr(host, a, service.DefaultHostTTL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrBadParam, err)
		}
		recs = append(recs, rec)
	}

	sess, err := r.session()
	if err != nil {
		return nil, err
	}
	h := &Host{sess: sess, events: newStream[HostEvent]("host", 0)}
	for _, rec := range recs {
		h.mu.Lock()
		h.live++
		h.mu.Unlock()
		handle, err := sess.Register(engine.RecordSpec{
			Record:     rec,
			Policy:     types.PolicyUnique,
			AutoRename: true,
			Callback:   h.onRecord,
		})
		if err != nil {
			h.mu.Lock()
			h.live--
			h.mu.Unlock()
			return nil, multierr.Append(fmt.Errorf("publish %s: %w", rec.Key, err), h.Close())
		}
		h.mu.Lock()
		h.handles = append(h.handles, handle)
		h.mu.Unlock()
	}
	logger.Info("发布主机地址", "host", host, "addrs", len(recs))
	return h, nil
}

func (h *Host) onRecord(ev engine.RecordEvent) {
	out := HostEvent{Status: ev.Status, Record: ev.Record}
	if ev.Status == types.StatusNameConflict && ev.Final {
		out.Err = types.ErrNameConflict
	}
	if !ev.Final {
		h.events.push(out)
		return
	}
	h.mu.Lock()
	h.live--
	done := h.live == 0
	h.mu.Unlock()
	if done {
		h.events.finish(out)
	} else {
		h.events.pushMust(out)
	}
}

// Events 记录状态变化；全部记录释放后关闭
func (h *Host) Events() <-chan HostEvent { return h.events.C() }

// Close 撤销全部地址记录
func (h *Host) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	h.closed = true
	handles := h.handles
	h.handles = nil
	live := h.live
	h.mu.Unlock()

	var errs error
	for _, handle := range handles {
		err := h.sess.Deregister(handle)
		if errors.Is(err, types.ErrBadReference) || errors.Is(err, session.ErrNotOwned) || errors.Is(err, session.ErrClosed) {
			continue
		}
		errs = multierr.Append(errs, err)
	}
	if live == 0 {
		h.events.close()
	}
	return errs
}

// ════════════════════════════════════════════════════════════════════════════
//                              浏览、解析与查询
// ════════════════════════════════════════════════════════════════════════════

// Browse 浏览某服务类型的实例，直到 ctx 取消或应答器停止
//
// svc 为 "_services._dns-sd._udp" 时枚举服务类型。
func (r *Responder) Browse(ctx context.Context, svc string) (<-chan BrowseEvent, error) {
	sess, err := r.session()
	if err != nil {
		return nil, err
	}
	events := newStream[BrowseEvent]("browse", 0)
	b, err := sess.Browse(svc, "", 0, func(ev BrowseEvent) {
		if ev.Added {
			events.push(ev)
		} else {
			events.pushMust(ev)
		}
	})
	if err != nil {
		events.close()
		return nil, fmt.Errorf("browse %q: %w", svc, err)
	}
	r.watch(ctx, func() error { return sess.Stop(b) }, events.close)
	return events.C(), nil
}

// Resolve 解析服务实例，直到 ctx 取消或应答器停止
//
// 只在目标主机、TXT 与地址都已知且内容变化时投递。
func (r *Responder) Resolve(ctx context.Context, instance string) (<-chan Resolved, error) {
	sess, err := r.session()
	if err != nil {
		return nil, err
	}
	events := newStream[Resolved]("resolve", 0)
	res, err := sess.Resolve(instance, 0, func(v Resolved) { events.push(v) })
	if err != nil {
		events.close()
		return nil, fmt.Errorf("resolve %q: %w", instance, err)
	}
	r.watch(ctx, func() error { return sess.Stop(res) }, events.close)
	return events.C(), nil
}

// Query 对任意名字与类型发起持续查询，直到 ctx 取消或应答器停止
func (r *Responder) Query(ctx context.Context, name string, t rr.Type) (<-chan Answer, error) {
	key, err := rr.NewKey(name, t, rr.ClassINET)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrBadParam, err)
	}
	sess, err := r.session()
	if err != nil {
		return nil, err
	}
	events := newStream[Answer]("query", 0)
	id, err := sess.StartQuestion(engine.QuestionSpec{
		Key:  key,
		Kind: types.QuestionEnumerate,
		Callback: func(ev engine.QuestionEvent) {
			a := Answer{Record: ev.Record, Interface: ev.Interface, Added: ev.Added}
			if a.Added {
				events.push(a)
			} else {
				events.pushMust(a)
			}
		},
	})
	if err != nil {
		events.close()
		return nil, fmt.Errorf("query %s: %w", key, err)
	}
	r.watch(ctx, func() error { return sess.StopQuestion(id) }, events.close)
	return events.C(), nil
}

// watch 在 ctx 取消或应答器停止后释放资源并关闭通道
func (r *Responder) watch(ctx context.Context, stop func() error, closeFn func()) {
	go func() {
		select {
		case <-ctx.Done():
		case <-r.done:
		}
		if err := stop(); err != nil && !errors.Is(err, session.ErrClosed) {
			logger.Debug("释放查询失败", "err", err)
		}
		closeFn()
	}()
}
