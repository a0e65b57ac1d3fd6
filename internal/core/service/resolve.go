package service

import (
	"fmt"
	"net/netip"
	"slices"
	"strings"
	"sync"

	"go.uber.org/multierr"

	"github.com/dep2p/go-mdns/internal/core/engine"
	"github.com/dep2p/go-mdns/pkg/lib/rr"
	"github.com/dep2p/go-mdns/pkg/types"
)

// Resolved 一次完整的解析结果
type Resolved struct {
	Instance  rr.Name
	Host      rr.Name
	Port      uint16
	Text      []string
	Addrs     []netip.Addr
	Interface types.InterfaceID
}

// Resolver 服务实例解析链
//
// SRV 与 TXT 问题常驻；SRV 目标变化时替换地址问题。
// 只有目标、TXT 与至少一个地址都已知时才回调，内容不变时不重复回调。
//
// 回调在引擎的冲刷阶段执行，此时再进入引擎不会同步冲刷，
// 因此回调内可以持有 mu 调用引擎；其余路径调用引擎前必须释放 mu。
type Resolver struct {
	e        Engine
	instance rr.Name
	iface    types.InterfaceID
	cb       func(Resolved)

	mu       sync.Mutex
	stopped  bool
	srvQ     engine.QuestionID
	txtQ     engine.QuestionID
	addrQs   []engine.QuestionID
	host     rr.Name
	port     uint16
	text     []string
	haveText bool
	addrs    map[netip.Addr]struct{}
	last     string
}

// Resolve 启动解析链
func Resolve(e Engine, instance string, iface types.InterfaceID, cb func(Resolved)) (*Resolver, error) {
	name, err := rr.ParseName(instance)
	if err != nil {
		return nil, err
	}
	r := &Resolver{
		e:        e,
		instance: name,
		iface:    iface,
		cb:       cb,
		addrs:    make(map[netip.Addr]struct{}),
	}

	srv, err := e.StartQuestion(engine.QuestionSpec{
		Key:       rr.Key{Name: name, Type: rr.TypeSRV, Class: rr.ClassINET},
		Interface: iface,
		Callback:  r.onSRV,
	})
	if err != nil {
		return nil, err
	}
	txt, err := e.StartQuestion(engine.QuestionSpec{
		Key:       rr.Key{Name: name, Type: rr.TypeTXT, Class: rr.ClassINET},
		Interface: iface,
		Callback:  r.onTXT,
	})
	if err != nil {
		_ = e.StopQuestion(srv)
		return nil, err
	}

	r.mu.Lock()
	r.srvQ, r.txtQ = srv, txt
	r.mu.Unlock()
	logger.Debug("开始解析服务实例", "instance", name)
	return r, nil
}

func (r *Resolver) onSRV(ev engine.QuestionEvent) {
	port, target, ok := ev.Record.SRVTarget()
	if !ok {
		return
	}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	switch {
	case ev.Added && !target.Equal(r.host):
		r.stopAddrs()
		r.host, r.port = target, port
		r.startAddrs(ev.Interface)
	case ev.Added:
		r.port = port
	case target.Equal(r.host):
		r.stopAddrs()
		r.host = rr.Name{}
	}
	res, changed := r.snapshot(ev.Interface)
	r.mu.Unlock()

	if changed {
		r.cb(res)
	}
}

func (r *Resolver) onTXT(ev engine.QuestionEvent) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	if ev.Added {
		r.text, r.haveText = ev.Record.TXTStrings(), true
	} else {
		r.text, r.haveText = nil, false
	}
	res, changed := r.snapshot(ev.Interface)
	r.mu.Unlock()

	if changed {
		r.cb(res)
	}
}

func (r *Resolver) onAddr(ev engine.QuestionEvent) {
	addr, ok := ev.Record.Addr()
	if !ok {
		return
	}

	r.mu.Lock()
	if r.stopped || !ev.Record.Name.Equal(r.host) {
		r.mu.Unlock()
		return
	}
	if ev.Added {
		r.addrs[addr.Unmap()] = struct{}{}
	} else {
		delete(r.addrs, addr.Unmap())
	}
	res, changed := r.snapshot(ev.Interface)
	r.mu.Unlock()

	if changed {
		r.cb(res)
	}
}

// startAddrs 为当前目标启动 A 与 AAAA 问题，调用方持有 mu 且处于回调中
func (r *Resolver) startAddrs(iface types.InterfaceID) {
	if r.iface != types.InterfaceAny {
		iface = r.iface
	}
	for _, t := range []rr.Type{rr.TypeA, rr.TypeAAAA} {
		id, err := r.e.StartQuestion(engine.QuestionSpec{
			Key:       rr.Key{Name: r.host, Type: t, Class: rr.ClassINET},
			Interface: iface,
			Callback:  r.onAddr,
		})
		if err != nil {
			logger.Warn("启动地址问题失败", "host", r.host, "type", t, "err", err)
			continue
		}
		r.addrQs = append(r.addrQs, id)
	}
}

// stopAddrs 停止地址问题，调用方持有 mu 且处于回调中
func (r *Resolver) stopAddrs() {
	for _, id := range r.addrQs {
		_ = r.e.StopQuestion(id)
	}
	r.addrQs = nil
	clear(r.addrs)
}

// snapshot 生成结果；不完整或与上次相同时 changed 为 false
func (r *Resolver) snapshot(iface types.InterfaceID) (Resolved, bool) {
	if r.host.IsZero() || !r.haveText || len(r.addrs) == 0 {
		r.last = ""
		return Resolved{}, false
	}
	addrs := make([]netip.Addr, 0, len(r.addrs))
	for a := range r.addrs {
		addrs = append(addrs, a)
	}
	slices.SortFunc(addrs, func(a, b netip.Addr) int { return a.Compare(b) })

	res := Resolved{
		Instance:  r.instance,
		Host:      r.host,
		Port:      r.port,
		Text:      append([]string(nil), r.text...),
		Addrs:     addrs,
		Interface: iface,
	}
	sig := fmt.Sprintf("%s|%d|%s|%v", res.Host.Canonical(), res.Port, strings.Join(res.Text, "\x00"), res.Addrs)
	if sig == r.last {
		return res, false
	}
	r.last = sig
	return res, true
}

// Stop 停止整条解析链
func (r *Resolver) Stop() error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return ErrClosed
	}
	r.stopped = true
	ids := append([]engine.QuestionID{r.srvQ, r.txtQ}, r.addrQs...)
	r.addrQs = nil
	r.mu.Unlock()

	var errs error
	for _, id := range ids {
		errs = multierr.Append(errs, r.e.StopQuestion(id))
	}
	logger.Debug("停止解析服务实例", "instance", r.instance)
	return errs
}
