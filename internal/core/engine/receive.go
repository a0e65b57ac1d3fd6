package engine

import (
	"net/netip"
	"time"

	"github.com/dep2p/go-mdns/internal/core/authority"
	"github.com/dep2p/go-mdns/internal/core/cache"
	"github.com/dep2p/go-mdns/internal/core/metrics"
	"github.com/dep2p/go-mdns/pkg/lib/rr"
	"github.com/dep2p/go-mdns/pkg/types"
)

// mdnsPort 组播 DNS 端口；其他源端口的查询是传统单播查询
const mdnsPort = 5353

// Receive 处理一个已解码的入站包
func (e *Engine) Receive(pkt *rr.Packet) {
	if pkt == nil {
		return
	}
	now := e.lock()
	p := *pkt
	if p.Number == 0 {
		e.packetSeq++
		p.Number = e.packetSeq
	} else if p.Number > e.packetSeq {
		e.packetSeq = p.Number
	}
	e.metrics.PacketReceived(p.Query)

	if p.Query {
		e.handleQuery(&p, now)
	} else {
		e.handleResponse(&p, now)
	}
	e.unlock(now)
}

// ============================================================================
//                              查询
// ============================================================================

// handleQuery 处理查询：探测冲突检查、记录他人问题、应答
func (e *Engine) handleQuery(pkt *rr.Packet, now time.Time) {
	iface := pkt.Interface
	var known []rr.Record
	probing := false
	for _, pr := range pkt.Records {
		switch pr.Section {
		case rr.SectionAuthority:
			probing = true
			e.auth.HandleIncoming(authority.Incoming{Record: pr.Record, Interface: iface, Probe: true}, now, &e.fx)
		case rr.SectionAnswer:
			known = append(known, pr.Record)
		}
	}

	legacy := pkt.Source.IsValid() && pkt.Source.Port() != mdnsPort
	for _, q := range pkt.Questions {
		if !probing && len(known) == 0 && pkt.Source.IsValid() {
			e.questions.ObserveQuery(q.Key, iface, pkt.Source.Addr(), now)
		}

		unicast := legacy || q.UnicastResponse
		var dst netip.AddrPort
		if unicast {
			dst = pkt.Source
		}

		for _, r := range e.auth.Answer(q.Key, iface) {
			rec := r.Record()
			if knownCovers(known, rec) {
				e.metrics.Suppressed(metrics.SuppressKnownAnswer)
				continue
			}
			if !unicast && !probing && !e.allowMulticast(rec, iface, now) {
				e.metrics.Suppressed(metrics.SuppressRateLimit)
				continue
			}

			m := e.out.message(rr.MessageResponse, iface, dst)
			if legacy && !hasQuestion(m.Questions, q.Key) {
				m.Questions = append(m.Questions, q)
			}
			m.Answers = putRecord(m.Answers, rr.OutRecord{Record: rec, CacheFlush: r.Policy().IsUnique() && !legacy})
			e.addAdditionals(m, rec, iface, legacy)
		}
	}
}

// knownCovers 提问方已知答案中是否有 TTL 不低于我方一半的相同记录
func knownCovers(known []rr.Record, rec rr.Record) bool {
	for _, k := range known {
		if k.Identical(rec) && k.TTL >= rec.TTL/2 {
			return true
		}
	}
	return false
}

// allowMulticast 同一记录在同一接口上一个限速间隔内只组播一次
func (e *Engine) allowMulticast(rec rr.Record, iface types.InterfaceID, now time.Time) bool {
	k := limitKey{id: rec.ID(), iface: iface}
	if last, ok := e.limiter.Get(k); ok && now.Sub(last) < e.cfg.ResponseRateLimit.Duration() {
		return false
	}
	e.limiter.Add(k, now)
	return true
}

// addAdditionals 为 PTR 附加 SRV/TXT，为 SRV 目标附加地址记录
func (e *Engine) addAdditionals(m *rr.Message, rec rr.Record, iface types.InterfaceID, legacy bool) {
	add := func(r *authority.Record) {
		x := r.Record()
		if hasRecord(m.Answers, x) || hasRecord(m.Additional, x) {
			return
		}
		m.Additional = append(m.Additional, rr.OutRecord{Record: x, CacheFlush: r.Policy().IsUnique() && !legacy})
	}

	var hosts []rr.Name
	switch rec.Type {
	case rr.TypePTR:
		instance := rr.Key{Name: rec.Data.EmbeddedName(), Type: rr.TypeANY, Class: rec.Class}
		for _, r := range e.auth.Answer(instance, iface) {
			add(r)
			if _, host, ok := r.Record().SRVTarget(); ok {
				hosts = append(hosts, host)
			}
		}
	case rr.TypeSRV:
		if _, host, ok := rec.SRVTarget(); ok {
			hosts = append(hosts, host)
		}
	}
	for _, host := range hosts {
		for _, t := range []rr.Type{rr.TypeA, rr.TypeAAAA} {
			for _, r := range e.auth.Answer(rr.Key{Name: host, Type: t, Class: rec.Class}, iface) {
				add(r)
			}
		}
	}
}

// ============================================================================
//                              应答
// ============================================================================

// handleResponse 处理应答：冲突检查，然后两遍更新缓存
//
// 第一遍原地刷新全部精确匹配，第二遍执行 cache-flush 删除与插入，
// 使结果与包内记录顺序无关。
func (e *Engine) handleResponse(pkt *rr.Packet, now time.Time) {
	for _, pr := range pkt.Records {
		e.auth.HandleIncoming(authority.Incoming{Record: pr.Record, Interface: pkt.Interface}, now, &e.fx)
	}
	if !e.cache.Enabled() {
		return
	}

	ins := make([]cache.Incoming, len(pkt.Records))
	done := make([]bool, len(pkt.Records))
	for i, pr := range pkt.Records {
		ins[i] = cache.Incoming{
			Record:     pr.Record,
			Interface:  pkt.Interface,
			Source:     pkt.Source,
			Packet:     pkt.Number,
			CacheFlush: pr.CacheFlush,
		}
		entry, kind := e.cache.Refresh(ins[i], now)
		switch kind {
		case cache.KindRefreshed:
			done[i] = true
			e.metrics.Cache(metrics.CacheRefreshed, 1)
			if q := e.responsible(entry.Question, entry.Record, entry.Interface); q != nil {
				entry.Question = uint64(q.ID())
			}
		case cache.KindGoodbye:
			done[i] = true
			e.metrics.Cache(metrics.CacheGoodbye, 1)
		}
	}

	for i, in := range ins {
		if in.CacheFlush && in.Record.TTL > 0 {
			removed := e.cache.Flush(in)
			for _, entry := range removed {
				e.entryGone(entry, now)
			}
			e.metrics.Cache(metrics.CacheFlushed, len(removed))
		}
		if done[i] || in.Record.TTL == 0 {
			continue
		}
		entry, kind, err := e.cache.Insert(in, now)
		if err != nil {
			e.metrics.Cache(metrics.CacheRejected, 1)
			logger.Debug("缓存拒绝新记录", "record", in.Record.Key, "err", err)
			continue
		}
		if kind == cache.KindNew {
			e.metrics.Cache(metrics.CacheNew, 1)
			e.entryAdded(entry, now)
		}
	}
}
