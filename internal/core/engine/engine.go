package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dep2p/go-mdns/config"
	"github.com/dep2p/go-mdns/internal/core/authority"
	"github.com/dep2p/go-mdns/internal/core/cache"
	"github.com/dep2p/go-mdns/internal/core/metrics"
	"github.com/dep2p/go-mdns/internal/core/question"
	"github.com/dep2p/go-mdns/pkg/interfaces"
	"github.com/dep2p/go-mdns/pkg/lib/log"
	"github.com/dep2p/go-mdns/pkg/lib/rr"
	"github.com/dep2p/go-mdns/pkg/types"
)

var logger = log.Logger("core/engine")

// limitKey 应答限速表的键
type limitKey struct {
	id    string
	iface types.InterfaceID
}

// Engine mDNS 引擎
//
// 所有导出方法并发安全，内部由一把锁串行化。
type Engine struct {
	cfg config.EngineConfig
	clk clock.Clock

	mu        sync.Mutex
	cache     *cache.Cache
	auth      *authority.Authority
	questions *question.Set
	limiter   *lru.Cache[limitKey, time.Time]
	ifaces    []types.InterfaceID
	packetSeq uint64
	cacheNext time.Time
	lastWake  time.Time

	// 锁内累积，释放锁后冲刷
	fx       authority.Effects
	out      outbox
	pending  []func()
	flushing bool

	sender  interfaces.Sender
	waker   interfaces.Waker
	metrics metrics.Reporter
}

// New 创建引擎
func New(opts Options) (*Engine, error) {
	opts.fill()
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Sender == nil {
		return nil, fmt.Errorf("%w: sender is required", types.ErrBadParam)
	}

	limiter, err := lru.New[limitKey, time.Time](opts.Config.ResponseLimiterSize)
	if err != nil {
		return nil, fmt.Errorf("create response limiter: %w", err)
	}

	cfg := opts.Config
	e := &Engine{
		cfg: cfg,
		clk: opts.Clock,
		cache: cache.New(cache.Config{
			Capacity: cfg.CacheCapacity,
			Grower:   opts.Grower,
			Rand:     opts.Rand,
		}),
		auth: authority.New(authority.Config{
			ProbeCount:          cfg.ProbeCount,
			ProbeInterval:       cfg.ProbeInterval.Duration(),
			AnnounceCount:       cfg.AnnounceCount,
			AnnounceInterval:    cfg.AnnounceInterval.Duration(),
			MaxAnnounceInterval: cfg.MaxAnnounceInterval.Duration(),
			MaxRenameAttempts:   cfg.MaxRenameAttempts,
			Rand:                opts.Rand,
		}),
		questions: question.NewSet(question.Config{
			InitialInterval: cfg.InitialQueryInterval.Duration(),
			MaxInterval:     cfg.MaxQueryInterval.Duration(),
			RingSize:        cfg.RecentSendersRing,
		}),
		limiter: limiter,
		ifaces:  append([]types.InterfaceID(nil), opts.Interfaces...),
		sender:  opts.Sender,
		waker:   opts.Waker,
		metrics: opts.Metrics,
	}

	logger.Info("引擎已创建", "cacheCapacity", cfg.CacheCapacity, "interfaces", len(e.ifaces))
	return e, nil
}

// AttachWaker 设置唤醒协作者
//
// 驱动持有引擎，因此在驱动创建后再挂接。
func (e *Engine) AttachWaker(w interfaces.Waker) {
	e.mu.Lock()
	e.waker = w
	e.lastWake = time.Time{}
	e.mu.Unlock()
}

// Clock 引擎的时间源
func (e *Engine) Clock() clock.Clock { return e.clk }

// ============================================================================
//                              进入与退出
// ============================================================================

// lock 进入引擎：加锁、取当前时间、移除已过期的缓存条目
func (e *Engine) lock() time.Time {
	e.mu.Lock()
	now := e.clk.Now()
	e.expire(now)
	return now
}

// unlock 推进定时工作，释放锁，然后冲刷出站消息与回调
//
// 冲刷期间回调重新进入引擎时，嵌套调用只追加到队列，
// 由外层循环继续冲刷，保证先发送后回调的顺序。
func (e *Engine) unlock(now time.Time) {
	e.advance(now)
	if e.flushing {
		e.mu.Unlock()
		return
	}
	e.flushing = true

	for {
		msgs := e.out.take()
		cbs := e.pending
		e.pending = nil
		if len(msgs) == 0 && len(cbs) == 0 {
			break
		}
		e.mu.Unlock()
		for _, m := range msgs {
			e.sender.Send(m)
		}
		for _, cb := range cbs {
			cb()
		}
		e.mu.Lock()
	}

	e.flushing = false
	next := e.nextWake()
	w := e.waker
	changed := !next.Equal(e.lastWake)
	e.lastWake = next
	e.mu.Unlock()

	if w != nil && changed {
		w.ScheduleWake(next)
	}
}

// nextWake 三个部件中最早的待处理时刻，零值表示空闲
func (e *Engine) nextWake() time.Time {
	next := e.cacheNext
	for _, t := range []time.Time{e.auth.NextWake(), e.questions.NextWake()} {
		if !t.IsZero() && (next.IsZero() || t.Before(next)) {
			next = t
		}
	}
	return next
}

// NextWake 返回当前计算出的下一次唤醒时刻
func (e *Engine) NextWake() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nextWake()
}

// Tick 到达唤醒时刻时调用，返回新的唤醒时刻
func (e *Engine) Tick() time.Time {
	now := e.lock()
	e.unlock(now)
	return e.NextWake()
}

// ============================================================================
//                              接口与发送错误
// ============================================================================

// SetInterfaces 更新任意接口问题的查询目标接口
func (e *Engine) SetInterfaces(ids []types.InterfaceID) {
	now := e.lock()
	e.ifaces = append(e.ifaces[:0], ids...)
	e.unlock(now)
}

// Interfaces 返回当前查询目标接口
func (e *Engine) Interfaces() []types.InterfaceID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]types.InterfaceID(nil), e.ifaces...)
}

// PurgeInterface 接口消失时移除其上的全部缓存条目
//
// 被移除的记录向匹配的问题投递 remove。
func (e *Engine) PurgeInterface(id types.InterfaceID) int {
	now := e.lock()
	purged := e.cache.PurgeInterface(id)
	for _, entry := range purged {
		e.entryGone(entry, now)
	}
	kept := e.ifaces[:0]
	for _, x := range e.ifaces {
		if x != id {
			kept = append(kept, x)
		}
	}
	e.ifaces = kept
	e.metrics.Cache(metrics.CachePurged, len(purged))
	e.unlock(now)

	logger.Info("接口已清理", "iface", id, "entries", len(purged))
	return len(purged)
}

// ReportSendError 发送协作者报告的异步失败
//
// 只记录与计数，不改变引擎状态。
func (e *Engine) ReportSendError(msg *rr.Message, err error) {
	e.metrics.SendError()
	if msg == nil {
		logger.Warn("发送失败", "err", err)
		return
	}
	logger.Warn("发送失败", "kind", msg.Kind, "iface", msg.Interface, "err", err)
}

// ============================================================================
//                              内省
// ============================================================================

// Stats 引擎规模快照
type Stats struct {
	CacheEntries  int
	CacheCapacity int
	Records       int
	Questions     int
	NextWake      time.Time
}

// Stats 返回规模快照
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		CacheEntries:  e.cache.Len(),
		CacheCapacity: e.cache.Capacity(),
		Records:       e.auth.Len(),
		Questions:     e.questions.Len(),
		NextWake:      e.nextWake(),
	}
}

// CachedRecord 缓存条目快照
type CachedRecord struct {
	Record    rr.Record
	Interface types.InterfaceID
	Source    string
	Remaining time.Duration
}

// Cached 返回与 key 匹配的缓存记录快照，TTL 为剩余值
func (e *Engine) Cached(key rr.Key, iface types.InterfaceID) []CachedRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.clk.Now()
	var out []CachedRecord
	for _, entry := range e.cache.Match(key, iface, now) {
		out = append(out, CachedRecord{
			Record:    entry.RecordWithTTL(now),
			Interface: entry.Interface,
			Source:    entry.Source.String(),
			Remaining: entry.Remaining(now),
		})
	}
	return out
}
