package authority

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/dep2p/go-mdns/pkg/lib/log"
	"github.com/dep2p/go-mdns/pkg/lib/rr"
	"github.com/dep2p/go-mdns/pkg/types"
)

var logger = log.Logger("core/authority")

// probeDeferOnLoss 同时探测裁决失败后重新探测前的等待
const probeDeferOnLoss = time.Second

// Config 状态机参数
type Config struct {
	ProbeCount          int
	ProbeInterval       time.Duration
	AnnounceCount       int
	AnnounceInterval    time.Duration
	MaxAnnounceInterval time.Duration
	MaxRenameAttempts   int

	// Rand 探测初始延迟与改名后缀的随机源
	Rand *rand.Rand
}

// DefaultConfig 返回默认参数
func DefaultConfig() Config {
	return Config{
		ProbeCount:          3,
		ProbeInterval:       250 * time.Millisecond,
		AnnounceCount:       8,
		AnnounceInterval:    time.Second,
		MaxAnnounceInterval: time.Minute,
		MaxRenameAttempts:   32,
	}
}

// Incoming 一条与权威记录比对的入站记录
type Incoming struct {
	Record    rr.Record
	Interface types.InterfaceID
	// Probe 来自他人探测包的权威段，而不是应答
	Probe bool
}

// Authority 权威记录集合
//
// 不是并发安全的，由引擎在锁内调用。
type Authority struct {
	cfg   Config
	arena arena
	rnd   *rand.Rand
}

// New 创建权威记录集合
func New(cfg Config) *Authority {
	rnd := cfg.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // 探测延迟不需要加密级随机
	}
	return &Authority{cfg: cfg, rnd: rnd}
}

// Len 存活记录数
func (a *Authority) Len() int { return a.arena.live }

// Get 按句柄查找
func (a *Authority) Get(h Handle) (*Record, error) {
	return a.arena.get(h)
}

// Records 返回全部存活记录的快照
func (a *Authority) Records() []*Record {
	return a.arena.each()
}

// ============================================================================
//                              注册
// ============================================================================

// Register 注册一条记录
//
// 参数不合法返回 ErrBadParam，与已有记录矛盾返回 ErrAlreadyRegistered，
// 出错时不改变任何状态。
func (a *Authority) Register(spec Spec, now time.Time, fx *Effects) (Handle, error) {
	if err := validate(spec.Record); err != nil {
		return Handle{}, err
	}
	if spec.Policy < types.PolicyShared || spec.Policy > types.PolicyKnownUnique {
		return Handle{}, fmt.Errorf("%w: unknown policy %d", types.ErrBadParam, spec.Policy)
	}
	if err := a.checkDuplicate(spec.Record, spec.Policy, spec.Interface, Handle{}); err != nil {
		return Handle{}, err
	}
	if len(spec.After) > 0 {
		return Handle{}, fmt.Errorf("%w: unresolved set dependency", types.ErrBadParam)
	}
	for _, d := range spec.DependsOn {
		if _, err := a.arena.get(d); err != nil {
			return Handle{}, fmt.Errorf("%w: dependency %s", types.ErrBadParam, d)
		}
	}

	r := &Record{
		rec:        spec.Record,
		policy:     spec.Policy,
		iface:      spec.Interface,
		autoRename: spec.AutoRename,
		richText:   spec.RichTextRename,
		deps:       append([]Handle(nil), spec.DependsOn...),
		callback:   spec.Callback,
		ctx:        spec.Context,
	}
	r.held = !a.ready(r)
	h := a.arena.alloc(r)
	a.start(r, now, fx)

	logger.Debug("注册记录", "handle", h, "record", r.rec.Key, "policy", r.policy, "state", r.state)
	return h, nil
}

// validate 校验记录是否可以注册
func validate(rec rr.Record) error {
	switch {
	case rec.Name.IsZero():
		return fmt.Errorf("%w: empty name", types.ErrBadParam)
	case rec.Type == rr.TypeANY || rec.Type == 0:
		return fmt.Errorf("%w: invalid type %s", types.ErrBadParam, rec.Type)
	case rec.Class == rr.ClassANY || rec.Class == 0:
		return fmt.Errorf("%w: invalid class %s", types.ErrBadParam, rec.Class)
	case rec.TTL == 0:
		return fmt.Errorf("%w: zero TTL", types.ErrBadParam)
	case rec.Data.Len() == 0:
		return fmt.Errorf("%w: empty data", types.ErrBadParam)
	case rec.Data.Kind() != rr.KindOf(rec.Type):
		return fmt.Errorf("%w: data does not match type %s", types.ErrBadParam, rec.Type)
	}
	return nil
}

// checkDuplicate 与已有记录比对
//
// 同身份同数据，或任一方为唯一策略且数据不同，均视为重复注册。
func (a *Authority) checkDuplicate(rec rr.Record, policy types.RecordPolicy, iface types.InterfaceID, self Handle) error {
	for _, r := range a.arena.each() {
		if r.handle == self || r.state == types.StateDeregistering {
			continue
		}
		if !r.iface.Matches(iface) || !r.rec.Key.Equal(rec.Key) {
			continue
		}
		if r.rec.Data.Equal(rec.Data) || policy.IsUnique() || r.policy.IsUnique() {
			return fmt.Errorf("%w: %s", types.ErrAlreadyRegistered, rec.Key)
		}
	}
	return nil
}

// start 按策略进入初始状态
func (a *Authority) start(r *Record, now time.Time, fx *Effects) {
	r.announced = 0
	r.announcesLeft = 0
	r.interval = 0
	r.probesLeft = 0

	switch r.policy {
	case types.PolicyShared:
		r.state = types.StateShared
	case types.PolicyAdvisory:
		r.state = types.StateAdvisory
	case types.PolicyKnownUnique:
		r.state = types.StateKnownUnique
	case types.PolicyUnique:
		r.state = types.StateUnique
		r.probesLeft = a.cfg.ProbeCount
		r.next = now.Add(time.Duration(a.rnd.Int63n(int64(a.cfg.ProbeInterval) + 1)))
		return
	}

	if r.policy == types.PolicyKnownUnique {
		fx.event(r, types.StatusKnownUnique, r.rec, false)
	}
	a.activate(r, now, fx)
}

// activate 记录进入活动状态：依赖就绪时加入缓存并开始通告，随后放行等待它的记录
func (a *Authority) activate(r *Record, now time.Time, fx *Effects) {
	if !r.Visible() {
		r.next = time.Time{}
		return
	}
	fx.change(r, r.rec, true)
	a.beginAnnounce(r, now)
	a.release(now, fx)
}

// ============================================================================
//                              依赖
// ============================================================================

// ready 依赖是否全部可见；已撤销的依赖不再约束
func (a *Authority) ready(r *Record) bool {
	for _, d := range r.deps {
		dep, err := a.arena.get(d)
		if err != nil {
			continue
		}
		if !dep.Visible() {
			return false
		}
	}
	return true
}

// release 放行依赖已全部可见的等待记录，直到没有新的记录变为可见
func (a *Authority) release(now time.Time, fx *Effects) {
	for changed := true; changed; {
		changed = false
		for _, r := range a.arena.each() {
			if !r.held || r.orphaned || !a.ready(r) {
				continue
			}
			r.held = false
			if !r.state.Active() {
				continue
			}
			logger.Debug("依赖已就绪，开始通告", "handle", r.handle, "record", r.rec.Key)
			fx.change(r, r.rec, true)
			a.beginAnnounce(r, now)
			changed = true
		}
	}
}

// orphan 依赖 r 的兄弟记录永久隐藏，等待整组撤销
func (a *Authority) orphan(r *Record) {
	for _, sh := range r.siblings {
		s, err := a.arena.get(sh)
		if err != nil || !containsHandle(s.deps, r.handle) {
			continue
		}
		s.orphaned = true
		s.next = time.Time{}
	}
}

func (a *Authority) beginAnnounce(r *Record, now time.Time) {
	r.announcesLeft = a.cfg.AnnounceCount
	r.interval = 0
	r.next = now
}

// ============================================================================
//                              定时推进
// ============================================================================

// Tick 推进到期的探测与通告，返回下一次需要 Tick 的时刻（零值表示空闲）
//
// 先放行依赖已撤销的等待记录；第二遍处理本轮因依赖就绪而被放行的记录。
func (a *Authority) Tick(now time.Time, fx *Effects) time.Time {
	a.release(now, fx)
	for pass := 0; pass < 2; pass++ {
		for _, r := range a.arena.each() {
			a.advance(r, now, fx)
		}
	}
	return a.NextWake()
}

// NextWake 最早的待处理时刻
func (a *Authority) NextWake() time.Time {
	var next time.Time
	for _, r := range a.arena.each() {
		if r.next.IsZero() {
			continue
		}
		if next.IsZero() || r.next.Before(next) {
			next = r.next
		}
	}
	return next
}

func (a *Authority) advance(r *Record, now time.Time, fx *Effects) {
	if r.next.IsZero() || r.next.After(now) {
		return
	}

	if r.state == types.StateUnique {
		if r.probesLeft > 0 {
			fx.send(SendProbe, r, r.rec)
			r.probesLeft--
			r.next = now.Add(a.cfg.ProbeInterval)
			return
		}
		r.state = types.StateVerified
		logger.Info("探测通过", "handle", r.handle, "record", r.rec.Key)
		fx.event(r, types.StatusVerified, r.rec, false)
		a.activate(r, now, fx)
	}

	if r.announcesLeft <= 0 || !r.Visible() {
		r.next = time.Time{}
		return
	}

	fx.send(SendAnnounce, r, r.rec)
	r.announced++
	r.announcesLeft--
	if r.interval == 0 {
		r.interval = a.cfg.AnnounceInterval
	} else {
		r.interval *= 2
		if r.interval > a.cfg.MaxAnnounceInterval {
			r.interval = a.cfg.MaxAnnounceInterval
		}
	}
	if r.announcesLeft > 0 {
		r.next = now.Add(r.interval)
	} else {
		r.next = time.Time{}
	}
}

// ============================================================================
//                              撤销与更新
// ============================================================================

// Deregister 撤销记录
//
// 需要时先发送 goodbye，然后释放记录并投递一次 StatusMemFree。
func (a *Authority) Deregister(h Handle, fx *Effects) error {
	r, err := a.arena.get(h)
	if err != nil {
		return err
	}

	goodbye := r.needsGoodbye()
	visible := r.Visible()
	r.state = types.StateDeregistering

	if goodbye {
		fx.send(SendGoodbye, r, r.rec.WithTTL(0))
	}
	if visible {
		fx.change(r, r.rec, false)
	}
	a.unlink(r)
	fx.event(r, types.StatusMemFree, r.rec, true)

	logger.Debug("撤销记录", "handle", h, "record", r.rec.Key, "goodbye", goodbye)
	return nil
}

// Update 替换记录数据并重新通告（不重新探测）
//
// 新记录的身份必须与原记录一致，否则返回 ErrBadParam。
// 共享记录已通告过时，先为旧数据发送 goodbye。
func (a *Authority) Update(h Handle, rec rr.Record, now time.Time, fx *Effects) error {
	r, err := a.arena.get(h)
	if err != nil {
		return err
	}
	if err := validate(rec); err != nil {
		return err
	}
	if !rec.Key.Equal(r.rec.Key) {
		return fmt.Errorf("%w: update cannot change identity %s", types.ErrBadParam, r.rec.Key)
	}
	if err := a.checkDuplicate(rec, r.policy, r.iface, h); err != nil {
		return err
	}

	old := r.rec
	r.rec = rec
	if !r.Visible() {
		// 探测中：用新数据继续探测
		return nil
	}

	if r.policy == types.PolicyShared && r.announced > 0 && !old.Data.Equal(rec.Data) {
		fx.send(SendGoodbye, r, old.WithTTL(0))
	}
	fx.change(r, old, false)
	fx.change(r, rec, true)
	a.beginAnnounce(r, now)

	logger.Debug("更新记录", "handle", h, "record", rec.Key)
	return nil
}

// unlink 从兄弟集合中摘除并释放
func (a *Authority) unlink(r *Record) {
	for _, sh := range r.siblings {
		s, err := a.arena.get(sh)
		if err != nil {
			continue
		}
		kept := s.siblings[:0]
		for _, x := range s.siblings {
			if x != r.handle {
				kept = append(kept, x)
			}
		}
		s.siblings = kept
	}
	r.siblings = nil
	r.next = time.Time{}
	a.arena.release(r.handle)
	r.state = types.StateUnregistered
}

// ============================================================================
//                              兄弟记录
// ============================================================================

// Link 把一组记录设为互为兄弟，用于关联撤销
func (a *Authority) Link(handles ...Handle) error {
	recs := make([]*Record, 0, len(handles))
	for _, h := range handles {
		r, err := a.arena.get(h)
		if err != nil {
			return err
		}
		recs = append(recs, r)
	}
	for _, r := range recs {
		for _, h := range handles {
			if h != r.handle && !containsHandle(r.siblings, h) {
				r.siblings = append(r.siblings, h)
			}
		}
	}
	return nil
}

// Siblings 返回仍然存活的兄弟句柄
func (a *Authority) Siblings(h Handle) ([]Handle, error) {
	r, err := a.arena.get(h)
	if err != nil {
		return nil, err
	}
	out := make([]Handle, 0, len(r.siblings))
	for _, s := range r.siblings {
		if _, err := a.arena.get(s); err == nil {
			out = append(out, s)
		}
	}
	return out, nil
}

func containsHandle(hs []Handle, h Handle) bool {
	for _, x := range hs {
		if x == h {
			return true
		}
	}
	return false
}

// ============================================================================
//                              应答查找
// ============================================================================

// Answer 返回能回答问题 q 的可见记录
func (a *Authority) Answer(q rr.Key, iface types.InterfaceID) []*Record {
	var out []*Record
	for _, r := range a.arena.each() {
		if r.Visible() && r.rec.Answers(q) && r.iface.Matches(iface) {
			out = append(out, r)
		}
	}
	return out
}

// Owns 是否持有与 rec 身份数据都相同的可见记录
func (a *Authority) Owns(rec rr.Record, iface types.InterfaceID) bool {
	for _, r := range a.arena.each() {
		if r.Visible() && r.iface.Matches(iface) && r.rec.Identical(rec) {
			return true
		}
	}
	return false
}
